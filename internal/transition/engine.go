// Package transition implements the Transition Engine (C8): ingress of
// StateChange events, validation, per-resource-type table lookup, bounded
// async dispatch, and audit stamping (spec §4.8), grounded on
// original_source/src/player/statemanager/src/grpc/receiver/mod.rs
// (validate_state_change / send_state_change) and state_machine.rs
// (the table-driven architecture).
package transition

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/scenario"
	"github.com/piccolo-project/piccolo/internal/statestore"
)

// ActionBudget bounds how long a transition's side-effect actions may run
// inline before the engine detaches them and moves on (spec §4.8 step 3).
const ActionBudget = 2 * time.Second

// DefaultQueueSize is the suggested inter-component channel bound (spec §5
// "Backpressure").
const DefaultQueueSize = 100

// Action is a side effect run after a scenario transition is accepted and
// persisted, e.g. the reconciler beginning execution on allowed->playing.
// It receives the accepted StateChange and a context that is cancelled once
// ActionBudget has passed; an action still running then is logged as
// detached and the engine moves on without waiting for it to return.
type Action func(ctx context.Context, sc proto.StateChange) error

// Engine is the Transition Engine (C8).
type Engine struct {
	store     *statestore.Store
	clock     *audit.Clock
	queues    map[proto.ResourceType]chan proto.StateChange
	queueSize int
	actions   map[scenario.State]Action // keyed by target state

	packageErrorHook PackageErrorHook
}

// New builds an Engine with one bounded queue per resource type.
func New(store *statestore.Store, clock *audit.Clock, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Engine{
		store:     store,
		clock:     clock,
		queueSize: queueSize,
		actions:   make(map[scenario.State]Action),
		queues: map[proto.ResourceType]chan proto.StateChange{
			proto.ResourceTypeScenario: make(chan proto.StateChange, queueSize),
			proto.ResourceTypePackage:  make(chan proto.StateChange, queueSize),
			proto.ResourceTypeModel:    make(chan proto.StateChange, queueSize),
		},
	}
	return e
}

// OnEnter registers an Action run after a scenario transitions into target,
// once the new state has been persisted. Used to hook the reconciler's
// "allowed -> playing" kickoff (spec data-flow §2).
func (e *Engine) OnEnter(target scenario.State, a Action) {
	e.actions[target] = a
}

// validate applies the validation order of spec §4.8 (grounded on
// receiver/mod.rs::validate_state_change): resource_type is a known enum;
// every string field is non-empty after trim; timestamp_ns > 0.
func validate(sc proto.StateChange) (ok bool, details string) {
	switch sc.ResourceType {
	case proto.ResourceTypeScenario, proto.ResourceTypePackage, proto.ResourceTypeModel:
	default:
		return false, "unknown resource_type"
	}
	fields := map[string]string{
		"resource_name": sc.ResourceName,
		"current_state": sc.CurrentState,
		"target_state":  sc.TargetState,
		"transition_id": sc.TransitionID,
		"source":        sc.Source,
	}
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			return false, name + " must not be empty"
		}
	}
	if sc.TimestampNs <= 0 {
		return false, "timestamp_ns must be > 0"
	}
	return true, ""
}

// Submit is the engine's entry point (spec §4.8). Validation failures are
// returned immediately as a successful RPC response carrying an
// InvalidRequest error code (never enqueued, never retried, per spec §7
// item 1). A passing event is enqueued on its resource type's bounded
// channel; a full channel surfaces as ResourceUnavailable rather than
// blocking (spec §5 "Backpressure").
func (e *Engine) Submit(ctx context.Context, sc proto.StateChange) proto.TransitionResponse {
	if ok, details := validate(sc); !ok {
		ts, _ := e.clock.Now()
		return proto.TransitionResponse{
			Message:      "validation failed",
			TransitionID: sc.TransitionID,
			TimestampNs:  ts,
			ErrorCode:    proto.ErrorCodeInvalidRequest,
			ErrorDetails: details,
		}
	}

	queue, ok := e.queues[sc.ResourceType]
	if !ok {
		ts, _ := e.clock.Now()
		return proto.TransitionResponse{
			Message:      "no processor for resource type",
			TransitionID: sc.TransitionID,
			TimestampNs:  ts,
			ErrorCode:    proto.ErrorCodeInternalError,
		}
	}

	select {
	case queue <- sc:
		ts, _ := e.clock.Now()
		return proto.TransitionResponse{
			Message:      "accepted",
			TransitionID: sc.TransitionID,
			TimestampNs:  ts,
			ErrorCode:    proto.ErrorCodeSuccess,
		}
	default:
		ts, _ := e.clock.Now()
		return proto.TransitionResponse{
			Message:      "queue full",
			TransitionID: sc.TransitionID,
			TimestampNs:  ts,
			ErrorCode:    proto.ErrorCodeResourceUnavailable,
			ErrorDetails: "resource type " + sc.ResourceType.String() + " queue at capacity",
		}
	}
}

// Run drains all three per-resource-type queues until ctx is cancelled.
// Each resource type is processed by its own goroutine, serializing
// transitions within a type while allowing cross-type concurrency (spec §5
// "Scheduling model").
func (e *Engine) Run(ctx context.Context) {
	for rt, queue := range e.queues {
		go e.drain(ctx, rt, queue)
	}
}

func (e *Engine) drain(ctx context.Context, rt proto.ResourceType, queue chan proto.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case sc := <-queue:
			e.process(ctx, rt, sc)
		}
	}
}

// process applies step 2-4 of spec §4.8: consult the per-resource-type
// transition table, execute actions within the budget, persist the new
// state with the originating transition ID and a fresh timestamp.
func (e *Engine) process(ctx context.Context, rt proto.ResourceType, sc proto.StateChange) {
	logFields := logrus.Fields{
		"resource_type": rt.String(),
		"resource_name": sc.ResourceName,
		"transition_id": sc.TransitionID,
	}

	if rt == proto.ResourceTypeModel || rt == proto.ResourceTypePackage {
		// Model/Package state is derived from observations, not commanded;
		// a StateChange of this type has no table row to apply and is only
		// logged (spec §4.8 step 2, §9 "Derived vs. commanded").
		logrus.WithFields(logFields).Debug("derived resource state change, no-op by design")
		return
	}

	from := scenario.State(sc.CurrentState)
	to := scenario.State(sc.TargetState)
	if !scenario.IsValidTransition(from, to) {
		logrus.WithFields(logFields).WithFields(logrus.Fields{"from": from, "to": to}).Warn("rejected scenario transition")
		return
	}

	runAction := func() {
		action, ok := e.actions[to]
		if !ok {
			return
		}
		actionCtx, cancel := context.WithTimeout(ctx, ActionBudget)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- action(actionCtx, sc) }()
		select {
		case err := <-done:
			if err != nil {
				logrus.WithFields(logFields).WithError(err).Error("scenario transition action failed")
			}
		case <-actionCtx.Done():
			logrus.WithFields(logFields).Warn("scenario transition action exceeded budget, detached")
		}
	}
	runAction()

	if err := e.store.PutScenarioState(ctx, sc.ResourceName, string(to)); err != nil {
		logrus.WithFields(logFields).WithError(err).Error("failed to persist scenario state")
	}
}

// persistScenarioIndependent stores a model/package StateChange's target
// state using the converter's identity encoding; callers posting these
// events are expected to have already gone through the evaluators (C4-C6)
// rather than commanding state directly (spec invariant 2/3).
func (e *Engine) persistScenarioIndependent(ctx context.Context, sc proto.StateChange) {
	switch sc.ResourceType {
	case proto.ResourceTypeModel:
		conv := statestore.StateConverter{}
		state, err := conv.StringToModelState(sc.TargetState)
		if err != nil {
			logrus.WithError(err).WithField("value", sc.TargetState).Warn("unparseable model target state")
			return
		}
		if err := e.store.PutModelState(ctx, sc.ResourceName, state); err != nil {
			logrus.WithError(err).WithField("model", sc.ResourceName).Error("failed to persist model state")
		}
	case proto.ResourceTypePackage:
		conv := statestore.StateConverter{}
		state, err := conv.StringToPackageState(sc.TargetState)
		if err != nil {
			logrus.WithError(err).WithField("value", sc.TargetState).Warn("unparseable package target state")
			return
		}
		if err := e.store.PutPackageState(ctx, sc.ResourceName, state); err != nil {
			logrus.WithError(err).WithField("package", sc.ResourceName).Error("failed to persist package state")
		}
	}
}
