// Package faultsink implements the Fault Sink (C11): a unary endpoint
// accepting deadline-miss notifications from the real-time scheduler and
// feeding them into the Transition Engine as StateChange events (spec
// §4.11).
package faultsink

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/proto"
)

// StateChangeSubmitter is C8's ingress.
type StateChangeSubmitter interface {
	Submit(ctx context.Context, sc proto.StateChange) proto.TransitionResponse
}

// Sink is the Fault Sink (C11).
type Sink struct {
	submitter StateChangeSubmitter
	clock     *audit.Clock
}

// New builds a Sink. submitter may be nil, in which case NotifyFault only
// logs (spec §4.11: "at minimum the endpoint MUST accept concurrent calls
// without panic and preserve status=0 contract").
func New(submitter StateChangeSubmitter, clock *audit.Clock) *Sink {
	return &Sink{submitter: submitter, clock: clock}
}

// NotifyFault accepts a FaultInfo, logs it, and — when a submitter is wired
// — translates it into a StateChange targeting the affected Model, per the
// "fuller implementation" note in spec §4.11. It always returns status=0,
// even on internal failure, since the fault source expects a fire-and-forget
// accept.
func (s *Sink) NotifyFault(ctx context.Context, fault proto.FaultInfo) proto.FaultResponse {
	logrus.WithFields(logrus.Fields{
		"model":       fault.ModelName,
		"description": fault.Description,
	}).Warn("deadline-miss fault received")

	if s.submitter != nil && fault.ModelName != "" {
		transitionID, ts := s.clock.NewTransitionID("faultsink", "deadline-miss")
		s.submitter.Submit(ctx, proto.StateChange{
			ResourceType: proto.ResourceTypeModel,
			ResourceName: fault.ModelName,
			CurrentState: "Running",
			TargetState:  "CrashLoopBackOff",
			TransitionID: transitionID,
			TimestampNs:  ts,
			Source:       "faultsink",
		})
	}
	return proto.FaultResponse{Status: 0}
}
