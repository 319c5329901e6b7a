// Package reconciler implements the Reconciler / Action Controller (C9):
// resolving a scenario to concrete workload commands on named nodes (spec
// §4.9), grounded on
// original_source/src/player/actioncontroller/src/manager.rs.
package reconciler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/piccolo-project/piccolo/internal/artifact"
	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/kvstore"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/statestore"
)

// defaultRPCTimeout bounds every outbound RPC the reconciler makes (spec §5:
// "Every outbound RPC carries a timeout (default 5s, configurable in C9
// client)"). SetRPCTimeout overrides it.
const defaultRPCTimeout = 5 * time.Second

// NodeAgentClient is C9's outbound connection to a node's Workload
// Dispatcher (C10).
type NodeAgentClient interface {
	HandleWorkload(ctx context.Context, node string, cmd proto.WorkloadCommand) (proto.ReconcileResponse, error)
}

// TimpaniClient is the real-time scheduling-info sink (spec §6); specified
// only at its interface, treated as an external collaborator.
type TimpaniClient interface {
	AddSchedInfo(ctx context.Context, info proto.SchedInfo) error
}

// StateChangeSubmitter is C8's ingress, used by the reconciler to report
// completion back (spec §4.9 step 3).
type StateChangeSubmitter interface {
	Submit(ctx context.Context, sc proto.StateChange) proto.TransitionResponse
}

// Reconciler is the Action Controller (C9).
type Reconciler struct {
	registry    *artifact.Registry
	kv          kvstore.Store
	nodeAgent   NodeAgentClient
	timpani     TimpaniClient
	submitter   StateChangeSubmitter
	clock       *audit.Clock
	staticRoles map[string]string // hostname -> role, local-config fallback
	rpcTimeout  time.Duration
}

// New builds a Reconciler. staticRoles is the local-configuration fallback
// consulted only after both KV lookups miss.
func New(registry *artifact.Registry, kv kvstore.Store, nodeAgent NodeAgentClient, timpani TimpaniClient, submitter StateChangeSubmitter, clock *audit.Clock, staticRoles map[string]string) *Reconciler {
	return &Reconciler{
		registry: registry, kv: kv, nodeAgent: nodeAgent, timpani: timpani,
		submitter: submitter, clock: clock, staticRoles: staticRoles,
		rpcTimeout: defaultRPCTimeout,
	}
}

// SetRPCTimeout overrides the per-call timeout applied to every outbound RPC
// (node agent, Timpani, state manager). Zero or negative restores the
// default.
func (r *Reconciler) SetRPCTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultRPCTimeout
	}
	r.rpcTimeout = d
}

// callRetryOnce invokes fn under a fresh rpcTimeout-bounded context, and on
// failure retries exactly once under a second fresh timeout before giving
// up (spec §7 item 2: "retry once, then promote the scenario to error").
func (r *Reconciler) callRetryOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.rpcTimeout)
		defer cancel()
		return fn(callCtx)
	}
	if err := attempt(); err != nil {
		logrus.WithError(err).Debug("reconciler: rpc attempt failed, retrying once")
		return attempt()
	}
	return nil
}

const roleNodeAgent = "nodeagent"

// ResolveNodeRole implements the three-tier fallback grounded on
// manager.rs::get_node_role_from_etcd:
// cluster/nodes/{hostname} (NodeInfo JSON) -> nodes/{hostname} (bare IP,
// presence implies nodeagent) -> local static configuration.
func (r *Reconciler) ResolveNodeRole(ctx context.Context, hostname string) (role string, ok bool) {
	if raw, err := r.kv.Get(ctx, "cluster/nodes/"+hostname); err == nil {
		var info proto.NodeInfo
		if err := json.Unmarshal([]byte(raw), &info); err == nil {
			if info.NodeRole == proto.NodeRoleNodeAgent {
				return roleNodeAgent, true
			}
			return "", false
		}
	}
	if _, err := r.kv.Get(ctx, "nodes/"+hostname); err == nil {
		return roleNodeAgent, true
	}
	if role, ok := r.staticRoles[hostname]; ok {
		return role, true
	}
	return "", false
}

// Reconcile implements spec §4.9's reconcile(scenarioName) operation.
func (r *Reconciler) Reconcile(ctx context.Context, scenarioName string) error {
	if strings.TrimSpace(scenarioName) == "" {
		return errors.New("reconciler: scenario name must not be empty")
	}

	sc, err := r.registry.GetScenario(ctx, scenarioName)
	if err != nil {
		return errors.Wrapf(err, "reconciler: load scenario %q", scenarioName)
	}
	pkg, err := r.registry.GetPackage(ctx, sc.Target)
	if err != nil {
		return errors.Wrapf(err, "reconciler: load package %q", sc.Target)
	}

	runID := uuid.NewString()
	var firstFailure string
	for _, ref := range pkg.Models {
		role, ok := r.ResolveNodeRole(ctx, ref.Node)
		if !ok {
			logrus.WithFields(logrus.Fields{"run": runID, "node": ref.Node, "model": ref.Name}).Warn("node role unresolved, skipping model")
			continue
		}
		if role != roleNodeAgent {
			logrus.WithFields(logrus.Fields{"run": runID, "node": ref.Node, "role": role}).Warn("unsupported node role, skipping model")
			continue
		}

		if err := r.dispatchModel(ctx, sc, ref); err != nil {
			logrus.WithFields(logrus.Fields{"run": runID, "model": ref.Name}).WithError(err).Error("workload action failed")
			if firstFailure == "" {
				firstFailure = ref.Name
			}
		}
	}

	transitionID, ts := r.clock.NewTransitionID("actioncontroller", "reconcile")
	target := "completed"
	details := ""
	if firstFailure != "" {
		target = "error"
		details = "model " + firstFailure + " failed"
	}
	if target == "error" {
		logrus.WithFields(logrus.Fields{"run": runID, "scenario": scenarioName}).Warn(details)
	}

	var resp proto.TransitionResponse
	err = r.callRetryOnce(ctx, func(ctx context.Context) error {
		resp = r.submitter.Submit(ctx, proto.StateChange{
			ResourceType: proto.ResourceTypeScenario,
			ResourceName: scenarioName,
			CurrentState: "allowed",
			TargetState:  target,
			TransitionID: transitionID,
			TimestampNs:  ts,
			Source:       "actioncontroller",
		})
		if resp.ErrorCode != proto.ErrorCodeSuccess {
			return errors.Errorf("report completion: %s", resp.ErrorDetails)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "reconciler: failed to report completion")
	}
	return nil
}

// dispatch sends a single workload command to the model's node, bounded by
// rpcTimeout and retried once on failure before giving up (spec §5, §7
// item 2).
func (r *Reconciler) dispatch(ctx context.Context, node string, cmd proto.WorkloadCommand) error {
	return r.callRetryOnce(ctx, func(ctx context.Context) error {
		_, err := r.nodeAgent.HandleWorkload(ctx, node, cmd)
		return err
	})
}

func (r *Reconciler) dispatchModel(ctx context.Context, sc artifact.Scenario, ref artifact.ModelRef) error {
	model, err := r.registry.GetModel(ctx, ref.Name)
	if err != nil {
		return errors.Wrapf(err, "load model %q", ref.Name)
	}

	switch sc.Action {
	case artifact.ActionLaunch:
		if err := r.dispatch(ctx, ref.Node, createCommand(model)); err != nil {
			return err
		}
		return r.dispatch(ctx, ref.Node, proto.WorkloadCommand{Command: "Start", ModelName: model.Name})
	case artifact.ActionTerminate:
		return r.dispatch(ctx, ref.Node, proto.WorkloadCommand{Command: "Stop", ModelName: model.Name})
	case artifact.ActionUpdate, artifact.ActionRollback:
		if err := r.dispatch(ctx, ref.Node, proto.WorkloadCommand{Command: "Restart", ModelName: model.Name}); err != nil {
			return err
		}
		if ref.Resources.Realtime {
			r.postSchedInfo(ctx, model, ref)
		}
		return nil
	default:
		return errors.Errorf("unknown scenario action %q", sc.Action)
	}
}

func createCommand(model artifact.Model) proto.WorkloadCommand {
	pod := &proto.PodSpec{
		ModelName:                     model.Name,
		HostNetwork:                   model.PodSpec.HostNetwork,
		Volumes:                       model.PodSpec.Volumes,
		TerminationGracePeriodSeconds: model.PodSpec.TerminationGracePeriodSeconds,
	}
	for _, c := range model.PodSpec.Containers {
		pod.Containers = append(pod.Containers, proto.ContainerSpec{
			Name: c.Name, Image: c.Image, Ports: c.Ports, Env: c.Env,
			Command: c.Command, VolumeMounts: c.VolumeMounts,
		})
	}
	return proto.WorkloadCommand{Command: "Create", ModelName: model.Name, Pod: pod}
}

// postSchedInfo implements spec §4.9 step 2b: on update/rollback of a
// realtime model, post SchedInfo to Timpani with the last element of the
// model's command as task name, default priority 50, FIFO policy, times in
// microseconds. Validated per validate_task_constraints/validate_sched_info
// in the original; a violation is logged and the post is skipped, since
// Timpani is a best-effort sink that must never block reconcile.
func (r *Reconciler) postSchedInfo(ctx context.Context, model artifact.Model, ref artifact.ModelRef) {
	if r.timpani == nil || len(model.PodSpec.Containers) == 0 {
		return
	}
	cmd := model.PodSpec.Containers[0].Command
	if len(cmd) == 0 {
		return
	}
	task := proto.TaskInfo{
		Name:        cmd[len(cmd)-1],
		Priority:    50,
		Policy:      proto.SchedPolicyFifo,
		CPUAffinity: 0,
		Period:      10000,
		ReleaseTime: 0,
		Runtime:     5000,
		Deadline:    10000,
		NodeID:      ref.Node,
		MaxDmiss:    3,
	}
	info := proto.SchedInfo{WorkloadID: model.Name, Tasks: []proto.TaskInfo{task}}
	if !validateSchedInfo(info) {
		logrus.WithField("model", model.Name).Warn("invalid sched info, skipping timpani post")
		return
	}
	err := r.callRetryOnce(ctx, func(ctx context.Context) error {
		return r.timpani.AddSchedInfo(ctx, info)
	})
	if err != nil {
		logrus.WithError(err).WithField("model", model.Name).Warn("timpani post failed")
	}
}

func validateSchedInfo(info proto.SchedInfo) bool {
	if strings.TrimSpace(info.WorkloadID) == "" {
		return false
	}
	for _, t := range info.Tasks {
		if !(t.ReleaseTime <= t.Runtime && t.Runtime <= t.Deadline && t.Deadline <= t.Period) {
			return false
		}
	}
	return true
}

// Sweep re-reconciles every scenario currently in "playing", a periodic
// backstop alongside the event-driven Reconcile calls triggered off the
// allowed->playing transition, run on a robfig/cron schedule.
func (r *Reconciler) Sweep(ctx context.Context) {
	scenarios, err := r.registry.ListScenarios(ctx)
	if err != nil {
		logrus.WithError(err).Warn("sweep: failed to list scenarios")
		return
	}
	keys := statestore.KeyFormatter{}
	for _, sc := range scenarios {
		state, err := r.kv.Get(ctx, keys.ScenarioStateKey(sc.Name))
		if err != nil || state != "playing" {
			continue
		}
		if err := r.Reconcile(ctx, sc.Name); err != nil {
			logrus.WithError(err).WithField("scenario", sc.Name).Warn("sweep: reconcile failed")
		}
	}
}

// ReconcileDesired implements the reconcile_do(current, desired) path (spec
// §4.9 step 4): only desired=="Running" triggers Start across all models;
// any other desired state is rejected rather than silently accepted-and-
// ignored.
func (r *Reconciler) ReconcileDesired(ctx context.Context, req proto.ReconcileRequest) (proto.ReconcileResponse, error) {
	if req.Desired != "Running" {
		return proto.ReconcileResponse{Status: 1, Desc: "unsupported desired state"},
			errors.Errorf("reconciler: reconcile_do only supports desired=Running, got %q", req.Desired)
	}
	switch req.Current {
	case "None", "Failed", "Unknown":
		return proto.ReconcileResponse{Status: 1, Desc: "illegal current state"},
			errors.Errorf("reconciler: illegal current state %q for reconcile_do", req.Current)
	}

	sc, err := r.registry.GetScenario(ctx, req.ScenarioName)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "scenario not found"}, err
	}
	pkg, err := r.registry.GetPackage(ctx, sc.Target)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "package not found"}, err
	}
	for _, ref := range pkg.Models {
		cmd := proto.WorkloadCommand{Command: "Start", ModelName: ref.Name}
		if err := r.dispatch(ctx, ref.Node, cmd); err != nil {
			logrus.WithError(err).WithField("model", ref.Name).Warn("reconcile_do start failed")
		}
	}
	return proto.ReconcileResponse{Status: 0, Desc: "reconciled"}, nil
}
