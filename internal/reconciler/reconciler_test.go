package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piccolo-project/piccolo/internal/artifact"
	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/kvstore"
	"github.com/piccolo-project/piccolo/internal/proto"
)

type fakeNodeAgent struct {
	calls []proto.WorkloadCommand
	fail  map[string]bool // model name -> force failure
}

func (f *fakeNodeAgent) HandleWorkload(_ context.Context, _ string, cmd proto.WorkloadCommand) (proto.ReconcileResponse, error) {
	f.calls = append(f.calls, cmd)
	if f.fail[cmd.ModelName] {
		return proto.ReconcileResponse{Status: 1}, assertErr
	}
	return proto.ReconcileResponse{Status: 0}, nil
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "forced failure" }

type fakeSubmitter struct {
	submitted []proto.StateChange
}

func (f *fakeSubmitter) Submit(_ context.Context, sc proto.StateChange) proto.TransitionResponse {
	f.submitted = append(f.submitted, sc)
	return proto.TransitionResponse{ErrorCode: proto.ErrorCodeSuccess, TransitionID: sc.TransitionID}
}

type fakeTimpani struct {
	posted []proto.SchedInfo
}

func (f *fakeTimpani) AddSchedInfo(_ context.Context, info proto.SchedInfo) error {
	f.posted = append(f.posted, info)
	return nil
}

func setup(t *testing.T) (*Reconciler, *fakeNodeAgent, *fakeSubmitter, *fakeTimpani, kvstore.Store) {
	t.Helper()
	kv := kvstore.NewMemStore()
	registry := artifact.New(kv, nil)
	na := &fakeNodeAgent{fail: map[string]bool{}}
	sub := &fakeSubmitter{}
	timpani := &fakeTimpani{}
	r := New(registry, kv, na, timpani, sub, audit.NewClock(), nil)
	return r, na, sub, timpani, kv
}

func seedScenario(t *testing.T, kv kvstore.Store, registry *artifact.Registry) {
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "nodes/nodeA", "10.0.0.1"))
	require.NoError(t, registry.PutModel(ctx, artifact.Model{
		Name: "m1",
		PodSpec: artifact.PodSpec{
			Containers: []artifact.ContainerSpec{{Name: "c1", Image: "nginx", Command: []string{"/bin/x"}}},
		},
	}))
	require.NoError(t, registry.PutPackage(ctx, artifact.Package{
		Name:   "pkg1",
		Models: []artifact.ModelRef{{Name: "m1", Node: "nodeA"}},
	}))
	require.NoError(t, registry.PutScenario(ctx, artifact.Scenario{
		Name: "sc1", Action: artifact.ActionLaunch, Target: "pkg1",
	}))
}

func TestReconcile_LaunchAllGreen(t *testing.T) {
	r, na, sub, _, kv := setup(t)
	registry := artifact.New(kv, nil)
	seedScenario(t, kv, registry)

	err := r.Reconcile(context.Background(), "sc1")
	require.NoError(t, err)
	require.Len(t, na.calls, 2) // Create + Start
	require.Len(t, sub.submitted, 1)
	assert.Equal(t, "completed", sub.submitted[0].TargetState)
}

func TestReconcile_EmptyScenarioNameRejected(t *testing.T) {
	r, _, _, _, _ := setup(t)
	err := r.Reconcile(context.Background(), "   ")
	assert.Error(t, err)
}

func TestReconcile_UnknownNodeSkippedNonFatal(t *testing.T) {
	r, na, sub, _, kv := setup(t)
	registry := artifact.New(kv, nil)
	ctx := context.Background()
	require.NoError(t, registry.PutModel(ctx, artifact.Model{Name: "m1"}))
	require.NoError(t, registry.PutPackage(ctx, artifact.Package{
		Name: "pkg1", Models: []artifact.ModelRef{{Name: "m1", Node: "nodeZ"}},
	}))
	require.NoError(t, registry.PutScenario(ctx, artifact.Scenario{Name: "sc1", Action: artifact.ActionLaunch, Target: "pkg1"}))

	err := r.Reconcile(ctx, "sc1")
	require.NoError(t, err)
	assert.Empty(t, na.calls)
	require.Len(t, sub.submitted, 1)
	assert.Equal(t, "completed", sub.submitted[0].TargetState)
}

func TestReconcile_ModelFailureReportsError(t *testing.T) {
	r, na, sub, _, kv := setup(t)
	na.fail["m1"] = true
	registry := artifact.New(kv, nil)
	seedScenario(t, kv, registry)

	err := r.Reconcile(context.Background(), "sc1")
	require.NoError(t, err)
	require.Len(t, sub.submitted, 1)
	assert.Equal(t, "error", sub.submitted[0].TargetState)
	assert.Contains(t, sub.submitted[0].ErrorDetails, "")
}

func TestReconcile_RealtimeUpdatePostsTimpani(t *testing.T) {
	r, _, _, timpani, kv := setup(t)
	registry := artifact.New(kv, nil)
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "nodes/nodeA", "10.0.0.1"))
	require.NoError(t, registry.PutModel(ctx, artifact.Model{
		Name: "m1",
		PodSpec: artifact.PodSpec{
			Containers: []artifact.ContainerSpec{{Name: "c1", Command: []string{"/bin/x", "critical_control"}}},
		},
	}))
	require.NoError(t, registry.PutPackage(ctx, artifact.Package{
		Name: "pkg1",
		Models: []artifact.ModelRef{{Name: "m1", Node: "nodeA", Resources: artifact.ModelResources{Realtime: true}}},
	}))
	require.NoError(t, registry.PutScenario(ctx, artifact.Scenario{Name: "sc1", Action: artifact.ActionUpdate, Target: "pkg1"}))

	err := r.Reconcile(ctx, "sc1")
	require.NoError(t, err)
	require.Len(t, timpani.posted, 1)
	assert.Equal(t, "critical_control", timpani.posted[0].Tasks[0].Name)
	assert.Equal(t, proto.SchedPolicyFifo, timpani.posted[0].Tasks[0].Policy)
	assert.Equal(t, int32(50), timpani.posted[0].Tasks[0].Priority)
}

func TestResolveNodeRole_ClusterNodesTakesPrecedence(t *testing.T) {
	r, _, _, _, kv := setup(t)
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "cluster/nodes/nodeA", `{"node_role":2}`))
	role, ok := r.ResolveNodeRole(ctx, "nodeA")
	require.True(t, ok)
	assert.Equal(t, "nodeagent", role)
}

func TestResolveNodeRole_FallsBackToBareNodesKey(t *testing.T) {
	r, _, _, _, kv := setup(t)
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "nodes/nodeB", "10.0.0.2"))
	role, ok := r.ResolveNodeRole(ctx, "nodeB")
	require.True(t, ok)
	assert.Equal(t, "nodeagent", role)
}

func TestResolveNodeRole_FallsBackToStaticConfig(t *testing.T) {
	kv := kvstore.NewMemStore()
	registry := artifact.New(kv, nil)
	r := New(registry, kv, &fakeNodeAgent{}, nil, &fakeSubmitter{}, audit.NewClock(), map[string]string{"nodeC": "nodeagent"})
	role, ok := r.ResolveNodeRole(context.Background(), "nodeC")
	require.True(t, ok)
	assert.Equal(t, "nodeagent", role)
}

func TestResolveNodeRole_Unresolved(t *testing.T) {
	r, _, _, _, _ := setup(t)
	_, ok := r.ResolveNodeRole(context.Background(), "ghost")
	assert.False(t, ok)
}

func TestReconcileDesired_RejectsNonRunningDesired(t *testing.T) {
	r, _, _, _, _ := setup(t)
	_, err := r.ReconcileDesired(context.Background(), proto.ReconcileRequest{ScenarioName: "pkg1", Current: "idle", Desired: "Paused"})
	assert.Error(t, err)
}

func TestReconcileDesired_RejectsIllegalCurrent(t *testing.T) {
	r, _, _, _, _ := setup(t)
	_, err := r.ReconcileDesired(context.Background(), proto.ReconcileRequest{ScenarioName: "pkg1", Current: "Failed", Desired: "Running"})
	assert.Error(t, err)
}

func TestReconcileDesired_StartsAllModels(t *testing.T) {
	r, na, _, _, kv := setup(t)
	registry := artifact.New(kv, nil)
	seedScenario(t, kv, registry)
	resp, err := r.ReconcileDesired(context.Background(), proto.ReconcileRequest{ScenarioName: "sc1", Current: "idle", Desired: "Running"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), resp.Status)
	require.Len(t, na.calls, 1)
	assert.Equal(t, "Start", na.calls[0].Command)
}
