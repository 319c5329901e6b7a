package transition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/kvstore"
	"github.com/piccolo-project/piccolo/internal/proto"
	"github.com/piccolo-project/piccolo/internal/statestore"
)

func newTestEngine() *Engine {
	store := statestore.New(kvstore.NewMemStore())
	clock := audit.NewClock()
	return New(store, clock, 10)
}

func TestSubmit_ValidationFailure_UnknownResourceType(t *testing.T) {
	e := newTestEngine()
	sc := proto.StateChange{
		ResourceType: 9999,
		ResourceName: "sc1", CurrentState: "idle", TargetState: "waiting",
		TransitionID: "tid-1", TimestampNs: 1, Source: "apiserver",
	}
	resp := e.Submit(context.Background(), sc)
	assert.Equal(t, proto.ErrorCodeInvalidRequest, resp.ErrorCode)
	assert.Equal(t, "tid-1", resp.TransitionID)
	assert.Greater(t, resp.TimestampNs, int64(0))
}

func TestSubmit_ValidationFailure_ZeroTimestamp(t *testing.T) {
	e := newTestEngine()
	sc := proto.StateChange{
		ResourceType: proto.ResourceTypeScenario,
		ResourceName: "sc1", CurrentState: "idle", TargetState: "waiting",
		TransitionID: "tid-2", TimestampNs: 0, Source: "apiserver",
	}
	resp := e.Submit(context.Background(), sc)
	assert.Equal(t, proto.ErrorCodeInvalidRequest, resp.ErrorCode)
	assert.Equal(t, "tid-2", resp.TransitionID)
}

func TestSubmit_ValidationFailure_BlankScenarioName(t *testing.T) {
	e := newTestEngine()
	sc := proto.StateChange{
		ResourceType: proto.ResourceTypeScenario,
		ResourceName: "   ", CurrentState: "idle", TargetState: "waiting",
		TransitionID: "tid-3", TimestampNs: 1, Source: "apiserver",
	}
	resp := e.Submit(context.Background(), sc)
	assert.Equal(t, proto.ErrorCodeInvalidRequest, resp.ErrorCode)
}

func TestSubmit_TransitionIDAlwaysPreserved(t *testing.T) {
	e := newTestEngine()
	sc := proto.StateChange{TransitionID: "preserve-me"}
	resp := e.Submit(context.Background(), sc)
	assert.Equal(t, "preserve-me", resp.TransitionID)
}

func TestSubmit_QueueFullReturnsResourceUnavailable(t *testing.T) {
	store := statestore.New(kvstore.NewMemStore())
	clock := audit.NewClock()
	e := New(store, clock, 1)
	valid := func(tid string) proto.StateChange {
		return proto.StateChange{
			ResourceType: proto.ResourceTypeScenario,
			ResourceName: "sc1", CurrentState: "idle", TargetState: "waiting",
			TransitionID: tid, TimestampNs: 1, Source: "apiserver",
		}
	}
	// Fill the queue (capacity 1) without a drainer running.
	first := e.Submit(context.Background(), valid("tid-a"))
	require.Equal(t, proto.ErrorCodeSuccess, first.ErrorCode)
	second := e.Submit(context.Background(), valid("tid-b"))
	assert.Equal(t, proto.ErrorCodeResourceUnavailable, second.ErrorCode)
	assert.Equal(t, "tid-b", second.TransitionID)
}

func TestRun_ProcessesValidScenarioTransitionAndPersists(t *testing.T) {
	store := statestore.New(kvstore.NewMemStore())
	clock := audit.NewClock()
	e := New(store, clock, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Run(ctx)

	sc := proto.StateChange{
		ResourceType: proto.ResourceTypeScenario,
		ResourceName: "sc1", CurrentState: "idle", TargetState: "waiting",
		TransitionID: "tid-x", TimestampNs: 1, Source: "apiserver",
	}
	resp := e.Submit(ctx, sc)
	require.Equal(t, proto.ErrorCodeSuccess, resp.ErrorCode)

	require.Eventually(t, func() bool {
		v, ok := store.GetScenarioState(ctx, "sc1")
		return ok && v == "waiting"
	}, time.Second, 10*time.Millisecond)
}

func TestRun_RejectsInvalidScenarioEdgeWithoutPersisting(t *testing.T) {
	store := statestore.New(kvstore.NewMemStore())
	clock := audit.NewClock()
	e := New(store, clock, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Run(ctx)

	sc := proto.StateChange{
		ResourceType: proto.ResourceTypeScenario,
		ResourceName: "sc2", CurrentState: "idle", TargetState: "playing",
		TransitionID: "tid-y", TimestampNs: 1, Source: "apiserver",
	}
	resp := e.Submit(ctx, sc)
	require.Equal(t, proto.ErrorCodeSuccess, resp.ErrorCode)

	time.Sleep(50 * time.Millisecond)
	_, ok := store.GetScenarioState(ctx, "sc2")
	assert.False(t, ok)
}

func TestOnEnter_ActionRunsOnAccept(t *testing.T) {
	store := statestore.New(kvstore.NewMemStore())
	clock := audit.NewClock()
	e := New(store, clock, 10)
	fired := make(chan struct{}, 1)
	e.OnEnter("waiting", func(ctx context.Context, sc proto.StateChange) error {
		fired <- struct{}{}
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Run(ctx)

	sc := proto.StateChange{
		ResourceType: proto.ResourceTypeScenario,
		ResourceName: "sc3", CurrentState: "idle", TargetState: "waiting",
		TransitionID: "tid-z", TimestampNs: 1, Source: "apiserver",
	}
	e.Submit(ctx, sc)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("action was not invoked")
	}
}
