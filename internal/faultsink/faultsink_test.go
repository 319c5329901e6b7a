package faultsink

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piccolo-project/piccolo/internal/audit"
	"github.com/piccolo-project/piccolo/internal/proto"
)

type recordingSubmitter struct {
	mu        sync.Mutex
	submitted []proto.StateChange
}

func (r *recordingSubmitter) Submit(_ context.Context, sc proto.StateChange) proto.TransitionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, sc)
	return proto.TransitionResponse{ErrorCode: proto.ErrorCodeSuccess}
}

func TestNotifyFault_AlwaysReturnsStatusZero(t *testing.T) {
	s := New(nil, audit.NewClock())
	resp := s.NotifyFault(context.Background(), proto.FaultInfo{ModelName: "m1"})
	assert.Equal(t, int32(0), resp.Status)
}

func TestNotifyFault_EmitsStateChangeWhenWired(t *testing.T) {
	sub := &recordingSubmitter{}
	s := New(sub, audit.NewClock())
	s.NotifyFault(context.Background(), proto.FaultInfo{ModelName: "m1", Description: "deadline missed"})
	assert.Len(t, sub.submitted, 1)
	assert.Equal(t, "m1", sub.submitted[0].ResourceName)
	assert.Equal(t, proto.ResourceTypeModel, sub.submitted[0].ResourceType)
}

func TestNotifyFault_ConcurrentCallsDoNotPanic(t *testing.T) {
	sub := &recordingSubmitter{}
	s := New(sub, audit.NewClock())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NotifyFault(context.Background(), proto.FaultInfo{ModelName: "m1"})
		}()
	}
	wg.Wait()
}
