package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_PutGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "Model/m1", "payload"))
	v, err := s.Get(ctx, "Model/m1")
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
}

func TestMemStore_GetMissingReturnsErrNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_Delete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", "v"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_ScanPrefix(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "/model/a/state", "Running"))
	require.NoError(t, s.Put(ctx, "/model/b/state", "Failed"))
	require.NoError(t, s.Put(ctx, "/package/p/state", "running"))

	kvs, err := s.Scan(ctx, "/model/")
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, "/model/a/state", kvs[0].Key)
	assert.Equal(t, "/model/b/state", kvs[1].Key)
}
