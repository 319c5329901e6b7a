// Package kvstore implements the KV Store Gateway (C1): typed CRUD and
// prefix scan over a replicated key-value store, grounded on
// pkg/etcd/etcd.go's use of go.etcd.io/etcd/client/v3.
package kvstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// KV is a single key-value pair returned by Scan.
type KV struct {
	Key   string
	Value string
}

// Gateway provides linearizable single-key reads/writes over etcd (spec §4.1).
type Gateway struct {
	client  *clientv3.Client
	timeout time.Duration
}

// New builds a Gateway from a ready-to-use etcd client. timeout bounds every
// individual RPC; zero selects a 5s default per spec §5 "Cancellation & timeouts".
func New(client *clientv3.Client, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{client: client, timeout: timeout}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// Put writes key=value, linearizable.
func (g *Gateway) Put(ctx context.Context, key, value string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.Put(ctx, key, value)
	return errors.Wrapf(err, "kvstore: put %q", key)
}

// Get returns the value at key, or ErrNotFound.
func (g *Gateway) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	resp, err := g.client.Get(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "kvstore: get %q", key)
	}
	if len(resp.Kvs) == 0 {
		return "", ErrNotFound
	}
	return string(resp.Kvs[0].Value), nil
}

// Delete removes key, succeeding even if it is absent.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	_, err := g.client.Delete(ctx, key)
	return errors.Wrapf(err, "kvstore: delete %q", key)
}

// Scan returns every key-value pair whose key has the given prefix.
func (g *Gateway) Scan(ctx context.Context, prefix string) ([]KV, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	resp, err := g.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: scan %q", prefix)
	}
	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: string(kv.Value)})
	}
	return out, nil
}
