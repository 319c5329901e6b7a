package audit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NowMonotonic(t *testing.T) {
	c := NewClock()
	prevNs, prevSeq := c.Now()
	for i := 0; i < 100; i++ {
		ns, seq := c.Now()
		assert.GreaterOrEqual(t, ns, prevNs)
		if ns == prevNs {
			assert.Greater(t, seq, prevSeq)
		}
		prevNs, prevSeq = ns, seq
	}
}

func TestClock_NowConcurrentNeverGoesBackwards(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	results := make([]int64, 0, 1000)
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev int64
			for j := 0; j < 20; j++ {
				ns, _ := c.Now()
				assert.GreaterOrEqual(t, ns, prev)
				prev = ns
				mu.Lock()
				results = append(results, ns)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, results, 1000)
}

func TestClock_NewTransitionIDFormat(t *testing.T) {
	c := NewClock()
	id, ts := c.NewTransitionID("statemanager", "submit")
	assert.Greater(t, ts, int64(0))
	assert.Contains(t, id, "statemanager-submit-")
}
