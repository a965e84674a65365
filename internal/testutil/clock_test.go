package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/viewflow/internal/engine"
)

func TestDeterministicClock(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Zero(t, clock.Current())

	for want := int64(1); want <= 4; want++ {
		assert.Equal(t, want, clock.Next())
	}
	assert.Equal(t, int64(4), clock.Current())

	clock.Reset()
	assert.Zero(t, clock.Current())
	assert.Equal(t, int64(1), clock.Next(), "a reset clock replays the same seqs")
}

func TestDeterministicClock_ConcurrentNextCoversRange(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, each = 20, 50

	got := make(chan int64, workers*each)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				got <- clock.Next()
			}
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[int64]bool, workers*each)
	for seq := range got {
		assert.False(t, seen[seq], "seq %d handed out twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, workers*each)
	assert.Equal(t, int64(workers*each), clock.Current())
}

func TestDeterministicClock_IsSequencer(t *testing.T) {
	var seq engine.Sequencer = NewDeterministicClock()
	assert.Equal(t, int64(1), seq.Next())
}
