package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialQueuePreservesOrder(t *testing.T) {
	q := newSerialQueue()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(100)

	for i := 0; i < 100; i++ {
		i := i
		q.Go(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSerialQueueDrainsOnClose(t *testing.T) {
	q := newSerialQueue()

	ran := make(chan struct{}, 1)
	q.Go(func() { ran <- struct{}{} })
	q.Close()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran before close drained it")
	}

	// Tasks enqueued after Close are dropped, not executed, and Go must not
	// block the caller.
	done := make(chan struct{})
	go func() {
		q.Go(func() { t.Error("task enqueued after Close must not run") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go blocked after queue was closed")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for queued work")
	}
}
