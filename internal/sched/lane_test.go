package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	l := NewLane("test", 1, nil)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		l.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestConcurrencyBound(t *testing.T) {
	const limit = 2
	l := NewLane("io", limit, nil)

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		l.Submit(func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, int32(limit))
}

func TestMediaLaneSerializes(t *testing.T) {
	l := NewLane("media", 1, nil)

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		l.Submit(func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak)
}

func TestRunReturnsError(t *testing.T) {
	l := NewLane("test", 1, nil)
	want := errors.New("boom")
	err := l.Run(func() error { return want })
	assert.ErrorIs(t, err, want)
}

func TestIdleAndCounts(t *testing.T) {
	l := NewLane("test", 1, nil)
	assert.True(t, l.Idle())

	release := make(chan struct{})
	l.Submit(func() { <-release })
	l.Submit(func() {})

	assert.Eventually(t, func() bool { return l.Running() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, l.Pending())
	assert.False(t, l.Idle())

	close(release)
	assert.Eventually(t, l.Idle, time.Second, time.Millisecond)
}

func TestPanickingJobFreesSlot(t *testing.T) {
	l := NewLane("test", 1, nil)
	l.Submit(func() { panic("kaboom") })
	err := l.Run(func() error { return nil })
	assert.NoError(t, err)
	assert.Eventually(t, l.Idle, time.Second, time.Millisecond)
}

func TestRunReturnsOnPanic(t *testing.T) {
	l := NewLane("test", 1, nil)

	done := make(chan error, 1)
	go func() {
		done <- l.Run(func() error { panic("kaboom") })
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the submitted fn panicked")
	}

	// The slot is free again for normal work.
	assert.NoError(t, l.Run(func() error { return nil }))
	assert.Eventually(t, l.Idle, time.Second, time.Millisecond)
}

func TestWaitIdle(t *testing.T) {
	a := NewLane("a", 1, nil)
	b := NewLane("b", 1, nil)
	a.Submit(func() { time.Sleep(20 * time.Millisecond) })
	b.Submit(func() { time.Sleep(30 * time.Millisecond) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	WaitIdle(ctx, 5*time.Millisecond, a, b)

	assert.True(t, a.Idle())
	assert.True(t, b.Idle())
}
