package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncDispatch runs fn inline, matching the engine's own dispatch closures
// without needing a full serialQueue in these tests.
func syncDispatch(fn func()) { fn() }

func TestHeartbeatTicksAndPongResetsMissedCount(t *testing.T) {
	var ticks atomic.Int32
	var timedOut atomic.Bool

	hb := newHeartbeat(10*time.Millisecond, 25*time.Millisecond, syncDispatch,
		func() { ticks.Add(1) },
		func() { timedOut.Store(true) },
	)
	hb.Start()
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, time.Millisecond)

	// Pong before missedMax is exceeded keeps the heartbeat alive.
	hb.Pong()
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	assert.False(t, timedOut.Load())

	hb.Stop()
}

func TestHeartbeatDeclaresTimeoutAfterMissedMax(t *testing.T) {
	var timedOut atomic.Bool

	// pingInterval=10ms, pingTimeout=25ms -> missedMax = 2 (floor division).
	hb := newHeartbeat(10*time.Millisecond, 25*time.Millisecond, syncDispatch,
		func() {},
		func() { timedOut.Store(true) },
	)
	assert.Equal(t, int32(2), hb.missedMax)

	hb.Start()
	require.Eventually(t, func() bool { return timedOut.Load() }, time.Second, time.Millisecond)
}

func TestHeartbeatStopCancelsPendingTick(t *testing.T) {
	var ticks atomic.Int32
	hb := newHeartbeat(5*time.Millisecond, 50*time.Millisecond, syncDispatch,
		func() { ticks.Add(1) },
		func() {},
	)
	hb.Start()
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, time.Millisecond)
	hb.Stop()

	observed := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, observed, ticks.Load(), "no further ticks should fire after Stop")
}
