package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrdersByExpiry(t *testing.T) {
	h := New()
	var fired []int
	h.Add(3, 30*time.Millisecond, func() { fired = append(fired, 3) })
	h.Add(1, 10*time.Millisecond, func() { fired = append(fired, 1) })
	h.Add(2, 20*time.Millisecond, func() { fired = append(fired, 2) })

	time.Sleep(35 * time.Millisecond)
	h.Tick()
	assert.Equal(t, []int{1, 2, 3}, fired)
	assert.Equal(t, 0, h.Len())
}

func TestAdjustExtendsDeadline(t *testing.T) {
	h := New()
	var fired bool
	h.Add(1, 10*time.Millisecond, func() { fired = true })
	h.Adjust(1, 200*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	h.Tick()
	assert.False(t, fired, "timer should not have fired after being extended")
	require.Equal(t, 1, h.Len())
}

func TestDoWorkRunsAndRemoves(t *testing.T) {
	h := New()
	var ran bool
	h.Add(5, time.Minute, func() { ran = true })
	h.DoWork(5)
	assert.True(t, ran)
	assert.Equal(t, 0, h.Len())
}

func TestGetNextTickSentinel(t *testing.T) {
	h := New()
	assert.Equal(t, -1, h.GetNextTick())

	h.Add(1, 50*time.Millisecond, func() {})
	ms := h.GetNextTick()
	assert.Greater(t, ms, 0)
	assert.LessOrEqual(t, ms, 50)
}
