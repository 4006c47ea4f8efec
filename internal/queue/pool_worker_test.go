package queue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4, 16)
	defer p.Close()

	var counter atomic.Int64
	for i := 0; i < 50; i++ {
		p.AddTask(func() { counter.Add(1) })
	}

	deadline := time.Now().Add(time.Second)
	for counter.Load() != 50 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.EqualValues(t, 50, counter.Load())
}
