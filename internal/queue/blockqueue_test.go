package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockQueuePushPop(t *testing.T) {
	q := NewBlockQueue[int](2)
	q.PushBack(1)
	q.PushBack(2)
	assert.True(t, q.Full())

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBlockQueuePushFront(t *testing.T) {
	q := NewBlockQueue[int](4)
	q.PushBack(1)
	q.PushFront(0)
	v, _ := q.Pop()
	assert.Equal(t, 0, v)
}

func TestBlockQueueBlocksProducerUntilConsumed(t *testing.T) {
	q := NewBlockQueue[int](1)
	q.PushBack(1)

	done := make(chan struct{})
	go func() {
		q.PushBack(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("PushBack should have blocked while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	q.Pop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PushBack never unblocked after consumer drained the queue")
	}
}

func TestBlockQueueCloseWakesConsumers(t *testing.T) {
	q := NewBlockQueue[int](1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := q.Pop()
		assert.False(t, ok)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
}

func TestBlockQueuePopTimeout(t *testing.T) {
	q := NewBlockQueue[int](1)
	_, ok := q.PopTimeout(20 * time.Millisecond)
	assert.False(t, ok)

	q.PushBack(7)
	v, ok := q.PopTimeout(time.Second)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}
