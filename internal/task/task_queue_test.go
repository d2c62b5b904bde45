package task

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueEnqueue(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(2, discardLogger())
	assert.Equal(t, 2, q.Cap())

	require.NoError(t, q.Enqueue(newMockTask(nil)))
	require.NoError(t, q.Enqueue(newMockTask(nil)))
	assert.Equal(t, 2, q.Len())

	err := q.Enqueue(newMockTask(nil))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestTaskQueueClose(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(2, discardLogger())
	first := newMockTask(nil)
	require.NoError(t, q.Enqueue(first))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(newMockTask(nil)), ErrQueueClosed)

	got, ok := <-q.Channel()
	require.True(t, ok, "queued tasks survive Close")
	assert.Equal(t, first.ID(), got.ID())

	_, ok = <-q.Channel()
	assert.False(t, ok)
}

func TestTaskQueueConcurrentEnqueueAndClose(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(64, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				err := q.Enqueue(newMockTask(nil))
				if err != nil {
					assert.True(t, errors.Is(err, ErrQueueClosed) || errors.Is(err, ErrQueueFull))
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Close()
	}()

	assert.NotPanics(t, wg.Wait)
}

func TestNewTaskQueueMinimumSize(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(0, nil)
	assert.Equal(t, 1, q.Cap())
}
