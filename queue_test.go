package osdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue[int](3)
	assert.NoError(t, q.Push(1))
	assert.NoError(t, q.Push(2))
	assert.NoError(t, q.Push(3))

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.NoError(t, q.Push(4))

	for _, want := range []int{2, 3, 4} {
		v, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueFullReturnsAllocFailed(t *testing.T) {
	q := NewQueue[int](2)
	assert.NoError(t, q.Push(1))
	assert.NoError(t, q.Push(2))
	assert.ErrorIs(t, q.Push(3), ErrAllocFailed)
}
