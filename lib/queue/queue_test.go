// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueOrdering(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 5, q.Size())
	for i := 0; i < 5; i++ {
		v, err := q.Dequeue(time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Size())
}

func TestDequeueTimesOut(t *testing.T) {
	q := New[int]()
	_, err := q.Dequeue(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New[string]()
	done := make(chan string, 1)
	go func() {
		v, err := q.Dequeue(time.Second)
		require.NoError(t, err)
		done <- v
	}()
	time.Sleep(10 * time.Millisecond)
	q.Enqueue("hello")
	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("dequeue never returned")
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New[int]()
	q.Enqueue(42)
	v, err := q.Peek(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, q.Size())

	v, err = q.Dequeue(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDrainEmptiesWithoutBlocking(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Drain()
	assert.Equal(t, 0, q.Size())
}

func TestWaitToDrain(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)

	require.ErrorIs(t, q.WaitToDrain(20*time.Millisecond), ErrTimeout)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = q.Dequeue(time.Second)
	}()
	require.NoError(t, q.WaitToDrain(time.Second))
}
