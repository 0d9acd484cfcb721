// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemStoreGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "key", []byte("value"), 0))
	v, err := m.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), v)
}

func TestMemStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.Set(ctx, "key", []byte("value"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := m.Get(ctx, "key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	require.NoError(t, m.Append(ctx, "key", []byte("ab")))
	require.NoError(t, m.Append(ctx, "key", []byte("cd")))
	v, err := m.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), v)
}

func TestMemStoreDeleteIsNoopOnMissingKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, m.Delete(ctx, "alice", "missing"))
}

func TestMemStoreListPushPull(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	n, err := m.ListLength(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, m.PushList(ctx, "key", []byte("first"), 0))
	require.NoError(t, m.PushList(ctx, "key", []byte("second"), 0))

	n, err = m.ListLength(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	v, err := m.PullList(ctx, "key", 0)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), v)
}

func TestMemStorePullListBlocksUntilPush(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	done := make(chan []byte, 1)
	go func() {
		v, err := m.PullList(ctx, "key", time.Second)
		require.NoError(t, err)
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.PushList(ctx, "key", []byte("value"), 0))

	select {
	case v := <-done:
		require.Equal(t, []byte("value"), v)
	case <-time.After(time.Second):
		t.Fatal("PullList never returned")
	}
}

func TestPullTreatsNotFoundAsEmpty(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	v, err := Pull(ctx, m, "missing")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestPushFullHasNoExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	require.NoError(t, PushFull(ctx, m, "key", []byte("value")))
	ttl, err := m.GetTTL(ctx, "key")
	require.NoError(t, err)
	require.Zero(t, ttl)
}
