// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

type memList struct {
	entries [][]byte
	cond    *sync.Cond
}

// MemStore is an in-memory Store, used by single-host runs and by
// tests in place of the real cluster-wide KV service.
type MemStore struct {
	mu      sync.Mutex
	blobs   map[string]memEntry
	lists   map[string]*memList
	listsMu sync.Mutex
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		blobs: map[string]memEntry{},
		lists: map[string]*memList{},
	}
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.blobs[key]
	if !ok || m.expired(e) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.blobs[key] = memEntry{value: append([]byte(nil), value...), expires: expires}
	return nil
}

func (m *MemStore) Append(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.blobs[key]
	e.value = append(e.value, value...)
	m.blobs[key] = e
	return nil
}

func (m *MemStore) Delete(ctx context.Context, user, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	m.listsMu.Lock()
	delete(m.lists, key)
	m.listsMu.Unlock()
	return nil
}

func (m *MemStore) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.blobs[key]
	if !ok || e.expires.IsZero() {
		return 0, nil
	}
	if remaining := time.Until(e.expires); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (m *MemStore) expired(e memEntry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (m *MemStore) listFor(key string) *memList {
	m.listsMu.Lock()
	defer m.listsMu.Unlock()
	l, ok := m.lists[key]
	if !ok {
		l = &memList{cond: sync.NewCond(&m.listsMu)}
		m.lists[key] = l
	}
	return l
}

func (m *MemStore) ListLength(ctx context.Context, key string) (int, error) {
	m.listsMu.Lock()
	defer m.listsMu.Unlock()
	l, ok := m.lists[key]
	if !ok {
		return 0, nil
	}
	return len(l.entries), nil
}

func (m *MemStore) PushList(ctx context.Context, key string, entry []byte, ttl time.Duration) error {
	l := m.listFor(key)
	m.listsMu.Lock()
	l.entries = append(l.entries, append([]byte(nil), entry...))
	m.listsMu.Unlock()
	l.cond.Signal()
	return nil
}

func (m *MemStore) PullList(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	l := m.listFor(key)
	m.listsMu.Lock()
	defer m.listsMu.Unlock()

	if len(l.entries) == 0 && timeout > 0 {
		deadline := time.Now().Add(timeout)
		timer := time.AfterFunc(time.Until(deadline), l.cond.Broadcast)
		defer timer.Stop()
		for len(l.entries) == 0 && time.Now().Before(deadline) {
			l.cond.Wait()
		}
	}
	if len(l.entries) == 0 {
		return nil, ErrNotFound
	}
	v := l.entries[0]
	l.entries = l.entries[1:]
	return v, nil
}
