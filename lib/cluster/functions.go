// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package cluster

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// functionState is the per-{user,function} bookkeeping the Scheduler
// Core and Executor Pool consult: which hosts are warm, and how many
// local warm executors / in-flight calls this host currently has.
type functionState struct {
	mu           sync.Mutex
	warmHosts    map[string]struct{}
	warmCount    int
	inFlight     int
}

// FunctionRegistry tracks, for every {user, function} pair, the set of
// hosts known to be warm for it, plus this host's local warm-executor
// and in-flight counts (spec.md §2). Each {user,function} key is
// guarded by its own lock so that unrelated functions never contend.
//
// Every key passed to AddWarmHost is also recorded in a bounded LRU.
// Lookups never consult the LRU; they always read fns, and eviction
// from the LRU never removes the authoritative entry in fns, so fns
// itself is not bounded.
type FunctionRegistry struct {
	mu  sync.RWMutex
	fns map[FunctionKey]*functionState

	affinity *lru.Cache
}

// NewFunctionRegistry returns an empty FunctionRegistry. affinityCap
// bounds the LRU mirror described above; zero selects a sane default.
func NewFunctionRegistry(affinityCap int) *FunctionRegistry {
	if affinityCap <= 0 {
		affinityCap = 4096
	}
	affinity, err := lru.New(affinityCap)
	if err != nil {
		// lru.New only fails for a non-positive size, which we
		// just guarded against.
		panic(err)
	}
	return &FunctionRegistry{fns: map[FunctionKey]*functionState{}, affinity: affinity}
}

func (r *FunctionRegistry) stateFor(key FunctionKey) *functionState {
	r.mu.RLock()
	s, ok := r.fns[key]
	r.mu.RUnlock()
	if ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.fns[key]; ok {
		return s
	}
	s = &functionState{warmHosts: map[string]struct{}{}}
	r.fns[key] = s
	return s
}

// AddWarmHost records that host is known to be warm for key.
func (r *FunctionRegistry) AddWarmHost(key FunctionKey, host string) {
	s := r.stateFor(key)
	s.mu.Lock()
	s.warmHosts[host] = struct{}{}
	s.mu.Unlock()
	r.affinity.Add(key, struct{}{})
}

// RemoveWarmHost removes host from key's warm set. Removing a host for
// an unrelated {user,function} is a no-op.
func (r *FunctionRegistry) RemoveWarmHost(key FunctionKey, host string) {
	r.mu.RLock()
	s, ok := r.fns[key]
	r.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.warmHosts, host)
	s.mu.Unlock()
}

// WarmHosts returns the hosts currently known to be warm for key, in
// no particular order; insertion order is not preserved.
func (r *FunctionRegistry) WarmHosts(key FunctionKey) []string {
	s := r.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := make([]string, 0, len(s.warmHosts))
	for h := range s.warmHosts {
		hosts = append(hosts, h)
	}
	return hosts
}

// IncrementWarmExecutors records that one more local executor is bound
// to key.
func (r *FunctionRegistry) IncrementWarmExecutors(key FunctionKey) {
	s := r.stateFor(key)
	s.mu.Lock()
	s.warmCount++
	s.mu.Unlock()
}

// DecrementWarmExecutors undoes IncrementWarmExecutors, clamping at
// zero.
func (r *FunctionRegistry) DecrementWarmExecutors(key FunctionKey) {
	s := r.stateFor(key)
	s.mu.Lock()
	if s.warmCount > 0 {
		s.warmCount--
	}
	s.mu.Unlock()
}

// LocalWarmCount returns this host's local warm-executor count for
// key.
func (r *FunctionRegistry) LocalWarmCount(key FunctionKey) int {
	s := r.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warmCount
}

// IncrementInFlight records one more in-flight invocation for key.
func (r *FunctionRegistry) IncrementInFlight(key FunctionKey) {
	s := r.stateFor(key)
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

// DecrementInFlight undoes IncrementInFlight, clamping at zero.
func (r *FunctionRegistry) DecrementInFlight(key FunctionKey) {
	s := r.stateFor(key)
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.mu.Unlock()
}

// InFlight returns this host's in-flight count for key.
func (r *FunctionRegistry) InFlight(key FunctionKey) int {
	s := r.stateFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Reset clears every {user,function} entry and the affinity LRU,
// used by Scheduler.Shutdown to drop this host's warm-host state.
func (r *FunctionRegistry) Reset() {
	r.mu.Lock()
	r.fns = map[FunctionKey]*functionState{}
	r.mu.Unlock()
	r.affinity.Purge()
}
