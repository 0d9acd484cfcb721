// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package cluster holds the cluster-wide membership and affinity state
// the Scheduler Core consults when placing work: this host's resource
// counters, the host registry, and the per-{user,function} warm-host
// sets.
package cluster

import "sync"

// Resources is a per-host record of capacity and current load. All
// fields are guarded by a host-wide mutex; increments and decrements
// are serialized through Resources's methods rather than direct field
// access.
type Resources struct {
	mu                sync.Mutex
	cores             uint32
	boundExecutors    uint32
	functionsInFlight uint32
}

// NewResources returns a Resources record for a host with the given
// core count.
func NewResources(cores uint32) *Resources {
	return &Resources{cores: cores}
}

// Snapshot is a point-in-time, lock-free copy of a Resources record,
// suitable for sending over RPC as the result of a resource-request
// call.
type Snapshot struct {
	Cores             uint32
	BoundExecutors    uint32
	FunctionsInFlight uint32
}

// AvailableSlots returns cores - functionsInFlight.
func (s Snapshot) AvailableSlots() int {
	avail := int(s.Cores) - int(s.FunctionsInFlight)
	if avail < 0 {
		return 0
	}
	return avail
}

// Snapshot returns the current state of r.
func (r *Resources) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Cores: r.cores, BoundExecutors: r.boundExecutors, FunctionsInFlight: r.functionsInFlight}
}

// AvailableSlots returns cores - functionsInFlight under lock.
func (r *Resources) AvailableSlots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	avail := int(r.cores) - int(r.functionsInFlight)
	if avail < 0 {
		return 0
	}
	return avail
}

// IncrementFunctionsInFlight records that another invocation is
// executing on this host. It does not enforce the cores invariant;
// callers that intentionally overload (spec.md §4.2 step 2c) call this
// even when AvailableSlots() is already zero.
func (r *Resources) IncrementFunctionsInFlight() {
	r.mu.Lock()
	r.functionsInFlight++
	r.mu.Unlock()
}

// DecrementFunctionsInFlight undoes IncrementFunctionsInFlight. It
// clamps at zero rather than wrapping, so that spurious extra
// decrements (e.g. a duplicate finish notification) cannot corrupt
// the counter.
func (r *Resources) DecrementFunctionsInFlight() {
	r.mu.Lock()
	if r.functionsInFlight > 0 {
		r.functionsInFlight--
	}
	r.mu.Unlock()
}

// IncrementBoundExecutors records that a new executor has bound to a
// function on this host. Callers are responsible for not exceeding
// cores; BoundExecutors <= Cores is an invariant checked by tests, not
// enforced here (an executor binds before it knows whether it will be
// the one that gets torn down on overload).
func (r *Resources) IncrementBoundExecutors() {
	r.mu.Lock()
	r.boundExecutors++
	r.mu.Unlock()
}

// DecrementBoundExecutors undoes IncrementBoundExecutors, clamping at
// zero.
func (r *Resources) DecrementBoundExecutors() {
	r.mu.Lock()
	if r.boundExecutors > 0 {
		r.boundExecutors--
	}
	r.mu.Unlock()
}

// Cores returns the configured core count for this host.
func (r *Resources) Cores() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cores
}

// Reset zeroes the in-flight and bound-executor counters. Used by
// Scheduler.Shutdown / the cleanFabric() test hook.
func (r *Resources) Reset() {
	r.mu.Lock()
	r.boundExecutors = 0
	r.functionsInFlight = 0
	r.mu.Unlock()
}
