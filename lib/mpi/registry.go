// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps world IDs hosted on this process to their World, so
// an inbound RPC (a remote rank's send, or an RMA_WRITE notification)
// can be routed to the right in-memory state.
type Registry struct {
	mu     sync.RWMutex
	worlds map[int64]*World
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{worlds: map[int64]*World{}}
}

// Register adds w to the registry, keyed by w.ID.
func (r *Registry) Register(w *World) {
	r.mu.Lock()
	r.worlds[w.ID] = w
	r.mu.Unlock()
}

// Unregister removes the world with the given ID.
func (r *Registry) Unregister(id int64) {
	r.mu.Lock()
	delete(r.worlds, id)
	r.mu.Unlock()
}

// Lookup returns the world with the given ID, if hosted here.
func (r *Registry) Lookup(id int64) (*World, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[id]
	return w, ok
}

// Deliver routes an inbound message from another host to the local
// world it addresses, used by the RPC server handler behind the
// function-call client's sendMpiMessage contract (spec.md §6).
func (r *Registry) Deliver(ctx context.Context, msg *Message) error {
	w, ok := r.Lookup(msg.WorldID)
	if !ok {
		return fmt.Errorf("mpi: no local world %d to deliver message to", msg.WorldID)
	}
	return w.deliverRemote(ctx, msg)
}
