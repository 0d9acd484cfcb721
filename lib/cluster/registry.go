// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package cluster

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/n-krueger/faabric/lib/kv"
)

const hostRegistryKey = "host_registry"

// HostRegistry is the cluster-wide membership set of host
// identifiers, backed by the external KV store (spec.md §4.2 / §6).
// Reads are served from a local cache; writes go to the KV store
// first and then update the cache, both under the registry's write
// lock.
type HostRegistry struct {
	store kv.Store

	mu    sync.RWMutex
	cache map[string]struct{}
}

// NewHostRegistry returns a HostRegistry backed by store.
func NewHostRegistry(store kv.Store) *HostRegistry {
	return &HostRegistry{store: store, cache: map[string]struct{}{}}
}

// Add registers host as a cluster member.
func (r *HostRegistry) Add(ctx context.Context, host string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[host]; ok {
		return nil
	}
	members := r.members()
	members[host] = struct{}{}
	if err := r.persist(ctx, members); err != nil {
		return err
	}
	r.cache[host] = struct{}{}
	return nil
}

// Remove deregisters host.
func (r *HostRegistry) Remove(ctx context.Context, host string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[host]; !ok {
		return nil
	}
	members := r.members()
	delete(members, host)
	if err := r.persist(ctx, members); err != nil {
		return err
	}
	delete(r.cache, host)
	return nil
}

// Hosts returns all registered hosts, in no particular order.
func (r *HostRegistry) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]string, 0, len(r.cache))
	for h := range r.cache {
		hosts = append(hosts, h)
	}
	return hosts
}

// Refresh re-reads the membership set from the KV store into the
// local cache.
func (r *HostRegistry) Refresh(ctx context.Context) error {
	blob, err := r.store.Get(ctx, hostRegistryKey)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil
		}
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = decodeMembers(blob)
	return nil
}

// members returns a mutable copy of the cache. Caller must hold mu.
func (r *HostRegistry) members() map[string]struct{} {
	out := make(map[string]struct{}, len(r.cache))
	for h := range r.cache {
		out[h] = struct{}{}
	}
	return out
}

func (r *HostRegistry) persist(ctx context.Context, members map[string]struct{}) error {
	hosts := make([]string, 0, len(members))
	for h := range members {
		hosts = append(hosts, h)
	}
	return r.store.Set(ctx, hostRegistryKey, encodeMembers(hosts), 0)
}

func encodeMembers(hosts []string) []byte {
	return []byte(strings.Join(hosts, "\n"))
}

func decodeMembers(blob []byte) map[string]struct{} {
	out := map[string]struct{}{}
	for _, h := range strings.Split(string(blob), "\n") {
		if h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// FunctionKey identifies a {user, function} pair.
type FunctionKey struct {
	User     string
	Function string
}

func (k FunctionKey) String() string {
	return fmt.Sprintf("%s/%s", k.User, k.Function)
}
