// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transport

import (
	"context"
	"fmt"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/kv"
	"github.com/n-krueger/faabric/lib/mpi"
)

// ForwardHandler is the narrow callback the Scheduler Core supplies
// so a forwarded batch is placed exactly the way a locally submitted
// one would be (spec.md §4.2's placement algorithm runs identically
// regardless of which host first received the call).
type ForwardHandler func(ctx context.Context, req *ForwardBatchRequest) (*ForwardBatchResponse, error)

// ServerImpl is the concrete Server every faasrun host process runs.
// It fans the five RPCs out to the collaborators already living in
// this process: resources for RequestResources, a ForwardHandler
// bound to the local Scheduler Core for ForwardBatch, the MPI
// Registry for SendMpiMessage, and the KV store for snapshot push/
// delete.
type ServerImpl struct {
	resources *cluster.Resources
	forward   ForwardHandler
	mpi       *mpi.Registry
	store     kv.Store
}

// NewServerImpl wires a ServerImpl from this host's collaborators.
func NewServerImpl(resources *cluster.Resources, forward ForwardHandler, mpiRegistry *mpi.Registry, store kv.Store) *ServerImpl {
	return &ServerImpl{resources: resources, forward: forward, mpi: mpiRegistry, store: store}
}

func (s *ServerImpl) RequestResources(ctx context.Context, req *ResourceRequest) (*ResourceResponse, error) {
	return &ResourceResponse{Snapshot: s.resources.Snapshot()}, nil
}

func (s *ServerImpl) ForwardBatch(ctx context.Context, req *ForwardBatchRequest) (*ForwardBatchResponse, error) {
	if s.forward == nil {
		return nil, fmt.Errorf("transport: no forward handler registered on this host")
	}
	return s.forward(ctx, req)
}

func (s *ServerImpl) SendMpiMessage(ctx context.Context, msg *mpi.Message) (*Ack, error) {
	if err := s.mpi.Deliver(ctx, msg); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}

func (s *ServerImpl) PushSnapshot(ctx context.Context, req *PushSnapshotRequest) (*Ack, error) {
	if err := kv.PushFull(ctx, s.store, req.Key, req.Data); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}

func (s *ServerImpl) DeleteSnapshot(ctx context.Context, req *DeleteSnapshotRequest) (*Ack, error) {
	if err := s.store.Delete(ctx, "", req.Key); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}
