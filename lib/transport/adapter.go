// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transport

import (
	"context"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/mpi"
	"github.com/n-krueger/faabric/lib/scheduler"
)

// peerAdapter translates between the wire envelope types in
// messages.go and the domain types lib/scheduler.PeerClient deals in,
// so the scheduler never has to know about ResourceRequest/
// ForwardBatchRequest.
type peerAdapter struct {
	c *Client
}

func (p peerAdapter) RequestResources(ctx context.Context) (cluster.Snapshot, error) {
	resp, err := p.c.RequestResources(ctx)
	if err != nil {
		return cluster.Snapshot{}, err
	}
	return resp.Snapshot, nil
}

func (p peerAdapter) ForwardBatch(ctx context.Context, req *message.BatchRequest) ([]string, error) {
	resp, err := p.c.ForwardBatch(ctx, &ForwardBatchRequest{Batch: req})
	if err != nil {
		return nil, err
	}
	return resp.Hosts, nil
}

func (p peerAdapter) PushSnapshot(ctx context.Context, key string, data []byte) error {
	return p.c.PushSnapshot(ctx, key, data)
}

func (p peerAdapter) DeleteSnapshot(ctx context.Context, key string) error {
	return p.c.DeleteSnapshot(ctx, key)
}

var _ scheduler.PeerClient = peerAdapter{}

// SchedulerPeers adapts a Pool of raw Clients to scheduler.PeerDialer.
type SchedulerPeers struct {
	pool *Pool
}

// NewSchedulerPeers wraps pool for use as a Scheduler's PeerDialer.
func NewSchedulerPeers(pool *Pool) *SchedulerPeers {
	return &SchedulerPeers{pool: pool}
}

// Get implements scheduler.PeerDialer.
func (s *SchedulerPeers) Get(host string) (scheduler.PeerClient, error) {
	c, err := s.pool.Get(host)
	if err != nil {
		return nil, err
	}
	return peerAdapter{c: c}, nil
}

// PoolTransport adapts a Pool to mpi.Transport: a World only knows
// the destination host for each message, not which Client serves it,
// so this dials (or reuses) the right one per call.
type PoolTransport struct {
	pool *Pool
}

// NewPoolTransport wraps pool for use as a World's Transport.
func NewPoolTransport(pool *Pool) *PoolTransport {
	return &PoolTransport{pool: pool}
}

// SendMessage implements mpi.Transport.
func (t *PoolTransport) SendMessage(ctx context.Context, host string, msg *mpi.Message) error {
	c, err := t.pool.Get(host)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, host, msg)
}

var _ mpi.Transport = (*PoolTransport)(nil)
