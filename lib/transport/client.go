// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/n-krueger/faabric/lib/mpi"
)

// Client dials a single remote host and issues the five Transport
// RPCs against it. It implements both mpi.Transport (SendMessage) and
// the narrower client contracts the Scheduler Core needs for
// forwarding batches and pulling remote resource snapshots.
type Client struct {
	host string
	conn *grpc.ClientConn
}

// Dial opens (lazily, on first use, via grpc's default connect-on-RPC
// behavior) a connection to host:port. The content-subtype is pinned
// to the wireCodec registered in codec.go so calls never fall back to
// the default proto codec.
func Dial(host string) (*Client, error) {
	conn, err := grpc.NewClient(host,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", host, err)
	}
	return &Client{host: host, conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RequestResources asks this client's host for its current resource
// snapshot.
func (c *Client) RequestResources(ctx context.Context) (*ResourceResponse, error) {
	out := new(ResourceResponse)
	if err := c.conn.Invoke(ctx, fullMethod("RequestResources"), new(ResourceRequest), out); err != nil {
		return nil, fmt.Errorf("transport: RequestResources to %s: %w", c.host, err)
	}
	return out, nil
}

// ForwardBatch hands the whole (or remaining) batch to this client's
// host for placement and execution there.
func (c *Client) ForwardBatch(ctx context.Context, req *ForwardBatchRequest) (*ForwardBatchResponse, error) {
	out := new(ForwardBatchResponse)
	if err := c.conn.Invoke(ctx, fullMethod("ForwardBatch"), req, out); err != nil {
		return nil, fmt.Errorf("transport: ForwardBatch to %s: %w", c.host, err)
	}
	return out, nil
}

// SendMessage delivers an MPI message to the world hosted on this
// client's host, satisfying mpi.Transport.
func (c *Client) SendMessage(ctx context.Context, host string, msg *mpi.Message) error {
	out := new(Ack)
	if err := c.conn.Invoke(ctx, fullMethod("SendMpiMessage"), msg, out); err != nil {
		return fmt.Errorf("transport: SendMpiMessage to %s: %w", host, err)
	}
	return nil
}

// PushSnapshot uploads a snapshot blob to this client's host.
func (c *Client) PushSnapshot(ctx context.Context, key string, data []byte) error {
	out := new(Ack)
	req := &PushSnapshotRequest{Key: key, Data: data}
	if err := c.conn.Invoke(ctx, fullMethod("PushSnapshot"), req, out); err != nil {
		return fmt.Errorf("transport: PushSnapshot to %s: %w", c.host, err)
	}
	return nil
}

// DeleteSnapshot asks this client's host to drop a snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, key string) error {
	out := new(Ack)
	req := &DeleteSnapshotRequest{Key: key}
	if err := c.conn.Invoke(ctx, fullMethod("DeleteSnapshot"), req, out); err != nil {
		return fmt.Errorf("transport: DeleteSnapshot to %s: %w", c.host, err)
	}
	return nil
}

// Pool is a small cache of dialed Clients keyed by host, so the
// scheduler and MPI world don't redial on every forwarded message.
// Mirrors the teacher's pattern of a mutex-guarded map of lazily
// created per-peer collaborators.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
	dialer  func(host string) (*Client, error)
}

// NewPool returns a Pool that dials with Dial. Tests may construct a
// Pool directly with a fake dialer.
func NewPool() *Pool {
	return &Pool{clients: map[string]*Client{}, dialer: Dial}
}

// Get returns the cached Client for host, dialing one if this is the
// first request for that host.
func (p *Pool) Get(host string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[host]; ok {
		return c, nil
	}
	c, err := p.dialer(host)
	if err != nil {
		return nil, err
	}
	p.clients[host] = c
	return c, nil
}

// CloseAll closes every dialed Client, used on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for host, c := range p.clients {
		c.Close()
		delete(p.clients, host)
	}
}

// DialTimeout is a five-second connection bound exported for callers;
// Dial itself does not use it and does not block on connecting.
const DialTimeout = 5 * time.Second
