// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"context"
	"sync/atomic"
	"time"
)

var messageIDCounter int64

func nextMessageID() int64 {
	return atomic.AddInt64(&messageIDCounter, 1)
}

// send is the shared routing logic behind every point-to-point and
// collective operation: local destinations are enqueued in-memory,
// remote destinations go out over the transport, and RMA_WRITE
// notifications are synchronized rather than queued (spec.md §4.4).
func (w *World) send(ctx context.Context, sendRank, recvRank int, buf []byte, datatype Datatype, msgType MessageType) error {
	if recvRank < 0 || recvRank >= w.Size {
		return ErrRankOutOfRange
	}
	count := 0
	if sz := datatype.Size(); sz > 0 {
		count = len(buf) / sz
	}
	msg := &Message{
		ID:          nextMessageID(),
		WorldID:     w.ID,
		Sender:      sendRank,
		Destination: recvRank,
		Type:        datatype,
		Count:       count,
		MessageType: msgType,
		Buffer:      buf,
	}

	host, err := w.GetHostForRank(ctx, recvRank)
	if err != nil {
		return err
	}
	if host == w.ThisHost {
		return w.deliverLocal(ctx, msg)
	}
	return w.transport.SendMessage(ctx, host, msg)
}

// deliverLocal is the receive-side half of send() for a message whose
// destination is this host: RMA_WRITE notifications are synchronized
// immediately (happens-before guarantee, spec.md §5); everything else
// is enqueued on the (sender, receiver) pair's local queue.
func (w *World) deliverLocal(ctx context.Context, msg *Message) error {
	if msg.MessageType == RmaWrite {
		return w.synchronizeRmaWrite(ctx, msg, false)
	}
	w.localQueueFor(msg.Sender, msg.Destination).Enqueue(msg)
	return nil
}

// deliverRemote is called by the inbound RPC handler when a message
// for this world arrives from another host's transport.
func (w *World) deliverRemote(ctx context.Context, msg *Message) error {
	if msg.MessageType == RmaWrite {
		return w.synchronizeRmaWrite(ctx, msg, true)
	}
	w.localQueueFor(msg.Sender, msg.Destination).Enqueue(msg)
	return nil
}

// Send performs a blocking point-to-point send from sendRank to
// recvRank.
func (w *World) Send(ctx context.Context, sendRank, recvRank int, buf []byte, datatype Datatype) error {
	return w.send(ctx, sendRank, recvRank, buf, datatype, Normal)
}

// Recv performs a blocking point-to-point receive on the (sendRank,
// recvRank) pair into buf, failing with ErrTypeMismatch or
// ErrTruncation as described in spec.md §4.4. If status is non-nil it
// is filled in with delivery metadata.
func (w *World) Recv(ctx context.Context, sendRank, recvRank int, buf []byte, datatype Datatype, requestedCount int, status *Status) (int, error) {
	msg, err := w.localQueueFor(sendRank, recvRank).Dequeue(0)
	if err != nil {
		return 0, err
	}
	return w.finishRecv(msg, buf, datatype, requestedCount, status)
}

// RecvTimeout is Recv with an explicit dequeue timeout, used by
// callers that must not block forever (e.g. probe-driven polling
// loops).
func (w *World) RecvTimeout(ctx context.Context, sendRank, recvRank int, buf []byte, datatype Datatype, requestedCount int, status *Status, timeout time.Duration) (int, error) {
	msg, err := w.localQueueFor(sendRank, recvRank).Dequeue(timeout)
	if err != nil {
		return 0, err
	}
	return w.finishRecv(msg, buf, datatype, requestedCount, status)
}

func (w *World) finishRecv(msg *Message, buf []byte, datatype Datatype, requestedCount int, status *Status) (int, error) {
	if msg.Type != datatype {
		return 0, ErrTypeMismatch
	}
	if msg.Count > requestedCount {
		return 0, ErrTruncation
	}
	n := copy(buf, msg.Buffer)
	if status != nil {
		*status = Status{
			Source:    msg.Sender,
			ErrorCode: 0,
			BytesSize: msg.Count * datatype.Size(),
			Tag:       -1,
		}
	}
	return n, nil
}

// Probe peeks the (sendRank, recvRank) queue without removing the
// head message, filling status from it.
func (w *World) Probe(sendRank, recvRank int) (Status, error) {
	msg, err := w.localQueueFor(sendRank, recvRank).Peek(0)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Source:    msg.Sender,
		ErrorCode: 0,
		BytesSize: msg.Count * msg.Type.Size(),
		Tag:       -1,
	}, nil
}

// Isend posts a non-blocking send and returns a request ID that must
// later be passed to AwaitAsyncRequest.
func (w *World) Isend(ctx context.Context, sendRank, recvRank int, buf []byte, datatype Datatype) int64 {
	id := nextRequestID()
	ch := w.pool.Submit(id, func() error {
		return w.send(ctx, sendRank, recvRank, buf, datatype, Normal)
	})
	w.reqTable.put(id, ch)
	return id
}

// Irecv posts a non-blocking receive and returns a request ID that
// must later be passed to AwaitAsyncRequest. If status is non-nil it
// is filled in once the receive completes.
func (w *World) Irecv(ctx context.Context, sendRank, recvRank int, buf []byte, datatype Datatype, requestedCount int, status *Status) int64 {
	id := nextRequestID()
	ch := w.pool.Submit(id, func() error {
		_, err := w.Recv(ctx, sendRank, recvRank, buf, datatype, requestedCount, status)
		return err
	})
	w.reqTable.put(id, ch)
	return id
}

// AwaitAsyncRequest blocks until the async request posted under id
// completes, erasing its table entry. It fails with ErrUnknownRequest
// if id is not outstanding.
func (w *World) AwaitAsyncRequest(id int64) error {
	ch, ok := w.reqTable.take(id)
	if !ok {
		return ErrUnknownRequest
	}
	return <-ch
}

// SendRecv performs a combined send+recv: it posts an irecv, issues a
// blocking send, then awaits the irecv. It is deadlock-free iff the
// peer performs the complementary operation (spec.md §4.4).
func (w *World) SendRecv(ctx context.Context, sendBuf []byte, destRank int, recvBuf []byte, sourceRank, selfRank int, datatype Datatype, requestedCount int, status *Status) error {
	reqID := w.Irecv(ctx, sourceRank, selfRank, recvBuf, datatype, requestedCount, status)
	if err := w.send(ctx, selfRank, destRank, sendBuf, datatype, Sendrecv); err != nil {
		return err
	}
	return w.AwaitAsyncRequest(reqID)
}
