// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"context"

	"github.com/n-krueger/faabric/lib/kv"
)

// CreateWindow registers a one-sided RMA window of size bytes backed
// by buffer, owned by rank. The window contents are written to the KV
// store so a remote rmaGet/rmaPut can pull them, and the local pointer
// is recorded so synchronizeRmaWrite can copy directly into it.
func (w *World) CreateWindow(ctx context.Context, rank, size int, buffer []byte) error {
	key := winKey(w.ID, rank, size)
	if err := kv.PushFull(ctx, w.store, key, buffer[:size]); err != nil {
		return err
	}
	w.mu.Lock()
	w.windowPointers[key] = buffer
	w.mu.Unlock()
	return nil
}

// RmaGet reads the window owned by sendRank into buf. If sendRank is
// hosted on another machine, the window contents are pulled from the
// KV store first.
func (w *World) RmaGet(ctx context.Context, sendRank, size int, buf []byte) error {
	key := winKey(w.ID, sendRank, size)
	host, err := w.GetHostForRank(ctx, sendRank)
	if err != nil {
		return err
	}
	if host != w.ThisHost {
		v, err := kv.Pull(ctx, w.store, key)
		if err != nil {
			return err
		}
		copy(buf, v)
		return nil
	}
	w.mu.RLock()
	local, ok := w.windowPointers[key]
	w.mu.RUnlock()
	if ok {
		copy(buf, local)
	}
	return nil
}

// RmaPut writes buf into the window owned by recvRank, then notifies
// recvRank with an RMA_WRITE message carrying the element count. The
// local window copy happens first; if the destination is remote, the
// full window is also pushed to the KV store before the notification
// is sent.
func (w *World) RmaPut(ctx context.Context, sendRank int, buf []byte, size int, recvRank int, datatype Datatype) error {
	key := winKey(w.ID, recvRank, size)
	w.mu.Lock()
	if local, ok := w.windowPointers[key]; ok {
		copy(local, buf)
	}
	w.mu.Unlock()

	host, err := w.GetHostForRank(ctx, recvRank)
	if err != nil {
		return err
	}
	if host != w.ThisHost {
		if err := kv.PushFull(ctx, w.store, key, buf[:size]); err != nil {
			return err
		}
	}
	return w.send(ctx, sendRank, recvRank, buf[:size], datatype, RmaWrite)
}

// synchronizeRmaWrite handles an inbound RMA_WRITE notification: if
// isRemote, the window is pulled from the KV store first; either way
// the contents are copied into the registered local pointer. This
// runs synchronously on the enqueue path to preserve the
// happens-before guarantee from RmaPut's completion on the sender to
// window visibility here (spec.md §5).
func (w *World) synchronizeRmaWrite(ctx context.Context, msg *Message, isRemote bool) error {
	key := winKey(w.ID, msg.Destination, len(msg.Buffer))
	payload := msg.Buffer
	if isRemote {
		v, err := kv.Pull(ctx, w.store, key)
		if err != nil {
			return err
		}
		payload = v
	}
	w.mu.RLock()
	local, ok := w.windowPointers[key]
	w.mu.RUnlock()
	if ok {
		copy(local, payload)
	}
	return nil
}
