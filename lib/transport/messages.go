// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transport

import (
	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/message"
)

// ResourceRequest carries no fields; a host asks a peer for its
// current Resources snapshot (spec.md §4.2 step 2, overload check on
// a remote warm host).
type ResourceRequest struct{}

// ResourceResponse wraps the responding host's resource snapshot.
type ResourceResponse struct {
	Snapshot cluster.Snapshot
}

// ForwardBatchRequest is sent by a scheduler deciding to place a
// batch (or part of one) on a remote host.
type ForwardBatchRequest struct {
	Batch *message.BatchRequest
}

// ForwardBatchResponse echoes the hosts the batch's messages were
// ultimately executed on, one per message in order.
type ForwardBatchResponse struct {
	Hosts []string
}

// PushSnapshotRequest carries a full snapshot blob to be stored under
// Key on the receiving host.
type PushSnapshotRequest struct {
	Key  string
	Data []byte
}

// DeleteSnapshotRequest asks the receiving host to drop the snapshot
// stored under Key.
type DeleteSnapshotRequest struct {
	Key string
}

// Ack is the empty acknowledgement returned by calls with no useful
// response payload.
type Ack struct{}
