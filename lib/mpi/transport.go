// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import "context"

// Transport is the subset of the function-call client (spec.md §6)
// the MPI World needs: delivering a point-to-point/collective message
// (including RMA_WRITE notifications) to a rank hosted on a remote
// host. RMA window contents travel through the KV store, not through
// Transport.
type Transport interface {
	SendMessage(ctx context.Context, host string, msg *Message) error
}

// Dispatcher hands a chained sibling invocation to the Scheduler Core
// (spec.md §4.4 "Creation (rank 0)"). It is implemented by
// lib/scheduler.Scheduler; mpi does not import scheduler directly to
// avoid a cycle (the scheduler is the one that creates Worlds).
type Dispatcher interface {
	DispatchMpiSibling(ctx context.Context, worldID int64, worldSize, rank int, user, function, masterHost, snapshotKey string) error
}
