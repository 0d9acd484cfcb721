// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import "errors"

// Sentinel errors for the MPI World datapath (spec.md §7). These
// terminate the calling rank's operation; they are not recovered
// internally.
var (
	ErrUnknownRank       = errors.New("mpi: unknown rank")
	ErrRankOutOfRange    = errors.New("mpi: rank out of range")
	ErrUnknownRequest    = errors.New("mpi: unknown async request id")
	ErrTypeMismatch      = errors.New("mpi: message type does not match requested type")
	ErrTruncation        = errors.New("mpi: message count exceeds requested count")
	ErrUnsupportedReduce = errors.New("mpi: unsupported reduce op/datatype combination")
	ErrTimeout           = errors.New("mpi: timed out waiting for message")
)
