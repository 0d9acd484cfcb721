// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundExecutorsNeverExceedsCores(t *testing.T) {
	r := NewResources(4)
	for i := 0; i < 4; i++ {
		r.IncrementBoundExecutors()
	}
	require.LessOrEqual(t, r.Snapshot().BoundExecutors, r.Cores())
}

func TestFunctionsInFlightClampsAtZero(t *testing.T) {
	r := NewResources(2)
	r.DecrementFunctionsInFlight()
	r.DecrementFunctionsInFlight()
	r.DecrementFunctionsInFlight()
	require.Equal(t, uint32(0), r.Snapshot().FunctionsInFlight)
}

func TestBoundExecutorsClampsAtZero(t *testing.T) {
	r := NewResources(2)
	r.DecrementBoundExecutors()
	r.DecrementBoundExecutors()
	require.Equal(t, uint32(0), r.Snapshot().BoundExecutors)
}

func TestAvailableSlots(t *testing.T) {
	r := NewResources(3)
	r.IncrementFunctionsInFlight()
	require.Equal(t, 2, r.AvailableSlots())

	r.IncrementFunctionsInFlight()
	r.IncrementFunctionsInFlight()
	r.IncrementFunctionsInFlight()
	require.Equal(t, 0, r.AvailableSlots())
}

func TestSnapshotAvailableSlots(t *testing.T) {
	s := Snapshot{Cores: 5, FunctionsInFlight: 8}
	require.Equal(t, 0, s.AvailableSlots())

	s = Snapshot{Cores: 5, FunctionsInFlight: 2}
	require.Equal(t, 3, s.AvailableSlots())
}

func TestResetZeroesCounters(t *testing.T) {
	r := NewResources(4)
	r.IncrementBoundExecutors()
	r.IncrementFunctionsInFlight()
	r.Reset()
	snap := r.Snapshot()
	require.Equal(t, uint32(0), snap.BoundExecutors)
	require.Equal(t, uint32(0), snap.FunctionsInFlight)
	require.Equal(t, uint32(4), snap.Cores)
}
