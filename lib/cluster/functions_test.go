// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddWarmHostAndLookup(t *testing.T) {
	r := NewFunctionRegistry(0)
	key := FunctionKey{User: "alice", Function: "fn"}
	r.AddWarmHost(key, "host-a")
	r.AddWarmHost(key, "host-b")
	require.ElementsMatch(t, []string{"host-a", "host-b"}, r.WarmHosts(key))
}

func TestRemoveWarmHostForUnrelatedFunctionIsNoop(t *testing.T) {
	r := NewFunctionRegistry(0)
	key := FunctionKey{User: "alice", Function: "fn"}
	other := FunctionKey{User: "bob", Function: "other"}

	r.AddWarmHost(key, "host-a")
	r.RemoveWarmHost(other, "host-a")

	require.Equal(t, []string{"host-a"}, r.WarmHosts(key))
}

func TestInFlightClampsAtZeroAfterThreeDecrements(t *testing.T) {
	r := NewFunctionRegistry(0)
	key := FunctionKey{User: "alice", Function: "fn"}

	r.DecrementInFlight(key)
	r.DecrementInFlight(key)
	r.DecrementInFlight(key)
	require.Equal(t, 0, r.InFlight(key))
}

func TestWarmExecutorCounting(t *testing.T) {
	r := NewFunctionRegistry(0)
	key := FunctionKey{User: "alice", Function: "fn"}

	r.IncrementWarmExecutors(key)
	r.IncrementWarmExecutors(key)
	require.Equal(t, 2, r.LocalWarmCount(key))

	r.DecrementWarmExecutors(key)
	require.Equal(t, 1, r.LocalWarmCount(key))
}

func TestResetClearsAllFunctionState(t *testing.T) {
	r := NewFunctionRegistry(0)
	key := FunctionKey{User: "alice", Function: "fn"}
	r.AddWarmHost(key, "host-a")
	r.IncrementInFlight(key)

	r.Reset()

	require.Empty(t, r.WarmHosts(key))
	require.Equal(t, 0, r.InFlight(key))
}
