// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n-krueger/faabric/lib/kv"
)

func TestHostRegistryAddAndHosts(t *testing.T) {
	ctx := context.Background()
	r := NewHostRegistry(kv.NewMemStore())

	require.NoError(t, r.Add(ctx, "host-a"))
	require.NoError(t, r.Add(ctx, "host-b"))
	require.ElementsMatch(t, []string{"host-a", "host-b"}, r.Hosts())
}

func TestHostRegistryRemove(t *testing.T) {
	ctx := context.Background()
	r := NewHostRegistry(kv.NewMemStore())
	require.NoError(t, r.Add(ctx, "host-a"))
	require.NoError(t, r.Remove(ctx, "host-a"))
	require.Empty(t, r.Hosts())
}

func TestHostRegistryRefreshPicksUpOtherWriter(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()
	writer := NewHostRegistry(store)
	require.NoError(t, writer.Add(ctx, "host-a"))

	reader := NewHostRegistry(store)
	require.Empty(t, reader.Hosts())
	require.NoError(t, reader.Refresh(ctx))
	require.Equal(t, []string{"host-a"}, reader.Hosts())
}

func TestFunctionKeyString(t *testing.T) {
	k := FunctionKey{User: "alice", Function: "fn"}
	require.Equal(t, "alice/fn", k.String())
}
