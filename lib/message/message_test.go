// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetMessageIDIsIdempotent(t *testing.T) {
	f := NewFactory(7)
	m := &Message{}

	f.SetMessageID(m)
	id := m.ID
	createdAt := m.CreatedAt
	statusKey := m.StatusKey()
	resultKey := m.ResultKey()
	require.NotZero(t, id)
	require.False(t, createdAt.IsZero())

	f.SetMessageID(m)
	require.Equal(t, id, m.ID)
	require.Equal(t, createdAt, m.CreatedAt)
	require.Equal(t, statusKey, m.StatusKey())
	require.Equal(t, resultKey, m.ResultKey())
}

func TestFactoryAssignsUniqueIDs(t *testing.T) {
	f := NewFactory(1)
	a := f.NewCall("alice", "fn", nil)
	b := f.NewCall("alice", "fn", nil)
	require.NotEqual(t, a.ID, b.ID)
}

func TestSiblingMpiCarriesWorldMetadata(t *testing.T) {
	f := NewFactory(1)
	parent := f.NewCall("alice", "fn", nil)
	parent.MasterHost = "host-a"
	parent.SnapshotKey = "snap-1"

	sibling := f.SiblingMpi(parent, 42, 5, 3)
	require.Equal(t, "alice", sibling.User)
	require.Equal(t, "fn", sibling.Function)
	require.True(t, sibling.IsMpi)
	require.Equal(t, int64(42), sibling.MpiWorldID)
	require.Equal(t, 5, sibling.MpiWorldSize)
	require.Equal(t, 3, sibling.MpiRank)
	require.Equal(t, "snap-1", sibling.SnapshotKey)
	require.NotEqual(t, parent.ID, sibling.ID)
}

func TestMarshalUnmarshalBinaryRoundTrip(t *testing.T) {
	f := NewFactory(1)
	m := f.NewCall("alice", "fn", []byte("payload"))

	blob, err := m.MarshalBinary()
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, decoded.UnmarshalBinary(blob))
	require.Equal(t, m.ID, decoded.ID)
	require.Equal(t, m.User, decoded.User)
	require.Equal(t, m.InputData, decoded.InputData)
}
