// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalMessageRoundTrip(t *testing.T) {
	m := &Message{
		ID:          7,
		WorldID:     42,
		Sender:      1,
		Destination: 2,
		Type:        Double,
		Count:       3,
		MessageType: Reduce,
		Buffer:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	decoded, err := UnmarshalMessage(MarshalMessage(m))
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestMarshalUnmarshalBinaryViaInterface(t *testing.T) {
	m := &Message{ID: 1, WorldID: 1, Sender: 0, Destination: 1, Type: Int, Count: 1, Buffer: []byte{9, 9, 9, 9}}

	blob, err := m.MarshalBinary()
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, decoded.UnmarshalBinary(blob))
	require.Equal(t, *m, decoded)
}

func TestUnmarshalMessageRejectsMalformedTag(t *testing.T) {
	_, err := UnmarshalMessage([]byte{0xff})
	require.Error(t, err)
}
