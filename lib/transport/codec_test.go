// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/mpi"
)

func TestWireCodecUsesBinaryMarshalerForMpiMessage(t *testing.T) {
	codec := wireCodec{}
	msg := &mpi.Message{ID: 1, WorldID: 2, Sender: 3, Destination: 4, Type: mpi.Int, Count: 2, Buffer: []byte{1, 2, 3, 4}}

	data, err := codec.Marshal(msg)
	require.NoError(t, err)

	var decoded mpi.Message
	require.NoError(t, codec.Unmarshal(data, &decoded))
	require.Equal(t, msg.ID, decoded.ID)
	require.Equal(t, msg.Buffer, decoded.Buffer)
}

func TestWireCodecFallsBackToGobForPlainStructs(t *testing.T) {
	codec := wireCodec{}
	req := &ForwardBatchRequest{Batch: &message.BatchRequest{
		Type:     message.BatchFunctions,
		Messages: []*message.Message{{ID: 1, User: "alice", Function: "fn"}},
	}}

	data, err := codec.Marshal(req)
	require.NoError(t, err)

	var decoded ForwardBatchRequest
	require.NoError(t, codec.Unmarshal(data, &decoded))
	require.Equal(t, req.Batch.Messages[0].User, decoded.Batch.Messages[0].User)
}

func TestWireCodecName(t *testing.T) {
	require.Equal(t, "faabric-wire", wireCodec{}.Name())
}
