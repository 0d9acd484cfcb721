// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MarshalMessage serializes an MpiMessage in the canonical field order
// from spec.md §6: {id, worldId, sender, destination, type, count,
// messageType, buffer}. It is hand-written against
// google.golang.org/protobuf's low-level protowire primitives rather
// than a protoc-generated type, since spec.md explicitly leaves the
// wire codec out of scope and no .proto file accompanies this spec.
func MarshalMessage(m *Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ID))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.WorldID))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Sender)))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Destination)))
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Type)))
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Count)))
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.MessageType)))
	b = protowire.AppendTag(b, 8, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Buffer)
	return b
}

// MarshalBinary implements encoding.BinaryMarshaler so Message can be
// framed directly by a generic RPC codec (see lib/transport).
func (m *Message) MarshalBinary() ([]byte, error) {
	return MarshalMessage(m), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Message) UnmarshalBinary(b []byte) error {
	decoded, err := UnmarshalMessage(b)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// UnmarshalMessage parses the wire format produced by MarshalMessage.
func UnmarshalMessage(b []byte) (*Message, error) {
	m := &Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("mpi: malformed wire message: bad tag")
		}
		b = b[n:]
		switch num {
		case 1, 2, 3, 4, 5, 6, 7:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("mpi: malformed wire message: field %d", num)
			}
			b = b[n:]
			switch num {
			case 1:
				m.ID = int64(v)
			case 2:
				m.WorldID = int64(v)
			case 3:
				m.Sender = int(int64(v))
			case 4:
				m.Destination = int(int64(v))
			case 5:
				m.Type = Datatype(int64(v))
			case 6:
				m.Count = int(int64(v))
			case 7:
				m.MessageType = MessageType(int64(v))
			}
		case 8:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("mpi: malformed wire message: buffer")
			}
			m.Buffer = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("mpi: malformed wire message: unknown field %d", num)
			}
			b = b[n:]
		}
	}
	return m, nil
}
