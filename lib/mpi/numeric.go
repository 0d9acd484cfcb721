// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"encoding/binary"
	"math"
)

func int32FromBytes(b []byte) int32   { return int32(binary.LittleEndian.Uint32(b)) }
func putInt32(b []byte, v int32)      { binary.LittleEndian.PutUint32(b, uint32(v)) }
func int64FromBytes(b []byte) int64   { return int64(binary.LittleEndian.Uint64(b)) }
func putInt64(b []byte, v int64)      { binary.LittleEndian.PutUint64(b, uint64(v)) }
func float64FromBytes(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
