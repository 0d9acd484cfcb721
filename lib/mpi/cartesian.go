// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import "fmt"

// SetCartesianDims fixes the 2-D grid shape used by
// GetCartesianRank/GetRankFromCoords/ShiftCartesianCoords. Only 2-D
// grids are supported; higher dimensions must be 1 in size (spec.md
// §4.4).
func (w *World) SetCartesianDims(dims [2]int) error {
	if dims[0]*dims[1] != w.Size {
		return fmt.Errorf("mpi: cartesian dims %v do not multiply to world size %d", dims, w.Size)
	}
	w.cartProcsPerDim = dims
	return nil
}

// GetCartesianRank computes this rank's coordinates in the grid set by
// SetCartesianDims. maxDims beyond the first two must be size 1 with
// coordinate 0. Periods default to periodic in every dimension when
// periods is nil.
func (w *World) GetCartesianRank(rank, maxDims int, periods []bool) (coords []int, err error) {
	dims := w.cartProcsPerDim
	if dims[0]*dims[1] != w.Size {
		return nil, fmt.Errorf("mpi: cartesian dims not configured for world size %d", w.Size)
	}
	coords = make([]int, maxDims)
	coords[0] = rank / dims[1]
	if maxDims > 1 {
		coords[1] = rank % dims[1]
	}
	for d := 2; d < maxDims; d++ {
		coords[d] = 0
	}
	_ = periods // periods affect only ShiftCartesianCoords's wraparound
	return coords, nil
}

// GetRankFromCoords is the inverse of GetCartesianRank:
// rank = coords[1] + coords[0]*dims[1].
func (w *World) GetRankFromCoords(coords []int) int {
	dims := w.cartProcsPerDim
	return coords[1] + coords[0]*dims[1]
}

// ShiftCartesianCoords computes the torus-wrapped neighbor of rank
// along direction for a displacement of +disp (dst) and -disp (src).
// direction >= 2 returns rank for both src and dst, since only 2
// dimensions are supported.
func (w *World) ShiftCartesianCoords(rank, direction, disp int) (src, dst int) {
	if direction >= 2 {
		return rank, rank
	}
	dims := w.cartProcsPerDim
	coords, _ := w.GetCartesianRank(rank, 2, nil)

	fwd := make([]int, 2)
	copy(fwd, coords)
	fwd[direction] = wrapMod(coords[direction]+disp, dims[direction])
	dst = w.GetRankFromCoords(fwd)

	back := make([]int, 2)
	copy(back, coords)
	back[direction] = wrapMod(coords[direction]-disp, dims[direction])
	src = w.GetRankFromCoords(back)
	return src, dst
}

func wrapMod(v, m int) int {
	if m <= 0 {
		return 0
	}
	v %= m
	if v < 0 {
		v += m
	}
	return v
}
