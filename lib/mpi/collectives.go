// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Broadcast sends buf from root to every other rank, fanning the sends
// out concurrently since each targets an independent (root, r) queue.
func (w *World) Broadcast(ctx context.Context, selfRank, root int, buf []byte, datatype Datatype) error {
	if selfRank == root {
		g, gctx := errgroup.WithContext(ctx)
		for r := 0; r < w.Size; r++ {
			if r == root {
				continue
			}
			r := r
			g.Go(func() error {
				return w.send(gctx, root, r, buf, datatype, Normal)
			})
		}
		return g.Wait()
	}
	_, err := w.Recv(ctx, root, selfRank, buf, datatype, len(buf)/datatype.Size(), nil)
	return err
}

// Scatter splits sendBuf (valid only on root) into Size equal chunks
// and distributes chunk i to rank i; root keeps its own chunk locally.
// recvBuf receives this rank's chunk.
func (w *World) Scatter(ctx context.Context, selfRank, root int, sendBuf, recvBuf []byte, datatype Datatype) error {
	chunkLen := len(recvBuf)
	if selfRank == root {
		copy(recvBuf, sendBuf[root*chunkLen:(root+1)*chunkLen])
		for r := 0; r < w.Size; r++ {
			if r == root {
				continue
			}
			chunk := sendBuf[r*chunkLen : (r+1)*chunkLen]
			if err := w.send(ctx, root, r, chunk, datatype, Scatter); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := w.Recv(ctx, root, selfRank, recvBuf, datatype, chunkLen/datatype.Size(), nil)
	return err
}

// Gather collects each rank's chunk into recvBuf (valid only on root)
// at the sender's rank offset. inPlace mirrors the MPI in-place
// convention: on the root, sendBuf's data is already at its offset in
// recvBuf, so it is not re-copied; a non-root with inPlace set sends
// only its own slice of recvBuf (len(recvBuf)/Size bytes at its rank
// offset).
func (w *World) Gather(ctx context.Context, selfRank, root int, sendBuf, recvBuf []byte, datatype Datatype, inPlace bool) error {
	chunkLen := len(sendBuf)
	if selfRank == root {
		if !inPlace {
			copy(recvBuf[root*chunkLen:(root+1)*chunkLen], sendBuf)
		}
		g, gctx := errgroup.WithContext(ctx)
		for r := 0; r < w.Size; r++ {
			if r == root {
				continue
			}
			r := r
			dst := recvBuf[r*chunkLen : (r+1)*chunkLen]
			g.Go(func() error {
				_, err := w.Recv(gctx, r, root, dst, datatype, chunkLen/datatype.Size(), nil)
				return err
			})
		}
		return g.Wait()
	}
	if inPlace {
		slice := len(recvBuf) / w.Size
		return w.send(ctx, selfRank, root, recvBuf[selfRank*slice:(selfRank+1)*slice], datatype, Gather)
	}
	return w.send(ctx, selfRank, root, sendBuf, datatype, Gather)
}

// AllGather is Gather to rank 0 followed by a Broadcast from rank 0.
func (w *World) AllGather(ctx context.Context, selfRank int, sendBuf, recvBuf []byte, datatype Datatype) error {
	const root = 0
	if err := w.Gather(ctx, selfRank, root, sendBuf, recvBuf, datatype, false); err != nil {
		return err
	}
	return w.Broadcast(ctx, selfRank, root, recvBuf, datatype)
}

// Reduce combines sendBuf from every rank into recvBuf (valid only on
// root) using op. Non-roots send their buffer to root. inPlace on the
// root means root's own buffer is already the running total and
// should not be recopied from sendBuf.
func (w *World) Reduce(ctx context.Context, selfRank, root int, sendBuf, recvBuf []byte, datatype Datatype, op ReduceOp, inPlace bool) error {
	if selfRank != root {
		return w.send(ctx, selfRank, root, sendBuf, datatype, Reduce)
	}
	if !inPlace {
		copy(recvBuf, sendBuf)
	}
	other := make([]byte, len(recvBuf))
	for r := 0; r < w.Size; r++ {
		if r == root {
			continue
		}
		if _, err := w.Recv(ctx, r, root, other, datatype, len(other)/datatype.Size(), nil); err != nil {
			return err
		}
		if err := applyReduce(recvBuf, other, datatype, op); err != nil {
			return err
		}
	}
	return nil
}

// AllReduce is a Reduce to rank 0 followed by a Broadcast from rank 0.
func (w *World) AllReduce(ctx context.Context, selfRank int, sendBuf, recvBuf []byte, datatype Datatype, op ReduceOp) error {
	const root = 0
	if err := w.Reduce(ctx, selfRank, root, sendBuf, recvBuf, datatype, op, false); err != nil {
		return err
	}
	return w.Broadcast(ctx, selfRank, root, recvBuf, datatype)
}

// Scan performs an inclusive prefix reduction: rank k's result is the
// elementwise combination of ranks 0..k's send buffers. Per spec.md
// §9, the forwarding hop uses the caller's real datatype rather than
// always MPI_INT (the original-source behavior is flagged there as a
// bug, not a feature to carry forward).
func (w *World) Scan(ctx context.Context, selfRank int, sendBuf, recvBuf []byte, datatype Datatype, op ReduceOp) error {
	copy(recvBuf, sendBuf)
	if selfRank > 0 {
		prev := make([]byte, len(recvBuf))
		if _, err := w.Recv(ctx, selfRank-1, selfRank, prev, datatype, len(prev)/datatype.Size(), nil); err != nil {
			return err
		}
		if err := applyReduce(recvBuf, prev, datatype, op); err != nil {
			return err
		}
	}
	if selfRank < w.Size-1 {
		if err := w.send(ctx, selfRank, selfRank+1, recvBuf, datatype, Scan); err != nil {
			return err
		}
	}
	return nil
}

// AllToAll sends this rank's slice j to rank j for every j (copying
// locally when j == selfRank) and assembles the Size-1 slices it
// receives, in rank order, into recvBuf.
func (w *World) AllToAll(ctx context.Context, selfRank int, sendBuf, recvBuf []byte, datatype Datatype) error {
	chunkLen := len(recvBuf) / w.Size
	copy(recvBuf[selfRank*chunkLen:(selfRank+1)*chunkLen], sendBuf[selfRank*chunkLen:(selfRank+1)*chunkLen])

	g, gctx := errgroup.WithContext(ctx)
	for j := 0; j < w.Size; j++ {
		if j == selfRank {
			continue
		}
		j := j
		g.Go(func() error {
			return w.send(gctx, selfRank, j, sendBuf[j*chunkLen:(j+1)*chunkLen], datatype, Alltoall)
		})
	}
	for i := 0; i < w.Size; i++ {
		if i == selfRank {
			continue
		}
		i := i
		dst := recvBuf[i*chunkLen : (i+1)*chunkLen]
		g.Go(func() error {
			_, err := w.Recv(gctx, i, selfRank, dst, datatype, chunkLen/datatype.Size(), nil)
			return err
		})
	}
	return g.Wait()
}

// Barrier blocks every rank until all ranks have entered it:
// non-roots send a zero-length BARRIER_JOIN to rank 0 and then block
// on BARRIER_DONE; rank 0 collects a BARRIER_JOIN from every other
// rank concurrently, then broadcasts BARRIER_DONE the same way.
func (w *World) Barrier(ctx context.Context, selfRank int) error {
	const root = 0
	if selfRank != root {
		if err := w.send(ctx, selfRank, root, nil, Int, BarrierJoin); err != nil {
			return err
		}
		_, err := w.Recv(ctx, root, selfRank, nil, Int, 0, nil)
		return err
	}
	joined, jctx := errgroup.WithContext(ctx)
	for r := 0; r < w.Size; r++ {
		if r == root {
			continue
		}
		r := r
		joined.Go(func() error {
			_, err := w.Recv(jctx, r, root, nil, Int, 0, nil)
			return err
		})
	}
	if err := joined.Wait(); err != nil {
		return err
	}
	done, dctx := errgroup.WithContext(ctx)
	for r := 0; r < w.Size; r++ {
		if r == root {
			continue
		}
		r := r
		done.Go(func() error {
			return w.send(dctx, root, r, nil, Int, BarrierDone)
		})
	}
	return done.Wait()
}

// applyReduce combines src into dst in place using op over datatype.
// Only {MAX, MIN, SUM} x {INT, DOUBLE, LONG_LONG} are supported
// (spec.md §4.4); any other combination fails with
// ErrUnsupportedReduce.
func applyReduce(dst, src []byte, datatype Datatype, op ReduceOp) error {
	sz := datatype.Size()
	if sz == 0 || len(dst) != len(src) || len(dst)%sz != 0 {
		return fmt.Errorf("mpi: reduce buffer length mismatch")
	}
	n := len(dst) / sz
	for i := 0; i < n; i++ {
		off := i * sz
		switch datatype {
		case Int:
			a := int32FromBytes(dst[off : off+sz])
			b := int32FromBytes(src[off : off+sz])
			r, err := reduceInt64(int64(a), int64(b), op)
			if err != nil {
				return err
			}
			putInt32(dst[off:off+sz], int32(r))
		case LongLong:
			a := int64FromBytes(dst[off : off+sz])
			b := int64FromBytes(src[off : off+sz])
			r, err := reduceInt64(a, b, op)
			if err != nil {
				return err
			}
			putInt64(dst[off:off+sz], r)
		case Double:
			a := float64FromBytes(dst[off : off+sz])
			b := float64FromBytes(src[off : off+sz])
			r, err := reduceFloat64(a, b, op)
			if err != nil {
				return err
			}
			putFloat64(dst[off:off+sz], r)
		default:
			return ErrUnsupportedReduce
		}
	}
	return nil
}

func reduceInt64(a, b int64, op ReduceOp) (int64, error) {
	switch op {
	case Max:
		if a > b {
			return a, nil
		}
		return b, nil
	case Min:
		if a < b {
			return a, nil
		}
		return b, nil
	case Sum:
		return a + b, nil
	default:
		return 0, ErrUnsupportedReduce
	}
}

func reduceFloat64(a, b float64, op ReduceOp) (float64, error) {
	switch op {
	case Max:
		if a > b {
			return a, nil
		}
		return b, nil
	case Min:
		if a < b {
			return a, nil
		}
		return b, nil
	case Sum:
		return a + b, nil
	default:
		return 0, ErrUnsupportedReduce
	}
}
