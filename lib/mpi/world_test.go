// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n-krueger/faabric/lib/kv"
)

// fakeDispatcher records DispatchMpiSibling calls without actually
// standing up sibling executors; used by tests that only exercise
// rank 0's Create path.
type fakeDispatcher struct {
	mu    sync.Mutex
	ranks []int
}

func (f *fakeDispatcher) DispatchMpiSibling(ctx context.Context, worldID int64, worldSize, rank int, user, function, masterHost, snapshotKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranks = append(f.ranks, rank)
	return nil
}

// newTestWorld builds a World with every rank registered on a single
// host, so point-to-point and collective operations never touch the
// network. thisHost is deliberately the same string for every rank.
func newTestWorld(t *testing.T, size int) *World {
	t.Helper()
	store := kv.NewMemStore()
	w := newWorld(1, size, "alice", "fn", "host-a", Config{Store: store, UsableCores: size})
	for r := 0; r < size; r++ {
		require.NoError(t, w.RegisterRank(context.Background(), r, "host-a"))
	}
	return w
}

func intBuf(vals ...int32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func intsFromBuf(buf []byte) []int32 {
	out := make([]int32, len(buf)/4)
	for i := range out {
		out[i] = int32FromBytes(buf[i*4 : i*4+4])
	}
	return out
}

func TestSendRecvSameHost(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, 10)

	require.NoError(t, w.Send(ctx, 1, 2, intBuf(0, 1, 2), Int))
	require.Equal(t, 1, w.LocalQueueSize(1, 2))
	require.Equal(t, 0, w.LocalQueueSize(2, 1))

	buf := make([]byte, 12)
	var status Status
	n, err := w.Recv(ctx, 1, 2, buf, Int, 3, &status)
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.Equal(t, []int32{0, 1, 2}, intsFromBuf(buf))
	require.Equal(t, Status{Source: 1, ErrorCode: 0, BytesSize: 12, Tag: -1}, status)
}

func TestRingSendRecv(t *testing.T) {
	ctx := context.Background()
	const size = 5
	w := newTestWorld(t, size)

	results := make([][]byte, size)
	var wg sync.WaitGroup
	for k := 0; k < size; k++ {
		k := k
		wg.Add(1)
		go func() {
			defer wg.Done()
			dest := (k + 1) % size
			source := (k + size - 1) % size
			sendBuf := intBuf(int32(k))
			recvBuf := make([]byte, 4)
			err := w.SendRecv(ctx, sendBuf, dest, recvBuf, source, k, Int, 1, nil)
			require.NoError(t, err)
			results[k] = recvBuf
		}()
	}
	wg.Wait()

	for k := 0; k < size; k++ {
		expected := int32((k + size - 1) % size)
		require.Equal(t, []int32{expected}, intsFromBuf(results[k]))
	}
}

func TestReduceSum(t *testing.T) {
	ctx := context.Background()
	const size = 5
	const root = 3
	w := newTestWorld(t, size)

	recv := make([][]byte, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			send := intBuf(int32(r), int32(10*r), int32(100*r))
			out := make([]byte, 12)
			err := w.Reduce(ctx, r, root, send, out, Int, Sum, false)
			require.NoError(t, err)
			recv[r] = out
		}()
	}
	wg.Wait()

	require.Equal(t, []int32{10, 100, 1000}, intsFromBuf(recv[root]))
}

func TestScanSum(t *testing.T) {
	ctx := context.Background()
	const size = 5
	w := newTestWorld(t, size)

	recv := make([][]byte, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			send := intBuf(int32(10*r), int32(10*r+1), int32(10*r+2))
			out := make([]byte, 12)
			err := w.Scan(ctx, r, send, out, Int, Sum)
			require.NoError(t, err)
			recv[r] = out
		}()
	}
	wg.Wait()

	for k := 0; k < size; k++ {
		var want [3]int32
		for r := 0; r <= k; r++ {
			want[0] += int32(10 * r)
			want[1] += int32(10*r + 1)
			want[2] += int32(10*r + 2)
		}
		require.Equal(t, []int32{want[0], want[1], want[2]}, intsFromBuf(recv[k]))
	}
}

func TestGetHostForRankResolvesFromStore(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t, 3)
	// A second World on the same store has an empty rank cache.
	other := newWorld(1, 3, "alice", "fn", "host-b", Config{Store: w.store})

	host, err := other.GetHostForRank(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "host-a", host)
}

func TestCreateDispatchesEveryNonRootRank(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()
	dispatcher := &fakeDispatcher{}
	w, err := Create(ctx, 42, 3, "alice", "fn", "host-a", "", Config{Store: store, UsableCores: 3}, dispatcher)
	require.NoError(t, err)
	require.Equal(t, int64(42), w.ID)
	require.ElementsMatch(t, []int{1, 2}, dispatcher.ranks)
}

func TestCartesianRankRoundTrip(t *testing.T) {
	w := newTestWorld(t, 6)
	require.NoError(t, w.SetCartesianDims([2]int{2, 3}))

	for rank := 0; rank < 6; rank++ {
		coords, err := w.GetCartesianRank(rank, 2, nil)
		require.NoError(t, err)
		require.Equal(t, rank, w.GetRankFromCoords(coords))
	}
}

func TestShiftCartesianCoordsTorusRoundTrip(t *testing.T) {
	w := newTestWorld(t, 6)
	require.NoError(t, w.SetCartesianDims([2]int{2, 3}))

	for rank := 0; rank < 6; rank++ {
		_, dst := w.ShiftCartesianCoords(rank, 1, 1)
		src, _ := w.ShiftCartesianCoords(dst, 1, 1)
		require.Equal(t, rank, src, "shifting +1 then asking for the -1 source of the destination should land back on rank")
	}
}

func TestInPlaceAndOutOfPlaceReduceMatch(t *testing.T) {
	ctx := context.Background()
	const size = 3
	const root = 0

	run := func(inPlace bool) []byte {
		w := newTestWorld(t, size)
		recv := make([][]byte, size)
		var wg sync.WaitGroup
		for r := 0; r < size; r++ {
			r := r
			wg.Add(1)
			go func() {
				defer wg.Done()
				send := intBuf(int32(r + 1))
				out := make([]byte, 4)
				if r == root && inPlace {
					copy(out, send)
				}
				require.NoError(t, w.Reduce(ctx, r, root, send, out, Int, Sum, inPlace && r == root))
				recv[r] = out
			}()
		}
		wg.Wait()
		return recv[root]
	}

	require.Equal(t, run(false), run(true))
}
