// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mpi

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/n-krueger/faabric/lib/kv"
	"github.com/n-krueger/faabric/lib/queue"
)

// defaultHostStateLen is MPI_HOST_STATE_LEN from spec.md §6: the
// fixed width of the null-padded host identifier buffer stored at
// mpi_rank_{worldId}_{rank}.
const defaultHostStateLen = 50

type rankPair struct {
	Send, Recv int
}

// World is the per-job state described in spec.md §3/§4.4.
type World struct {
	ID           int64
	Size         int
	User         string
	Function     string
	ThisHost     string
	CreationTime time.Time

	logger       logrus.FieldLogger
	store        kv.Store
	transport    Transport
	pool         *AsyncThreadPool
	reqTable     *asyncRequestTable
	hostStateLen int

	mu             sync.RWMutex // guards rankHostMap, localQueues, windowPointers
	rankHostMap    map[int]string
	localQueues    map[rankPair]*queue.Queue[*Message]
	windowPointers map[string][]byte

	cartProcsPerDim [2]int
}

// Config bundles the collaborators a World needs beyond its own
// identity; both Create and InitialiseFromState take one.
type Config struct {
	Store        kv.Store
	Transport    Transport
	UsableCores  int
	HostStateLen int
	Logger       logrus.FieldLogger
}

func (c Config) hostStateLen() int {
	if c.HostStateLen > 0 {
		return c.HostStateLen
	}
	return defaultHostStateLen
}

func worldKey(id int64) string           { return fmt.Sprintf("mpi_world_%d", id) }
func rankKey(id int64, rank int) string   { return fmt.Sprintf("mpi_rank_%d_%d", id, rank) }
func winKey(id int64, rank, size int) string {
	return fmt.Sprintf("mpi_win_%d_%d_%d", id, rank, size)
}

// Create builds a new World as rank 0 (the master): it persists the
// world size to the KV store, registers rank 0 on thisHost, and for
// every rank 1..size-1 hands a chained sibling invocation to the
// Scheduler Core via dispatch (spec.md §4.4, §9 decision #1: dispatch
// happens for every rank, inside the loop).
func Create(ctx context.Context, id int64, size int, user, function, thisHost, snapshotKey string, cfg Config, dispatch Dispatcher) (*World, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mpi: world size must be positive, got %d", size)
	}
	w := newWorld(id, size, user, function, thisHost, cfg)

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(size))
	if err := kv.PushFull(ctx, cfg.Store, worldKey(id), buf); err != nil {
		return nil, fmt.Errorf("mpi: persisting world size: %w", err)
	}

	if err := w.RegisterRank(ctx, 0, thisHost); err != nil {
		return nil, err
	}

	for rank := 1; rank < size; rank++ {
		if err := dispatch.DispatchMpiSibling(ctx, id, size, rank, user, function, thisHost, snapshotKey); err != nil {
			return nil, fmt.Errorf("mpi: dispatching rank %d: %w", rank, err)
		}
	}
	return w, nil
}

// InitialiseFromState hydrates a World for a non-root rank: it reads
// the world size from the KV store and sizes the async thread pool at
// min(worldSize, usableCores), warning if worldSize doesn't divide
// evenly into usableCores.
func InitialiseFromState(ctx context.Context, id int64, user, function, thisHost string, cfg Config) (*World, error) {
	blob, err := cfg.Store.Get(ctx, worldKey(id))
	if err != nil {
		return nil, fmt.Errorf("mpi: reading world size: %w", err)
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("mpi: malformed world-size record for world %d", id)
	}
	size := int(binary.LittleEndian.Uint32(blob))
	w := newWorld(id, size, user, function, thisHost, cfg)

	poolSize := cfg.UsableCores
	if size < poolSize {
		poolSize = size
	}
	if poolSize < 1 {
		poolSize = 1
	}
	if cfg.UsableCores > 0 && size > cfg.UsableCores && size%cfg.UsableCores != 0 {
		w.logger.WithFields(logrus.Fields{"WorldSize": size, "UsableCores": cfg.UsableCores}).
			Warn("world size does not divide evenly into usable cores")
	}
	w.pool = NewAsyncThreadPool(poolSize)
	return w, nil
}

func newWorld(id int64, size int, user, function, thisHost string, cfg Config) *World {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	w := &World{
		ID:             id,
		Size:           size,
		User:           user,
		Function:       function,
		ThisHost:       thisHost,
		CreationTime:   time.Now(),
		logger:         logger.WithFields(logrus.Fields{"WorldID": id}),
		store:          cfg.Store,
		transport:      cfg.Transport,
		reqTable:       newAsyncRequestTable(),
		hostStateLen:   cfg.hostStateLen(),
		rankHostMap:    map[int]string{},
		localQueues:    map[rankPair]*queue.Queue[*Message]{},
		windowPointers: map[string][]byte{},
	}
	if cfg.UsableCores > 0 {
		poolSize := cfg.UsableCores
		if size < poolSize {
			poolSize = size
		}
		w.pool = NewAsyncThreadPool(poolSize)
	} else {
		w.pool = NewAsyncThreadPool(1)
	}
	return w
}

// RegisterRank writes the local host identifier, zero-padded into a
// fixed-width buffer, to the KV store and updates the local cache.
func (w *World) RegisterRank(ctx context.Context, rank int, host string) error {
	padded := make([]byte, w.hostStateLen)
	copy(padded, host)
	if err := w.store.Set(ctx, rankKey(w.ID, rank), padded, 0); err != nil {
		return fmt.Errorf("mpi: registering rank %d: %w", rank, err)
	}
	w.mu.Lock()
	w.rankHostMap[rank] = host
	w.mu.Unlock()
	return nil
}

// GetHostForRank resolves rank to a host identifier, consulting the
// local cache first and falling back to the KV store on a miss
// (double-checked: read-lock test, then upgrade and re-test).
func (w *World) GetHostForRank(ctx context.Context, rank int) (string, error) {
	w.mu.RLock()
	if host, ok := w.rankHostMap[rank]; ok {
		w.mu.RUnlock()
		return host, nil
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if host, ok := w.rankHostMap[rank]; ok {
		return host, nil
	}
	blob, err := w.store.Get(ctx, rankKey(w.ID, rank))
	if err != nil {
		return "", fmt.Errorf("mpi: resolving rank %d: %w", rank, err)
	}
	if len(blob) == 0 || blob[0] == 0 {
		return "", ErrUnknownRank
	}
	host := string(trimNullPad(blob))
	w.rankHostMap[rank] = host
	return host, nil
}

func trimNullPad(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// localQueueFor returns (creating if necessary) the in-memory queue
// for the (send, recv) pair. It is only valid to call this when recv
// is mapped to this host; callers (Send/Recv) are expected to have
// already checked that.
func (w *World) localQueueFor(send, recv int) *queue.Queue[*Message] {
	key := rankPair{send, recv}
	w.mu.RLock()
	if q, ok := w.localQueues[key]; ok {
		w.mu.RUnlock()
		return q
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if q, ok := w.localQueues[key]; ok {
		return q
	}
	q := queue.New[*Message]()
	w.localQueues[key] = q
	return q
}

// LocalQueueSize returns the number of messages currently queued for
// the (send, recv) pair. Used by tests and by Probe.
func (w *World) LocalQueueSize(send, recv int) int {
	return w.localQueueFor(send, recv).Size()
}

// Destroy tears down the World: all of its KV entries are removed and
// its local queues are cleared. Non-goal: in-flight remote sends are
// not cancelled (spec.md §1 / §5).
func (w *World) Destroy(ctx context.Context) error {
	if err := w.store.Delete(ctx, w.User, worldKey(w.ID)); err != nil {
		return err
	}
	for rank := 0; rank < w.Size; rank++ {
		if err := w.store.Delete(ctx, w.User, rankKey(w.ID, rank)); err != nil {
			return err
		}
	}
	w.mu.Lock()
	for k := range w.localQueues {
		w.localQueues[k].Drain()
	}
	w.localQueues = map[rankPair]*queue.Queue[*Message]{}
	w.windowPointers = map[string][]byte{}
	w.mu.Unlock()
	w.pool.Shutdown()
	return nil
}
