// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package scheduler is the cluster-level admission and placement
// engine: it decides, for every message in a batch, whether to run it
// on this host or forward it to a peer, and it plumbs results and
// chained invocations through the external KV store.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/kv"
	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/mpi"
	"github.com/n-krueger/faabric/lib/queue"
)

const (
	resultTTL           = 30 * time.Second
	resourceRPCTimeout  = 2 * time.Second
	warmHostRefreshTick = 5 * time.Second
)

// PeerClient is the subset of lib/transport.Client the Scheduler Core
// needs for a single remote host: ask for its resource snapshot,
// forward a batch to it, push/delete a snapshot on it, and deliver an
// MPI sibling invocation to it.
type PeerClient interface {
	RequestResources(ctx context.Context) (cluster.Snapshot, error)
	ForwardBatch(ctx context.Context, req *message.BatchRequest) ([]string, error)
	PushSnapshot(ctx context.Context, key string, data []byte) error
	DeleteSnapshot(ctx context.Context, key string) error
}

// PeerDialer resolves a host identifier to a PeerClient, caching
// connections the way the teacher's worker pool caches one
// Executor per instance.
type PeerDialer interface {
	Get(host string) (PeerClient, error)
}

// SnapshotSource reads a snapshot's bytes so they can be pushed to a
// remote host the first time that host is used for a batch carrying
// SnapshotKey.
type SnapshotSource interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// A Scheduler maps queued function calls onto local capacity or
// remote hosts in the order callFunctions receives them. A mutex
// guards only the test-mode call recording; once Start is called, a
// background loop wakes on a timer to refresh host-registry membership.
type Scheduler struct {
	logger   logrus.FieldLogger
	thisHost string
	factory  *message.Factory

	resources *cluster.Resources
	hosts     *cluster.HostRegistry
	functions *cluster.FunctionRegistry
	store     kv.Store
	bindQueue *queue.Queue[*message.Message]
	peers     PeerDialer
	snapshots SnapshotSource

	mtx      sync.Mutex
	testMode bool
	recorded []int64
	wakeup   *time.Timer
	stop     chan struct{}
	stopped  chan struct{}
	runOnce  sync.Once

	mFunctionsInFlight prometheus.Gauge
	mBindQueueDepth    prometheus.Gauge
	mMessagesForwarded prometheus.Counter
}

// Config bundles the Scheduler's collaborators.
type Config struct {
	ThisHost  string
	Factory   *message.Factory
	Resources *cluster.Resources
	Hosts     *cluster.HostRegistry
	Functions *cluster.FunctionRegistry
	Store     kv.Store
	BindQueue *queue.Queue[*message.Message]
	Peers     PeerDialer
	Snapshots SnapshotSource
	Logger    logrus.FieldLogger
	Registry  *prometheus.Registry
}

// New returns a new unstarted Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sch := &Scheduler{
		logger:    logger.WithField("component", "scheduler"),
		thisHost:  cfg.ThisHost,
		factory:   cfg.Factory,
		resources: cfg.Resources,
		hosts:     cfg.Hosts,
		functions: cfg.Functions,
		store:     cfg.Store,
		bindQueue: cfg.BindQueue,
		peers:     cfg.Peers,
		snapshots: cfg.Snapshots,
		wakeup:    time.NewTimer(warmHostRefreshTick),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	sch.registerMetrics(cfg.Registry)
	return sch
}

func (sch *Scheduler) registerMetrics(reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	sch.mFunctionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "faabric",
		Subsystem: "scheduler",
		Name:      "functions_in_flight",
		Help:      "Number of calls currently executing on this host.",
	})
	reg.MustRegister(sch.mFunctionsInFlight)
	sch.mBindQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "faabric",
		Subsystem: "scheduler",
		Name:      "bind_queue_depth",
		Help:      "Current depth of the global bind queue.",
	})
	reg.MustRegister(sch.mBindQueueDepth)
	sch.mMessagesForwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "faabric",
		Subsystem: "scheduler",
		Name:      "messages_forwarded_total",
		Help:      "Total messages forwarded to a remote host.",
	})
	reg.MustRegister(sch.mMessagesForwarded)
}

func (sch *Scheduler) updateMetrics() {
	sch.mFunctionsInFlight.Set(float64(sch.resources.Snapshot().FunctionsInFlight))
	sch.mBindQueueDepth.Set(float64(sch.bindQueue.Size()))
}

// Start launches the background loop that periodically refreshes
// cluster membership from the KV store. It is optional: callFunction/
// callFunctions work correctly even if Start is never called.
func (sch *Scheduler) Start(ctx context.Context) {
	go sch.runOnce.Do(func() { sch.run(ctx) })
}

// Stop halts the background loop started by Start. No other method
// should be called after Stop.
func (sch *Scheduler) Stop() {
	close(sch.stop)
	<-sch.stopped
}

func (sch *Scheduler) run(ctx context.Context) {
	defer close(sch.stopped)
	for {
		if err := sch.hosts.Refresh(ctx); err != nil {
			sch.logger.WithError(err).Warn("error refreshing host registry")
		}
		sch.updateMetrics()
		select {
		case <-sch.stop:
			return
		case <-sch.wakeup.C:
			sch.wakeup.Reset(warmHostRefreshTick)
		}
	}
}

// SetTestMode enables recording of every accepted message ID, used by
// tests asserting on what the scheduler actually dispatched.
func (sch *Scheduler) SetTestMode(on bool) {
	sch.mtx.Lock()
	sch.testMode = on
	sch.recorded = nil
	sch.mtx.Unlock()
}

// RecordedMessageIDs returns the IDs recorded since test mode was
// enabled, in the order callFunctions accepted them.
func (sch *Scheduler) RecordedMessageIDs() []int64 {
	sch.mtx.Lock()
	defer sch.mtx.Unlock()
	out := make([]int64, len(sch.recorded))
	copy(out, sch.recorded)
	return out
}

func (sch *Scheduler) recordMessages(msgs []*message.Message) {
	sch.mtx.Lock()
	defer sch.mtx.Unlock()
	if !sch.testMode {
		return
	}
	for _, m := range msgs {
		sch.recorded = append(sch.recorded, m.ID)
	}
}

// CallFunction is a shortcut for a one-message batch. If msg starts a
// new MPI world (isMpi, rank 0, no world ID yet), a fresh world ID is
// assigned before dispatching.
func (sch *Scheduler) CallFunction(ctx context.Context, msg *message.Message) (string, error) {
	if msg.IsMpi && msg.MpiRank == 0 && msg.MpiWorldID == 0 {
		msg.MpiWorldID = sch.factory.NewWorldID()
	}
	req := &message.BatchRequest{
		BatchID:    msg.ID,
		Type:       message.BatchFunctions,
		MasterHost: sch.thisHost,
		Messages:   []*message.Message{msg},
	}
	hosts, err := sch.CallFunctions(ctx, req)
	if err != nil {
		return "", err
	}
	return hosts[0], nil
}

// CallFunctions schedules every message in req and returns the host
// each was placed on, in the same order as req.Messages: "" means
// executed inline (THREADS only), sch.thisHost means locally bound,
// anything else means forwarded there.
func (sch *Scheduler) CallFunctions(ctx context.Context, req *message.BatchRequest) ([]string, error) {
	if req.MasterHost != "" && req.MasterHost != sch.thisHost {
		peer, err := sch.peers.Get(req.MasterHost)
		if err != nil {
			return nil, fmt.Errorf("scheduler: dialing master host %s: %w", req.MasterHost, err)
		}
		if _, err := peer.ForwardBatch(ctx, req); err != nil {
			return nil, fmt.Errorf("scheduler: forwarding batch to master %s: %w", req.MasterHost, err)
		}
		return make([]string, len(req.Messages)), nil
	}

	pushedSnapshots := map[string]bool{}
	remoteCapacity := map[string]int{}
	hosts := make([]string, len(req.Messages))
	for i, msg := range req.Messages {
		host, err := sch.placeOne(ctx, req, msg, pushedSnapshots, remoteCapacity)
		if err != nil {
			return nil, fmt.Errorf("scheduler: placing message %d: %w", msg.ID, err)
		}
		hosts[i] = host
	}
	sch.recordMessages(req.Messages)
	return hosts, nil
}

// placeOne runs the four-step placement algorithm for a single
// message within req, mutating pushedSnapshots as snapshots are
// pushed to new remote hosts and remoteCapacity as candidate hosts'
// resource snapshots are learned.
func (sch *Scheduler) placeOne(ctx context.Context, req *message.BatchRequest, msg *message.Message, pushedSnapshots map[string]bool, remoteCapacity map[string]int) (string, error) {
	key := cluster.FunctionKey{User: msg.User, Function: msg.Function}
	isThread := req.Type == message.BatchThreads

	if isThread {
		// Threads execute inline, in the calling executor's own
		// thread pool; the scheduler never places them anywhere.
		return "", nil
	}

	if sch.resources.AvailableSlots() > 0 {
		return sch.placeLocally(msg, key)
	}

	if host, ok := sch.placeRemotely(ctx, req, msg, key, pushedSnapshots, remoteCapacity); ok {
		return host, nil
	}

	// Step 2c: overload. Place locally anyway without creating a new
	// executor beyond cores.
	return sch.placeLocally(msg, key)
}

// placeLocally performs the bookkeeping shared by step 2a and the
// step 2c overload fallback: increment the in-flight counters,
// reserve a bound-executor slot the first time this key is placed
// locally, and enqueue the message on the global bind queue.
func (sch *Scheduler) placeLocally(msg *message.Message, key cluster.FunctionKey) (string, error) {
	if sch.functions.LocalWarmCount(key) == 0 {
		sch.resources.IncrementBoundExecutors()
		sch.functions.IncrementWarmExecutors(key)
	}
	sch.resources.IncrementFunctionsInFlight()
	sch.functions.IncrementInFlight(key)
	sch.bindQueue.Enqueue(msg)
	return sch.thisHost, nil
}

// placeRemotely tries warm hosts for key first, then unregistered
// hosts, returning the first that reports capacity. ok is false if no
// remote host had any. remoteCapacity caches each candidate's
// available-slot count for the lifetime of one CallFunctions batch, so
// a run of overflow messages landing on the same peer costs exactly
// one resource-request RPC rather than one per message.
func (sch *Scheduler) placeRemotely(ctx context.Context, req *message.BatchRequest, msg *message.Message, key cluster.FunctionKey, pushedSnapshots map[string]bool, remoteCapacity map[string]int) (string, bool) {
	candidates := sch.candidateHosts(key)
	for _, host := range candidates {
		if host == sch.thisHost {
			continue
		}
		avail, cached := remoteCapacity[host]
		if !cached {
			peer, err := sch.peers.Get(host)
			if err != nil {
				sch.logger.WithError(err).WithField("host", host).Debug("dialing candidate host failed")
				continue
			}
			rctx, cancel := context.WithTimeout(ctx, resourceRPCTimeout)
			snap, err := peer.RequestResources(rctx)
			cancel()
			if err != nil {
				continue
			}
			avail = snap.AvailableSlots()
			remoteCapacity[host] = avail
		}
		if avail <= 0 {
			continue
		}
		peer, err := sch.peers.Get(host)
		if err != nil {
			sch.logger.WithError(err).WithField("host", host).Debug("dialing candidate host failed")
			continue
		}
		if req.Type != message.BatchFunctions && msg.SnapshotKey != "" && !pushedSnapshots[host] {
			if err := sch.pushSnapshotTo(ctx, peer, host, msg.SnapshotKey); err != nil {
				sch.logger.WithError(err).WithField("host", host).Warn("pushing snapshot failed")
				continue
			}
			pushedSnapshots[host] = true
		}
		if _, err := peer.ForwardBatch(ctx, &message.BatchRequest{
			BatchID:    req.BatchID,
			Type:       req.Type,
			MasterHost: sch.thisHost,
			Messages:   []*message.Message{msg},
		}); err != nil {
			sch.logger.WithError(err).WithField("host", host).Warn("forwarding to candidate host failed")
			continue
		}
		sch.functions.AddWarmHost(key, host)
		sch.mMessagesForwarded.Inc()
		remoteCapacity[host] = avail - 1
		return host, true
	}
	return "", false
}

func (sch *Scheduler) pushSnapshotTo(ctx context.Context, peer PeerClient, host, key string) error {
	if sch.snapshots == nil {
		return nil
	}
	data, err := sch.snapshots.Read(ctx, key)
	if err != nil {
		return err
	}
	return peer.PushSnapshot(ctx, key, data)
}

// candidateHosts orders remote placement candidates: warm hosts for
// key first, in the order FunctionRegistry.WarmHosts returns them (not
// insertion order), then every other registered host.
func (sch *Scheduler) candidateHosts(key cluster.FunctionKey) []string {
	warm := sch.functions.WarmHosts(key)
	warmSet := make(map[string]struct{}, len(warm))
	for _, h := range warm {
		warmSet[h] = struct{}{}
	}
	out := make([]string, 0, len(warm))
	out = append(out, warm...)
	for _, h := range sch.hosts.Hosts() {
		if _, ok := warmSet[h]; !ok {
			out = append(out, h)
		}
	}
	return out
}

// NotifyFinished is the in-memory half of finishing a call: it
// decrements the local in-flight counters before the result is
// written to the KV store, so a concurrent placement decision sees
// freed capacity immediately rather than waiting on a KV round trip.
func (sch *Scheduler) NotifyFinished(msg *message.Message, executedHost string) {
	key := cluster.FunctionKey{User: msg.User, Function: msg.Function}
	sch.resources.DecrementFunctionsInFlight()
	sch.functions.DecrementInFlight(key)
}

// SetThreadResult stores the return value of one THREADS batch
// member. Unlike SetFunctionResult, nothing blocking-pops this value;
// a driver polls for it directly by ID.
func (sch *Scheduler) SetThreadResult(ctx context.Context, msg *message.Message, returnValue int) error {
	buf := []byte{byte(returnValue), byte(returnValue >> 8), byte(returnValue >> 16), byte(returnValue >> 24)}
	return sch.store.Set(ctx, msg.ThreadResultKey(), buf, resultTTL)
}

// SetFunctionResult stamps msg with completion metadata and writes it
// to the KV store so a matching GetFunctionResult call unblocks.
func (sch *Scheduler) SetFunctionResult(ctx context.Context, msg *message.Message, executedHost string) error {
	msg.FinishTimestamp = time.Now()
	msg.ExecutedHost = executedHost
	blob, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("scheduler: marshaling result for %d: %w", msg.ID, err)
	}
	if err := sch.store.PushList(ctx, msg.ResultKey(), blob, resultTTL); err != nil {
		return fmt.Errorf("scheduler: writing result list for %d: %w", msg.ID, err)
	}
	if err := sch.store.Set(ctx, msg.StatusKey(), blob, resultTTL); err != nil {
		return fmt.Errorf("scheduler: writing status for %d: %w", msg.ID, err)
	}
	return nil
}

// GetFunctionResult blocking-pops the result list for id, waiting up
// to timeout. On timeout it returns a TypeEmpty message with no
// executed host.
func (sch *Scheduler) GetFunctionResult(ctx context.Context, id int64, timeout time.Duration) (*message.Message, error) {
	key := (&message.Message{ID: id}).ResultKey()
	blob, err := sch.store.PullList(ctx, key, timeout)
	if err != nil {
		if err == kv.ErrNotFound {
			return &message.Message{ID: id, Type: message.TypeEmpty}, nil
		}
		return nil, err
	}
	if blob == nil {
		return &message.Message{ID: id, Type: message.TypeEmpty}, nil
	}
	msg := &message.Message{}
	if err := msg.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("scheduler: unmarshaling result for %d: %w", id, err)
	}
	return msg, nil
}

// RecordChained records that childID was spawned by parentID, so the
// chained-invocation tree of a job can be reconstructed from the
// external KV store.
func (sch *Scheduler) RecordChained(ctx context.Context, parentID, childID int64) error {
	key := fmt.Sprintf("chained_%d", parentID)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(childID >> (8 * i))
	}
	return sch.store.PushList(ctx, key, buf, 0)
}

// BroadcastSnapshotDelete sends a delete RPC to every host currently
// registered warm for msg's {user, function}.
func (sch *Scheduler) BroadcastSnapshotDelete(ctx context.Context, msg *message.Message, key string) error {
	fkey := cluster.FunctionKey{User: msg.User, Function: msg.Function}
	var firstErr error
	for _, host := range sch.functions.WarmHosts(fkey) {
		peer, err := sch.peers.Get(host)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := peer.DeleteSnapshot(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DispatchMpiSibling implements mpi.Dispatcher: it builds the sibling
// CALL message for rank and hands it to CallFunction, recording the
// chained invocation under worldID (the rank-0 message's own ID is not
// used as the parent).
func (sch *Scheduler) DispatchMpiSibling(ctx context.Context, worldID int64, worldSize, rank int, user, function, masterHost, snapshotKey string) error {
	sibling := sch.factory.SiblingMpi(&message.Message{
		User:        user,
		Function:    function,
		MasterHost:  masterHost,
		SnapshotKey: snapshotKey,
	}, worldID, worldSize, rank)
	host, err := sch.CallFunction(ctx, sibling)
	if err != nil {
		return err
	}
	sibling.ExecutedHost = host
	return sch.RecordChained(ctx, worldID, sibling.ID)
}

var _ mpi.Dispatcher = (*Scheduler)(nil)

// Shutdown resets this host's resource counters, clears its local
// function-affinity state, and drops any messages still in the bind
// queue. It does not stop CallFunctions from accepting later work, and
// it does not terminate in-flight calls.
func (sch *Scheduler) Shutdown() {
	sch.resources.Reset()
	sch.functions.Reset()
	sch.bindQueue.Drain()
}
