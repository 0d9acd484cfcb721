// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/queue"
)

const (
	defaultUnboundTimeout  = 10 * time.Second
	defaultBoundTimeout    = time.Minute
	defaultThreadPoolSize  = 4
	defaultProbeBackoff    = 100 * time.Millisecond
	defaultMaxProbesPerSec = 20
)

// ResultRecorder is the narrow view of the Scheduler Core an Executor
// needs to finish a call: it notifies in-memory bookkeeping first (so
// other waiters on capacity unblock immediately), then writes the
// durable result to the KV store.
type ResultRecorder interface {
	NotifyFinished(msg *message.Message, executedHost string)
	SetFunctionResult(ctx context.Context, msg *message.Message, executedHost string) error
	SetThreadResult(ctx context.Context, msg *message.Message, returnValue int) error
}

// MpiCreator is invoked by an executor immediately before running a
// rank-0 MPI call, so the executor creates the World and fans out the
// size-1 chained sibling invocations before running the user's entry
// point (spec.md §4.4's "Creation (rank 0)").
type MpiCreator func(ctx context.Context, msg *message.Message) error

// Config bundles a Pool's collaborators and tunables.
type Config struct {
	ThisHost       string
	BindQueue      *queue.Queue[*message.Message]
	Resources      *cluster.Resources
	Functions      *cluster.FunctionRegistry
	Recorder       ResultRecorder
	Hooks          Hooks
	MpiCreate      MpiCreator
	Cores          int
	UnboundTimeout time.Duration
	BoundTimeout   time.Duration
	ThreadPoolSize int
	Logger         logrus.FieldLogger
	Registry       *prometheus.Registry
}

func (c Config) withDefaults() Config {
	if c.UnboundTimeout <= 0 {
		c.UnboundTimeout = defaultUnboundTimeout
	}
	if c.BoundTimeout <= 0 {
		c.BoundTimeout = defaultBoundTimeout
	}
	if c.ThreadPoolSize <= 0 {
		c.ThreadPoolSize = defaultThreadPoolSize
	}
	if c.Cores <= 0 {
		c.Cores = 1
	}
	c.Hooks = c.Hooks.withDefaults()
	return c
}

// Pool keeps up to Cores Executors alive at all times, each competing
// on the shared bind queue while Unbound. It is the host-local
// counterpart to the Scheduler Core: the scheduler decides placement
// and pushes messages onto the bind queue; the Pool is the only thing
// that ever dequeues from it.
type Pool struct {
	cfg    Config
	logger logrus.FieldLogger

	mtx         sync.RWMutex
	subscribers map[<-chan struct{}]chan<- struct{}
	executors   map[int]*Executor
	nextID      int

	stop    chan struct{}
	stopped chan struct{}

	mBoundExecutors prometheus.Gauge
	mThreadPoolSize prometheus.Gauge
}

// NewPool constructs a Pool from cfg but does not start it.
func NewPool(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Pool{
		cfg:         cfg,
		logger:      logger.WithField("component", "executor_pool"),
		subscribers: map[<-chan struct{}]chan<- struct{}{},
		executors:   map[int]*Executor{},
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	p.registerMetrics(cfg.Registry)
	return p
}

func (p *Pool) registerMetrics(reg *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p.mBoundExecutors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "faabric",
		Subsystem: "executor",
		Name:      "bound_executors",
		Help:      "Number of executors currently bound to a function on this host.",
	})
	reg.MustRegister(p.mBoundExecutors)
	p.mThreadPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "faabric",
		Subsystem: "executor",
		Name:      "thread_pool_size",
		Help:      "Configured size of each bound executor's internal thread pool.",
	})
	reg.MustRegister(p.mThreadPoolSize)
	p.mThreadPoolSize.Set(float64(p.cfg.ThreadPoolSize))
}

// Subscribe returns a channel that becomes ready whenever an
// executor's state changes, mirroring the teacher's notify pattern
// for schedulers that want to re-evaluate placement after capacity
// frees up.
func (p *Pool) Subscribe() <-chan struct{} {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	ch := make(chan struct{}, 1)
	p.subscribers[ch] = ch
	return ch
}

// Unsubscribe stops sending updates to ch.
func (p *Pool) Unsubscribe(ch <-chan struct{}) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	delete(p.subscribers, ch)
}

func (p *Pool) notify() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, send := range p.subscribers {
		select {
		case send <- struct{}{}:
		default:
		}
	}
}

// Start brings the Pool up to Cores live executors and keeps
// replacing ones that reach Finished.
func (p *Pool) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *Pool) run(ctx context.Context) {
	defer close(p.stopped)
	ticker := time.NewTicker(defaultProbeBackoff)
	defer ticker.Stop()
	for {
		p.replenish(ctx)
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) replenish(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for len(p.executors) < p.cfg.Cores {
		id := p.nextID
		p.nextID++
		e := newExecutor(id, p, p.logger.WithField("ExecutorID", id))
		p.executors[id] = e
		go e.run(ctx)
	}
}

func (p *Pool) removeExecutor(id int) {
	p.mtx.Lock()
	delete(p.executors, id)
	p.mtx.Unlock()
	p.notify()
}

// CountBound returns how many live executors are currently Bound.
func (p *Pool) CountBound() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	n := 0
	for _, e := range p.executors {
		if e.currentState() == StateBound {
			n++
		}
	}
	p.mBoundExecutors.Set(float64(n))
	return n
}

// Stop halts the Pool's replenish loop. Live executors finish their
// current task and are not forcibly killed; call Drain first if that
// matters.
func (p *Pool) Stop() {
	close(p.stop)
	<-p.stopped
}

// Drain blocks until the bind queue is empty or timeout elapses, and
// reports whether the queue emptied. It does not wait for executors
// that are still running a call they already dequeued. Used by
// Scheduler-adjacent Shutdown sequences.
func (p *Pool) Drain(timeout time.Duration) bool {
	return p.cfg.BindQueue.WaitToDrain(timeout) == nil
}

var errInvalidFunction = fmt.Errorf("executor: message names no function to bind to")
