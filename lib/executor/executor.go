// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/queue"
	"github.com/n-krueger/faabric/sdk/go/ctxlog"
)

// State is a point in an Executor's Unbound -> Bound -> Finished
// lifecycle (spec.md §4.3).
type State int32

const (
	StateUnbound State = iota
	StateBound
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Executor is a single long-lived worker. It competes with its
// siblings on the Pool's shared bind queue while Unbound; once it
// binds to a {user, function}, it keeps dequeuing from the same
// shared queue but only accepts messages matching its own key,
// putting anything else back for another executor to claim.
type Executor struct {
	id     int
	pool   *Pool
	logger logrus.FieldLogger

	state    atomic.Int32
	boundKey cluster.FunctionKey

	threads *threadPool

	invalidProbes     int
	invalidProbeSince time.Time
}

func newExecutor(id int, pool *Pool, logger logrus.FieldLogger) *Executor {
	return &Executor{id: id, pool: pool, logger: logger}
}

func (e *Executor) currentState() State {
	return State(e.state.Load())
}

func (e *Executor) setState(s State) {
	e.state.Store(int32(s))
}

// run drives the whole Unbound -> Bound -> Finished lifecycle once.
// The Pool's replenish loop starts a fresh Executor to take this
// one's place once it reaches Finished.
func (e *Executor) run(ctx context.Context) {
	defer e.pool.removeExecutor(e.id)
	if !e.runUnbound(ctx) {
		e.finish(ctx)
		return
	}
	e.runBound(ctx)
	e.finish(ctx)
}

// runUnbound dequeues from the shared bind queue until it receives a
// message naming a function, which it binds to. It returns false on
// an unbound timeout.
func (e *Executor) runUnbound(ctx context.Context) bool {
	e.setState(StateUnbound)
	for {
		msg, err := e.pool.cfg.BindQueue.Dequeue(e.pool.cfg.UnboundTimeout)
		if err != nil {
			return false
		}
		if msg.Function == "" {
			e.logger.WithError(errInvalidFunction).WithField("MessageID", msg.ID).Warn("remaining unbound")
			e.throttleInvalidProbe()
			continue
		}
		key := cluster.FunctionKey{User: msg.User, Function: msg.Function}
		if err := e.bind(key); err != nil {
			e.logger.WithError(err).Error("bind failed")
			continue
		}
		e.threads = newThreadPool(e.pool.cfg.ThreadPoolSize, e)
		e.threads.start(ctx)
		e.handleDequeued(ctx, msg)
		return true
	}
}

// throttleInvalidProbe caps how often this executor re-polls the bind
// queue right after rejecting an invalid-function message, mirroring
// the teacher's maxProbesPerSecond soft rate limit so a spuriously
// wakeful unbound executor doesn't spin.
func (e *Executor) throttleInvalidProbe() {
	now := time.Now()
	if now.Sub(e.invalidProbeSince) > time.Second {
		e.invalidProbeSince = now
		e.invalidProbes = 0
	}
	e.invalidProbes++
	if e.invalidProbes > defaultMaxProbesPerSec {
		time.Sleep(defaultProbeBackoff)
	}
}

// bind transitions this executor to Bound for key. Calling bind on an
// executor that is already Bound is an error; see rebind for the
// forced case.
func (e *Executor) bind(key cluster.FunctionKey) error {
	if e.currentState() == StateBound {
		return e.rebind(key, false)
	}
	e.boundKey = key
	e.setState(StateBound)
	e.pool.notify()
	e.pool.cfg.Hooks.PostBind(key)
	return nil
}

// rebind enforces spec.md §4.3's "binding a second time is a fatal
// error unless force=true and the new message has the same
// {user, function}".
func (e *Executor) rebind(key cluster.FunctionKey, force bool) error {
	if !force {
		return fmt.Errorf("executor: already bound to %s, cannot rebind to %s without force", e.boundKey, key)
	}
	if key != e.boundKey {
		return fmt.Errorf("executor: already bound to %s, cannot force a rebind to %s", e.boundKey, key)
	}
	e.pool.cfg.Hooks.PostBind(key)
	return nil
}

// runBound dequeues (msg) tasks from the shared bind queue with the
// bound timeout, executing anything addressed to this executor's key
// and putting back anything else.
func (e *Executor) runBound(ctx context.Context) {
	for {
		msg, err := e.pool.cfg.BindQueue.Dequeue(e.pool.cfg.BoundTimeout)
		if err != nil {
			return
		}
		if (cluster.FunctionKey{User: msg.User, Function: msg.Function}) != e.boundKey {
			e.pool.cfg.BindQueue.Enqueue(msg)
			continue
		}
		e.handleDequeued(ctx, msg)
	}
}

func (e *Executor) handleDequeued(ctx context.Context, msg *message.Message) {
	switch msg.Type {
	case message.TypeFlush:
		if err := e.pool.cfg.Hooks.Flush(ctx); err != nil {
			e.logger.WithError(err).Warn("flush hook failed")
		}
	default:
		e.executeCall(ctx, msg)
	}
}

// executeCall runs a single CALL message via the doExecute hook,
// creating an MPI world first if this message starts one, then
// reports the outcome through finishCall.
func (e *Executor) executeCall(ctx context.Context, msg *message.Message) {
	ctx = ctxlog.WithMessage(ctx, msg)
	if msg.IsMpi && msg.MpiRank == 0 && e.pool.cfg.MpiCreate != nil {
		if err := e.pool.cfg.MpiCreate(ctx, msg); err != nil {
			e.finishCall(ctx, msg, false, err.Error())
			return
		}
	}
	output, err := e.pool.cfg.Hooks.DoExecute(ctx, msg)
	if err != nil {
		e.finishCall(ctx, msg, false, err.Error())
		return
	}
	msg.OutputData = output
	e.finishCall(ctx, msg, true, "")
}

// finishCall notifies the scheduler's in-memory bookkeeping first (so
// other waiters on capacity unblock), then writes the durable result.
func (e *Executor) finishCall(ctx context.Context, msg *message.Message, success bool, errMsg string) {
	log := ctxlog.FromContext(ctx)
	e.pool.cfg.Hooks.PreFinishCall(msg)
	if !success {
		msg.ReturnValue = 1
	}
	e.pool.cfg.Recorder.NotifyFinished(msg, e.pool.cfg.ThisHost)
	if err := e.pool.cfg.Recorder.SetFunctionResult(ctx, msg, e.pool.cfg.ThisHost); err != nil {
		log.WithError(err).Error("writing function result failed")
	}
	e.pool.cfg.Hooks.PostFinishCall(msg, success)
	if errMsg != "" {
		log.WithField("error", errMsg).Debug("call finished with error")
	}
}

// ExecuteThreadsBatch runs a THREADS batch inline: every message is
// routed to one of the executor's internal thread-pool workers by
// appIndex % threadPoolSize. Callers (the function body itself, via
// whatever host API it's given) invoke this directly; the scheduler
// never places THREADS messages anywhere.
func (e *Executor) ExecuteThreadsBatch(ctx context.Context, batch *message.BatchRequest) {
	if e.threads == nil {
		e.threads = newThreadPool(e.pool.cfg.ThreadPoolSize, e)
		e.threads.start(ctx)
	}
	for _, msg := range batch.Messages {
		e.threads.submit(msg)
	}
}

func (e *Executor) finish(ctx context.Context) {
	if e.threads != nil {
		e.threads.stopAndJoin()
	}
	e.setState(StateFinished)
	e.pool.cfg.Hooks.PostFinish()
	e.pool.notify()
}

// threadPool is the fixed-size internal worker set a Bound executor
// uses for THREADS batches: each worker owns a private queue and
// loops until it sees a KILL marker.
type threadPool struct {
	owner   *Executor
	workers []*queue.Queue[*message.Message]
	size    int
	wg      sync.WaitGroup
}

func newThreadPool(size int, owner *Executor) *threadPool {
	tp := &threadPool{owner: owner, size: size, workers: make([]*queue.Queue[*message.Message], size)}
	for i := range tp.workers {
		tp.workers[i] = queue.New[*message.Message]()
	}
	return tp
}

func (tp *threadPool) start(ctx context.Context) {
	for i := range tp.workers {
		tp.wg.Add(1)
		go tp.runWorker(ctx, i)
	}
}

func (tp *threadPool) runWorker(ctx context.Context, idx int) {
	defer tp.wg.Done()
	q := tp.workers[idx]
	for {
		msg, err := q.Dequeue(0)
		if err != nil {
			continue
		}
		if msg.Type == message.TypeKill {
			return
		}
		returnValue, err := tp.owner.pool.cfg.Hooks.ExecuteThread(ctx, msg)
		if err != nil {
			returnValue = 1
		}
		if rerr := tp.owner.pool.cfg.Recorder.SetThreadResult(ctx, msg, returnValue); rerr != nil {
			tp.owner.logger.WithError(rerr).WithField("MessageID", msg.ID).Error("writing thread result failed")
		}
	}
}

func (tp *threadPool) submit(msg *message.Message) {
	idx := msg.AppIndex % tp.size
	if idx < 0 {
		idx += tp.size
	}
	tp.workers[idx].Enqueue(msg)
}

func (tp *threadPool) stopAndJoin() {
	kill := &message.Message{Type: message.TypeKill}
	for _, w := range tp.workers {
		w.Enqueue(kill)
	}
	tp.wg.Wait()
}
