// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/queue"
)

// fakeRecorder is an in-memory stand-in for lib/scheduler.Scheduler's
// ResultRecorder surface.
type fakeRecorder struct {
	mu        sync.Mutex
	finished  []*message.Message
	results   []*message.Message
	notifyAll chan *message.Message
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{notifyAll: make(chan *message.Message, 16)}
}

func (r *fakeRecorder) NotifyFinished(msg *message.Message, executedHost string) {
	r.mu.Lock()
	r.finished = append(r.finished, msg)
	r.mu.Unlock()
}

func (r *fakeRecorder) SetFunctionResult(ctx context.Context, msg *message.Message, executedHost string) error {
	r.mu.Lock()
	r.results = append(r.results, msg)
	r.mu.Unlock()
	r.notifyAll <- msg
	return nil
}

func (r *fakeRecorder) SetThreadResult(ctx context.Context, msg *message.Message, returnValue int) error {
	return nil
}

func newTestPool(t *testing.T, cores int, hooks Hooks, recorder ResultRecorder) *Pool {
	t.Helper()
	return NewPool(Config{
		ThisHost:       "this-host",
		BindQueue:      queue.New[*message.Message](),
		Resources:      cluster.NewResources(uint32(cores)),
		Functions:      cluster.NewFunctionRegistry(0),
		Recorder:       recorder,
		Hooks:          hooks,
		Cores:          cores,
		UnboundTimeout: 200 * time.Millisecond,
		BoundTimeout:   200 * time.Millisecond,
		ThreadPoolSize: 2,
	})
}

func TestExecutorBindsAndExecutesCall(t *testing.T) {
	ctx := context.Background()
	recorder := newFakeRecorder()
	var executed []string
	var mu sync.Mutex
	hooks := Hooks{
		DoExecute: func(ctx context.Context, msg *message.Message) ([]byte, error) {
			mu.Lock()
			executed = append(executed, msg.Function)
			mu.Unlock()
			return []byte("ok"), nil
		},
	}
	pool := newTestPool(t, 1, hooks, recorder)
	pool.Start(ctx)
	defer pool.Stop()

	f := message.NewFactory(1)
	msg := f.NewCall("alice", "fn", nil)
	pool.cfg.BindQueue.Enqueue(msg)

	select {
	case got := <-recorder.notifyAll:
		require.Equal(t, msg.ID, got.ID)
		require.Equal(t, []byte("ok"), got.OutputData)
	case <-time.After(time.Second):
		t.Fatal("call was never finished")
	}
	mu.Lock()
	require.Equal(t, []string{"fn"}, executed)
	mu.Unlock()
}

func TestExecutorRecordsFailureAsNonZeroReturnValue(t *testing.T) {
	ctx := context.Background()
	recorder := newFakeRecorder()
	hooks := Hooks{
		DoExecute: func(ctx context.Context, msg *message.Message) ([]byte, error) {
			return nil, assert.AnError
		},
	}
	pool := newTestPool(t, 1, hooks, recorder)
	pool.Start(ctx)
	defer pool.Stop()

	f := message.NewFactory(1)
	msg := f.NewCall("alice", "fn", nil)
	pool.cfg.BindQueue.Enqueue(msg)

	select {
	case got := <-recorder.notifyAll:
		require.Equal(t, 1, got.ReturnValue)
	case <-time.After(time.Second):
		t.Fatal("call was never finished")
	}
}

func TestRebindToDifferentKeyWithoutForceIsFatal(t *testing.T) {
	pool := newTestPool(t, 1, Hooks{}, newFakeRecorder())
	e := newExecutor(0, pool, pool.logger)

	require.NoError(t, e.bind(cluster.FunctionKey{User: "alice", Function: "fn"}))
	require.NoError(t, e.rebind(cluster.FunctionKey{User: "alice", Function: "fn"}, true))

	err := e.bind(cluster.FunctionKey{User: "alice", Function: "other"})
	require.Error(t, err)
}

func TestRebindWithForceSucceeds(t *testing.T) {
	pool := newTestPool(t, 1, Hooks{}, newFakeRecorder())
	e := newExecutor(0, pool, pool.logger)

	require.NoError(t, e.bind(cluster.FunctionKey{User: "alice", Function: "fn"}))
	require.NoError(t, e.rebind(cluster.FunctionKey{User: "alice", Function: "fn"}, true))
	require.Equal(t, cluster.FunctionKey{User: "alice", Function: "fn"}, e.boundKey)
}

func TestBoundExecutorRequeuesNonMatchingMessage(t *testing.T) {
	ctx := context.Background()
	recorder := newFakeRecorder()
	var ran []string
	var mu sync.Mutex
	hooks := Hooks{
		DoExecute: func(ctx context.Context, msg *message.Message) ([]byte, error) {
			mu.Lock()
			ran = append(ran, msg.Function)
			mu.Unlock()
			return nil, nil
		},
	}
	pool := newTestPool(t, 1, hooks, recorder)
	pool.Start(ctx)
	defer pool.Stop()

	f := message.NewFactory(1)
	match := f.NewCall("alice", "fn", nil)
	pool.cfg.BindQueue.Enqueue(match)

	// Let the sole executor bind to {alice, fn} before sending a
	// second call for a different function; it must be put back on
	// the queue rather than executed on this executor.
	<-recorder.notifyAll

	other := f.NewCall("bob", "other-fn", nil)
	pool.cfg.BindQueue.Enqueue(other)

	select {
	case <-recorder.notifyAll:
		t.Fatal("a message for a different function should not have been executed by the bound executor")
	case <-time.After(300 * time.Millisecond):
	}

	mu.Lock()
	require.Equal(t, []string{"fn"}, ran)
	mu.Unlock()
}

func TestPoolDrainWaitsForBindQueueToEmpty(t *testing.T) {
	ctx := context.Background()
	recorder := newFakeRecorder()
	pool := newTestPool(t, 1, Hooks{}, recorder)
	pool.Start(ctx)
	defer pool.Stop()

	f := message.NewFactory(1)
	pool.cfg.BindQueue.Enqueue(f.NewCall("alice", "fn", nil))
	<-recorder.notifyAll

	require.True(t, pool.Drain(time.Second))
}
