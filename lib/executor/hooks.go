// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package executor is the per-host Executor Pool: a small, fixed-size
// set of long-lived workers that bind to a {user, function}, execute
// calls, and run a private thread pool for THREADS batches (spec.md
// §4.3).
package executor

import (
	"context"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/message"
)

// Hooks are the extension points a concrete runtime fills in to
// actually execute a payload; an Executor with the zero Hooks treats
// every call as an immediate no-op success, which is enough to drive
// the state machine in tests.
type Hooks struct {
	// DoExecute runs a single CALL message and returns its output.
	DoExecute func(ctx context.Context, msg *message.Message) ([]byte, error)
	// ExecuteThread runs one member of a THREADS batch and returns
	// its return value.
	ExecuteThread func(ctx context.Context, msg *message.Message) (int, error)
	// Flush is invoked for a FLUSH message.
	Flush func(ctx context.Context) error
	// PostBind runs once an executor has bound to key.
	PostBind func(key cluster.FunctionKey)
	// PreFinishCall runs before a call's result is recorded.
	PreFinishCall func(msg *message.Message)
	// PostFinishCall runs after a call's result is recorded.
	PostFinishCall func(msg *message.Message, success bool)
	// PostFinish runs once, as the executor enters Finished.
	PostFinish func()
}

func defaultHooks() Hooks {
	return Hooks{
		DoExecute:      func(ctx context.Context, msg *message.Message) ([]byte, error) { return nil, nil },
		ExecuteThread:  func(ctx context.Context, msg *message.Message) (int, error) { return 0, nil },
		Flush:          func(ctx context.Context) error { return nil },
		PostBind:       func(key cluster.FunctionKey) {},
		PreFinishCall:  func(msg *message.Message) {},
		PostFinishCall: func(msg *message.Message, success bool) {},
		PostFinish:     func() {},
	}
}

func (h Hooks) withDefaults() Hooks {
	d := defaultHooks()
	if h.DoExecute == nil {
		h.DoExecute = d.DoExecute
	}
	if h.ExecuteThread == nil {
		h.ExecuteThread = d.ExecuteThread
	}
	if h.Flush == nil {
		h.Flush = d.Flush
	}
	if h.PostBind == nil {
		h.PostBind = d.PostBind
	}
	if h.PreFinishCall == nil {
		h.PreFinishCall = d.PreFinishCall
	}
	if h.PostFinishCall == nil {
		h.PostFinishCall = d.PostFinishCall
	}
	if h.PostFinish == nil {
		h.PostFinish = d.PostFinish
	}
	return h
}
