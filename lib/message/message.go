// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package message defines the invocation unit (Message) and the batch
// envelope (BatchRequest) that flow through the scheduler and executor
// pool, along with the small ID/key-derivation helpers that several
// other packages depend on.
package message

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync/atomic"
	"time"
)

// Type is the kind of work a Message represents.
type Type int

const (
	TypeEmpty Type = iota
	TypeCall
	TypeBind
	TypeKill
	TypeFlush
)

// BatchType controls how the messages in a BatchRequest are executed
// relative to one another.
type BatchType int

const (
	// BatchFunctions treats each message as an independent invocation.
	BatchFunctions BatchType = iota
	// BatchThreads executes in-process within a bound executor's
	// thread pool, sharing memory via a named snapshot.
	BatchThreads
	// BatchProcesses treats each message as a process; all messages
	// in the batch share a snapshot.
	BatchProcesses
)

// idCounter produces monotonically increasing IDs within this
// process. Combined with a host prefix at Factory construction, IDs
// are globally unique.
var idCounter uint64

// Message is a single unit of invocation, addressed by {user,
// function}, carrying an opaque payload, and eventually carrying a
// result.
type Message struct {
	ID   int64
	Type Type

	User           string
	Function       string
	PythonUser     string
	PythonFunction string
	MasterHost     string
	ExecutedHost   string

	InputData []byte
	Argv      []string
	CmdLine   string

	ReturnValue     int
	OutputData      []byte
	FinishTimestamp time.Time

	IsMpi        bool
	MpiWorldID   int64
	MpiWorldSize int
	MpiRank      int
	AppIndex     int

	SnapshotKey string

	CreatedAt time.Time
}

// MarshalBinary gob-encodes m, so it can be stored in the KV store or
// carried over an RPC framed by the generic wireCodec in
// lib/transport. spec.md leaves the result-plumbing wire format
// unspecified, so gob (the stdlib's own serialization idiom) is used
// rather than inventing one. The fields are encoded through
// messageFields, which has no MarshalBinary method, so gob does not
// call back into MarshalBinary.
func (m *Message) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode((*messageFields)(m)); err != nil {
		return nil, fmt.Errorf("message: encoding %d: %w", m.ID, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (m *Message) UnmarshalBinary(b []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode((*messageFields)(m)); err != nil {
		return fmt.Errorf("message: decoding: %w", err)
	}
	return nil
}

// messageFields has Message's fields without its methods.
type messageFields Message

// StatusKey is the KV key under which a single status blob for this
// message's completion is stored.
func (m *Message) StatusKey() string {
	return fmt.Sprintf("status_%d", m.ID)
}

// ResultKey is the KV key under which the length-prefixed result list
// for this message is stored.
func (m *Message) ResultKey() string {
	return fmt.Sprintf("result_%d", m.ID)
}

// ThreadResultKey is the KV key a THREADS batch member's return value
// is stored under; threads are set via a single blob, not the
// result list ResultKey uses, since nothing blocking-pops a thread's
// result the way getFunctionResult does for a call.
func (m *Message) ThreadResultKey() string {
	return fmt.Sprintf("threadresult_%d", m.ID)
}

// Factory assigns identity to newly created messages. A Factory is
// scoped to a single host process so that the host prefix combined
// with the monotonic counter yields globally unique IDs.
type Factory struct {
	hostPrefix int64
}

// NewFactory returns a Factory whose IDs are prefixed so they do not
// collide with IDs minted by other hosts.
func NewFactory(hostPrefix int64) *Factory {
	return &Factory{hostPrefix: hostPrefix}
}

// nextID mixes the host prefix, shifted into the high-order bits, into
// a process-monotonic counter. The exact bit layout is not part of any
// contract; it only needs to be unique per (host, counter) pair.
func (f *Factory) nextID() int64 {
	n := atomic.AddUint64(&idCounter, 1)
	return (f.hostPrefix << 40) ^ int64(n)
}

// NewWorldID mints a fresh MPI world identifier from the same
// counter used for message IDs; the two ID spaces are disjoint in
// practice since a world ID is never compared against a message ID.
func (f *Factory) NewWorldID() int64 {
	return f.nextID()
}

// NewCall builds a CALL message addressed to {user, function} with
// the given input payload. Identity (ID, derived keys) and creation
// timestamp are assigned here and are immutable afterwards.
func (f *Factory) NewCall(user, function string, input []byte) *Message {
	return &Message{
		ID:        f.nextID(),
		Type:      TypeCall,
		User:      user,
		Function:  function,
		InputData: input,
		CreatedAt: time.Now(),
	}
}

// NewBind builds a BIND message used to assign an unbound executor to
// {user, function}.
func (f *Factory) NewBind(user, function string) *Message {
	return &Message{
		ID:        f.nextID(),
		Type:      TypeBind,
		User:      user,
		Function:  function,
		CreatedAt: time.Now(),
	}
}

// NewKill builds a sentinel KILL message used to terminate an internal
// thread-pool worker.
func (f *Factory) NewKill() *Message {
	return &Message{ID: f.nextID(), Type: TypeKill, CreatedAt: time.Now()}
}

// NewFlush builds a FLUSH message used to invoke an executor's flush
// hook.
func (f *Factory) NewFlush(user, function string) *Message {
	return &Message{
		ID:        f.nextID(),
		Type:      TypeFlush,
		User:      user,
		Function:  function,
		CreatedAt: time.Now(),
	}
}

// SiblingMpi builds a copy of msg addressed to the same {user,
// function}, tagged with the given MPI world metadata. Used by world
// creation to spawn the size-1 chained rank invocations.
func (f *Factory) SiblingMpi(parent *Message, worldID int64, worldSize, rank int) *Message {
	return &Message{
		ID:           f.nextID(),
		Type:         TypeCall,
		User:         parent.User,
		Function:     parent.Function,
		MasterHost:   parent.MasterHost,
		IsMpi:        true,
		MpiWorldID:   worldID,
		MpiWorldSize: worldSize,
		MpiRank:      rank,
		SnapshotKey:  parent.SnapshotKey,
		CreatedAt:    time.Now(),
	}
}

// SetMessageID is idempotent: calling it twice on the same message
// leaves ID, the derived keys, and CreatedAt unchanged. It exists so
// callers that receive a Message without going through a Factory
// (e.g. deserialized off the wire) can still assign identity exactly
// once.
func (f *Factory) SetMessageID(m *Message) {
	if m.ID != 0 {
		return
	}
	m.ID = f.nextID()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

// BatchRequest is an ordered list of Messages sharing a batch-level
// execution mode.
type BatchRequest struct {
	BatchID    int64
	Type       BatchType
	MasterHost string
	Messages   []*Message
}
