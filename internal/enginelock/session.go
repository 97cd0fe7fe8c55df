// Package enginelock implements the process-wide reader/writer lock that
// serializes container-engine mutations, modeled as an explicit session
// object threaded through the call chain — the Go expression of the
// original's `engine_client` async context manager built on aiorwlock.RWLock
// (src/container/engine.py). Go has no native async-with, so the nested
// reentrancy and exception-group semantics are made explicit here instead of
// implicit in a context manager.
package enginelock

import (
	"context"
	"sync"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// Mode is the strength of a lock acquisition.
type Mode int

const (
	// None means no lock is held by this session (only valid for nested
	// sessions that were handed no lock and request none).
	None Mode = iota
	Read
	Write
)

// Lock is the single process-wide reader/writer lock. The gateway creates
// exactly one at startup and tears it down at shutdown (§9: "process-wide
// state with lifecycle").
type Lock struct {
	rw sync.RWMutex
}

// New returns a fresh, unlocked Lock.
func New() *Lock { return &Lock{} }

// Session is the explicit lock-scope object passed through the call chain.
// A Session either owns the outer acquisition (outer == true) or was handed
// down from an enclosing call (nested). Nested sessions never re-acquire the
// underlying mutex; they only validate that the requested mode is
// compatible with what the outer session already holds.
type Session struct {
	lock  *Lock
	mode  Mode
	outer bool

	mu   sync.Mutex
	errs []error
}

// Begin starts a new outer session, acquiring mode on lock. Pass mode ==
// None to run without taking the lock at all (used by read-only call paths
// that don't need serialization, mirroring `lock=None` in the original).
func Begin(lock *Lock, mode Mode) *Session {
	switch mode {
	case Read:
		lock.rw.RLock()
	case Write:
		lock.rw.Lock()
	}
	return &Session{lock: lock, mode: mode, outer: true}
}

// Nested returns a child session reusing the parent's acquisition. It
// returns a LockUpgrade error if mode is stronger than what the parent
// holds — the defining rule of §4.2: "Upgrading from read to write inside a
// nested scope is forbidden."
func (s *Session) Nested(mode Mode) (*Session, error) {
	if s.mode == None && mode != None {
		return nil, gatewayerr.New(gatewayerr.KindLockUpgrade,
			"cannot acquire lock in nested context; lock must be acquired at the outer level")
	}
	if s.mode == Read && mode == Write {
		return nil, gatewayerr.LockUpgrade()
	}
	return &Session{lock: s.lock, mode: s.mode, outer: false}, nil
}

// Mode reports the lock strength this session (and any session nested
// inside it) is operating under.
func (s *Session) Mode() Mode { return s.mode }

// Fail records an error from work done under this session without
// unwinding. Nested sessions collect into the same slice as their outer
// session would see via End, per §4.2's "collect exceptions ... raise them
// together in the outermost scope."
func (s *Session) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// End releases the lock if this is the outer session and returns a combined
// error for every failure recorded by Fail on this session or any of its
// nested children. Nested sessions are no-ops: only the outer session
// actually unlocks, matching "if nested: return" in the original's finally
// block.
func (s *Session) End() error {
	if !s.outer {
		return nil
	}
	switch s.mode {
	case Read:
		s.lock.rw.RUnlock()
	case Write:
		s.lock.rw.Unlock()
	}
	s.mu.Lock()
	errs := s.errs
	s.mu.Unlock()
	return gatewayerr.NewGroup("multiple exceptions occurred during container engine operations", errs)
}

// propagate merges a child session's recorded failures into this session.
// Callers that create a Nested session and want its failures surfaced at
// the true outer End() must call this before discarding the child.
func (s *Session) propagate(child *Session) {
	child.mu.Lock()
	errs := child.errs
	child.mu.Unlock()
	for _, e := range errs {
		s.Fail(e)
	}
}

// Propagate is the exported form of propagate, used by callers across
// package boundaries (container/manager packages nest sessions through
// function calls, not methods on Session).
func (s *Session) Propagate(child *Session) { s.propagate(child) }

// Run acquires (or reuses) a session around fn, the common case where a
// caller doesn't need to manage End()/Fail() manually. If parent is nil, a
// new outer session is started; otherwise a nested session is derived from
// it. fn's error is recorded via Fail and also returned directly so callers
// that aren't building a multi-step nested chain get normal Go error
// handling.
func Run(ctx context.Context, lock *Lock, parent *Session, mode Mode, fn func(ctx context.Context, s *Session) error) error {
	if parent == nil {
		s := Begin(lock, mode)
		err := fn(ctx, s)
		s.Fail(err)
		return s.End()
	}

	child, err := parent.Nested(mode)
	if err != nil {
		return err
	}
	fnErr := fn(ctx, child)
	child.Fail(fnErr)
	parent.Propagate(child)
	return fnErr
}
