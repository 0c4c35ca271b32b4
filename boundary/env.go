// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package boundary

import "sync"

// Env models the host's error channel: a single slot holding at most one
// pending error.  It is safe for concurrent use.
type Env struct {
	mu      sync.Mutex
	pending error
	dropped int
}

// NewEnv returns an Env with no pending error.
func NewEnv() *Env {
	return &Env{}
}

// Throw makes err the pending error.  If an error is already pending, the
// first one is kept and err is logged and discarded.
func (e *Env) Throw(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		e.dropped++
		log.Warnf("Discarding error raised while another is pending "+
			"(%v): %v", e.pending, err)
		return
	}
	e.pending = err
}

// Pending returns the pending error without clearing it.
func (e *Env) Pending() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// ExceptionCheck reports whether an error is pending.
func (e *Env) ExceptionCheck() bool {
	return e.Pending() != nil
}

// Clear returns the pending error and empties the slot.
func (e *Env) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.pending
	e.pending = nil
	return err
}

// Dropped returns how many errors were discarded because one was already
// pending.
func (e *Env) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}
