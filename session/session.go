// Package session holds the per-connection evaluation state of the nREPL
// server: the active namespace and the *1/*2/*3/*e result history.
package session

import "github.com/zylisp/nrepl/runtime"

// Session is one connection's mutable evaluation state. It is created when
// the connection is accepted and discarded when the connection closes.
// Only the connection's own goroutine touches it, so no locking is needed;
// the namespace it names lives in the process-wide namespace table, which
// is shared across all connections.
type Session struct {
	// EvalNS is the namespace evaluation currently happens in. Updated
	// after every eval/load-file operation, including failed ones.
	EvalNS string

	// One, Two, Three are the last three evaluation results, most recent
	// first (the *1, *2, *3 REPL slots).
	One, Two, Three runtime.Value

	// Err is the last error raised by an evaluation (the *e slot).
	Err error
}

// New returns a session starting in ns.
func New(ns string) *Session {
	return &Session{EvalNS: ns}
}

// Bindings snapshots the history slots for an evaluation.
func (s *Session) Bindings() runtime.Bindings {
	return runtime.Bindings{One: s.One, Two: s.Two, Three: s.Three, Err: s.Err}
}

// PushResult records a successful evaluation result, shifting the history
// register: *1 becomes v, *2 the old *1, *3 the old *2.
func (s *Session) PushResult(v runtime.Value) {
	s.Three = s.Two
	s.Two = s.One
	s.One = v
}

// RecordError stores err in the *e slot.
func (s *Session) RecordError(err error) {
	s.Err = err
}
