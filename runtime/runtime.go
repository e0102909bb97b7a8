// Package runtime defines the boundary between the nREPL protocol engine
// and the language runtime that actually reads, evaluates, and resolves
// zylisp code. The server core only ever talks to this interface; the
// default implementation lives in package interp.
package runtime

import "io"

// Value is an opaque runtime datum. Only the runtime that produced a Value
// knows how to render or apply it.
type Value any

// Form is one parsed top-level form, opaque to the protocol engine.
type Form any

// FormKind is the coarse shape of a parsed form, enough for the symbol
// classification the lookup and complete operations perform.
type FormKind int

const (
	FormOther FormKind = iota
	FormNil
	FormKeyword
	FormSymbol
)

// Reader produces the top-level forms of one source text, in order.
type Reader interface {
	// ReadForm returns the next form, io.EOF once the text is exhausted,
	// or a read error for malformed input.
	ReadForm() (Form, error)
}

// Bindings are the session values made visible to evaluated code.
type Bindings struct {
	One, Two, Three Value // *1 *2 *3, most recent first
	Err             error // *e
}

// EvalOptions configure a single form evaluation.
type EvalOptions struct {
	// NS names the namespace evaluation starts in.
	NS string
	// Out receives anything the evaluated code prints. A nil Out discards
	// output.
	Out io.Writer
	// Bindings seed the *1/*2/*3/*e slots for the duration of the call.
	Bindings Bindings
}

// Var is a resolved runtime variable together with the metadata the lookup
// and completion operations report.
type Var struct {
	Name     string
	NS       string
	Doc      string
	ArgLists []string // printed parameter-list shapes, e.g. "(x y)"
	File     string
	Line     int
	Column   int
	Macro    bool
	Value    Value
}

// Runtime is the evaluator surface consumed by the protocol engine.
type Runtime interface {
	// Name and Version identify the runtime in describe responses.
	Name() string
	Version() string

	// DefaultNS names the namespace new sessions start in.
	DefaultNS() string

	// NewReader returns a reader over src. name labels the source in
	// error positions ("<nrepl>", a file path, ...).
	NewReader(name, src string) Reader

	// Eval evaluates one form and returns its value plus the namespace
	// left active afterwards (in-ns may have moved it). The active
	// namespace is returned even when evaluation fails.
	Eval(form Form, opts EvalOptions) (Value, string, error)

	// Resolve looks name up in ns, consulting the runtime's core
	// namespace as a fallback.
	Resolve(ns, name string) (*Var, bool)

	// SpecialForm reports whether name is a reserved special form.
	// Special forms are not resolvable vars and must be checked first.
	SpecialForm(name string) bool

	// Completions enumerates candidate names in ns with the given prefix.
	Completions(ns, prefix string) []string

	// FormKind classifies a parsed form; SymbolText returns the printed
	// name of a symbol or keyword form.
	FormKind(form Form) FormKind
	SymbolText(form Form) string

	// FormatValue renders a value the way the REPL prints it.
	FormatValue(v Value) string

	// FormatException renders an evaluation error for the "ex" response
	// field, including source position when available.
	FormatException(err error) string
}
