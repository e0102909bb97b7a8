// Package interp is the zylisp runtime behind the nREPL server: a small
// interpreter with namespaces, vars, and the reader/eval/resolve surface
// the protocol engine consumes through the runtime.Runtime interface.
package interp

import (
	"sort"
	"strings"
	"sync"

	"github.com/zylisp/nrepl/runtime"
)

const (
	// CoreNS holds the builtin vars and is resolvable from every namespace.
	CoreNS = "zylisp.core"
	// UserNS is where new sessions start evaluating.
	UserNS = "user"

	runtimeName    = "zylisp"
	runtimeVersion = "0.1.0"
)

// specialForms are reserved names handled directly by the evaluator. They
// are not vars and never resolve; lookup and completion report them as a
// distinct kind.
var specialForms = map[string]bool{
	"def":    true,
	"define": true, // scheme-flavored alias kept from the original repl
	"fn":     true,
	"lambda": true,
	"if":     true,
	"do":     true,
	"let":    true,
	"quote":  true,
	"in-ns":  true,
}

// Namespace is one named table of vars.
type Namespace struct {
	Name string
	vars map[string]*runtime.Var
}

// Interp implements runtime.Runtime.
//
// The namespace table is process-wide: every nREPL connection evaluates
// against the same set of namespaces. The mutex guards only the table and
// the var maps inside it; form evaluation itself runs unlocked, so a
// long-running eval on one connection never blocks evals on another. It
// provides no isolation between connections.
type Interp struct {
	mu  sync.Mutex
	nss map[string]*Namespace
}

// New returns an interpreter with the core namespace populated and an empty
// user namespace.
func New() *Interp {
	in := &Interp{nss: make(map[string]*Namespace)}
	core := in.namespace(CoreNS)
	installBuiltins(core)
	installMacros(core)
	in.namespace(UserNS)
	return in
}

func (in *Interp) Name() string      { return runtimeName }
func (in *Interp) Version() string   { return runtimeVersion }
func (in *Interp) DefaultNS() string { return UserNS }

// namespace returns the named namespace, creating it on first use.
func (in *Interp) namespace(name string) *Namespace {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.namespaceLocked(name)
}

func (in *Interp) namespaceLocked(name string) *Namespace {
	ns, ok := in.nss[name]
	if !ok {
		ns = &Namespace{Name: name, vars: make(map[string]*runtime.Var)}
		in.nss[name] = ns
	}
	return ns
}

// intern publishes vr in ns under the table lock.
func (in *Interp) intern(ns *Namespace, name string, vr *runtime.Var) {
	in.mu.Lock()
	ns.vars[name] = vr
	in.mu.Unlock()
}

// NewReader implements runtime.Runtime.
func (in *Interp) NewReader(name, src string) runtime.Reader {
	return NewReader(name, src)
}

// SpecialForm implements runtime.Runtime.
func (in *Interp) SpecialForm(name string) bool {
	return specialForms[name]
}

// Resolve looks name up in ns, falling back to zylisp.core. A "ns/name"
// qualified symbol resolves against its own namespace only.
func (in *Interp) Resolve(nsName, name string) (*runtime.Var, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.resolveLocked(nsName, name)
}

func (in *Interp) resolveLocked(nsName, name string) (*runtime.Var, bool) {
	if i := strings.Index(name, "/"); i > 0 && i < len(name)-1 {
		qualifier, base := name[:i], name[i+1:]
		if ns, ok := in.nss[qualifier]; ok {
			if v, ok := ns.vars[base]; ok {
				return v, true
			}
		}
		return nil, false
	}
	if ns, ok := in.nss[nsName]; ok {
		if v, ok := ns.vars[name]; ok {
			return v, true
		}
	}
	if core, ok := in.nss[CoreNS]; ok {
		if v, ok := core.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Completions enumerates names visible from ns that start with prefix:
// special forms, vars of ns itself, and vars of zylisp.core.
func (in *Interp) Completions(nsName, prefix string) []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for name := range specialForms {
		add(name)
	}
	if ns, ok := in.nss[nsName]; ok {
		for name := range ns.vars {
			add(name)
		}
	}
	if core, ok := in.nss[CoreNS]; ok {
		for name := range core.vars {
			add(name)
		}
	}
	sort.Strings(out)
	return out
}

// FormKind implements runtime.Runtime.
func (in *Interp) FormKind(form runtime.Form) runtime.FormKind {
	switch form.(type) {
	case nil:
		return runtime.FormNil
	case Keyword:
		return runtime.FormKeyword
	case Symbol:
		return runtime.FormSymbol
	default:
		return runtime.FormOther
	}
}

// SymbolText implements runtime.Runtime.
func (in *Interp) SymbolText(form runtime.Form) string {
	switch f := form.(type) {
	case Symbol:
		return string(f)
	case Keyword:
		return string(f)
	default:
		return ""
	}
}

// FormatValue implements runtime.Runtime.
func (in *Interp) FormatValue(v runtime.Value) string {
	return printString(v)
}

// FormatException renders an evaluation or read error for the "ex"
// response field.
func (in *Interp) FormatException(err error) string {
	switch e := err.(type) {
	case *EvalError:
		return "EvalError: " + e.Error()
	case *ReadError:
		return "ReadError: " + e.Error()
	default:
		return err.Error()
	}
}
