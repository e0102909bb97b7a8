package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zylisp/nrepl/runtime"
)

// Value aliases the runtime-level value type. Within the interpreter a
// Value is one of: nil, bool, int64, float64, string, Symbol, Keyword,
// *List, *Fn, *builtin, *macro, or *runtime.Var (the result of def).
type Value = runtime.Value

// Symbol is an identifier, possibly namespace-qualified ("ns/name").
type Symbol string

// Keyword is a self-evaluating ":name" literal.
type Keyword string

// List is a parenthesized form. Lists built by the reader carry the source
// position of their opening paren for error reporting and var metadata.
type List struct {
	Items []Value
	File  string
	Line  int
	Col   int
}

// Fn is a user-defined function closing over its defining scope.
type Fn struct {
	Name     string
	Params   []Symbol
	Variadic bool // last param collects the rest, marked by & in the list
	Body     []Value
	Env      *scope
}

// builtin is a function implemented in Go. Apply receives the evaluation
// context so printing builtins can reach the redirected output stream.
type builtin struct {
	Name  string
	Apply func(e *evalCtx, args []Value) (Value, error)
}

// macro rewrites its unevaluated argument forms into a new form.
type macro struct {
	Name   string
	Expand func(node *List, args []Value) (Value, error)
}

type scope struct {
	vars   map[Symbol]Value
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[Symbol]Value), parent: parent}
}

func (s *scope) lookup(sym Symbol) (Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[sym]; ok {
			return v, true
		}
	}
	return nil, false
}

// printString renders v the way the REPL echoes results: strings quoted,
// everything else in its literal form.
func printString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case Symbol:
		return string(x)
	case Keyword:
		return string(x)
	case *List:
		parts := make([]string, len(x.Items))
		for i, item := range x.Items {
			parts[i] = printString(item)
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *Fn:
		if x.Name != "" {
			return "#<fn " + x.Name + ">"
		}
		return "#<fn>"
	case *builtin:
		return "#<builtin " + x.Name + ">"
	case *macro:
		return "#<macro " + x.Name + ">"
	case *runtime.Var:
		return "#'" + x.NS + "/" + x.Name
	case error:
		return "#<error " + x.Error() + ">"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// displayString is printString minus string quoting, used by print/println
// and str.
func displayString(v Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return printString(v)
}
