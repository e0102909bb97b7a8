package interp

import (
	"fmt"
	"io"

	"github.com/zylisp/nrepl/runtime"
)

// EvalError is raised when evaluation of a form fails. Position fields are
// zero when the failing form carried no source position.
type EvalError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
	}
	return e.Msg
}

func errAt(node *List, format string, args ...any) *EvalError {
	err := &EvalError{Msg: fmt.Sprintf(format, args...)}
	if node != nil {
		err.File, err.Line, err.Col = node.File, node.Line, node.Col
	}
	return err
}

// maxEvalDepth bounds nested evaluation. Runaway recursion in evaluated
// code must surface as a catchable evaluation error before the Go stack
// gives out; a Go stack overflow is fatal to the whole process.
const maxEvalDepth = 10000

// evalCtx is the state of one Eval call: the active namespace (in-ns moves
// it), the stream evaluated code prints to, and the nesting depth.
type evalCtx struct {
	in    *Interp
	ns    *Namespace
	out   io.Writer
	depth int
}

// Eval implements runtime.Runtime. It evaluates one form under opts and
// returns the result plus the namespace left active, which the caller
// stores back into the session even on error. Evaluation takes the
// interpreter lock only around namespace-table accesses, so concurrent
// Eval calls from different connections proceed in parallel.
func (in *Interp) Eval(form runtime.Form, opts runtime.EvalOptions) (runtime.Value, string, error) {
	nsName := opts.NS
	if nsName == "" {
		nsName = UserNS
	}
	e := &evalCtx{in: in, ns: in.namespace(nsName)}
	e.out = opts.Out
	if e.out == nil {
		e.out = io.Discard
	}

	root := newScope(nil)
	root.vars["*1"] = opts.Bindings.One
	root.vars["*2"] = opts.Bindings.Two
	root.vars["*3"] = opts.Bindings.Three
	root.vars["*e"] = opts.Bindings.Err

	v, err := e.eval(form, root)
	return v, e.ns.Name, err
}

func (e *evalCtx) eval(form Value, sc *scope) (Value, error) {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxEvalDepth {
		node, _ := form.(*List)
		return nil, errAt(node, "maximum recursion depth exceeded")
	}
	switch f := form.(type) {
	case Symbol:
		if v, ok := sc.lookup(f); ok {
			return v, nil
		}
		if v, ok := e.in.Resolve(e.ns.Name, string(f)); ok {
			return v.Value, nil
		}
		return nil, &EvalError{Msg: fmt.Sprintf("unable to resolve symbol: %s in this context", f)}
	case *List:
		return e.evalList(f, sc)
	default:
		// Keywords, numbers, strings, booleans, and nil self-evaluate.
		return form, nil
	}
}

func (e *evalCtx) evalList(node *List, sc *scope) (Value, error) {
	if len(node.Items) == 0 {
		return node, nil
	}
	if head, ok := node.Items[0].(Symbol); ok {
		switch head {
		case "def", "define":
			return e.evalDef(node, sc)
		case "fn", "lambda":
			return e.evalFn(node, sc)
		case "if":
			return e.evalIf(node, sc)
		case "do":
			return e.evalBody(node.Items[1:], sc)
		case "let":
			return e.evalLet(node, sc)
		case "quote":
			if len(node.Items) != 2 {
				return nil, errAt(node, "quote expects one form")
			}
			return node.Items[1], nil
		case "in-ns":
			return e.evalInNS(node, sc)
		}
		// Macro call: expand against the unevaluated argument forms, then
		// evaluate the expansion.
		if _, bound := sc.lookup(head); !bound {
			if v, ok := e.in.Resolve(e.ns.Name, string(head)); ok && v.Macro {
				m, ok := v.Value.(*macro)
				if !ok {
					return nil, errAt(node, "var %s is marked as a macro but is not expandable", head)
				}
				expanded, err := m.Expand(node, node.Items[1:])
				if err != nil {
					return nil, err
				}
				return e.eval(expanded, sc)
			}
		}
	}

	op, err := e.eval(node.Items[0], sc)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(node.Items)-1)
	for i, item := range node.Items[1:] {
		if args[i], err = e.eval(item, sc); err != nil {
			return nil, err
		}
	}
	return e.apply(node, op, args)
}

func (e *evalCtx) apply(node *List, op Value, args []Value) (Value, error) {
	switch fn := op.(type) {
	case *builtin:
		v, err := fn.Apply(e, args)
		if err != nil {
			if _, ok := err.(*EvalError); !ok {
				err = errAt(node, "%s: %s", fn.Name, err)
			}
			return nil, err
		}
		return v, nil
	case *Fn:
		return e.applyFn(node, fn, args)
	default:
		return nil, errAt(node, "%s is not callable", printString(op))
	}
}

func (e *evalCtx) applyFn(node *List, fn *Fn, args []Value) (Value, error) {
	sc := newScope(fn.Env)
	fixed := len(fn.Params)
	if fn.Variadic {
		fixed--
		if len(args) < fixed {
			return nil, errAt(node, "%s expects at least %d arguments, got %d", fnName(fn), fixed, len(args))
		}
		rest := &List{Items: append([]Value(nil), args[fixed:]...)}
		sc.vars[fn.Params[fixed]] = rest
	} else if len(args) != fixed {
		return nil, errAt(node, "%s expects %d arguments, got %d", fnName(fn), fixed, len(args))
	}
	for i := 0; i < fixed; i++ {
		sc.vars[fn.Params[i]] = args[i]
	}
	return e.evalBody(fn.Body, sc)
}

func fnName(fn *Fn) string {
	if fn.Name != "" {
		return fn.Name
	}
	return "fn"
}

func (e *evalCtx) evalBody(body []Value, sc *scope) (Value, error) {
	var result Value
	var err error
	for _, form := range body {
		if result, err = e.eval(form, sc); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// evalDef handles (def name expr) and (def name "doc" expr). The var is
// interned in the active namespace with the source position of the def
// form; functions contribute their parameter list to the var's arglists.
func (e *evalCtx) evalDef(node *List, sc *scope) (Value, error) {
	items := node.Items
	if len(items) < 3 || len(items) > 4 {
		return nil, errAt(node, "def expects (def name expr) or (def name \"doc\" expr)")
	}
	name, ok := items[1].(Symbol)
	if !ok {
		return nil, errAt(node, "def expects a symbol name, got %s", printString(items[1]))
	}
	doc := ""
	expr := items[2]
	if len(items) == 4 {
		doc, ok = items[2].(string)
		if !ok {
			return nil, errAt(node, "def docstring must be a string")
		}
		expr = items[3]
	}
	v, err := e.eval(expr, sc)
	if err != nil {
		return nil, err
	}
	vr := &runtime.Var{
		Name:   string(name),
		NS:     e.ns.Name,
		Doc:    doc,
		File:   node.File,
		Line:   node.Line,
		Column: node.Col,
		Value:  v,
	}
	if fn, ok := v.(*Fn); ok {
		if fn.Name == "" {
			fn.Name = string(name)
		}
		vr.ArgLists = []string{paramListString(fn)}
	}
	e.in.intern(e.ns, string(name), vr)
	return vr, nil
}

func paramListString(fn *Fn) string {
	s := "("
	for i, p := range fn.Params {
		if i > 0 {
			s += " "
		}
		if fn.Variadic && i == len(fn.Params)-1 {
			s += "& "
		}
		s += string(p)
	}
	return s + ")"
}

// evalFn handles (fn (params) body...) and (fn name (params) body...).
func (e *evalCtx) evalFn(node *List, sc *scope) (Value, error) {
	items := node.Items[1:]
	name := ""
	if len(items) > 0 {
		if sym, ok := items[0].(Symbol); ok {
			name = string(sym)
			items = items[1:]
		}
	}
	if len(items) == 0 {
		return nil, errAt(node, "fn expects a parameter list")
	}
	plist, ok := items[0].(*List)
	if !ok {
		return nil, errAt(node, "fn parameter list must be a list, got %s", printString(items[0]))
	}
	fn := &Fn{Name: name, Body: items[1:], Env: sc}
	for i, p := range plist.Items {
		sym, ok := p.(Symbol)
		if !ok {
			return nil, errAt(node, "fn parameters must be symbols, got %s", printString(p))
		}
		if sym == "&" {
			if i != len(plist.Items)-2 {
				return nil, errAt(node, "& must precede exactly one rest parameter")
			}
			fn.Variadic = true
			continue
		}
		fn.Params = append(fn.Params, sym)
	}
	return fn, nil
}

func (e *evalCtx) evalIf(node *List, sc *scope) (Value, error) {
	items := node.Items
	if len(items) < 3 || len(items) > 4 {
		return nil, errAt(node, "if expects (if test then else?)")
	}
	cond, err := e.eval(items[1], sc)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return e.eval(items[2], sc)
	}
	if len(items) == 4 {
		return e.eval(items[3], sc)
	}
	return nil, nil
}

// evalLet handles (let ((name expr)...) body...).
func (e *evalCtx) evalLet(node *List, sc *scope) (Value, error) {
	items := node.Items
	if len(items) < 2 {
		return nil, errAt(node, "let expects a binding list")
	}
	blist, ok := items[1].(*List)
	if !ok {
		return nil, errAt(node, "let bindings must be a list of (name expr) pairs")
	}
	inner := newScope(sc)
	for _, b := range blist.Items {
		pair, ok := b.(*List)
		if !ok || len(pair.Items) != 2 {
			return nil, errAt(node, "let binding must be a (name expr) pair, got %s", printString(b))
		}
		sym, ok := pair.Items[0].(Symbol)
		if !ok {
			return nil, errAt(node, "let binding name must be a symbol, got %s", printString(pair.Items[0]))
		}
		v, err := e.eval(pair.Items[1], inner)
		if err != nil {
			return nil, err
		}
		inner.vars[sym] = v
	}
	return e.evalBody(items[2:], inner)
}

// evalInNS switches the active namespace, creating it on first use, and
// evaluates to its name. The new namespace stays active after this Eval
// call returns; the session records it.
func (e *evalCtx) evalInNS(node *List, sc *scope) (Value, error) {
	if len(node.Items) != 2 {
		return nil, errAt(node, "in-ns expects a namespace name")
	}
	v, err := e.eval(node.Items[1], sc)
	if err != nil {
		return nil, err
	}
	var name string
	switch n := v.(type) {
	case Symbol:
		name = string(n)
	case string:
		name = n
	default:
		return nil, errAt(node, "in-ns expects a symbol or string, got %s", printString(v))
	}
	e.ns = e.in.namespace(name)
	return Symbol(name), nil
}

func truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	default:
		return true
	}
}
