package interp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zylisp/nrepl/runtime"
)

func defBuiltin(ns *Namespace, name, arglist, doc string, apply func(e *evalCtx, args []Value) (Value, error)) {
	ns.vars[name] = &runtime.Var{
		Name:     name,
		NS:       ns.Name,
		Doc:      doc,
		ArgLists: []string{arglist},
		Value:    &builtin{Name: name, Apply: apply},
	}
}

func defMacro(ns *Namespace, name, arglist, doc string, expand func(node *List, args []Value) (Value, error)) {
	ns.vars[name] = &runtime.Var{
		Name:     name,
		NS:       ns.Name,
		Doc:      doc,
		ArgLists: []string{arglist},
		Macro:    true,
		Value:    &macro{Name: name, Expand: expand},
	}
}

func installBuiltins(core *Namespace) {
	defBuiltin(core, "+", "(& xs)", "Returns the sum of xs; (+) is 0.",
		func(e *evalCtx, args []Value) (Value, error) {
			return reduceNumeric(args, 0, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
		})
	defBuiltin(core, "-", "(x & xs)", "Subtracts xs from x; with one argument, negates it.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, errors.New("expects at least 1 argument")
			}
			if len(args) == 1 {
				return reduceNumeric([]Value{int64(0), args[0]}, 0, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
			}
			return reduceNumericFrom(args, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
		})
	defBuiltin(core, "*", "(& xs)", "Returns the product of xs; (*) is 1.",
		func(e *evalCtx, args []Value) (Value, error) {
			return reduceNumeric(args, 1, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
		})
	defBuiltin(core, "/", "(x & xs)", "Divides x by xs. Integer division falls back to float when inexact.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, errors.New("expects at least 1 argument")
			}
			acc := args[0]
			for _, a := range args[1:] {
				var err error
				if acc, err = divide(acc, a); err != nil {
					return nil, err
				}
			}
			return acc, nil
		})
	defBuiltin(core, "=", "(x y)", "Structural equality.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("expects 2 arguments, got %d", len(args))
			}
			return valueEqual(args[0], args[1]), nil
		})
	defBuiltin(core, "<", "(x y)", "Numeric less-than.", compareBuiltin(func(a, b float64) bool { return a < b }))
	defBuiltin(core, ">", "(x y)", "Numeric greater-than.", compareBuiltin(func(a, b float64) bool { return a > b }))
	defBuiltin(core, "<=", "(x y)", "Numeric less-than-or-equal.", compareBuiltin(func(a, b float64) bool { return a <= b }))
	defBuiltin(core, ">=", "(x y)", "Numeric greater-than-or-equal.", compareBuiltin(func(a, b float64) bool { return a >= b }))
	defBuiltin(core, "inc", "(x)", "Returns x plus one.",
		func(e *evalCtx, args []Value) (Value, error) {
			return reduceNumeric(append([]Value{int64(1)}, args...), 0, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
		})
	defBuiltin(core, "dec", "(x)", "Returns x minus one.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
			}
			return reduceNumericFrom([]Value{args[0], int64(1)}, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
		})
	defBuiltin(core, "not", "(x)", "Returns true when x is logically false.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
			}
			return !truthy(args[0]), nil
		})
	defBuiltin(core, "list", "(& xs)", "Returns a list of xs.",
		func(e *evalCtx, args []Value) (Value, error) {
			return &List{Items: append([]Value(nil), args...)}, nil
		})
	defBuiltin(core, "cons", "(x coll)", "Prepends x to coll.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("expects 2 arguments, got %d", len(args))
			}
			coll, err := asList(args[1])
			if err != nil {
				return nil, err
			}
			items := append([]Value{args[0]}, coll.Items...)
			return &List{Items: items}, nil
		})
	defBuiltin(core, "first", "(coll)", "Returns the first element of coll, nil when empty.",
		func(e *evalCtx, args []Value) (Value, error) {
			coll, err := oneList(args)
			if err != nil {
				return nil, err
			}
			if len(coll.Items) == 0 {
				return nil, nil
			}
			return coll.Items[0], nil
		})
	defBuiltin(core, "rest", "(coll)", "Returns coll without its first element.",
		func(e *evalCtx, args []Value) (Value, error) {
			coll, err := oneList(args)
			if err != nil {
				return nil, err
			}
			if len(coll.Items) == 0 {
				return &List{}, nil
			}
			return &List{Items: append([]Value(nil), coll.Items[1:]...)}, nil
		})
	defBuiltin(core, "count", "(coll)", "Returns the number of elements in coll; nil counts as 0.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
			}
			switch c := args[0].(type) {
			case nil:
				return int64(0), nil
			case *List:
				return int64(len(c.Items)), nil
			case string:
				return int64(len(c)), nil
			default:
				return nil, fmt.Errorf("not countable: %s", printString(args[0]))
			}
		})
	defBuiltin(core, "nil?", "(x)", "Returns true when x is nil.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
			}
			return args[0] == nil, nil
		})
	defBuiltin(core, "str", "(& xs)", "Concatenates the display form of xs.",
		func(e *evalCtx, args []Value) (Value, error) {
			var sb strings.Builder
			for _, a := range args {
				if a != nil {
					sb.WriteString(displayString(a))
				}
			}
			return sb.String(), nil
		})
	defBuiltin(core, "print", "(& xs)", "Prints xs separated by spaces, without a newline.",
		func(e *evalCtx, args []Value) (Value, error) {
			return nil, writeJoined(e, args, false)
		})
	defBuiltin(core, "println", "(& xs)", "Prints xs separated by spaces, followed by a newline.",
		func(e *evalCtx, args []Value) (Value, error) {
			return nil, writeJoined(e, args, true)
		})
	defBuiltin(core, "prn", "(& xs)", "Prints the readable form of xs, followed by a newline.",
		func(e *evalCtx, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = printString(a)
			}
			_, err := fmt.Fprintln(e.out, strings.Join(parts, " "))
			return nil, err
		})
	defBuiltin(core, "throw", "(msg)", "Raises an evaluation error carrying msg.",
		func(e *evalCtx, args []Value) (Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
			}
			return nil, errors.New(displayString(args[0]))
		})
}

func installMacros(core *Namespace) {
	defMacro(core, "defn", "(name (params) & body)", "Defines a named function: expands to (def name (fn name (params) body)).",
		func(node *List, args []Value) (Value, error) {
			if len(args) < 2 {
				return nil, errAt(node, "defn expects a name and a parameter list")
			}
			name, ok := args[0].(Symbol)
			if !ok {
				return nil, errAt(node, "defn expects a symbol name, got %s", printString(args[0]))
			}
			fnForm := &List{File: node.File, Line: node.Line, Col: node.Col,
				Items: append([]Value{Symbol("fn"), name}, args[1:]...)}
			return &List{File: node.File, Line: node.Line, Col: node.Col,
				Items: []Value{Symbol("def"), name, fnForm}}, nil
		})
	defMacro(core, "when", "(test & body)", "Evaluates body when test is truthy: expands to (if test (do body) nil).",
		func(node *List, args []Value) (Value, error) {
			if len(args) < 1 {
				return nil, errAt(node, "when expects a test form")
			}
			body := &List{File: node.File, Line: node.Line, Col: node.Col,
				Items: append([]Value{Symbol("do")}, args[1:]...)}
			return &List{File: node.File, Line: node.Line, Col: node.Col,
				Items: []Value{Symbol("if"), args[0], body, nil}}, nil
		})
}

func writeJoined(e *evalCtx, args []Value, newline bool) error {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = displayString(a)
	}
	var err error
	if newline {
		_, err = fmt.Fprintln(e.out, strings.Join(parts, " "))
	} else {
		_, err = fmt.Fprint(e.out, strings.Join(parts, " "))
	}
	return err
}

func oneList(args []Value) (*List, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
	}
	return asList(args[0])
}

func asList(v Value) (*List, error) {
	switch c := v.(type) {
	case nil:
		return &List{}, nil
	case *List:
		return c, nil
	default:
		return nil, fmt.Errorf("not a list: %s", printString(v))
	}
}

func asFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compareBuiltin(cmp func(a, b float64) bool) func(e *evalCtx, args []Value) (Value, error) {
	return func(e *evalCtx, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expects 2 arguments, got %d", len(args))
		}
		a, ok := asFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("not a number: %s", printString(args[0]))
		}
		b, ok := asFloat(args[1])
		if !ok {
			return nil, fmt.Errorf("not a number: %s", printString(args[1]))
		}
		return cmp(a, b), nil
	}
}

// reduceNumeric folds args starting from the identity element. Integer
// arithmetic stays integral until a float enters the fold.
func reduceNumeric(args []Value, identity int64, fi func(a, b int64) int64, ff func(a, b float64) float64) (Value, error) {
	if len(args) == 0 {
		return identity, nil
	}
	return reduceNumericFrom(append([]Value{identity}, args...), fi, ff)
}

func reduceNumericFrom(args []Value, fi func(a, b int64) int64, ff func(a, b float64) float64) (Value, error) {
	acc := args[0]
	for _, a := range args[1:] {
		ai, aIsInt := acc.(int64)
		bi, bIsInt := a.(int64)
		if aIsInt && bIsInt {
			acc = fi(ai, bi)
			continue
		}
		af, ok := asFloat(acc)
		if !ok {
			return nil, fmt.Errorf("not a number: %s", printString(acc))
		}
		bf, ok := asFloat(a)
		if !ok {
			return nil, fmt.Errorf("not a number: %s", printString(a))
		}
		acc = ff(af, bf)
	}
	return acc, nil
}

func divide(a, b Value) (Value, error) {
	if bi, ok := b.(int64); ok && bi == 0 {
		return nil, errors.New("divide by zero")
	}
	if ai, aOK := a.(int64); aOK {
		if bi, bOK := b.(int64); bOK {
			if ai%bi == 0 {
				return ai / bi, nil
			}
			return float64(ai) / float64(bi), nil
		}
	}
	af, ok := asFloat(a)
	if !ok {
		return nil, fmt.Errorf("not a number: %s", printString(a))
	}
	bf, ok := asFloat(b)
	if !ok {
		return nil, fmt.Errorf("not a number: %s", printString(b))
	}
	if bf == 0 {
		return nil, errors.New("divide by zero")
	}
	return af / bf, nil
}

func valueEqual(a, b Value) bool {
	la, aOK := a.(*List)
	lb, bOK := b.(*List)
	if aOK || bOK {
		if !aOK || !bOK || len(la.Items) != len(lb.Items) {
			return false
		}
		for i := range la.Items {
			if !valueEqual(la.Items[i], lb.Items[i]) {
				return false
			}
		}
		return true
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}
