package operations

import (
	"io"

	"github.com/zylisp/nrepl/runtime"
)

// Kind is the closed classification set for a symbol's textual form.
type Kind int

const (
	// KindError: the text did not parse, or resolution itself failed.
	KindError Kind = iota
	// KindNil: the text parsed to nothing, or to the nil literal.
	KindNil
	// KindKeyword: a keyword literal.
	KindKeyword
	// KindSpecialForm: a reserved special form name.
	KindSpecialForm
	// KindVar: a symbol resolving to a var.
	KindVar
	// KindOther: a form that is none of the above (numbers, lists, or a
	// symbol naming nothing).
	KindOther
)

// Classification is the outcome of classifying one symbol text.
type Classification struct {
	Kind Kind
	Var  *runtime.Var // set when Kind is KindVar
	Err  error        // set when Kind is KindError
}

// Classify parses text with the runtime's reader against ns and classifies
// the result. Special form names are checked before resolution is
// attempted: they are not resolvable vars and must not be reported as
// errors.
func Classify(rt runtime.Runtime, ns, text string) Classification {
	form, err := rt.NewReader("<resolve>", text).ReadForm()
	if err == io.EOF {
		return Classification{Kind: KindNil}
	}
	if err != nil {
		return Classification{Kind: KindError, Err: err}
	}
	switch rt.FormKind(form) {
	case runtime.FormNil:
		return Classification{Kind: KindNil}
	case runtime.FormKeyword:
		return Classification{Kind: KindKeyword}
	case runtime.FormSymbol:
		name := rt.SymbolText(form)
		if rt.SpecialForm(name) {
			return Classification{Kind: KindSpecialForm}
		}
		if v, ok := rt.Resolve(ns, name); ok {
			return Classification{Kind: KindVar, Var: v}
		}
		return Classification{Kind: KindOther}
	default:
		return Classification{Kind: KindOther}
	}
}

// tag names a classification for completion and lookup responses. Vars
// subdivide by their metadata: macros keep their flag, anything carrying
// arglists is callable.
func (c Classification) tag() string {
	switch c.Kind {
	case KindKeyword:
		return "keyword"
	case KindSpecialForm:
		return "special-form"
	case KindVar:
		switch {
		case c.Var.Macro:
			return "macro"
		case len(c.Var.ArgLists) > 0:
			return "function"
		default:
			return "var"
		}
	default:
		return "var"
	}
}
