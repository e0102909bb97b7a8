package interp

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zylisp/nrepl/runtime"
)

// evalString reads and evaluates every form of src in ns, returning the
// last value and the active namespace.
func evalString(t *testing.T, in *Interp, ns, src string) (runtime.Value, string) {
	t.Helper()
	r := in.NewReader("<test>", src)
	cur := ns
	var last runtime.Value
	for {
		form, err := r.ReadForm()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		v, activeNS, err := in.Eval(form, runtime.EvalOptions{NS: cur})
		require.NoError(t, err)
		last, cur = v, activeNS
	}
	return last, cur
}

func TestEvalBasics(t *testing.T) {
	in := New()
	tests := []struct {
		input    string
		expected string
	}{
		{"42", "42"},
		{"(+ 1 2)", "3"},
		{"(* 2 3)", "6"},
		{"(- 10 4 1)", "5"},
		{"(/ 6 3)", "2"},
		{"(/ 1 2)", "0.5"},
		{"(+ 1 2.5)", "3.5"},
		{`"hello"`, `"hello"`},
		{"true", "true"},
		{"nil", "nil"},
		{":kw", ":kw"},
		{"(= (list 1 2) (cons 1 (list 2)))", "true"},
		{"(first (rest (list 1 2 3)))", "2"},
		{"(count (list 1 2 3))", "3"},
		{"(if (< 1 2) :yes :no)", ":yes"},
		{"(let ((x 2) (y (* x 3))) (+ x y))", "8"},
		{`(str "a" 1 :b)`, `"a1:b"`},
		{"'(1 2)", "(1 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, _ := evalString(t, in, UserNS, tt.input)
			assert.Equal(t, tt.expected, in.FormatValue(v))
		})
	}
}

func TestEvalDefAndFn(t *testing.T) {
	in := New()

	v, _ := evalString(t, in, UserNS, "(def answer 42)")
	assert.Equal(t, "#'user/answer", in.FormatValue(v))

	v, _ = evalString(t, in, UserNS, "answer")
	assert.Equal(t, "42", in.FormatValue(v))

	evalString(t, in, UserNS, "(def square (fn (x) (* x x)))")
	v, _ = evalString(t, in, UserNS, "(square 7)")
	assert.Equal(t, "49", in.FormatValue(v))

	// scheme-flavored aliases
	evalString(t, in, UserNS, "(define cube (lambda (x) (* x x x)))")
	v, _ = evalString(t, in, UserNS, "(cube 3)")
	assert.Equal(t, "27", in.FormatValue(v))

	// variadic
	evalString(t, in, UserNS, "(def args (fn (x & xs) xs))")
	v, _ = evalString(t, in, UserNS, "(args 1 2 3)")
	assert.Equal(t, "(2 3)", in.FormatValue(v))
}

func TestEvalMacros(t *testing.T) {
	in := New()

	evalString(t, in, UserNS, `(defn double (x) (* 2 x))`)
	v, _ := evalString(t, in, UserNS, "(double 21)")
	assert.Equal(t, "42", in.FormatValue(v))

	vr, ok := in.Resolve(UserNS, "double")
	require.True(t, ok)
	assert.Equal(t, []string{"(x)"}, vr.ArgLists)
	assert.False(t, vr.Macro)

	v, _ = evalString(t, in, UserNS, "(when true 1 2)")
	assert.Equal(t, "2", in.FormatValue(v))
	v, _ = evalString(t, in, UserNS, "(when false 1)")
	assert.Equal(t, "nil", in.FormatValue(v))
}

func TestEvalInNS(t *testing.T) {
	in := New()

	_, ns := evalString(t, in, UserNS, "(in-ns 'scratch)")
	assert.Equal(t, "scratch", ns)

	// defs land in the namespace that was active
	evalString(t, in, "scratch", "(def here 1)")
	_, ok := in.Resolve("scratch", "here")
	assert.True(t, ok)
	_, ok = in.Resolve(UserNS, "here")
	assert.False(t, ok)

	// but qualified resolution reaches across
	v, _ := evalString(t, in, UserNS, "scratch/here")
	assert.Equal(t, "1", in.FormatValue(v))
}

func TestEvalOutput(t *testing.T) {
	in := New()
	r := in.NewReader("<test>", `(println "hello" 42)`)
	form, err := r.ReadForm()
	require.NoError(t, err)

	var out strings.Builder
	_, _, err = in.Eval(form, runtime.EvalOptions{NS: UserNS, Out: &out})
	require.NoError(t, err)
	assert.Equal(t, "hello 42\n", out.String())
}

func TestEvalHistoryBindings(t *testing.T) {
	in := New()
	r := in.NewReader("<test>", "(+ *1 *2)")
	form, err := r.ReadForm()
	require.NoError(t, err)

	v, _, err := in.Eval(form, runtime.EvalOptions{
		NS:       UserNS,
		Bindings: runtime.Bindings{One: int64(10), Two: int64(32)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestEvalErrors(t *testing.T) {
	in := New()
	tests := []struct {
		input   string
		wantMsg string
	}{
		{"(undefined-fn 1)", "unable to resolve symbol"},
		{"(/ 1 0)", "divide by zero"},
		{"(1 2)", "not callable"},
		{`(throw "boom")`, "boom"},
		{"(def)", "def expects"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r := in.NewReader("<test>", tt.input)
			form, err := r.ReadForm()
			require.NoError(t, err)
			_, ns, err := in.Eval(form, runtime.EvalOptions{NS: UserNS})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, UserNS, ns)
		})
	}
}

func TestEvalErrorCarriesPosition(t *testing.T) {
	in := New()
	r := in.NewReader("test.zy", "\n  (/ 1 0)")
	form, err := r.ReadForm()
	require.NoError(t, err)
	_, _, err = in.Eval(form, runtime.EvalOptions{NS: UserNS})
	require.Error(t, err)
	assert.Equal(t, "EvalError: test.zy:2:3: /: divide by zero", in.FormatException(err))
}

// Runaway recursion must come back as an evaluation error, not blow the Go
// stack: a stack overflow would take the whole server process down.
func TestEvalRecursionDepthLimited(t *testing.T) {
	in := New()
	evalString(t, in, UserNS, "(defn spin (x) (spin x))")

	r := in.NewReader("<test>", "(spin 1)")
	form, err := r.ReadForm()
	require.NoError(t, err)
	_, _, err = in.Eval(form, runtime.EvalOptions{NS: UserNS})
	require.Error(t, err)
	assert.IsType(t, &EvalError{}, err)
	assert.Contains(t, err.Error(), "maximum recursion depth exceeded")

	// bounded recursion stays well clear of the limit
	evalString(t, in, UserNS, "(defn countdown (n) (if (<= n 0) :done (countdown (dec n))))")
	v, _ := evalString(t, in, UserNS, "(countdown 100)")
	assert.Equal(t, ":done", in.FormatValue(v))
}

// gateWriter signals when evaluated code first prints, then blocks the
// printing eval until released.
type gateWriter struct {
	printed chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *gateWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.printed) })
	<-w.release
	return len(p), nil
}

// A long-running eval on one connection must not block evals on another:
// the interpreter lock covers namespace-table accesses, not evaluation.
func TestEvalDoesNotSerializeAcrossConnections(t *testing.T) {
	in := New()
	gate := &gateWriter{printed: make(chan struct{}), release: make(chan struct{})}

	slowDone := make(chan error, 1)
	go func() {
		form, err := in.NewReader("<slow>", `(println "held")`).ReadForm()
		if err != nil {
			slowDone <- err
			return
		}
		_, _, err = in.Eval(form, runtime.EvalOptions{NS: UserNS, Out: gate})
		slowDone <- err
	}()
	<-gate.printed

	fastDone := make(chan error, 1)
	go func() {
		form, err := in.NewReader("<fast>", "(def while-blocked 42)").ReadForm()
		if err != nil {
			fastDone <- err
			return
		}
		_, _, err = in.Eval(form, runtime.EvalOptions{NS: UserNS})
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("eval blocked behind another connection's eval")
	}

	close(gate.release)
	require.NoError(t, <-slowDone)

	vr, ok := in.Resolve(UserNS, "while-blocked")
	require.True(t, ok)
	assert.Equal(t, int64(42), vr.Value)
}

func TestReaderErrors(t *testing.T) {
	in := New()
	for _, src := range []string{"(+ 1", ")", `"open`, "'"} {
		t.Run(src, func(t *testing.T) {
			_, err := in.NewReader("<test>", src).ReadForm()
			require.Error(t, err)
			assert.IsType(t, &ReadError{}, err)
		})
	}
}

func TestReaderMultipleFormsAndComments(t *testing.T) {
	in := New()
	r := in.NewReader("<test>", "1 ; one\n2\n; trailing\n")
	v1, err := r.ReadForm()
	require.NoError(t, err)
	v2, err := r.ReadForm()
	require.NoError(t, err)
	_, err = r.ReadForm()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
}

func TestResolveAndSpecialForms(t *testing.T) {
	in := New()

	vr, ok := in.Resolve(UserNS, "+")
	require.True(t, ok)
	assert.Equal(t, CoreNS, vr.NS)
	assert.NotEmpty(t, vr.Doc)
	assert.Equal(t, []string{"(& xs)"}, vr.ArgLists)

	vr, ok = in.Resolve(UserNS, "when")
	require.True(t, ok)
	assert.True(t, vr.Macro)

	_, ok = in.Resolve(UserNS, "no-such-var")
	assert.False(t, ok)

	assert.True(t, in.SpecialForm("def"))
	assert.True(t, in.SpecialForm("in-ns"))
	assert.False(t, in.SpecialForm("+"))
}

func TestCompletions(t *testing.T) {
	in := New()
	evalString(t, in, UserNS, "(def prefixed-thing 1)")

	names := in.Completions(UserNS, "pr")
	assert.Contains(t, names, "print")
	assert.Contains(t, names, "println")
	assert.Contains(t, names, "prn")
	assert.Contains(t, names, "prefixed-thing")
	assert.IsIncreasing(t, names)

	assert.Contains(t, in.Completions(UserNS, "de"), "def")
	assert.Empty(t, in.Completions(UserNS, "zzz"))
}

func TestVarMetadataFromDef(t *testing.T) {
	in := New()
	r := in.NewReader("/tmp/example.zy", `(def greet "Says hello." (fn (name) (str "hi " name)))`)
	form, err := r.ReadForm()
	require.NoError(t, err)
	_, _, err = in.Eval(form, runtime.EvalOptions{NS: UserNS})
	require.NoError(t, err)

	vr, ok := in.Resolve(UserNS, "greet")
	require.True(t, ok)
	assert.Equal(t, "Says hello.", vr.Doc)
	assert.Equal(t, "/tmp/example.zy", vr.File)
	assert.Equal(t, 1, vr.Line)
	assert.Equal(t, []string{"(name)"}, vr.ArgLists)
}

func TestFormKindAndSymbolText(t *testing.T) {
	in := New()
	read := func(src string) runtime.Form {
		f, err := in.NewReader("<test>", src).ReadForm()
		require.NoError(t, err)
		return f
	}
	assert.Equal(t, runtime.FormNil, in.FormKind(read("nil")))
	assert.Equal(t, runtime.FormKeyword, in.FormKind(read(":kw")))
	assert.Equal(t, runtime.FormSymbol, in.FormKind(read("sym")))
	assert.Equal(t, runtime.FormOther, in.FormKind(read("(1)")))
	assert.Equal(t, runtime.FormOther, in.FormKind(read("42")))

	assert.Equal(t, "sym", in.SymbolText(read("sym")))
	assert.Equal(t, ":kw", in.SymbolText(read(":kw")))
}
