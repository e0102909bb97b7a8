package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/zylisp/nrepl/interp"
	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/session"
)

type harness struct {
	ops     *Ops
	handler Handler
	sess    *session.Session
	sent    []protocol.Message
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rt := interp.New()
	ops := New(rt, "0.0.0-test")
	return &harness{
		ops:     ops,
		handler: Chain(ops, pslog.NoopLogger()),
		sess:    session.New(rt.DefaultNS()),
	}
}

func (h *harness) handle(req protocol.Message) []protocol.Message {
	h.sent = nil
	h.handler(req, h.sess, func(resp protocol.Message) {
		h.sent = append(h.sent, resp)
	})
	return h.sent
}

func (h *harness) last() protocol.Message {
	return h.sent[len(h.sent)-1]
}

func TestEvalSuccess(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": "(+ 1 2)", "id": "1"})

	require.Len(t, resps, 2)
	assert.Equal(t, "3", resps[0].GetString("value"))
	assert.Equal(t, "user", resps[0].GetString("ns"))
	assert.Equal(t, []string{"done"}, resps[1].Status())
	assert.Equal(t, "user", resps[1].GetString("ns"))

	assert.Equal(t, int64(3), h.sess.One)
}

func TestEvalHistoryRegister(t *testing.T) {
	h := newHarness(t)
	for _, code := range []string{"1", "2", "3", "4"} {
		h.handle(protocol.Message{"op": "eval", "code": code})
	}
	assert.Equal(t, int64(4), h.sess.One)
	assert.Equal(t, int64(3), h.sess.Two)
	assert.Equal(t, int64(2), h.sess.Three)

	// evaluated code sees the slots
	resps := h.handle(protocol.Message{"op": "eval", "code": "(+ *1 *2 *3)"})
	assert.Equal(t, "9", resps[0].GetString("value"))
}

func TestEvalMultipleFormsKeepsLastResult(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": "(def x 2) (* x 21)"})
	require.Len(t, resps, 2)
	assert.Equal(t, "42", resps[0].GetString("value"))
	assert.Equal(t, int64(42), h.sess.One)
}

func TestEvalStreamsOutput(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": `(println "hello") :ok`})
	require.Len(t, resps, 3)
	assert.Equal(t, "hello\n", resps[0].GetString("out"))
	assert.Equal(t, ":ok", resps[1].GetString("value"))
	assert.True(t, resps[2].HasStatus("done"))
}

func TestEvalEmptyCode(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": ""})
	require.Len(t, resps, 1)
	assert.True(t, resps[0].HasStatus("done"))
	assert.Nil(t, h.sess.One)
}

func TestEvalError(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": "(/ 1 0)", "id": "9"})

	require.Len(t, resps, 3)
	assert.NotEmpty(t, resps[0].GetString("err"))
	assert.NotEmpty(t, resps[1].GetString("ex"))
	assert.True(t, resps[1].HasStatus("eval-error"))
	assert.True(t, resps[2].HasStatus("done"))
	require.Error(t, h.sess.Err)

	// the session is not poisoned: later evals still work
	resps = h.handle(protocol.Message{"op": "eval", "code": "(+ 1 2)"})
	assert.Equal(t, "3", resps[0].GetString("value"))

	// and *e holds the error
	resps = h.handle(protocol.Message{"op": "eval", "code": "(nil? *e)"})
	assert.Equal(t, "false", resps[0].GetString("value"))
}

// Client code recursing without bound answers with an eval-error like any
// other evaluation failure; it must never take the server down.
func TestEvalRunawayRecursion(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": "(defn spin (x) (spin x)) (spin 1)"})

	require.Len(t, resps, 3)
	assert.Contains(t, resps[0].GetString("err"), "maximum recursion depth exceeded")
	assert.True(t, resps[1].HasStatus("eval-error"))
	assert.True(t, resps[2].HasStatus("done"))

	// the session keeps working afterwards
	resps = h.handle(protocol.Message{"op": "eval", "code": "(+ 1 1)"})
	assert.Equal(t, "2", resps[0].GetString("value"))
}

func TestEvalMovesNamespace(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "eval", "code": "(in-ns 'scratch)"})
	assert.Equal(t, "scratch", h.last().GetString("ns"))
	assert.Equal(t, "scratch", h.sess.EvalNS)
	require.Len(t, resps, 2)

	// explicit ns in the request wins over the session's
	resps = h.handle(protocol.Message{"op": "eval", "code": "(def y 1)", "ns": "elsewhere"})
	assert.Equal(t, "elsewhere", resps[0].GetString("ns"))
	assert.Equal(t, "elsewhere", h.sess.EvalNS)
}

// The namespace still follows evaluation on the error path.
func TestEvalErrorStillUpdatesNamespace(t *testing.T) {
	h := newHarness(t)
	h.handle(protocol.Message{"op": "eval", "code": "(in-ns 'moved) (/ 1 0)"})
	assert.Equal(t, "moved", h.sess.EvalNS)
	assert.True(t, h.last().HasStatus("done"))
}

func TestLoadFile(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{
		"op":        "load-file",
		"file":      "(defn loaded (x) (inc x)) (loaded 41)",
		"file-path": "/src/loaded.zy",
	})
	assert.Equal(t, "42", resps[0].GetString("value"))

	// the file path labels the defined var's source location
	resps = h.handle(protocol.Message{"op": "info", "sym": "loaded"})
	assert.Equal(t, "file:/src/loaded.zy", resps[0].GetString("file"))
}

func TestUnknownOp(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "frobnicate", "id": "7"})

	require.Len(t, resps, 1)
	assert.Equal(t, []string{"error", "unknown-op", "done"}, resps[0].Status())
	// nothing but status and the middleware-attached id
	assert.Equal(t, protocol.Message{
		"status": []string{"error", "unknown-op", "done"},
		"id":     "7",
	}, resps[0])
}

func TestDescribe(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "describe"})

	require.Len(t, resps, 1)
	resp := resps[0]
	assert.True(t, resp.HasStatus("done"))

	versions, ok := resp["versions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0.0.0-test", versions["nrepl"])
	assert.Contains(t, versions, "zylisp")

	ops, ok := resp["ops"].(map[string]any)
	require.True(t, ok)
	for _, name := range h.ops.Names() {
		assert.Contains(t, ops, name)
	}
	// deliberately unsupported operations are not advertised
	assert.NotContains(t, ops, "macroexpand")
	assert.NotContains(t, ops, "classpath")
}

func TestClone(t *testing.T) {
	h := newHarness(t)
	h.handle(protocol.Message{"op": "eval", "code": "7"})

	first := h.handle(protocol.Message{"op": "clone"})
	require.Len(t, first, 1)
	assert.True(t, first[0].HasStatus("done"))
	id1 := first[0].GetString("new-session")
	assert.NotEmpty(t, id1)

	second := h.handle(protocol.Message{"op": "clone"})
	assert.NotEqual(t, id1, second[0].GetString("new-session"))

	// clone never touches existing history
	assert.Equal(t, int64(7), h.sess.One)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	resps := h.handle(protocol.Message{"op": "close", "session": "s-1"})
	require.Len(t, resps, 1)
	assert.Equal(t, []string{"done"}, resps[0].Status())
	assert.Equal(t, "s-1", resps[0].Session())
}
