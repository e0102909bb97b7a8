package operations

import (
	"io"

	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/runtime"
	"github.com/zylisp/nrepl/session"
)

// evalSourceName labels code submitted through the eval operation.
const evalSourceName = "<nrepl>"

// loadFileSourceName labels load-file payloads that arrive without a path.
const loadFileSourceName = "<load-file>"

func (o *Ops) opEval(req protocol.Message, sess *session.Session, send SendFunc) {
	o.evalCode(req, sess, send, req.GetString("code"), evalSourceName)
}

// opLoadFile evaluates the request's file payload with the provided path as
// source label, sharing eval's semantics otherwise.
func (o *Ops) opLoadFile(req protocol.Message, sess *session.Session, send SendFunc) {
	source := req.GetString("file-path")
	if source == "" {
		source = loadFileSourceName
	}
	o.evalCode(req, sess, send, req.GetString("file"), source)
}

// evalCode reads every top-level form of code and evaluates it, keeping the
// last result. Output printed during evaluation streams back as "out"
// messages. The deferred epilogue runs on every exit path: the session's
// namespace follows wherever evaluation moved it, and the final response
// carries a "done" status.
func (o *Ops) evalCode(req protocol.Message, sess *session.Session, send SendFunc, code, source string) {
	ns := req.GetString("ns")
	if ns == "" {
		ns = sess.EvalNS
	}
	cur := ns
	defer func() {
		sess.EvalNS = cur
		send(protocol.Message{"ns": cur, "status": []string{"done"}})
	}()

	reader := o.rt.NewReader(source, code)
	out := &outForwarder{send: send}
	bindings := sess.Bindings()

	var value runtime.Value
	evaluated := false
	for {
		form, err := reader.ReadForm()
		if err == io.EOF {
			break
		}
		if err != nil {
			o.sendEvalError(sess, send, err, cur)
			return
		}
		v, activeNS, err := o.rt.Eval(form, runtime.EvalOptions{
			NS:       cur,
			Out:      out,
			Bindings: bindings,
		})
		if activeNS != "" {
			cur = activeNS
		}
		if err != nil {
			o.sendEvalError(sess, send, err, cur)
			return
		}
		value = v
		evaluated = true
	}
	if !evaluated {
		return
	}
	sess.PushResult(value)
	send(protocol.Message{
		"value": o.rt.FormatValue(value),
		"ns":    cur,
	})
}

func (o *Ops) sendEvalError(sess *session.Session, send SendFunc, err error, ns string) {
	sess.RecordError(err)
	send(protocol.Message{"err": err.Error() + "\n"})
	send(protocol.Message{
		"ex":     o.rt.FormatException(err),
		"ns":     ns,
		"status": []string{"eval-error"},
	})
}

// outForwarder turns writes from the runtime's redirected output stream
// into incremental "out" responses.
type outForwarder struct {
	send SendFunc
}

func (w *outForwarder) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.send(protocol.Message{"out": string(p)})
	}
	return len(p), nil
}
