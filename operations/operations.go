// Package operations implements the nREPL operation handlers and the
// middleware chain wrapped around their dispatcher.
package operations

import (
	"sort"

	"github.com/google/uuid"

	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/runtime"
	"github.com/zylisp/nrepl/session"
)

// SendFunc delivers one response message toward the client. A handler may
// call it any number of times; the last message it sends for a request
// carries a "done" status.
type SendFunc func(protocol.Message)

// Handler processes one request against the connection's session.
type Handler func(req protocol.Message, sess *session.Session, send SendFunc)

// Ops holds the operation table. The table is built once at construction
// and read-only afterwards.
type Ops struct {
	rt            runtime.Runtime
	serverVersion string
	table         map[string]Handler
}

// New builds the operation table over rt. serverVersion is reported by the
// describe operation.
func New(rt runtime.Runtime, serverVersion string) *Ops {
	o := &Ops{rt: rt, serverVersion: serverVersion}
	o.table = map[string]Handler{
		"eval":        o.opEval,
		"load-file":   o.opLoadFile,
		"describe":    o.opDescribe,
		"clone":       o.opClone,
		"close":       o.opClose,
		"complete":    o.opComplete,
		"completions": o.opComplete,
		"eldoc":       o.opEldoc,
		"info":        o.opInfo,
		"lookup":      o.opInfo,
	}
	return o
}

// Names returns the registered operation names, sorted.
func (o *Ops) Names() []string {
	names := make([]string, 0, len(o.table))
	for name := range o.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes req to its handler. An unknown op (including the
// deliberately unsupported macroexpand and classpath) answers with a
// structured error and never raises.
func (o *Ops) Dispatch(req protocol.Message, sess *session.Session, send SendFunc) {
	if h, ok := o.table[req.Op()]; ok {
		h(req, sess, send)
		return
	}
	send(protocol.Message{"status": []string{"error", "unknown-op", "done"}})
}

// opDescribe reports version metadata and the operation table so clients
// can probe capability without protocol version negotiation.
func (o *Ops) opDescribe(req protocol.Message, sess *session.Session, send SendFunc) {
	ops := make(map[string]any, len(o.table))
	for name := range o.table {
		ops[name] = map[string]any{}
	}
	send(protocol.Message{
		"versions": map[string]any{
			o.rt.Name(): o.rt.Version(),
			"nrepl":     o.serverVersion,
		},
		"ops":    ops,
		"status": []string{"done"},
	})
}

// opClone hands out a fresh session id. No isolated evaluation state backs
// it: every connection still shares the process-wide namespace table, a
// known limitation of this server.
func (o *Ops) opClone(req protocol.Message, sess *session.Session, send SendFunc) {
	send(protocol.Message{
		"new-session": uuid.NewString(),
		"status":      []string{"done"},
	})
}

// opClose acknowledges the request. The socket itself is only closed when
// the peer shuts its end down.
func (o *Ops) opClose(req protocol.Message, sess *session.Session, send SendFunc) {
	send(protocol.Message{"status": []string{"done"}})
}
