package operations

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"pkt.systems/pslog"

	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/session"
)

// Middleware wraps a handler with a request or response transform.
type Middleware func(next Handler) Handler

// Compose wraps h with mws, first element outermost. Requests flow from the
// first middleware inwards; responses flow from the handler back out, so a
// middleware that wraps send sees responses before every middleware outside
// it.
func Compose(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Chain is the server's standard middleware stack around the dispatcher.
// Ordering matters: the op is coerced before the request is logged, and
// responses are logged before id/session attachment so the raw handler
// output is what shows up in the log.
func Chain(o *Ops, logger pslog.Logger) Handler {
	return Compose(o.Dispatch,
		AttachIDSession(),
		CoerceOp(),
		LogRequests(logger),
		LogResponses(logger),
	)
}

// CoerceOp normalizes a non-string op field to its string form so dispatch
// and logging see one canonical type. The request map is copied rather than
// mutated; handlers observe requests as immutable.
func CoerceOp() Middleware {
	return func(next Handler) Handler {
		return func(req protocol.Message, sess *session.Session, send SendFunc) {
			if raw, ok := req["op"]; ok {
				if _, isString := raw.(string); !isString {
					coerced := make(protocol.Message, len(req))
					for k, v := range req {
						coerced[k] = v
					}
					coerced["op"] = fmt.Sprint(raw)
					req = coerced
				}
			}
			next(req, sess, send)
		}
	}
}

// LogRequests logs every inbound request.
func LogRequests(logger pslog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req protocol.Message, sess *session.Session, send SendFunc) {
			logger.Debug("nrepl.request",
				"op", req.Op(),
				"id", req.ID(),
				"session", req.Session(),
			)
			logger.Trace("nrepl.request.payload", "msg", spew.Sdump(map[string]any(req)))
			next(req, sess, send)
		}
	}
}

// LogResponses logs every outbound response as the handler produced it,
// before id/session attachment.
func LogResponses(logger pslog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req protocol.Message, sess *session.Session, send SendFunc) {
			next(req, sess, func(resp protocol.Message) {
				logger.Debug("nrepl.response",
					"op", req.Op(),
					"id", req.ID(),
					"status", resp.Status(),
				)
				logger.Trace("nrepl.response.payload", "msg", spew.Sdump(map[string]any(resp)))
				send(resp)
			})
		}
	}
}

// AttachIDSession copies the request's id and session onto every response.
// Handlers never do this themselves.
func AttachIDSession() Middleware {
	return func(next Handler) Handler {
		return func(req protocol.Message, sess *session.Session, send SendFunc) {
			next(req, sess, func(resp protocol.Message) {
				if id, ok := req["id"]; ok {
					resp["id"] = id
				}
				if s := req.Session(); s != "" {
					resp["session"] = s
				}
				send(resp)
			})
		}
	}
}
