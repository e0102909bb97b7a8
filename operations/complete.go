package operations

import (
	"sort"
	"strings"

	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/session"
)

// opComplete enumerates completion candidates for a prefix, classifying
// each one and sorting lexicographically. A blank prefix short-circuits to
// an empty candidate list without consulting the runtime.
func (o *Ops) opComplete(req protocol.Message, sess *session.Session, send SendFunc) {
	prefix := req.GetString("prefix")
	if prefix == "" {
		prefix = req.GetString("sym")
	}
	if prefix == "" {
		prefix = req.GetString("symbol")
	}
	if strings.TrimSpace(prefix) == "" {
		send(protocol.Message{
			"completions": []any{},
			"status":      []string{"done"},
		})
		return
	}

	ns := req.GetString("ns")
	if ns == "" {
		ns = sess.EvalNS
	}
	names := o.rt.Completions(ns, prefix)
	sort.Strings(names)

	completions := make([]any, 0, len(names))
	for _, name := range names {
		cls := Classify(o.rt, ns, name)
		entry := map[string]any{
			"candidate": name,
			"type":      cls.tag(),
		}
		if cls.Var != nil {
			entry["ns"] = cls.Var.NS
		} else {
			entry["ns"] = ns
		}
		completions = append(completions, entry)
	}
	send(protocol.Message{
		"completions": completions,
		"status":      []string{"done"},
	})
}
