package operations

import (
	"strings"

	"github.com/zylisp/nrepl/protocol"
	"github.com/zylisp/nrepl/session"
)

// opEldoc serves the eldoc flavor of symbol lookup: compact arglist shapes
// plus a function/variable tag.
func (o *Ops) opEldoc(req protocol.Message, sess *session.Session, send SendFunc) {
	o.lookup(req, sess, send, true)
}

// opInfo serves the info/lookup flavor: the full var metadata including a
// file-URI source location.
func (o *Ops) opInfo(req protocol.Message, sess *session.Session, send SendFunc) {
	o.lookup(req, sess, send, false)
}

func (o *Ops) lookup(req protocol.Message, sess *session.Session, send SendFunc, eldoc bool) {
	sym := req.GetString("sym")
	if sym == "" {
		sym = req.GetString("symbol")
	}
	ns := req.GetString("ns")
	if ns == "" {
		ns = sess.EvalNS
	}

	cls := Classify(o.rt, ns, sym)
	switch cls.Kind {
	case KindError:
		// Classification failures answer the request rather than
		// propagate.
		send(protocol.Message{
			"ex":     o.rt.FormatException(cls.Err),
			"status": []string{"done"},
		})
	case KindVar:
		if eldoc {
			send(o.eldocResponse(cls))
		} else {
			send(o.infoResponse(cls))
		}
	case KindSpecialForm:
		resp := protocol.Message{
			"name":   sym,
			"type":   "special-form",
			"status": []string{"done"},
		}
		send(resp)
	default:
		// Keywords, nil, and unresolved symbols name no var.
		status := []string{"done"}
		if eldoc {
			status = append(status, "no-eldoc")
		}
		send(protocol.Message{"status": status})
	}
}

func (o *Ops) eldocResponse(cls Classification) protocol.Message {
	v := cls.Var
	arglists := make([]any, 0, len(v.ArgLists))
	for _, al := range v.ArgLists {
		params := strings.Fields(strings.Trim(al, "()"))
		row := make([]any, len(params))
		for i, p := range params {
			row[i] = p
		}
		arglists = append(arglists, row)
	}
	typ := "variable"
	if v.Macro || len(v.ArgLists) > 0 {
		typ = "function"
	}
	return protocol.Message{
		"name":      v.Name,
		"ns":        v.NS,
		"type":      typ,
		"eldoc":     arglists,
		"docstring": v.Doc,
		"status":    []string{"done"},
	}
}

func (o *Ops) infoResponse(cls Classification) protocol.Message {
	v := cls.Var
	resp := protocol.Message{
		"name":   v.Name,
		"ns":     v.NS,
		"doc":    v.Doc,
		"status": []string{"done"},
	}
	if len(v.ArgLists) > 0 {
		resp["arglists-str"] = strings.Join(v.ArgLists, "\n")
	}
	if v.File != "" {
		resp["file"] = fileURI(v.File)
		resp["line"] = int64(v.Line)
		resp["column"] = int64(v.Column)
	}
	return resp
}

// fileURI normalizes an absolute source path to a file URI. Relative paths
// and placeholder labels like "<nrepl>" pass through untouched.
func fileURI(path string) string {
	if strings.HasPrefix(path, "/") {
		return "file:" + path
	}
	return path
}
