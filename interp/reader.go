package interp

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zylisp/nrepl/runtime"
)

// ReadError is a syntax error with the source position it occurred at.
type ReadError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

// Reader yields the top-level forms of one source text.
type Reader struct {
	name string
	src  string
	pos  int
	line int
	col  int
}

// NewReader returns a reader over src; name labels the source in error
// positions.
func NewReader(name, src string) *Reader {
	return &Reader{name: name, src: src, line: 1, col: 1}
}

// ReadForm returns the next top-level form, io.EOF when the text is
// exhausted, or a *ReadError for malformed input.
func (r *Reader) ReadForm() (runtime.Form, error) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return nil, io.EOF
	}
	return r.readForm()
}

func (r *Reader) errf(format string, args ...any) *ReadError {
	return &ReadError{File: r.name, Line: r.line, Col: r.col, Msg: fmt.Sprintf(format, args...)}
}

func (r *Reader) advance() byte {
	c := r.src[r.pos]
	r.pos++
	if c == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	return c
}

func (r *Reader) skipSpace() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			r.advance()
		case c == ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.advance()
			}
		default:
			return
		}
	}
}

func (r *Reader) readForm() (Value, error) {
	c := r.src[r.pos]
	switch c {
	case '(':
		return r.readList()
	case ')':
		return nil, r.errf("unmatched )")
	case '"':
		return r.readString()
	case '\'':
		line, col := r.line, r.col
		r.advance()
		r.skipSpace()
		if r.pos >= len(r.src) {
			return nil, r.errf("unexpected end of input after quote")
		}
		quoted, err := r.readForm()
		if err != nil {
			return nil, err
		}
		return &List{Items: []Value{Symbol("quote"), quoted}, File: r.name, Line: line, Col: col}, nil
	default:
		return r.readAtom()
	}
}

func (r *Reader) readList() (Value, error) {
	node := &List{File: r.name, Line: r.line, Col: r.col}
	r.advance() // (
	for {
		r.skipSpace()
		if r.pos >= len(r.src) {
			return nil, r.errf("unexpected end of input in list")
		}
		if r.src[r.pos] == ')' {
			r.advance()
			return node, nil
		}
		item, err := r.readForm()
		if err != nil {
			return nil, err
		}
		node.Items = append(node.Items, item)
	}
}

func (r *Reader) readString() (Value, error) {
	r.advance() // "
	var sb strings.Builder
	for r.pos < len(r.src) {
		c := r.advance()
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if r.pos >= len(r.src) {
				return nil, r.errf("unexpected end of input in string")
			}
			esc := r.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\\':
				sb.WriteByte(esc)
			default:
				return nil, r.errf("unknown escape \\%c", esc)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return nil, r.errf("unterminated string")
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', '(', ')', '"', ';':
		return true
	}
	return false
}

func (r *Reader) readAtom() (Value, error) {
	start := r.pos
	for r.pos < len(r.src) && !isDelimiter(r.src[r.pos]) {
		r.advance()
	}
	tok := r.src[start:r.pos]
	switch tok {
	case "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if tok[0] == ':' {
		if len(tok) == 1 {
			return nil, r.errf("invalid keyword %q", tok)
		}
		return Keyword(tok), nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return Symbol(tok), nil
}
