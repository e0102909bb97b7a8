// Package client is a small bencode nREPL client, enough to drive the
// server from tests and tooling.
package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zylisp/nrepl/protocol"
)

// Client talks to one nREPL server over TCP.
type Client struct {
	conn   net.Conn
	framer protocol.Framer
	inbox  []protocol.Message
	buf    []byte
	mu     sync.Mutex
	msgID  uint64
}

// Result collects the responses to one request, up to its "done" status.
type Result struct {
	ID       string
	Value    string
	NS       string
	Out      string
	Err      string
	Ex       string
	Status   []string
	Messages []protocol.Message
}

// HasStatus reports whether any response carried the status tag.
func (r *Result) HasStatus(tag string) bool {
	for _, s := range r.Status {
		if s == tag {
			return true
		}
	}
	return false
}

// Dial connects to an nREPL server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to nrepl server: %w", err)
	}
	return &Client{conn: conn, buf: make([]byte, 4096)}, nil
}

// Send writes one request. A missing id is filled in from a local counter.
func (c *Client) Send(req protocol.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.ID() == "" {
		req["id"] = fmt.Sprintf("%d", atomic.AddUint64(&c.msgID, 1))
	}
	if err := protocol.EncodeTo(c.conn, req); err != nil {
		return "", err
	}
	return req.ID(), nil
}

// Recv returns the next response, reading from the socket as needed.
func (c *Client) Recv() (protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recv()
}

func (c *Client) recv() (protocol.Message, error) {
	for {
		if len(c.inbox) > 0 {
			msg := c.inbox[0]
			c.inbox = c.inbox[1:]
			return msg, nil
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.inbox = append(c.inbox, c.framer.Feed(c.buf[:n])...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("receive response: %w", err)
		}
	}
}

// Call sends req and collects every response up to and including the one
// with a "done" status.
func (c *Client) Call(req protocol.Message) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.ID() == "" {
		req["id"] = fmt.Sprintf("%d", atomic.AddUint64(&c.msgID, 1))
	}
	if err := protocol.EncodeTo(c.conn, req); err != nil {
		return nil, err
	}
	result := &Result{ID: req.ID()}
	var out strings.Builder
	for {
		msg, err := c.recv()
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, msg)
		if v, ok := msg["value"].(string); ok {
			result.Value = v
		}
		if ns := msg.GetString("ns"); ns != "" {
			result.NS = ns
		}
		out.WriteString(msg.GetString("out"))
		if e := msg.GetString("err"); e != "" {
			result.Err += e
		}
		if ex := msg.GetString("ex"); ex != "" {
			result.Ex = ex
		}
		for _, s := range msg.Status() {
			if !result.HasStatus(s) {
				result.Status = append(result.Status, s)
			}
		}
		if msg.HasStatus("done") {
			result.Out = out.String()
			return result, nil
		}
	}
}

// Eval submits code for evaluation and collects the responses.
func (c *Client) Eval(code string) (*Result, error) {
	return c.Call(protocol.Message{"op": "eval", "code": code})
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
