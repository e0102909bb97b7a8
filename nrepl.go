// Package nrepl is an nREPL wire-protocol server for the zylisp runtime.
// It accepts TCP connections from editors and IDEs, decodes bencode-framed
// requests, and dispatches them to operation handlers that evaluate code
// and inspect symbols in the live runtime.
package nrepl

import (
	"pkt.systems/pslog"

	"github.com/zylisp/nrepl/interp"
	"github.com/zylisp/nrepl/server"
)

// Version of this server, reported by the describe operation.
const Version = server.Version

// Config is re-exported so callers only need this package for the common
// case.
type Config = server.Config

// NewServer builds a server from config, defaulting the runtime to the
// builtin zylisp interpreter and the logger to a no-op logger.
func NewServer(cfg Config) (*server.Server, error) {
	if cfg.Runtime == nil {
		cfg.Runtime = interp.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.NoopLogger()
	}
	return server.New(cfg)
}
