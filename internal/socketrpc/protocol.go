package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.ReadAPI over a Unix domain socket.
//
//   Method             Params                      Result
//   ───────────────    ─────────────────────────   ──────────────────
//   ResolveItems       {Target: Target}            []ResolvedItem
//   QueryTimeseries    {Request: QueryRequest}     []Timeseries
//
// Target and QueryRequest use the same JSON field names as the HTTP API.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)
//   -32001  Invalid filter syntax
//   -32002  Invalid query mode

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
	codeInvalidFilter  = -32001
	codeInvalidMode    = -32002
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// Unwrap maps query error codes back to their sentinels so callers on the
// client side can use errors.Is just like in-process callers.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case codeInvalidFilter:
		return filter.ErrInvalidFilterSyntax
	case codeInvalidMode:
		return model.ErrInvalidMode
	}
	return nil
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/zquery/zquery.sock, falling back to
// ~/.local/state/zquery/zquery.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "zquery", "zquery.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/zquery.sock"
	}
	return filepath.Join(home, ".local", "state", "zquery", "zquery.sock")
}
