package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/model"
)

// Requests are newline-delimited. A single query can carry long pattern
// lists, so lines may grow well past bufio's 64 KB default.
const (
	lineBufSize = 1 << 20
	maxLineSize = 10 << 20

	liveSocketTimeout = 500 * time.Millisecond
)

// errSocketInUse is returned by Start when another process answers on the
// configured path.
var errSocketInUse = errors.New("socket already in use")

// method decodes params and runs one ReadAPI call.
type method func(api model.ReadAPI, params json.RawMessage) (any, error)

// paramsError marks a params decoding failure so dispatch can answer with
// codeInvalidParams instead of an application error.
type paramsError struct{ err error }

func (e paramsError) Error() string { return "invalid params: " + e.err.Error() }

// decodeParams unmarshals params into v. Absent params leave v zero.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return paramsError{err}
	}
	return nil
}

var methods = map[string]method{
	"ResolveItems": func(api model.ReadAPI, params json.RawMessage) (any, error) {
		var p struct{ Target model.Target }
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return api.ResolveItems(p.Target)
	},
	"QueryTimeseries": func(api model.ReadAPI, params json.RawMessage) (any, error) {
		var p struct{ Request model.QueryRequest }
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return api.QueryTimeseries(p.Request)
	},
}

// Server answers ResolveItems and QueryTimeseries calls on a Unix socket.
type Server struct {
	socketPath string
	api        model.ReadAPI
	log        *zap.Logger

	listener net.Listener
	conns    sync.WaitGroup
	done     chan struct{}
}

// NewServer returns a server for api. Call Start to bind the socket.
func NewServer(socketPath string, api model.ReadAPI, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		socketPath: socketPath,
		api:        api,
		log:        logger.Named("socketrpc"),
		done:       make(chan struct{}),
	}
}

// Start binds the socket and serves connections in the background.
func (s *Server) Start() error {
	if err := claimSocket(s.socketPath); err != nil {
		return fmt.Errorf("socketrpc: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.conns.Add(1)
	go s.serve()

	s.log.Info("listening", zap.String("path", s.socketPath))
	return nil
}

// Stop closes the listener, waits for open connections and removes the
// socket file.
func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
}

// claimSocket prepares path for listening. A leftover file nobody answers
// on is removed; a live one is errSocketInUse.
func claimSocket(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	conn, err := net.DialTimeout("unix", path, liveSocketTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s", errSocketInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Server) serve() {
	defer s.conns.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing() {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(conn)
		}()
	}
}

// serveConn answers one response line per request line until the peer
// hangs up or the server stops.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	lines := bufio.NewScanner(conn)
	lines.Buffer(make([]byte, 0, lineBufSize), maxLineSize)
	out := json.NewEncoder(conn)

	for lines.Scan() && !s.closing() {
		if err := out.Encode(s.handleLine(lines.Bytes())); err != nil {
			s.log.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleLine(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParseError, Message: "parse error"}}
	}
	return s.dispatch(req)
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	call, ok := methods[req.Method]
	if !ok {
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	result, err := call(s.api, req.Params)
	if err != nil {
		resp.Error = &RPCError{Code: errorCode(err), Message: err.Error()}
		if resp.Error.Code == codeApplication {
			s.log.Error("call failed", zap.String("method", req.Method), zap.Error(err))
		}
		return resp
	}

	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: codeInternal, Message: err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}

func errorCode(err error) int {
	var pe paramsError
	switch {
	case errors.As(err, &pe):
		return codeInvalidParams
	case errors.Is(err, filter.ErrInvalidFilterSyntax):
		return codeInvalidFilter
	case errors.Is(err, model.ErrInvalidMode):
		return codeInvalidMode
	default:
		return codeApplication
	}
}
