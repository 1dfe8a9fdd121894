// Package patchrpc is the patch-bay's control-domain transport: a
// newline-delimited JSON request/response protocol over TCP, plus an
// asynchronous event stream for device hot-plug notifications
// (spec.md §6).
package patchrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/agalue/patchbay/internal/engine"
	"github.com/agalue/patchbay/internal/hostaudio"
	"github.com/agalue/patchbay/internal/watcher"
)

// Request is one command sent by a client. Params is re-decoded into
// the command-specific shape by each handler.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the server's reply to a Request with a matching ID, or
// an unsolicited push (Method set, ID empty) such as a device event.
type Response struct {
	ID     string      `json:"id,omitempty"`
	Method string      `json:"method,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server accepts patchrpc connections and dispatches requests against
// an Engine, broadcasting Device Watcher events to every connected
// client.
type Server struct {
	api hostaudio.API
	eng *engine.Engine

	// defaultSampleRate/defaultBufferFrames seed startSession when the
	// caller omits those fields (spec.md §6 "Recognised session options").
	defaultSampleRate   int
	defaultBufferFrames int

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn net.Conn
	mu   sync.Mutex // guards writes so events and responses don't interleave mid-line
}

func (c *client) send(resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	enc := json.NewEncoder(c.conn)
	return enc.Encode(resp)
}

// New creates a Server dispatching against eng and api. defaultSampleRate
// and defaultBufferFrames seed startSession requests that omit those
// fields (spec.md §6: 48000 / 256 in the MVP).
func New(api hostaudio.API, eng *engine.Engine, defaultSampleRate, defaultBufferFrames int) *Server {
	return &Server{
		api:                 api,
		eng:                 eng,
		defaultSampleRate:   defaultSampleRate,
		defaultBufferFrames: defaultBufferFrames,
		clients:             make(map[*client]struct{}),
	}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed by the caller).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// ListenAndServe opens addr and serves connections until accept fails.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("patchrpc: listen %s: %w", addr, err)
	}
	defer ln.Close()
	return s.Serve(ln)
}

// BroadcastDeviceEvent pushes ev to every connected client as an
// unsolicited "deviceConnected"/"deviceDisconnected" message (spec.md
// §6 event surface). Intended to be wired to the Device Watcher's
// event channel by the caller.
func (s *Server) BroadcastDeviceEvent(ev watcher.Event) {
	method := "deviceConnected"
	if ev.Kind == watcher.Disconnected {
		method = "deviceDisconnected"
	}
	payload := deviceEventPayload{UID: ev.UID, Name: ev.Name}

	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		_ = c.send(Response{Method: method, Result: payload})
	}
}

type deviceEventPayload struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

func (s *Server) handleConn(conn net.Conn) {
	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = c.send(Response{Error: &errorBody{Kind: "invalid_args", Message: err.Error()}})
			continue
		}
		resp := s.dispatch(req)
		resp.ID = req.ID
		if err := c.send(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	result, err := s.call(req)
	if err != nil {
		return Response{Error: toErrorBody(err)}
	}
	return Response{Result: result}
}

func toErrorBody(err error) *errorBody {
	var ee *engine.Error
	if errors.As(err, &ee) {
		return &errorBody{Kind: ee.Kind.String(), Message: ee.Error()}
	}
	return &errorBody{Kind: "invalid_args", Message: err.Error()}
}
