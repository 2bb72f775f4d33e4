package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Protocol: line-delimited JSON
//   - Client sends: {"type": "control", "data": {"value": 3000}}
//                   {"type": "arm"} | {"type": "disarm"} | {"type": "status"}
//                   {"type": "play", "data": {"sequence": "pirate"}}
//   - Server responds: {"status": "ok"} (status requests carry "data")
//                      or {"status": "error", "error": "msg"}
//
// Requests other than status are queued on the inbox and applied by the
// inbound pump; "ok" means queued.
// ============================================================================

// IPCRequest is one line of the IPC protocol.
type IPCRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse is sent back to IPC clients.
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // set if status == "error"
	Data   *StatusSnapshot `json:"data,omitempty"`  // status requests only
}

type ipcControlData struct {
	Value int `json:"value"`
}

type ipcPlayData struct {
	Sequence string `json:"sequence"`
}

// ipcPayload turns a request into the inbox payload it stands for.
func ipcPayload(req IPCRequest) ([]byte, error) {
	switch req.Type {
	case "control":
		var d ipcControlData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return nil, fmt.Errorf("control data: %w", err)
		}
		if d.Value < 0 || d.Value > maxControlValue {
			return nil, fmt.Errorf("control value %d out of range 0..%d", d.Value, maxControlValue)
		}
		return []byte(strconv.Itoa(d.Value)), nil
	case "arm":
		return []byte(tokenArm), nil
	case "disarm":
		return []byte(tokenDisarm), nil
	case "play":
		var d ipcPlayData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return nil, fmt.Errorf("play data: %w", err)
		}
		if d.Sequence == "" {
			return nil, errors.New("play data: sequence is empty")
		}
		return []byte(tokenPlay + " " + d.Sequence), nil
	default:
		return nil, fmt.Errorf("unknown request type %q", req.Type)
	}
}

// IPCServer accepts local clients and feeds their requests to the inbox.
type IPCServer struct {
	socketPath string
	inbox      *Inbox
	status     func() StatusSnapshot
	logger     *slog.Logger
}

func NewIPCServer(socketPath string, inbox *Inbox, status func() StatusSnapshot, logger *slog.Logger) *IPCServer {
	return &IPCServer{socketPath: socketPath, inbox: inbox, status: status, logger: logger}
}

// Run serves until ctx is canceled, then closes the listener and removes the socket.
func (s *IPCServer) Run(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(s.socketPath)

	if err := os.Chmod(s.socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.logger.Info("IPC listening", "socket", s.socketPath)

	// Closing the listener unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				s.logger.Debug("IPC listener closed")
				return nil
			}
			s.logger.Error("IPC accept error", "error", err)
			continue
		}

		go s.handle(conn)
	}
}

func (s *IPCServer) handle(conn net.Conn) {
	defer conn.Close()

	s.logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		s.logger.Debug("IPC received", "line", string(line))

		resp := s.respond(line)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	s.logger.Debug("IPC connection closed")
}

func (s *IPCServer) respond(line []byte) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	if req.Type == "status" {
		snap := s.status()
		return IPCResponse{Status: "ok", Data: &snap}
	}

	payload, err := ipcPayload(req)
	if err != nil {
		return IPCResponse{Status: "error", Error: err.Error()}
	}
	if !s.inbox.Offer(payload, "ipc") {
		return IPCResponse{Status: "error", Error: "inbox full"}
	}
	return IPCResponse{Status: "ok"}
}
