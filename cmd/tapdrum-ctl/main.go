package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// tapdrum-ctl sends one command to tapdrumd over its unix socket and
// prints the reply.
//
//	tapdrum-ctl control 3000
//	tapdrum-ctl start
//	tapdrum-ctl play pirate
//	tapdrum-ctl status

const (
	version           = "0.1.0"
	defaultSocketPath = "/tmp/tapdrum.sock"
	replyTimeout      = 2 * time.Second
)

// request mirrors the daemon's IPC line format.
type request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath := defaultSocketPath
	args := os.Args[1:]

	for len(args) > 0 && len(args[0]) > 0 && args[0][0] == '-' {
		switch args[0] {
		case "-socket", "--socket":
			if len(args) < 2 {
				fatalf("-socket requires an argument")
			}
			socketPath = args[1]
			args = args[2:]
		case "-version", "--version":
			fmt.Printf("tapdrum-ctl version %s\n", version)
			return
		case "-h", "-help", "--help":
			printUsage()
			return
		default:
			fatalf("unknown option: %s", args[0])
		}
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	req, err := parseCommand(args)
	if err != nil {
		printUsage()
		fatalf("%v", err)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fatalf("%v", err)
	}
	if resp.Status != "ok" {
		fatalf("daemon error: %s", resp.Error)
	}
	if len(resp.Data) > 0 {
		var out any
		if err := json.Unmarshal(resp.Data, &out); err == nil {
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
			return
		}
	}
	fmt.Println("ok")
}

func parseCommand(args []string) (request, error) {
	switch args[0] {
	case "control", "set":
		if len(args) < 2 {
			return request{}, fmt.Errorf("control requires a value 0..4095")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 || v > 4095 {
			return request{}, fmt.Errorf("invalid control value %q", args[1])
		}
		return request{Type: "control", Data: map[string]int{"value": v}}, nil
	case "start", "arm":
		return request{Type: "arm"}, nil
	case "stop", "disarm":
		return request{Type: "disarm"}, nil
	case "play":
		if len(args) < 2 {
			return request{}, fmt.Errorf("play requires a sequence id")
		}
		return request{Type: "play", Data: map[string]string{"sequence": args[1]}}, nil
	case "status":
		return request{Type: "status"}, nil
	default:
		return request{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func send(socketPath string, req request) (response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	line, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(replyTimeout))
	reply, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	var resp response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `tapdrum-ctl - control tapdrumd via IPC

Usage:
  tapdrum-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)
  -version        Print version and exit

Commands:
  control, set <0..4095>  Set the control value
  start, arm              Arm the controller
  stop, disarm            Disarm and stop any playing sequence
  play <id>               Start a note sequence
  status                  Print the daemon status as JSON
`, defaultSocketPath)
}
