package main

import (
	"path/filepath"
	"testing"
)

func headlessConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Taps = nil
	cfg.Buttons = nil
	cfg.HTTP.Listen = ""
	cfg.IPC.SocketPath = ""
	return cfg
}

func TestRun_HardwareFailureReturnsExitCode(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.Output.Kind = "carrier-pigeon"

	lib := mustLibrary(t)
	if code := run(cfg, lib, testLogger()); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRun_DaemonErrorReturnsExitCode(t *testing.T) {
	cfg := headlessConfig(t)
	// The IPC service fails to listen, which stops the loop with an error.
	cfg.IPC.SocketPath = filepath.Join(t.TempDir(), "missing", "ctl.sock")

	lib := mustLibrary(t)
	if code := run(cfg, lib, testLogger()); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
