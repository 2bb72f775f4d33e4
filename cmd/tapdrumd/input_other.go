//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
)

type evdevKeys struct{}

func openEvdevKeys([]string, *slog.Logger) (*evdevKeys, error) {
	return nil, errors.New("evdev buttons are only supported on linux")
}

func (*evdevKeys) Key(string, uint16) ButtonLevel { return nil }

func (*evdevKeys) Run(context.Context) error { return nil }

func (*evdevKeys) Close() error { return nil }
