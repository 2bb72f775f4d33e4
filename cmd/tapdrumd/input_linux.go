//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// evdevWaitMS bounds each epoll_wait so Run notices cancellation.
const evdevWaitMS = 200

// inputEvent mirrors struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; }.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// evdevKeys tracks key levels reported by one or more gpio-keys style input
// devices. Buttons sample it through evdevKey.
type evdevKeys struct {
	mu      sync.Mutex
	pressed map[evdevKeyID]bool
	failed  map[string]error // device -> read failure
	files   []*os.File
	logger  *slog.Logger
}

type evdevKeyID struct {
	device string
	code   uint16
}

func openEvdevKeys(devices []string, logger *slog.Logger) (*evdevKeys, error) {
	k := &evdevKeys{
		pressed: make(map[evdevKeyID]bool),
		logger:  logger,
	}
	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("open input device %s: %w", dev, err)
		}
		k.files = append(k.files, f)
	}
	return k, nil
}

// Key returns the level reader for one key code on device.
func (k *evdevKeys) Key(device string, code uint16) ButtonLevel {
	return evdevKey{keys: k, id: evdevKeyID{device: device, code: code}}
}

func (k *evdevKeys) apply(device string, ev inputEvent) {
	if ev.Type != EV_KEY {
		return
	}
	id := evdevKeyID{device: device, code: ev.Code}
	k.mu.Lock()
	defer k.mu.Unlock()
	switch ev.Value {
	case evValuePress, evValueRepeat:
		k.pressed[id] = true
	case evValueRelease:
		k.pressed[id] = false
	}
}

func (k *evdevKeys) isPressed(id evdevKeyID) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.failed[id.device]; err != nil {
		return false, err
	}
	return k.pressed[id], nil
}

// fail marks device unreadable; its keys report the error from then on.
func (k *evdevKeys) fail(device string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failed == nil {
		k.failed = make(map[string]error)
	}
	k.failed[device] = err
	for id := range k.pressed {
		if id.device == device {
			delete(k.pressed, id)
		}
	}
}

// Run reads all devices with a single epoll loop until ctx ends. A device
// that errors or hangs up is dropped from the loop and its keys fail their
// reads; the remaining devices keep working.
func (k *evdevKeys) Run(ctx context.Context) error {
	if len(k.files) == 0 {
		return errors.New("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(k.files))
	for _, f := range k.files {
		fd := int(f.Fd())
		fdToFile[fd] = f
		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
		}
	}

	const maxEvents = 16
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.EpollWait(epfd, epollEvents, evdevWaitMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f, ok := fdToFile[fd]
			if !ok {
				continue
			}

			var devErr error
			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				devErr = fmt.Errorf("input device %s: error/hangup", f.Name())
			} else if _, err := f.Read(buf); err != nil {
				devErr = fmt.Errorf("read from %s: %w", f.Name(), err)
			}
			if devErr != nil {
				k.logger.Warn("input device dropped", "device", f.Name(), "fd", fd, "error", devErr)
				_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
				delete(fdToFile, fd)
				k.fail(f.Name(), devErr)
				continue
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				continue
			}
			k.apply(f.Name(), ev)
		}
	}
}

// Close closes every device. Call it after Run has returned.
func (k *evdevKeys) Close() error {
	var err error
	for _, f := range k.files {
		err = multierr.Append(err, f.Close())
	}
	return err
}

type evdevKey struct {
	keys *evdevKeys
	id   evdevKeyID
}

func (k evdevKey) Pressed() (bool, error) {
	return k.keys.isPressed(k.id)
}
