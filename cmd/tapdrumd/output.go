package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
	"go.bug.st/serial"
)

// FrameSink is the output device's link layer.
type FrameSink interface {
	SendFrame(Frame) error
	Close() error
}

// NoteOutput turns notes into timestamped frames on one MIDI channel.
// Safe for concurrent use: a tap strike may race a playback session.
type NoteOutput struct {
	mu      sync.Mutex
	sink    FrameSink
	channel uint8
	start   time.Time
	now     func() time.Time
}

// NewNoteOutput wraps sink; channel is 0-15.
func NewNoteOutput(sink FrameSink, channel uint8) *NoteOutput {
	return &NoteOutput{
		sink:    sink,
		channel: channel & 0x0F,
		start:   time.Now(),
		now:     time.Now,
	}
}

// NoteOn sends a NoteOn frame.
func (o *NoteOutput) NoteOn(pitch, velocity uint8) error {
	return o.send(NoteOn, pitch, velocity)
}

// NoteOff sends a NoteOff frame (velocity 0).
func (o *NoteOutput) NoteOff(pitch uint8) error {
	return o.send(NoteOff, pitch, 0)
}

func (o *NoteOutput) send(kind NoteKind, pitch, velocity uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ms := uint32(o.now().Sub(o.start).Milliseconds())
	f, err := EncodeFrame(ms, noteMessage(kind, o.channel, pitch&0x7F, velocity&0x7F))
	if err != nil {
		return err
	}
	if err := o.sink.SendFrame(f); err != nil {
		return fmt.Errorf("send %s pitch=%d: %w", kind, pitch, err)
	}
	return nil
}

// ============================================================================
// Sinks
// ============================================================================

// serialSink writes raw 5-byte frames to a serial BLE-MIDI bridge.
type serialSink struct {
	port io.WriteCloser
}

func openSerialSink(device string, baud int) (*serialSink, error) {
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return &serialSink{port: p}, nil
}

func (s *serialSink) SendFrame(f Frame) error {
	n, err := s.port.Write(f[:])
	if err != nil {
		return err
	}
	if n != len(f) {
		return fmt.Errorf("short serial write: %d of %d bytes", n, len(f))
	}
	return nil
}

func (s *serialSink) Close() error { return s.port.Close() }

// portSink sends the channel message of each frame to a local MIDI output port.
// The BLE timestamp header has no meaning on a port and is dropped.
type portSink struct {
	out  drivers.Out
	send func(midi.Message) error
}

func openPortSink(name string) (*portSink, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find midi out port %q: %w", name, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open midi out port %q: %w", name, err)
	}
	return &portSink{out: out, send: send}, nil
}

func (s *portSink) SendFrame(f Frame) error { return s.send(f.Message()) }

func (s *portSink) Close() error { return s.out.Close() }

// logSink only logs frames. Used when no output device is configured.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) SendFrame(f Frame) error {
	s.logger.Debug("frame", "ts_ms", f.Timestamp(), "msg", f.Message().String())
	return nil
}

func (logSink) Close() error { return nil }

// openFrameSink selects the sink named by cfg.
func openFrameSink(cfg OutputConfig, logger *slog.Logger) (FrameSink, error) {
	switch cfg.Kind {
	case "serial":
		return openSerialSink(cfg.SerialDevice, cfg.BaudRate)
	case "midi":
		return openPortSink(cfg.MIDIPort)
	case "", "log":
		return logSink{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown output kind %q", cfg.Kind)
	}
}
