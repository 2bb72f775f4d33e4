package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// Frame is the 5-byte note frame sent to the output device:
//
//	[tsHi][tsLo][status][pitch][velocity]
//
// The timestamp is a running millisecond counter split 6+7 bits, each byte
// carrying the 0x80 marker bit (BLE-MIDI header/timestamp convention).
type Frame [5]byte

// EncodeFrame builds a frame from a 3-byte channel message.
func EncodeFrame(ms uint32, msg midi.Message) (Frame, error) {
	if len(msg) != 3 {
		return Frame{}, fmt.Errorf("encode frame: want 3-byte channel message, got %d bytes", len(msg))
	}
	return Frame{
		0x80 | byte((ms>>7)&0x3F),
		0x80 | byte(ms&0x7F),
		msg[0],
		msg[1],
		msg[2],
	}, nil
}

// Message returns the channel message carried by the frame.
func (f Frame) Message() midi.Message {
	return midi.Message{f[2], f[3], f[4]}
}

// Timestamp returns the 13-bit millisecond timestamp carried by the frame.
func (f Frame) Timestamp() uint32 {
	return uint32(f[0]&0x3F)<<7 | uint32(f[1]&0x7F)
}

// noteMessage builds a NoteOn/NoteOff channel message.
func noteMessage(kind NoteKind, channel, pitch, velocity uint8) midi.Message {
	if kind == NoteOff {
		return midi.NoteOff(channel, pitch)
	}
	return midi.NoteOn(channel, pitch, velocity)
}
