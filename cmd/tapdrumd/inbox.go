package main

import "time"

// InboundMessage is one raw payload from the display link, IPC or HTTP.
type InboundMessage struct {
	Payload []byte
	Source  string
	At      time.Time
}

// Inbox buffers inbound messages until the pump drains them.
// Offer never blocks; when the buffer is full the message is dropped.
type Inbox struct {
	ch chan InboundMessage
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 64
	}
	return &Inbox{ch: make(chan InboundMessage, size)}
}

// Offer enqueues a copy of payload. Returns false if the inbox is full.
func (in *Inbox) Offer(payload []byte, source string) bool {
	msg := InboundMessage{
		Payload: append([]byte(nil), payload...),
		Source:  source,
		At:      time.Now(),
	}
	select {
	case in.ch <- msg:
		return true
	default:
		return false
	}
}

// Drain returns every message queued so far, oldest first.
func (in *Inbox) Drain() []InboundMessage {
	var out []InboundMessage
	for {
		select {
		case m := <-in.ch:
			out = append(out, m)
		default:
			return out
		}
	}
}
