package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// ErrQueueFull is returned by ChannelSender when its buffer is full.
var ErrQueueFull = errors.New("notify: queue full")

// Message is one outbound notification. Context holds the template
// variables; the verification code is under "code".
type Message struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Context  map[string]string `json:"context,omitempty"`
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ChannelSender forwards messages into a buffered channel. Send never
// blocks: a full buffer is a delivery failure.
type ChannelSender struct {
	messages chan Message
}

func NewChannelSender(buffer int) *ChannelSender {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSender{
		messages: make(chan Message, buffer),
	}
}

func (s *ChannelSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.messages <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *ChannelSender) Messages() <-chan Message {
	return s.messages
}

// JSONWriterSender writes one JSON object per line. With Redact set the
// code is masked, so the writer can be a shared log stream.
type JSONWriterSender struct {
	writer io.Writer
	redact bool
	mu     sync.Mutex
}

func NewJSONWriterSender(w io.Writer, redact bool) *JSONWriterSender {
	return &JSONWriterSender{
		writer: w,
		redact: redact,
	}
}

func (s *JSONWriterSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.writer == nil {
		return errors.New("notify: nil writer")
	}
	if s.redact {
		if _, ok := msg.Context["code"]; ok {
			masked := make(map[string]string, len(msg.Context))
			for k, v := range msg.Context {
				masked[k] = v
			}
			masked["code"] = "******"
			msg.Context = masked
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
