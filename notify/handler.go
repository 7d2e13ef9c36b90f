package notify

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// ChannelHandler writes events into a buffered channel.
type ChannelHandler struct {
	events chan Event
}

func NewChannelHandler(buffer int) *ChannelHandler {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelHandler{
		events: make(chan Event, buffer),
	}
}

func (h *ChannelHandler) Handle(ctx context.Context, event Event) error {
	select {
	case h.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *ChannelHandler) Events() <-chan Event {
	return h.events
}

// JSONWriterHandler writes one JSON object per line.
type JSONWriterHandler struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterHandler(w io.Writer) *JSONWriterHandler {
	return &JSONWriterHandler{
		writer: w,
	}
}

func (h *JSONWriterHandler) Handle(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	data = append(data, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.writer.Write(data); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}

// LogHandler records events in the application log.
type LogHandler struct {
	logger *zap.Logger
}

func NewLogHandler(logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(_ context.Context, event Event) error {
	h.logger.Info("mfa notification",
		zap.String("type", string(event.Type)),
		zap.String("member", event.MemberID),
		zap.String("method", event.Method),
		zap.Time("at", event.Timestamp),
	)
	return nil
}
