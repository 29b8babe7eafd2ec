package testlog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// CapturedRecord is a log record together with the attributes of the logger that emitted it.
type CapturedRecord struct {
	slog.Record
	inherited []slog.Attr
}

// AttrValue returns the value of the named attribute, record attributes first, or nil if absent.
func (r *CapturedRecord) AttrValue(name string) (v any) {
	r.Record.Attrs(func(a slog.Attr) bool {
		if a.Key == name {
			v = a.Value.Any()
			return false
		}
		return true
	})
	if v != nil {
		return v
	}
	for _, a := range r.inherited {
		if a.Key == name {
			return a.Value.Any()
		}
	}
	return nil
}

type LogFilter func(r *CapturedRecord) bool

func NewLevelFilter(level slog.Level) LogFilter {
	return func(r *CapturedRecord) bool {
		return r.Level == level
	}
}

func NewMessageContainsFilter(message string) LogFilter {
	return func(r *CapturedRecord) bool {
		return strings.Contains(r.Message, message)
	}
}

type capturedLogs struct {
	mu      sync.Mutex
	records []*CapturedRecord
}

// CapturingHandler records everything it handles before passing it on.
// Handlers derived through WithAttrs share the records of their parent.
type CapturingHandler struct {
	next  slog.Handler
	logs  *capturedLogs
	attrs []slog.Attr
}

// CaptureLogger returns a test logger, and the handler that captures everything it logs.
func CaptureLogger(t Testing, level slog.Level) (_ log.Logger, ch *CapturingHandler) {
	logger := LoggerWithHandlerMod(t, level, func(h slog.Handler) slog.Handler {
		ch = &CapturingHandler{next: h, logs: new(capturedLogs)}
		return ch
	})
	return logger, ch
}

func (c *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.next.Enabled(ctx, level)
}

func (c *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	c.logs.mu.Lock()
	c.logs.records = append(c.logs.records, &CapturedRecord{Record: r.Clone(), inherited: c.attrs})
	c.logs.mu.Unlock()
	return c.next.Handle(ctx, r)
}

func (c *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CapturingHandler{
		next:  c.next.WithAttrs(attrs),
		logs:  c.logs,
		attrs: append(append([]slog.Attr(nil), c.attrs...), attrs...),
	}
}

func (c *CapturingHandler) WithGroup(name string) slog.Handler {
	return &CapturingHandler{next: c.next.WithGroup(name), logs: c.logs}
}

// FindLog returns the first captured record that matches all filters, or nil.
func (c *CapturingHandler) FindLog(filters ...LogFilter) *CapturedRecord {
	c.logs.mu.Lock()
	defer c.logs.mu.Unlock()
outer:
	for _, r := range c.logs.records {
		for _, f := range filters {
			if !f(r) {
				continue outer
			}
		}
		return r
	}
	return nil
}

var _ slog.Handler = (*CapturingHandler)(nil)
