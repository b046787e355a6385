package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// JobLogTimeFormat is the timestamp layout of job log lines.
const JobLogTimeFormat = "2006-01-02 15:04:05"

// JobLogHandler writes records as "<timestamp> - <message>[ key=value...]"
// lines, the format tailed by the dashboard's log viewer. Levels and run_id
// are left to the structured log.
type JobLogHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	now    func() time.Time
	prefix string
	attrs  string
}

// NewJobLogHandler returns a handler writing job log lines to w.
func NewJobLogHandler(w io.Writer, level slog.Leveler) *JobLogHandler {
	return &JobLogHandler{mu: &sync.Mutex{}, w: w, level: level, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (h *JobLogHandler) WithClock(now func() time.Time) *JobLogHandler {
	c := *h
	c.now = now
	return &c
}

func (h *JobLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JobLogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.now().Format(JobLogTimeFormat))
	b.WriteString(" - ")
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	c := *h
	c.attrs = h.attrs + b.String()
	return &c
}

func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) || a.Key == "run_id" || a.Key == "component" {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		s = v.Time().Format(JobLogTimeFormat)
	default:
		s = fmt.Sprint(v.Any())
	}
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}
