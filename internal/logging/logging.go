// Package logging sets up the process logger.
//
// Loggers are plain *slog.Logger values. The package adds a TRACE level
// below slog.LevelDebug, used for per-request and progress lines, and a
// compact terminal handler that colors the level label.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
)

// LevelTrace is more verbose than slog.LevelDebug.
const LevelTrace = slog.Level(-8)

const timeFormat = "15:04:05.000"

// New returns a logger writing to w through a TerminalHandler.
func New(w io.Writer, level slog.Leveler, colors bool) *slog.Logger {
	return slog.New(NewTerminalHandler(w, level, colors))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// LevelName returns the label printed for a level.
func LevelName(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return "TRACE"
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// TerminalHandler writes one line per record:
//
//	15:04:05.000 TRACE read 1024 / 4096 bytes, (~25%) key=value
type TerminalHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	colors bool
	attrs  string
	group  string
}

// NewTerminalHandler creates a TerminalHandler. A nil level means
// slog.LevelInfo.
func NewTerminalHandler(w io.Writer, level slog.Leveler, colors bool) *TerminalHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &TerminalHandler{
		mu:     &sync.Mutex{},
		w:      w,
		level:  level,
		colors: colors,
	}
}

// Enabled implements slog.Handler.
func (h *TerminalHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	if !r.Time.IsZero() {
		sb.WriteString(r.Time.Format(timeFormat))
		sb.WriteByte(' ')
	}
	sb.WriteString(h.label(r.Level))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)
	sb.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&sb, h.group, a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var sb strings.Builder
	sb.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&sb, h.group, a)
	}
	h2 := *h
	h2.attrs = sb.String()
	return &h2
}

// WithGroup implements slog.Handler.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.group + name + "."
	return &h2
}

func (h *TerminalHandler) label(l slog.Level) string {
	name := fmt.Sprintf("%-5s", LevelName(l))
	if !h.colors {
		return name
	}
	switch {
	case l < slog.LevelDebug:
		return color.FgDarkGray.Render(name)
	case l < slog.LevelInfo:
		return color.FgCyan.Render(name)
	case l < slog.LevelWarn:
		return color.FgGreen.Render(name)
	case l < slog.LevelError:
		return color.FgYellow.Render(name)
	default:
		return color.FgRed.Render(name)
	}
}

func appendAttr(sb *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		prefix := group
		if a.Key != "" {
			prefix = group + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(sb, prefix, ga)
		}
		return
	}
	sb.WriteByte(' ')
	sb.WriteString(group)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}
