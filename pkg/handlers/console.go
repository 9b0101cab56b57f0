// Package handlers contains the destination sinks log entries fan out to:
// a synchronous console writer, a rotating file appender, and an
// asynchronous batching handler in front of a persistent store.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/canopylog/canopy/pkg/types"
)

// ConsoleHandler writes formatted entries synchronously to stdout, routing
// entries ranking error or above to stderr. It never returns an error to
// the log call: a formatting failure falls back to a minimal raw dump.
type ConsoleHandler struct {
	mu        sync.Mutex
	out       io.Writer
	errOut    io.Writer
	formatter types.Formatter
	minLevel  types.Level
}

// NewConsoleHandler creates a console handler with the given formatter and
// minimum severity. out and errOut default to os.Stdout and os.Stderr.
func NewConsoleHandler(formatter types.Formatter, minLevel types.Level, out, errOut io.Writer) *ConsoleHandler {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &ConsoleHandler{
		out:       out,
		errOut:    errOut,
		formatter: formatter,
		minLevel:  minLevel,
	}
}

// Name implements types.Handler.
func (h *ConsoleHandler) Name() string { return "console" }

// Handle implements types.Handler. It always returns nil; console delivery
// problems are swallowed because stdout is a best-effort destination.
func (h *ConsoleHandler) Handle(entry *types.LogEntry) error {
	if entry == nil {
		return nil
	}
	if entry.Level.Rank() < h.minLevel {
		return nil
	}

	line, err := h.formatter.Format(entry)
	if err != nil {
		// Fall back to a raw dump rather than aborting the log call.
		line = []byte(fmt.Sprintf("%s [%s] %s\n",
			entry.Timestamp, strings.ToUpper(entry.Level.String()), entry.Message))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	w := h.out
	if entry.Level.Rank() >= types.LevelError {
		w = h.errOut
	}
	w.Write(line) //nolint:errcheck // console writes are fire-and-forget
	return nil
}

// Close implements types.Handler. The console owns no resources.
func (h *ConsoleHandler) Close(ctx context.Context) error { return nil }
