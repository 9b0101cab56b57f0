// Package formatters renders canonical log entries into destination wire
// formats. The console handler uses the text formatter for humans and the
// JSON formatter for machine consumption; the file handler always writes
// NDJSON.
package formatters

import (
	"encoding/json"
	"fmt"

	"github.com/canopylog/canopy/pkg/types"
)

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct {
	// Indent pretty-prints output. Intended for development only; NDJSON
	// destinations must leave it false.
	Indent bool
}

// NewJSONFormatter creates a compact JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format implements types.Formatter. The returned line is terminated with a
// newline so destinations can append it directly.
func (f *JSONFormatter) Format(entry *types.LogEntry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("nil log entry")
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(entry, "", "  ")
	} else {
		data, err = json.Marshal(entry)
	}
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}
