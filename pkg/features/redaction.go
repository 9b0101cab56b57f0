package features

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/canopylog/canopy/pkg/types"
)

// defaultDenylist contains metadata keys whose values are always scrubbed.
var defaultDenylist = []string{
	"password", "passwd", "pass", "secret", "private_key", "token",
	"access_token", "refresh_token", "api_key", "apikey", "authorization",
	"auth_token", "client_secret", "session_token", "bearer", "jwt",
	"ssn", "social_security", "credit_card", "creditcard", "card_number",
	"cvv", "cvc",
}

// defaultPIIPatterns match sensitive values regardless of which key carries
// them.
var defaultPIIPatterns = []*regexp.Regexp{
	// US Social Security Numbers
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),

	// Credit card numbers (major brands)
	regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),      // Visa
	regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), // MasterCard
	regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`),             // American Express

	// Email addresses
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),

	// Bearer credentials embedded in header-shaped strings
	regexp.MustCompile(`(?i)bearer\s+[^\s]+`),
}

// Scrubber removes personally-identifiable and denylisted values from the
// metadata bag before an entry is handed to any destination. Scrubbing is
// mandatory; only the rule set is configurable.
type Scrubber struct {
	mu       sync.RWMutex
	denylist map[string]bool
	patterns []*regexp.Regexp
}

// NewScrubber creates a scrubber with the built-in rules plus any extra
// field names and value patterns from configuration. Extra patterns that do
// not compile are skipped.
func NewScrubber(extraFields []string, extraPatterns []string) *Scrubber {
	denylist := make(map[string]bool, len(defaultDenylist)+len(extraFields))
	for _, k := range defaultDenylist {
		denylist[k] = true
	}
	for _, k := range extraFields {
		denylist[strings.ToLower(strings.TrimSpace(k))] = true
	}

	patterns := append([]*regexp.Regexp(nil), defaultPIIPatterns...)
	for _, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}

	return &Scrubber{denylist: denylist, patterns: patterns}
}

// Scrub returns a sanitized copy of the metadata bag. Denylisted keys are
// replaced with the redaction marker at any nesting depth; string values
// matching a PII pattern are redacted in place; cyclic references are
// replaced with the circular marker instead of panicking. The input map is
// never mutated.
func (s *Scrubber) Scrub(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[uintptr]bool)
	out := s.scrubMap(metadata, visited)
	return out
}

// ScrubString redacts PII-pattern matches inside a bare string (messages,
// error text).
func (s *Scrubber) ScrubString(value string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scrubStringLocked(value)
}

func (s *Scrubber) scrubStringLocked(value string) string {
	for _, re := range s.patterns {
		value = re.ReplaceAllString(value, types.RedactedMarker)
	}
	return value
}

func (s *Scrubber) scrubMap(m map[string]interface{}, visited map[uintptr]bool) map[string]interface{} {
	ptr := reflect.ValueOf(m).Pointer()
	if visited[ptr] {
		return map[string]interface{}{"_": types.CircularMarker}
	}
	visited[ptr] = true
	defer delete(visited, ptr)

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if s.denylist[strings.ToLower(k)] {
			out[k] = types.RedactedMarker
			continue
		}
		out[k] = s.scrubValue(v, visited)
	}
	return out
}

func (s *Scrubber) scrubValue(v interface{}, visited map[uintptr]bool) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return s.scrubStringLocked(val)
	case map[string]interface{}:
		return s.scrubMap(val, visited)
	case []interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if visited[ptr] {
			return types.CircularMarker
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = s.scrubValue(item, visited)
		}
		return out
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case error:
		return s.scrubStringLocked(val.Error())
	case fmt.Stringer:
		return s.scrubStringLocked(val.String())
	default:
		// Best-effort serialization for caller-supplied values that the
		// JSON encoder may reject later.
		return sanitizeUnknown(val, visited)
	}
}

// sanitizeUnknown converts arbitrary values into JSON-safe shapes, guarding
// against cycles through pointers, maps and slices.
func sanitizeUnknown(v interface{}, visited map[uintptr]bool) interface{} {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if rv.Kind() != reflect.Slice || rv.Len() > 0 {
			ptr := rv.Pointer()
			if visited[ptr] {
				return types.CircularMarker
			}
			visited[ptr] = true
			defer delete(visited, ptr)
		}
		if rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return nil
			}
			return sanitizeUnknown(rv.Elem().Interface(), visited)
		}
		return fmt.Sprintf("%+v", v)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("<%s>", rv.Kind())
	default:
		return fmt.Sprintf("%+v", v)
	}
}
