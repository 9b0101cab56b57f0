package canopy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/types"
)

// Categorized lets an error declare its own category, short-circuiting the
// heuristics below. Checked first so domain errors can classify precisely.
type Categorized interface {
	Category() types.ErrorCategory
}

// stackTracer is the stack interface attached by github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Classify determines an error's category and its stable fingerprint.
// Classification is a pure function of the error value: the same error
// yields the same result on every call, so recurring faults group
// identically across runs and call sites.
func Classify(err error) (types.ErrorCategory, string) {
	if err == nil {
		return "", ""
	}
	category := categorize(err)
	return category, fingerprint(err, category)
}

// categorize applies ordered heuristics: explicit interface and type
// matches first, then message substrings, else unknown.
func categorize(err error) types.ErrorCategory {
	var categorized Categorized
	if errors.As(err, &categorized) {
		return categorized.Category()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.CategoryTimeout
		}
		return types.CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return types.CategoryTimeout
	case containsAny(msg, "rate limit", "too many requests", "quota exceeded"):
		return types.CategoryRateLimit
	case containsAny(msg, "unauthorized", "unauthenticated", "invalid credentials", "invalid token", "token expired", "login failed"):
		return types.CategoryAuthentication
	case containsAny(msg, "forbidden", "permission denied", "access denied", "not allowed"):
		return types.CategoryAuthorization
	case containsAny(msg, "connection refused", "connection reset", "broken pipe", "no such host", "network", "dial tcp", "dns"):
		return types.CategoryNetwork
	case containsAny(msg, "database", "sql", "constraint", "duplicate key", "deadlock", "transaction"):
		return types.CategoryDatabase
	case containsAny(msg, "validation", "invalid", "malformed", "required field", "must be", "out of range"):
		return types.CategoryValidation
	case containsAny(msg, "conflict", "precondition", "state transition", "not permitted in state"):
		return types.CategoryBusinessLogic
	default:
		return types.CategoryUnknown
	}
}

// fingerprint hashes a normalized signature of the error so the same
// logical fault groups under one key in observability tooling. The
// signature is {category, root error type, first normalized stack frame};
// absolute paths and line numbers are normalized out so trivial code moves
// do not fragment the fingerprint.
func fingerprint(err error, category types.ErrorCategory) string {
	root := errors.Cause(err)
	typeName := reflect.TypeOf(root).String()

	signature := string(category) + "|" + typeName + "|" + topFrame(err)
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])[:16]
}

// topFrame extracts the first application stack frame from a pkg/errors
// stack, normalized to "function@file" with whitespace collapsed and the
// directory part of the path discarded.
func topFrame(err error) string {
	var tracer stackTracer
	if !errors.As(err, &tracer) {
		return ""
	}
	stack := tracer.StackTrace()
	if len(stack) == 0 {
		return ""
	}

	frame := stack[0]
	fn := strings.TrimSpace(fmt.Sprintf("%n", frame))
	file := strings.TrimSpace(fmt.Sprintf("%s", frame))
	file = filepath.Base(strings.Join(strings.Fields(file), ""))
	return fn + "@" + file
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
