// Package persist defines the persistence capability consumed by the
// store handler, plus ready-made implementations backed by Postgres, NATS
// and an HTTP ingestion endpoint. The engine is agnostic to which one is
// supplied; it only requires Persist to succeed or fail.
package persist

import (
	"context"
	"errors"

	"github.com/canopylog/canopy/pkg/types"
)

// ErrPermanent marks a persistence failure that must not be retried, such
// as a malformed batch rejected by the store. Implementations wrap their
// errors with Permanent to signal this; everything else is treated as
// transient and retried with backoff.
var ErrPermanent = errors.New("permanent persistence failure")

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// IsPermanent reports whether err (or anything it wraps) is permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }

func (e permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Persister delivers a batch of log entries to an external store. A nil
// return means every entry in the batch is durably accepted.
type Persister interface {
	// Name identifies the persister in diagnostics.
	Name() string

	// Persist writes the batch. Entries must be treated as read-only.
	Persist(ctx context.Context, batch []*types.LogEntry) error
}

// Func adapts a plain function to the Persister interface, primarily for
// tests and embedding.
type Func func(ctx context.Context, batch []*types.LogEntry) error

// Name implements Persister.
func (f Func) Name() string { return "func" }

// Persist implements Persister.
func (f Func) Persist(ctx context.Context, batch []*types.LogEntry) error {
	return f(ctx, batch)
}
