package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/types"
)

// NATSPersister publishes log batches as JSON arrays to a NATS subject,
// for fan-in to a downstream ingestion consumer.
type NATSPersister struct {
	conn    *nats.Conn
	subject string

	// FlushTimeout bounds the post-publish flush round trip.
	FlushTimeout time.Duration
}

// NewNATSPersister creates a persister publishing to subject on conn.
func NewNATSPersister(conn *nats.Conn, subject string) (*NATSPersister, error) {
	if conn == nil {
		return nil, errors.New("nats persister: nil connection")
	}
	if subject == "" {
		subject = "canopy.logs"
	}
	return &NATSPersister{
		conn:         conn,
		subject:      subject,
		FlushTimeout: 5 * time.Second,
	}, nil
}

// Name implements Persister.
func (p *NATSPersister) Name() string { return "nats" }

// Persist implements Persister. The batch is published as a single message
// and flushed so delivery failures surface to the retry policy instead of
// being lost in the client's send buffer.
func (p *NATSPersister) Persist(ctx context.Context, batch []*types.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return Permanent(errors.Wrap(err, "marshal log batch"))
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return errors.Wrap(err, "publish log batch")
	}

	timeout := p.FlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return errors.Wrap(err, "flush nats connection")
	}
	return nil
}
