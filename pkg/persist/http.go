package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/types"
)

// HTTPPersister POSTs log batches as a JSON array to an ingestion endpoint.
type HTTPPersister struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPPersister creates a persister for the given ingestion URL. The
// apiKey, when non-empty, is sent as a bearer token.
func NewHTTPPersister(endpoint, apiKey string) (*HTTPPersister, error) {
	if endpoint == "" {
		return nil, errors.New("http persister: empty endpoint")
	}
	return &HTTPPersister{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name implements Persister.
func (p *HTTPPersister) Name() string { return "http" }

// Persist implements Persister. Client errors other than timeouts and rate
// limits are permanent: the store rejected the batch and retrying the same
// payload cannot succeed.
func (p *HTTPPersister) Persist(ctx context.Context, batch []*types.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return Permanent(errors.Wrap(err, "marshal log batch"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Permanent(errors.Wrap(err, "build ingest request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post log batch")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("ingest endpoint busy: HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(fmt.Errorf("ingest endpoint rejected batch: HTTP %d", resp.StatusCode))
	default:
		return fmt.Errorf("ingest endpoint failed: HTTP %d", resp.StatusCode)
	}
}
