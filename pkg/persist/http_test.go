package persist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopylog/canopy/pkg/types"
)

func testBatch() []*types.LogEntry {
	return []*types.LogEntry{
		{Level: types.LevelInfo, Service: "checkout", Message: "one"},
		{Level: types.LevelError, Service: "checkout", Message: "two"},
	}
}

func TestHTTPPersisterSendsBatch(t *testing.T) {
	var mu sync.Mutex
	var gotAuth string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p, err := NewHTTPPersister(srv.URL, "key-123")
	require.NoError(t, err)

	require.NoError(t, p.Persist(context.Background(), testBatch()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer key-123", gotAuth)

	var decoded []*types.LogEntry
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "one", decoded[0].Message)
}

func TestHTTPPersisterStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantErr   bool
		permanent bool
	}{
		{http.StatusOK, false, false},
		{http.StatusAccepted, false, false},
		{http.StatusBadRequest, true, true},
		{http.StatusUnauthorized, true, true},
		{http.StatusRequestTimeout, true, false},
		{http.StatusTooManyRequests, true, false},
		{http.StatusInternalServerError, true, false},
		{http.StatusBadGateway, true, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		p, err := NewHTTPPersister(srv.URL, "")
		require.NoError(t, err)

		err = p.Persist(context.Background(), testBatch())
		if tt.wantErr {
			require.Error(t, err, "status %d", tt.status)
			assert.Equal(t, tt.permanent, IsPermanent(err), "status %d", tt.status)
		} else {
			assert.NoError(t, err, "status %d", tt.status)
		}
		srv.Close()
	}
}

func TestHTTPPersisterEmptyBatch(t *testing.T) {
	p, err := NewHTTPPersister("http://localhost:1", "")
	require.NoError(t, err)
	// Must not touch the network at all.
	assert.NoError(t, p.Persist(context.Background(), nil))
}

func TestHTTPPersisterConnectionRefusedIsTransient(t *testing.T) {
	p, err := NewHTTPPersister("http://127.0.0.1:1", "")
	require.NoError(t, err)

	err = p.Persist(context.Background(), testBatch())
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestHTTPPersisterEmptyEndpoint(t *testing.T) {
	_, err := NewHTTPPersister("", "")
	assert.Error(t, err)
}
