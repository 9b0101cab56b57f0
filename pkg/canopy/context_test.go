package canopy

import (
	"context"
	"sync"
	"testing"

	"github.com/canopylog/canopy/pkg/types"
)

func TestWithLogContextNesting(t *testing.T) {
	ctx := WithLogContext(context.Background(), &types.LogContext{
		RequestID: "req-1",
		UserID:    "user-1",
	})
	inner := WithLogContext(ctx, &types.LogContext{UserID: "user-2"})

	got := ActiveContext(inner)
	if got.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want inherited req-1", got.RequestID)
	}
	if got.UserID != "user-2" {
		t.Errorf("UserID = %q, want overridden user-2", got.UserID)
	}

	// The outer scope is untouched after the inner one is built.
	outer := ActiveContext(ctx)
	if outer.UserID != "user-1" {
		t.Errorf("outer UserID = %q, want user-1", outer.UserID)
	}
}

func TestActiveContextEmpty(t *testing.T) {
	got := ActiveContext(context.Background())
	if !isEmptyContext(got) {
		t.Errorf("expected empty context, got %+v", got)
	}
	if got := ActiveContext(nil); !isEmptyContext(got) {
		t.Errorf("nil ctx: expected empty context, got %+v", got)
	}
}

func TestServerCarrierConcurrentScopeIsolation(t *testing.T) {
	carrier := newCarrier(types.RuntimeServer)
	base := carrier.Attach(context.Background(), &types.LogContext{TenantID: "shared"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			id := string(rune('A' + n%26))
			ctx := carrier.Attach(base, &types.LogContext{RequestID: id})

			for j := 0; j < 100; j++ {
				got := carrier.Active(ctx)
				if got.RequestID != id {
					t.Errorf("scope leak: got %q, want %q", got.RequestID, id)
					return
				}
				if got.TenantID != "shared" {
					t.Errorf("lost inherited TenantID: %+v", got)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestBrowserCarrierAmbientFallback(t *testing.T) {
	carrier := newCarrier(types.RuntimeBrowser)
	carrier.Attach(context.Background(), &types.LogContext{UserID: "tab-user"})

	// A log call with a bare context still sees the ambient scope.
	got := carrier.Active(context.Background())
	if got.UserID != "tab-user" {
		t.Errorf("ambient UserID = %q, want tab-user", got.UserID)
	}
}

func TestBrowserCarrierExplicitContextWins(t *testing.T) {
	carrier := newCarrier(types.RuntimeBrowser)
	carrier.Attach(context.Background(), &types.LogContext{UserID: "ambient"})
	ctx := carrier.Attach(context.Background(), &types.LogContext{UserID: "explicit"})

	got := carrier.Active(ctx)
	if got.UserID != "explicit" {
		t.Errorf("UserID = %q, want explicit context value", got.UserID)
	}
}

func TestEdgeCarrierContextBacked(t *testing.T) {
	carrier := newCarrier(types.RuntimeEdge)
	ctx := carrier.Attach(context.Background(), &types.LogContext{JobID: "job-9"})

	if got := carrier.Active(ctx); got.JobID != "job-9" {
		t.Errorf("JobID = %q, want job-9", got.JobID)
	}
	// No ambient slot on edge: a bare context sees nothing.
	if got := carrier.Active(context.Background()); !isEmptyContext(got) {
		t.Errorf("edge carrier leaked ambient state: %+v", got)
	}
}
