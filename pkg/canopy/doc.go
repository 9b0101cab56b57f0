// Package canopy is a structured logging engine that behaves consistently
// across server, browser (wasm/js) and edge (wasip1) runtimes.
//
// Every log call runs one enrichment pipeline: the ambient identity context
// is resolved and merged, errors are categorized and fingerprinted,
// sensitive values are scrubbed, and the resulting entry fans out to the
// enabled destinations (console, rotating file, batched persistent store).
// Log calls never block on destination I/O, never return errors, and never
// panic into the application.
//
// A minimal setup:
//
//	logger, err := canopy.New(
//		canopy.WithService("checkout"),
//		canopy.WithEnvironment("production"),
//	)
//	if err != nil {
//		// configuration error, fail fast
//	}
//	defer logger.Shutdown(context.Background())
//
//	ctx = logger.WithContext(ctx, &types.LogContext{RequestID: reqID})
//	logger.Info(ctx, "order placed", canopy.Metadata{"order_id": id})
package canopy
