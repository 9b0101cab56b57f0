package canopy

import (
	"runtime"
	"time"

	"github.com/canopylog/canopy/pkg/types"
)

// DetectRuntime determines which execution environment the engine is
// running in. Wasm builds targeting js are treated as browser, wasip1 as an
// edge worker, everything else as a server process.
func DetectRuntime() types.Runtime {
	switch runtime.GOOS {
	case "js":
		return types.RuntimeBrowser
	case "wasip1":
		return types.RuntimeEdge
	default:
		return types.RuntimeServer
	}
}

// runtimeDefaults are the per-runtime sizing parameters applied when the
// configuration leaves them unset. Edge contexts are cold and short-lived,
// so they flush smaller batches sooner to maximize the chance a batch is
// delivered before the execution context is torn down.
type runtimeDefaults struct {
	batchSize     int
	flushInterval time.Duration
	maxQueueSize  int
	fileCapable   bool
}

func defaultsFor(rt types.Runtime) runtimeDefaults {
	switch rt {
	case types.RuntimeEdge:
		return runtimeDefaults{
			batchSize:     10,
			flushInterval: time.Second,
			maxQueueSize:  200,
			fileCapable:   false,
		}
	case types.RuntimeBrowser:
		return runtimeDefaults{
			batchSize:     20,
			flushInterval: 2 * time.Second,
			maxQueueSize:  500,
			fileCapable:   false,
		}
	default:
		return runtimeDefaults{
			batchSize:     50,
			flushInterval: 5 * time.Second,
			maxQueueSize:  1000,
			fileCapable:   true,
		}
	}
}
