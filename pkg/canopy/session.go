package canopy

import (
	"sync"

	"github.com/google/uuid"
)

// The session id identifies one process (or one browser tab) across every
// entry it emits. It is resolved once on first access and lives until the
// process exits. It is exposed only through SessionID so tests can
// substitute their own value.
var (
	sessionMu sync.Mutex
	sessionID string
)

// SessionID returns the process-wide session identifier, generating it on
// first use.
func SessionID() string {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return sessionID
}

// setSessionID overrides the session id. Test hook.
func setSessionID(id string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	sessionID = id
}
