package session

import "github.com/lumacart/broadcast/internal/core"

// Status is the read-only view pushed to subscribers. Derived from the
// session handle and publication records; never authoritative for intent.
type Status struct {
	ConnectionState        core.ConnectionState
	IsPublishingVideo      bool
	IsPublishingAudio      bool
	MediaError             error
	SessionError           error
	RemoteParticipantCount int
}
