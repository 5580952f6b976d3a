package core

import "context"

type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// SessionEvents carries the callbacks a SessionHandle fires. Handlers are set
// before the dial starts so no event can be lost to a bind race. Nil fields
// are skipped.
type SessionEvents struct {
	OnDisconnected      func(reason string)
	OnParticipantJoined func(identity string)
	OnParticipantLeft   func(identity string)
	OnMediaError        func(error)
}

// SessionTransport dials broadcast rooms. Dial returns once the transport
// reports connected, or fails within ctx; a failed dial must not leak a
// half-open handle.
type SessionTransport interface {
	Dial(ctx context.Context, endpoint, roomID, credential string, events SessionEvents) (SessionHandle, error)
}

// Publication binds one local track to its outbound publication within a
// session. Identity is per publication, distinct from track identity.
type Publication interface {
	ID() string
	TrackID() string
	Kind() TrackKind
	Enabled() bool
	// SetEnabled mutes or unmutes the publication in place, without
	// unpublishing.
	SetEnabled(bool)
}

// SessionHandle is one live connection to a broadcast room. Exclusively owned
// by the session controller; only the controller publishes or disconnects.
type SessionHandle interface {
	RoomID() string
	LocalIdentity() string
	RemoteParticipants() []string

	// Unbind removes all event handlers. Teardown must call it before
	// Disconnect so spurious events from the closing handle cannot be
	// observed mid-cleanup.
	Unbind()

	Publish(ctx context.Context, track LocalTrack) (Publication, error)
	Unpublish(ctx context.Context, trackID string) error
	Disconnect(ctx context.Context) error
}
