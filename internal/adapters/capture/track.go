package capture

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

// localTrack adapts a mediadevices track to core.LocalTrack. Enabled is a
// local mute flag; the hardware keeps running until Stop.
type localTrack struct {
	kind  core.TrackKind
	inner mediadevices.Track

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newLocalTrack(inner mediadevices.Track, kind core.TrackKind) *localTrack {
	t := &localTrack{kind: kind, inner: inner, enabled: true}
	inner.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "capture").Str("kind", string(kind)).Msg("track ended")
		}
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
	})
	return t
}

func (t *localTrack) ID() string           { return t.inner.ID() }
func (t *localTrack) Kind() core.TrackKind { return t.kind }

func (t *localTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *localTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *localTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *localTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	if err := t.inner.Close(); err != nil {
		log.Debug().Err(err).Str("module", "capture").Str("kind", string(t.kind)).Msg("track close")
	}
}

// Unwrap exposes the underlying webrtc track for the transport adapter.
func (t *localTrack) Unwrap() webrtc.TrackLocal { return t.inner }
