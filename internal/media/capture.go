package media

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

// Selection pins capture to specific devices. Empty IDs mean engine defaults.
type Selection struct {
	CameraID     string
	MicrophoneID string
}

// Handle is one live local capture: zero or one video track, zero or one
// audio track. Replaced wholesale on restart; the old handle's hardware is
// released first.
type Handle struct {
	mu      sync.Mutex
	video   core.LocalTrack
	audio   core.LocalTrack
	stopped bool
}

// Track returns the track for kind, or nil. Nil-receiver safe so callers can
// pass a missing handle through without guarding.
func (h *Handle) Track(kind core.TrackKind) core.LocalTrack {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == core.TrackKindVideo {
		return h.video
	}
	return h.audio
}

func (h *Handle) Live(kind core.TrackKind) bool {
	t := h.Track(kind)
	return t != nil && t.Live()
}

func (h *Handle) stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	video, audio := h.video, h.audio
	h.mu.Unlock()

	if video != nil {
		video.Stop()
	}
	if audio != nil {
		audio.Stop()
	}
}

// Capturer owns the single active Handle and drives the capture engine.
type Capturer struct {
	engine core.MediaEngine

	mu      sync.Mutex
	current *Handle
}

func NewCapturer(engine core.MediaEngine) *Capturer {
	return &Capturer{engine: engine}
}

// Start acquires a capture handle for the given intent. With both kinds off
// it returns a nil handle without touching hardware. A previous handle is
// released before the new acquisition. On a constraint rejection the request
// is retried once with the baseline audio profile.
func (c *Capturer) Start(ctx context.Context, intent core.Intent, sel Selection) (*Handle, error) {
	if intent.None() {
		return nil, nil
	}

	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()
	prev.stop()

	req := core.CaptureRequest{
		Video:        intent.Video,
		Audio:        intent.Audio,
		CameraID:     sel.CameraID,
		MicrophoneID: sel.MicrophoneID,
		AudioProfile: core.AudioProfileEnhanced,
	}

	tracks, err := c.engine.Capture(ctx, req)
	if errors.Is(err, core.ErrConstraintUnsatisfied) {
		log.Debug().Str("module", "media.capture").Msg("enhanced constraints rejected, retrying with baseline")
		req.AudioProfile = core.AudioProfileBaseline
		tracks, err = c.engine.Capture(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	h := &Handle{}
	for _, t := range tracks {
		switch t.Kind() {
		case core.TrackKindVideo:
			h.video = t
		case core.TrackKindAudio:
			h.audio = t
		}
	}

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()

	log.Info().
		Str("module", "media.capture").
		Bool("video", h.video != nil).
		Bool("audio", h.audio != nil).
		Msg("capture started")
	return h, nil
}

// Stop releases all hardware behind the handle. Idempotent; safe on a nil or
// already-stopped handle.
func (c *Capturer) Stop(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	if c.current == h {
		c.current = nil
	}
	c.mu.Unlock()
	h.stop()
}

// SetTrackEnabled is a local mute toggle, distinct from stop/start.
func (c *Capturer) SetTrackEnabled(h *Handle, kind core.TrackKind, enabled bool) {
	if t := h.Track(kind); t != nil {
		t.SetEnabled(enabled)
	}
}
