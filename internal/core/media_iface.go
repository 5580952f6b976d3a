package core

import "context"

type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// Intent is the user-desired on/off state per media kind. Mutated only by
// explicit user action; network events change observed state, never intent.
type Intent struct {
	Video bool
	Audio bool
}

func (i Intent) Any() bool  { return i.Video || i.Audio }
func (i Intent) None() bool { return !i.Video && !i.Audio }

func (i Intent) Wants(kind TrackKind) bool {
	if kind == TrackKindVideo {
		return i.Video
	}
	return i.Audio
}

// AudioProfile selects how aggressive the audio capture constraints are.
// Baseline is the relaxed fallback used when the enhanced set is rejected.
type AudioProfile int

const (
	AudioProfileEnhanced AudioProfile = iota
	AudioProfileBaseline
)

type DeviceInfo struct {
	ID    string
	Label string
	Kind  TrackKind
}

type CaptureRequest struct {
	Video        bool
	Audio        bool
	CameraID     string
	MicrophoneID string
	AudioProfile AudioProfile
}

// LocalTrack is a live hardware-backed media track. Exclusively owned by the
// session controller; consumers get a reference for rendering only.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	// Live reports whether the underlying source is still producing frames.
	Live() bool
	Enabled() bool
	// SetEnabled is a cheap local mute. It never releases hardware.
	SetEnabled(bool)
	// Stop releases the underlying hardware. Safe to call more than once.
	Stop()
}

// MediaEngine abstracts the platform capture stack.
type MediaEngine interface {
	Enumerate() ([]DeviceInfo, error)
	Capture(ctx context.Context, req CaptureRequest) ([]LocalTrack, error)
}
