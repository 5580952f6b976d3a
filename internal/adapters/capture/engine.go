// Package capture implements core.MediaEngine on pion/mediadevices.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone driver
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

type Engine struct {
	selector *mediadevices.CodecSelector
}

func NewEngine() (*Engine, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_200_000
	vpxParams.KeyFrameInterval = 60

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = 32_000
	opusParams.Latency = opus.Latency20ms

	return &Engine{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (e *Engine) Enumerate() ([]core.DeviceInfo, error) {
	var out []core.DeviceInfo
	for _, dev := range mediadevices.EnumerateDevices() {
		switch dev.Kind {
		case mediadevices.VideoInput:
			out = append(out, core.DeviceInfo{ID: dev.DeviceID, Label: dev.Label, Kind: core.TrackKindVideo})
		case mediadevices.AudioInput:
			out = append(out, core.DeviceInfo{ID: dev.DeviceID, Label: dev.Label, Kind: core.TrackKindAudio})
		}
	}
	return out, nil
}

func (e *Engine) Capture(ctx context.Context, req core.CaptureRequest) ([]core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: e.selector}
	if req.Video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			if req.CameraID != "" {
				c.DeviceID = prop.String(req.CameraID)
			}
			c.Width = prop.Int(1280)
			c.Height = prop.Int(720)
			c.FrameRate = prop.Float(30)
		}
	}
	if req.Audio {
		constraints.Audio = audioConstraints(req)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, translateCaptureError(err, req)
	}

	var tracks []core.LocalTrack
	for _, t := range stream.GetVideoTracks() {
		tracks = append(tracks, newLocalTrack(t, core.TrackKindVideo))
	}
	for _, t := range stream.GetAudioTracks() {
		tracks = append(tracks, newLocalTrack(t, core.TrackKindAudio))
	}
	log.Info().Str("module", "capture").Int("tracks", len(tracks)).Msg("user media acquired")
	return tracks, nil
}

func audioConstraints(req core.CaptureRequest) func(c *mediadevices.MediaTrackConstraints) {
	if req.AudioProfile == core.AudioProfileBaseline {
		return func(c *mediadevices.MediaTrackConstraints) {
			if req.MicrophoneID != "" {
				c.DeviceID = prop.String(req.MicrophoneID)
			}
			c.SampleRate = prop.Int(44100)
			c.ChannelCount = prop.Int(1)
			c.Latency = prop.Duration(50 * time.Millisecond)
		}
	}
	return func(c *mediadevices.MediaTrackConstraints) {
		if req.MicrophoneID != "" {
			c.DeviceID = prop.String(req.MicrophoneID)
		}
		c.SampleRate = prop.Int(48000)
		c.ChannelCount = prop.Int(2)
		c.SampleSize = prop.Int(16)
		c.Latency = prop.Duration(10 * time.Millisecond)
	}
}

// translateCaptureError maps driver errors onto the capture taxonomy so the
// capturer can decide what is retryable.
func translateCaptureError(err error, req core.CaptureRequest) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return fmt.Errorf("%w: %w", core.ErrMediaAccessDenied, err)
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return fmt.Errorf("%w: %w", core.ErrDeviceUnavailable, err)
	case req.CameraID != "" || req.MicrophoneID != "":
		return fmt.Errorf("%w: %w", core.ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("%w: %w", core.ErrConstraintUnsatisfied, err)
	}
}
