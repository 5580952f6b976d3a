// Package rtc implements core.SessionTransport against the platform SFU:
// a gorilla websocket signaling channel plus a pion PeerConnection.
package rtc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

type Transport struct {
	webrtcConfig webrtc.Configuration
	dialer       *websocket.Dialer
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewTransport() *Transport {
	return &Transport{
		webrtcConfig: DefaultWebRTCConfig(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial joins roomID through the SFU signaling socket and returns once the
// peer connection reports connected. On any failure the half-open session is
// torn down locally before the error surfaces; no zombie handle leaks.
func (t *Transport) Dial(ctx context.Context, endpoint, roomID, credential string, events core.SessionEvents) (core.SessionHandle, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	ws, _, err := t.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("sfu dial: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(t.webrtcConfig)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("peer connection: %w", err)
	}

	s := newSession(roomID, ws, pc, events)

	if err := s.start(ctx); err != nil {
		s.teardown()
		return nil, err
	}

	log.Info().
		Str("module", "rtc").
		Str("room", roomID).
		Str("identity", s.LocalIdentity()).
		Msg("session established")
	return s, nil
}
