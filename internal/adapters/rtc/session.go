package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

var errBackpressure = errors.New("signaling backpressure")

type session struct {
	roomID  string
	localID string

	ws *websocket.Conn
	pc *webrtc.PeerConnection

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.RWMutex
	events          core.SessionEvents
	remotes         map[string]struct{}
	pubs            map[string]*publication
	closed          bool
	disconnectFired bool

	joined  chan envelope
	answers chan webrtc.SessionDescription

	connected     chan struct{}
	connectedOnce sync.Once

	// one offer/answer exchange at a time
	negotiateMu sync.Mutex
}

func newSession(roomID string, ws *websocket.Conn, pc *webrtc.PeerConnection, events core.SessionEvents) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		roomID:    roomID,
		ws:        ws,
		pc:        pc,
		send:      make(chan []byte, 32),
		ctx:       ctx,
		cancel:    cancel,
		events:    events,
		remotes:   make(map[string]struct{}),
		pubs:      make(map[string]*publication),
		joined:    make(chan envelope, 1),
		answers:   make(chan webrtc.SessionDescription, 1),
		connected: make(chan struct{}),
	}
}

// start drives the join handshake and the first negotiation, returning once
// the peer connection is up or ctx expires.
func (s *session) start(ctx context.Context) error {
	s.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		_ = s.sendEnvelope(envelope{Type: msgCandidate, Candidate: cand.ToJSON().Candidate})
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("room", s.roomID).Str("peer_state", state.String()).Msg("peer state")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.connectedOnce.Do(func() { close(s.connected) })
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			s.fireDisconnected(state.String())
		}
	})

	// A control channel gives ICE something to negotiate before any media
	// is published.
	if _, err := s.pc.CreateDataChannel("control", nil); err != nil {
		return fmt.Errorf("control channel: %w", err)
	}

	go s.writePump()
	go s.readPump()

	if err := s.sendEnvelope(envelope{Type: msgJoin, Room: s.roomID}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	select {
	case ack := <-s.joined:
		s.mu.Lock()
		s.localID = ack.Identity
		if s.localID == "" {
			s.localID = uuid.NewString()
		}
		for _, id := range ack.Participants {
			s.remotes[id] = struct{}{}
		}
		s.mu.Unlock()
	case <-ctx.Done():
		return fmt.Errorf("join: %w", ctx.Err())
	case <-s.ctx.Done():
		return errors.New("signaling closed during join")
	}

	if err := s.negotiate(ctx); err != nil {
		return err
	}

	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for peer connection: %w", ctx.Err())
	case <-s.ctx.Done():
		return errors.New("signaling closed while connecting")
	}
}

// negotiate runs one offer/answer exchange. Candidate gathering completes
// before the offer goes out, so the server side needs no trickle handling
// for us.
func (s *session) negotiate(ctx context.Context) error {
	s.negotiateMu.Lock()
	defer s.negotiateMu.Unlock()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	local := s.pc.LocalDescription()
	if err := s.sendEnvelope(envelope{Type: msgOffer, SDP: local.SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	select {
	case answer := <-s.answers:
		if err := s.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for answer: %w", ctx.Err())
	case <-s.ctx.Done():
		return errors.New("signaling closed during negotiation")
	}
}

func (s *session) RoomID() string        { return s.roomID }
func (s *session) LocalIdentity() string { return s.localID }

func (s *session) RemoteParticipants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.remotes))
	for id := range s.remotes {
		out = append(out, id)
	}
	return out
}

func (s *session) Unbind() {
	s.mu.Lock()
	s.events = core.SessionEvents{}
	s.mu.Unlock()
}

func (s *session) handlers() core.SessionEvents {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events
}

func (s *session) Publish(ctx context.Context, track core.LocalTrack) (core.Publication, error) {
	bindable, ok := track.(interface{ Unwrap() webrtc.TrackLocal })
	if !ok {
		return nil, fmt.Errorf("track %s is not transport-bindable", track.ID())
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, core.ErrAlreadyDisconnected
	}
	if existing, ok := s.pubs[track.ID()]; ok {
		s.mu.Unlock()
		return nil, &core.DuplicatePublicationError{Existing: existing}
	}
	sender, err := s.pc.AddTrack(bindable.Unwrap())
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("add track: %w", err)
	}
	pub := &publication{
		id:      uuid.NewString(),
		trackID: track.ID(),
		kind:    track.Kind(),
		sender:  sender,
		sess:    s,
		enabled: true,
	}
	s.pubs[track.ID()] = pub
	s.mu.Unlock()

	if err := s.negotiate(ctx); err != nil {
		s.mu.Lock()
		delete(s.pubs, track.ID())
		s.mu.Unlock()
		_ = s.pc.RemoveTrack(sender)
		return nil, fmt.Errorf("publish negotiation: %w", err)
	}

	go s.drainRTCP(sender)
	return pub, nil
}

func (s *session) Unpublish(ctx context.Context, trackID string) error {
	s.mu.Lock()
	pub, ok := s.pubs[trackID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.pubs, trackID)
	s.mu.Unlock()

	if err := s.pc.RemoveTrack(pub.sender); err != nil {
		return fmt.Errorf("remove track: %w", err)
	}
	return s.negotiate(ctx)
}

func (s *session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrAlreadyDisconnected
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.sendEnvelope(envelope{Type: msgLeave})
	s.cancel()

	done := make(chan struct{})
	go func() {
		if err := s.pc.Close(); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Msg("peer connection close")
		}
		_ = s.ws.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Do not wait on a wedged close; the handle is dead either way.
		log.Warn().Str("module", "rtc").Str("room", s.roomID).Msg("disconnect timed out")
	}
	return nil
}

// teardown is the no-events variant used when a dial fails half-way.
func (s *session) teardown() {
	s.Unbind()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	_ = s.pc.Close()
	_ = s.ws.Close()
}

func (s *session) fireDisconnected(reason string) {
	s.mu.Lock()
	if s.closed || s.disconnectFired {
		s.mu.Unlock()
		return
	}
	s.disconnectFired = true
	h := s.events
	s.mu.Unlock()

	if h.OnDisconnected != nil {
		h.OnDisconnected(reason)
	}
}

func (s *session) sendEnvelope(env envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	default:
		log.Warn().Str("module", "rtc").Str("type", env.Type).Msg("dropping signal, send buffer full")
		return errBackpressure
	}
}

func (s *session) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.send:
			if err := s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "rtc").Msg("writePump set deadline")
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "rtc").Msg("writePump write error")
				return
			}
		}
	}
}

func (s *session) readPump() {
	defer s.fireDisconnected("signaling closed")
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, data, err := s.ws.ReadMessage()
			if err != nil {
				s.mu.RLock()
				closed := s.closed
				s.mu.RUnlock()
				if !closed {
					log.Error().Err(err).Str("module", "rtc").Msg("readPump read error")
				}
				return
			}
			s.handleSignal(data)
		}
	}
}

func (s *session) handleSignal(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad signal json")
		return
	}

	switch env.Type {
	case msgJoined:
		select {
		case s.joined <- env:
		default:
		}
	case msgAnswer:
		select {
		case s.answers <- webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}:
		default:
			log.Warn().Str("module", "rtc").Msg("unexpected answer dropped")
		}
	case msgCandidate:
		if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: env.Candidate}); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Msg("remote candidate rejected")
		}
	case msgParticipantJoin:
		s.mu.Lock()
		s.remotes[env.Identity] = struct{}{}
		s.mu.Unlock()
		if h := s.handlers(); h.OnParticipantJoined != nil {
			h.OnParticipantJoined(env.Identity)
		}
	case msgParticipantLeft:
		s.mu.Lock()
		delete(s.remotes, env.Identity)
		s.mu.Unlock()
		if h := s.handlers(); h.OnParticipantLeft != nil {
			h.OnParticipantLeft(env.Identity)
		}
	case msgError:
		log.Warn().Str("module", "rtc").Str("code", env.Code).Str("message", env.Message).Msg("sfu error")
		if env.Code == "media" {
			if h := s.handlers(); h.OnMediaError != nil {
				h.OnMediaError(fmt.Errorf("sfu media error: %s", env.Message))
			}
		}
	default:
		log.Warn().Str("module", "rtc").Str("type", env.Type).Msg("unknown signal")
	}
}

// drainRTCP keeps the sender's feedback path flowing; pion stalls without a
// reader.
func (s *session) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}
}

type publication struct {
	id      string
	trackID string
	kind    core.TrackKind
	sender  *webrtc.RTPSender
	sess    *session

	mu      sync.Mutex
	enabled bool
}

func (p *publication) ID() string           { return p.id }
func (p *publication) TrackID() string      { return p.trackID }
func (p *publication) Kind() core.TrackKind { return p.kind }

func (p *publication) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetEnabled mutes in place; the publication stays up so re-enabling is free.
func (p *publication) SetEnabled(enabled bool) {
	p.mu.Lock()
	if p.enabled == enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = enabled
	p.mu.Unlock()

	_ = p.sess.sendEnvelope(envelope{
		Type:    msgMute,
		TrackID: p.trackID,
		Kind:    string(p.kind),
		Muted:   !enabled,
	})
}
