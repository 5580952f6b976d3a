package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumacart/broadcast/internal/core"
)

type fakeTrack struct {
	id   string
	kind core.TrackKind

	mu      sync.Mutex
	enabled bool
	live    bool
	stops   int
}

func newFakeTrack(id string, kind core.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true, live: true}
}

func (t *fakeTrack) ID() string           { return t.id }
func (t *fakeTrack) Kind() core.TrackKind { return t.kind }

func (t *fakeTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	if t.live {
		t.stops++
		t.live = false
	}
	t.mu.Unlock()
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// fakeTracks is a TrackSource over plain fake tracks.
type fakeTracks struct {
	video core.LocalTrack
	audio core.LocalTrack
}

func (f *fakeTracks) Track(kind core.TrackKind) core.LocalTrack {
	if f == nil {
		return nil
	}
	if kind == core.TrackKindVideo {
		return f.video
	}
	return f.audio
}

type fakePublication struct {
	id      string
	trackID string
	kind    core.TrackKind

	mu      sync.Mutex
	enabled bool
}

func (p *fakePublication) ID() string           { return p.id }
func (p *fakePublication) TrackID() string      { return p.trackID }
func (p *fakePublication) Kind() core.TrackKind { return p.kind }

func (p *fakePublication) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *fakePublication) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

type fakeSession struct {
	room string

	mu           sync.Mutex
	events       core.SessionEvents
	pubs         map[string]*fakePublication
	publishCalls int
	publishDelay time.Duration
	publishErr   error
	unpublished  []string
	disconnected bool
	unbinds      int
	remotes      []string
}

func newFakeSession(room string, events core.SessionEvents) *fakeSession {
	return &fakeSession{
		room:   room,
		events: events,
		pubs:   make(map[string]*fakePublication),
	}
}

func (s *fakeSession) RoomID() string        { return s.room }
func (s *fakeSession) LocalIdentity() string { return "local-" + s.room }

func (s *fakeSession) RemoteParticipants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.remotes...)
}

func (s *fakeSession) Unbind() {
	s.mu.Lock()
	s.unbinds++
	s.events = core.SessionEvents{}
	s.mu.Unlock()
}

func (s *fakeSession) Publish(ctx context.Context, track core.LocalTrack) (core.Publication, error) {
	s.mu.Lock()
	delay := s.publishDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishCalls++
	if s.publishErr != nil {
		return nil, s.publishErr
	}
	if existing, ok := s.pubs[track.ID()]; ok {
		return nil, &core.DuplicatePublicationError{Existing: existing}
	}
	pub := &fakePublication{
		id:      fmt.Sprintf("pub-%s-%d", s.room, s.publishCalls),
		trackID: track.ID(),
		kind:    track.Kind(),
		enabled: true,
	}
	s.pubs[track.ID()] = pub
	return pub, nil
}

func (s *fakeSession) Unpublish(ctx context.Context, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pubs, trackID)
	s.unpublished = append(s.unpublished, trackID)
	return nil
}

func (s *fakeSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return core.ErrAlreadyDisconnected
	}
	s.disconnected = true
	return nil
}

func (s *fakeSession) isDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *fakeSession) unpublishedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unpublished...)
}

func (s *fakeSession) unbindCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unbinds
}

func (s *fakeSession) publishCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishCalls
}

func (s *fakeSession) fireDisconnected(reason string) {
	s.mu.Lock()
	h := s.events
	s.mu.Unlock()
	if h.OnDisconnected != nil {
		h.OnDisconnected(reason)
	}
}

func (s *fakeSession) fireParticipantJoined(id string) {
	s.mu.Lock()
	h := s.events
	s.mu.Unlock()
	if h.OnParticipantJoined != nil {
		h.OnParticipantJoined(id)
	}
}

type fakeTransport struct {
	mu        sync.Mutex
	sessions  []*fakeSession
	dialCount int
	dialDelay time.Duration
	// dialErrAfter fails every dial past the first n successful ones
	dialErr      error
	dialErrAfter int
}

func (t *fakeTransport) Dial(ctx context.Context, endpoint, roomID, credential string, events core.SessionEvents) (core.SessionHandle, error) {
	t.mu.Lock()
	t.dialCount++
	count := t.dialCount
	delay := t.dialDelay
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil && count > t.dialErrAfter {
		return nil, t.dialErr
	}
	s := newFakeSession(roomID, events)
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialCount
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[i]
}

func (t *fakeTransport) sessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

type fakeEngine struct {
	mu                 sync.Mutex
	captures           int
	requests           []core.CaptureRequest
	captureErr         error
	constraintFailOnce bool
	tracks             []*fakeTrack
}

func (e *fakeEngine) Enumerate() ([]core.DeviceInfo, error) { return nil, nil }

func (e *fakeEngine) Capture(ctx context.Context, req core.CaptureRequest) ([]core.LocalTrack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captures++
	e.requests = append(e.requests, req)
	if e.constraintFailOnce && req.AudioProfile == core.AudioProfileEnhanced {
		e.constraintFailOnce = false
		return nil, core.ErrConstraintUnsatisfied
	}
	if e.captureErr != nil {
		return nil, e.captureErr
	}
	var out []core.LocalTrack
	if req.Video {
		t := newFakeTrack(fmt.Sprintf("v-%d", e.captures), core.TrackKindVideo)
		e.tracks = append(e.tracks, t)
		out = append(out, t)
	}
	if req.Audio {
		t := newFakeTrack(fmt.Sprintf("a-%d", e.captures), core.TrackKindAudio)
		e.tracks = append(e.tracks, t)
		out = append(out, t)
	}
	return out, nil
}

// eventually polls cond until it holds or the deadline passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
