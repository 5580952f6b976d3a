package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
)

const defaultPublishTimeout = 10 * time.Second

// TrackSource yields the local track for a kind, nil when absent.
// *media.Handle satisfies it.
type TrackSource interface {
	Track(kind core.TrackKind) core.LocalTrack
}

// PublicationRecord binds one local track to its outbound publication.
// For a given session and track kind at most one record exists.
type PublicationRecord struct {
	Kind          core.TrackKind
	TrackID       string
	PublicationID string

	pub core.Publication
}

// Publisher converges publication state with intent against the currently
// bound session. Reconcile is safe to call concurrently with itself; a
// per-kind in-flight flag makes the second caller observe "already
// publishing" and no-op instead of racing a second publish.
type Publisher struct {
	timeout time.Duration

	mu       sync.Mutex
	session  core.SessionHandle
	records  map[core.TrackKind]*PublicationRecord
	inflight map[core.TrackKind]bool
}

func NewPublisher(timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{
		timeout:  timeout,
		records:  make(map[core.TrackKind]*PublicationRecord),
		inflight: make(map[core.TrackKind]bool),
	}
}

// Bind points the publisher at a live session, dropping state from any prior
// one. Records never survive their session.
func (p *Publisher) Bind(s core.SessionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
	p.records = make(map[core.TrackKind]*PublicationRecord)
	p.inflight = make(map[core.TrackKind]bool)
}

// Reset clears everything; used on disconnect and teardown.
func (p *Publisher) Reset() {
	p.Bind(nil)
}

// Record returns a copy of the record for kind, if any.
func (p *Publisher) Record(kind core.TrackKind) (PublicationRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[kind]
	if !ok {
		return PublicationRecord{}, false
	}
	return *rec, true
}

// IsPublishing reports whether kind has a live, enabled publication.
func (p *Publisher) IsPublishing(kind core.TrackKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[kind]
	return ok && rec.pub.Enabled()
}

// Reconcile brings published state in line with intent for both kinds.
// Failures are per-kind and non-fatal; the joined error reports them all.
func (p *Publisher) Reconcile(ctx context.Context, source TrackSource, intent core.Intent) error {
	var video, audio core.LocalTrack
	if source != nil {
		video = source.Track(core.TrackKindVideo)
		audio = source.Track(core.TrackKindAudio)
	}
	return errors.Join(
		p.reconcileKind(ctx, core.TrackKindVideo, video, intent.Wants(core.TrackKindVideo)),
		p.reconcileKind(ctx, core.TrackKindAudio, audio, intent.Wants(core.TrackKindAudio)),
	)
}

func (p *Publisher) reconcileKind(ctx context.Context, kind core.TrackKind, track core.LocalTrack, want bool) error {
	p.mu.Lock()
	sess := p.session
	if sess == nil {
		p.mu.Unlock()
		return nil
	}
	rec := p.records[kind]

	if !want {
		// Leave the publication present-but-disabled; toggling back on is
		// then free.
		if track != nil {
			track.SetEnabled(false)
		}
		if rec != nil {
			rec.pub.SetEnabled(false)
		}
		p.mu.Unlock()
		return nil
	}

	if track == nil {
		p.mu.Unlock()
		return nil
	}

	// Match by track identity, not kind: a capture restart produces a new
	// identity and the old publication must be retired.
	if rec != nil && rec.TrackID == track.ID() {
		track.SetEnabled(true)
		rec.pub.SetEnabled(true)
		p.mu.Unlock()
		return nil
	}

	if p.inflight[kind] {
		log.Debug().Str("module", "session.publisher").Str("kind", string(kind)).Msg("publish already in flight")
		p.mu.Unlock()
		return nil
	}
	if !track.Live() {
		p.mu.Unlock()
		return nil
	}

	stale := rec
	delete(p.records, kind)
	p.inflight[kind] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight[kind] = false
		p.mu.Unlock()
	}()

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if stale != nil {
		if err := sess.Unpublish(pctx, stale.TrackID); err != nil {
			log.Debug().Err(err).Str("module", "session.publisher").Str("kind", string(kind)).Msg("retiring stale publication")
		}
	}

	track.SetEnabled(true)
	pub, err := sess.Publish(pctx, track)
	if err != nil {
		var dup *core.DuplicatePublicationError
		if errors.As(err, &dup) {
			// Legitimate under concurrent calls; adopt the existing record.
			log.Debug().Str("module", "session.publisher").Str("kind", string(kind)).Msg("adopting duplicate publication")
			pub = dup.Existing
		} else {
			return &core.PublishFailedError{Kind: kind, Err: err}
		}
	}

	p.mu.Lock()
	if p.session != sess {
		// The session changed while publishing; this result is stale and
		// must not be recorded against the new session.
		p.mu.Unlock()
		log.Debug().Str("module", "session.publisher").Str("kind", string(kind)).Msg("discarding publish result for replaced session")
		return nil
	}
	pub.SetEnabled(true)
	p.records[kind] = &PublicationRecord{
		Kind:          kind,
		TrackID:       track.ID(),
		PublicationID: pub.ID(),
		pub:           pub,
	}
	p.mu.Unlock()

	log.Info().
		Str("module", "session.publisher").
		Str("kind", string(kind)).
		Str("track_id", track.ID()).
		Str("publication_id", pub.ID()).
		Msg("published")
	return nil
}
