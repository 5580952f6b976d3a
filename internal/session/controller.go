// Package session owns the broadcast session lifecycle: connection
// establishment, local capture, track publishing and reconnection. UI
// surfaces consume the controller's public contract and nothing below it.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/core"
	"github.com/lumacart/broadcast/internal/media"
)

const minCredentialLen = 8

type Config struct {
	Endpoint             string
	ConnectTimeout       time.Duration
	DisconnectTimeout    time.Duration
	PublishTimeout       time.Duration
	SettleDelay          time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

func (cfg Config) withDefaults() Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 45 * time.Second
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 3 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	return cfg
}

// Controller is the session state machine. It owns the single live
// SessionHandle and the single CaptureHandle, drives the capturer and
// publisher, and absorbs transport events. All the flags that guard
// overlapping async operations live here, with guaranteed resets.
type Controller struct {
	cfg       Config
	transport core.SessionTransport
	capturer  *media.Capturer
	publisher *Publisher

	// connectMu strictly serializes connect/teardown sequences; the
	// underlying transport does not serialize for us.
	connectMu sync.Mutex

	mu                sync.Mutex
	state             core.ConnectionState
	session           core.SessionHandle
	handle            *media.Handle
	intent            core.Intent
	selection         media.Selection
	roomID            string
	credential        string
	epoch             uint64
	reconnectPending  bool
	reconnectAttempts int
	remote            map[string]struct{}
	mediaErr          error
	sessionErr        error
	settleTimer       *time.Timer
	reconnectTimer    *time.Timer

	subs    map[int]func(Status)
	nextSub int
}

func NewController(cfg Config, transport core.SessionTransport, engine core.MediaEngine) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:       cfg,
		transport: transport,
		capturer:  media.NewCapturer(engine),
		publisher: NewPublisher(cfg.PublishTimeout),
		state:     core.StateIdle,
		intent:    core.Intent{Video: true, Audio: true},
		subs:      make(map[int]func(Status)),
	}
}

// SetDeviceSelection pins capture to specific devices for the next capture
// start. It does not restart a running capture.
func (c *Controller) SetDeviceSelection(sel media.Selection) {
	c.mu.Lock()
	c.selection = sel
	c.mu.Unlock()
}

func (c *Controller) Intent() core.Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ConnectionState:        c.state,
		IsPublishingVideo:      c.publisher.IsPublishing(core.TrackKindVideo),
		IsPublishingAudio:      c.publisher.IsPublishing(core.TrackKindAudio),
		MediaError:             c.mediaErr,
		SessionError:           c.sessionErr,
		RemoteParticipantCount: len(c.remote),
	}
}

// Subscribe registers a status listener and pushes the current snapshot
// immediately. The returned func removes the listener.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	fn(c.Status())
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	st := c.Status()
	c.mu.Lock()
	fns := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func validateParams(endpoint, roomID, credential string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", core.ErrInvalidConnectionParameters)
	}
	if len(credential) < minCredentialLen || strings.ContainsAny(credential, " \t\r\n") {
		return fmt.Errorf("%w: malformed credential", core.ErrInvalidConnectionParameters)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: endpoint not configured", core.ErrInvalidConnectionParameters)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: endpoint scheme %q, want ws or wss", core.ErrInvalidConnectionParameters, u.Scheme)
	}
	return nil
}

// Connect establishes a session to roomID. Parameter violations reject
// synchronously without network I/O. If another room is connected or
// connecting, its handle is fully torn down first; one controller never
// holds two live sessions.
func (c *Controller) Connect(ctx context.Context, roomID, credential string) error {
	if err := validateParams(c.cfg.Endpoint, roomID, credential); err != nil {
		return err
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	// A user connect restarts the flow: the reconnect budget is reset and
	// any pending retry is abandoned.
	c.mu.Lock()
	c.reconnectAttempts = 0
	c.stopReconnectLocked()
	c.mu.Unlock()

	return c.dial(ctx, roomID, credential, false)
}

// dial runs one full connect sequence. Caller must hold connectMu. A failed
// reconnect dial lands back in Disconnected so the retry schedule owns the
// Failed transition; Failed stays terminal.
func (c *Controller) dial(ctx context.Context, roomID, credential string, reconnect bool) error {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	prior := c.session
	c.session = nil
	c.stopSettleLocked()
	c.roomID, c.credential = roomID, credential
	c.sessionErr = nil
	c.remote = nil
	if prior != nil {
		c.state = core.StateDisconnecting
	} else {
		c.state = core.StateConnecting
	}
	c.mu.Unlock()
	c.notify()

	if prior != nil {
		c.publisher.Reset()
		c.closeSession(prior)
		c.mu.Lock()
		c.state = core.StateConnecting
		c.mu.Unlock()
		c.notify()
	}

	events := core.SessionEvents{
		OnDisconnected:      func(reason string) { c.onDisconnected(epoch, reason) },
		OnParticipantJoined: func(id string) { c.onParticipant(epoch, id, true) },
		OnParticipantLeft:   func(id string) { c.onParticipant(epoch, id, false) },
		OnMediaError:        func(err error) { c.onMediaError(epoch, err) },
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	h, err := c.transport.Dial(dctx, c.cfg.Endpoint, roomID, credential, events)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			if reconnect {
				c.state = core.StateDisconnected
			} else {
				c.state = core.StateFailed
				c.sessionErr = err
			}
		}
		c.mu.Unlock()
		c.notify()
		log.Error().Err(err).Str("module", "session").Str("room", roomID).Msg("connect failed")
		return err
	}

	c.mu.Lock()
	c.session = h
	c.state = core.StateConnected
	c.remote = make(map[string]struct{})
	for _, id := range h.RemoteParticipants() {
		c.remote[id] = struct{}{}
	}
	c.publisher.Bind(h)
	// Publishing immediately on connect is unreliable; let the transport
	// stabilize first.
	c.settleTimer = time.AfterFunc(c.cfg.SettleDelay, func() { c.settle(epoch) })
	c.mu.Unlock()
	c.notify()

	log.Info().Str("module", "session").Str("room", roomID).Str("identity", h.LocalIdentity()).Msg("connected")
	return nil
}

// settle runs once per connection, after the settle delay: capture local
// media if missing, then reconcile publications with the current intent.
func (c *Controller) settle(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != core.StateConnected {
		c.mu.Unlock()
		return
	}
	intent := c.intent
	sel := c.selection
	handle := c.handle
	c.mu.Unlock()

	if intent.None() {
		return
	}

	if needsCaptureRestart(handle, intent) {
		h, err := c.capturer.Start(context.Background(), intent, sel)
		if err != nil {
			c.setMediaError(err)
			return
		}
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			c.capturer.Stop(h)
			return
		}
		c.handle = h
		c.mu.Unlock()
		handle = h
	}

	c.reconcile(context.Background(), handle, intent)
}

func (c *Controller) reconcile(ctx context.Context, handle *media.Handle, intent core.Intent) {
	err := c.publisher.Reconcile(ctx, handle, intent)
	c.mu.Lock()
	c.mediaErr = err
	c.mu.Unlock()
	c.notify()
}

// SetVideoIntent updates intent synchronously, adjusts local capture, and
// reconciles if connected. When not connected, reconciliation is deferred to
// the next Connected entry.
func (c *Controller) SetVideoIntent(ctx context.Context, enabled bool) error {
	return c.setIntent(ctx, core.TrackKindVideo, enabled)
}

func (c *Controller) SetAudioIntent(ctx context.Context, enabled bool) error {
	return c.setIntent(ctx, core.TrackKindAudio, enabled)
}

func (c *Controller) setIntent(ctx context.Context, kind core.TrackKind, enabled bool) error {
	c.mu.Lock()
	if kind == core.TrackKindVideo {
		c.intent.Video = enabled
	} else {
		c.intent.Audio = enabled
	}
	intent := c.intent
	sel := c.selection
	handle := c.handle
	state := c.state
	epoch := c.epoch
	c.mu.Unlock()

	switch {
	case intent.None():
		// Both off releases hardware entirely.
		if handle != nil {
			c.capturer.Stop(handle)
			c.mu.Lock()
			if c.handle == handle {
				c.handle = nil
			}
			c.mu.Unlock()
			handle = nil
		}
	case enabled && needsCaptureRestart(handle, intent):
		h, err := c.capturer.Start(ctx, intent, sel)
		if err != nil {
			c.setMediaError(err)
			return err
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.handle = h
			c.mu.Unlock()
		} else {
			c.mu.Unlock()
			c.capturer.Stop(h)
			return nil
		}
		handle = h
	default:
		c.capturer.SetTrackEnabled(handle, kind, enabled)
	}

	if state == core.StateConnected {
		c.reconcile(ctx, handle, intent)
		return nil
	}
	c.notify()
	return nil
}

// needsCaptureRestart reports whether an enabled kind has no live track.
func needsCaptureRestart(handle *media.Handle, intent core.Intent) bool {
	if handle == nil {
		return intent.Any()
	}
	if intent.Video && !handle.Live(core.TrackKindVideo) {
		return true
	}
	if intent.Audio && !handle.Live(core.TrackKindAudio) {
		return true
	}
	return false
}

func (c *Controller) onDisconnected(epoch uint64, reason string) {
	c.mu.Lock()
	if c.epoch != epoch || c.session == nil {
		c.mu.Unlock()
		return
	}
	h := c.session
	c.session = nil
	c.state = core.StateDisconnected
	c.remote = nil
	c.stopSettleLocked()
	// Intent survives disconnects. Reconnection is the policy's job, never
	// this handler's; dialing from here is how reconnect storms start.
	if c.intent.Any() && c.roomID != "" {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.publisher.Reset()
	h.Unbind()
	c.notify()
	log.Warn().Str("module", "session").Str("reason", reason).Msg("session disconnected")
}

// scheduleReconnectLocked debounces, deduplicates and bounds reconnect
// attempts. Caller holds c.mu.
func (c *Controller) scheduleReconnectLocked() {
	if c.reconnectPending {
		return
	}
	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		c.state = core.StateFailed
		c.sessionErr = core.ErrReconnectExhausted
		log.Error().Str("module", "session").Int("attempts", c.reconnectAttempts).Msg("giving up on reconnect")
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.reconnectPending = true
	delay := time.Duration(attempt) * c.cfg.ReconnectDelay
	c.reconnectTimer = time.AfterFunc(delay, c.runReconnect)
	log.Info().Str("module", "session").Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
}

func (c *Controller) runReconnect() {
	c.mu.Lock()
	c.reconnectPending = false
	room, cred := c.roomID, c.credential
	ok := c.state == core.StateDisconnected && c.intent.Any() && room != ""
	c.mu.Unlock()
	if !ok {
		return
	}

	if !c.connectMu.TryLock() {
		// A connect or teardown is already in flight; do not stack another.
		log.Debug().Str("module", "session").Msg("reconnect skipped, connect in flight")
		return
	}
	defer c.connectMu.Unlock()

	if err := c.dial(context.Background(), room, cred, true); err != nil {
		c.mu.Lock()
		if c.reconnectAttempts < c.cfg.MaxReconnectAttempts {
			c.scheduleReconnectLocked()
		} else {
			c.state = core.StateFailed
			c.sessionErr = core.ErrReconnectExhausted
		}
		c.mu.Unlock()
		c.notify()
	}
}

func (c *Controller) onParticipant(epoch uint64, identity string, joined bool) {
	c.mu.Lock()
	if c.epoch != epoch || c.remote == nil {
		c.mu.Unlock()
		return
	}
	if joined {
		c.remote[identity] = struct{}{}
	} else {
		delete(c.remote, identity)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) onMediaError(epoch uint64, err error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.mediaErr = err
	c.mu.Unlock()
	c.notify()
	log.Warn().Err(err).Str("module", "session").Msg("media error from transport")
}

func (c *Controller) setMediaError(err error) {
	c.mu.Lock()
	c.mediaErr = err
	c.mu.Unlock()
	c.notify()
}

// Teardown returns the controller to Idle from any state: listeners removed
// before the transport disconnect, best-effort cleanup with bounded timeouts,
// every in-flight flag reset. Safe to call repeatedly and from handlers.
func (c *Controller) Teardown() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	c.epoch++
	h := c.session
	c.session = nil
	handle := c.handle
	c.handle = nil
	c.stopSettleLocked()
	c.stopReconnectLocked()
	c.reconnectAttempts = 0
	c.roomID, c.credential = "", ""
	c.remote = nil
	c.mediaErr, c.sessionErr = nil, nil
	if h != nil {
		c.state = core.StateDisconnecting
	}
	c.mu.Unlock()
	if h != nil {
		c.notify()
	}

	c.publisher.Reset()
	c.closeSession(h)
	c.capturer.Stop(handle)

	c.mu.Lock()
	c.state = core.StateIdle
	c.mu.Unlock()
	c.notify()
	log.Info().Str("module", "session").Msg("torn down")
}

// closeSession removes listeners first, then disconnects with a bounded
// timeout. Failures here are logged and swallowed; cleanup always finishes.
func (c *Controller) closeSession(h core.SessionHandle) {
	if h == nil {
		return
	}
	h.Unbind()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DisconnectTimeout)
	defer cancel()
	if err := h.Disconnect(ctx); err != nil && !errors.Is(err, core.ErrAlreadyDisconnected) {
		log.Debug().Err(err).Str("module", "session").Msg("disconnect during cleanup")
	}
}

func (c *Controller) stopSettleLocked() {
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

func (c *Controller) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
}
