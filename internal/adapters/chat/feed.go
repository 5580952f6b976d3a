// Package chat consumes the real-time chat and reaction fan-out channel.
// It is independent of the session controller.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/domain"
)

type Comment struct {
	ID     string        `json:"id"`
	Author domain.UserID `json:"author"`
	Body   string        `json:"body"`
	SentAt time.Time     `json:"sent_at"`
}

type Reaction struct {
	Author domain.UserID `json:"author"`
	Emote  string        `json:"emote"`
}

// Handlers receive feed events. Nil fields are skipped.
type Handlers struct {
	OnComment  func(Comment)
	OnReaction func(Reaction)
}

type feedEnvelope struct {
	Type     string   `json:"type"`
	Comment  Comment  `json:"comment,omitempty"`
	Reaction Reaction `json:"reaction,omitempty"`
}

// Feed is one live subscription to a broadcast's chat channel.
type Feed struct {
	conn     *websocket.Conn
	handlers Handlers
	limiter  *ReactionLimiter
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Dial subscribes to the chat feed for room. The feed reads until closed or
// the server drops the socket.
func Dial(ctx context.Context, endpoint, credential string, room domain.RoomName, handlers Handlers) (*Feed, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint+"?room="+string(room), header)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		conn:     conn,
		handlers: handlers,
		limiter:  NewReactionLimiter(10, time.Second),
		cancel:   cancel,
	}
	go f.readPump(fctx)
	return f, nil
}

func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()
	f.cancel()
	_ = f.conn.Close()
}

func (f *Feed) readPump(ctx context.Context) {
	defer log.Info().Str("module", "chat").Msg("feed closed")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := f.conn.ReadMessage()
			if err != nil {
				f.mu.Lock()
				closed := f.closed
				f.mu.Unlock()
				if !closed {
					log.Error().Err(err).Str("module", "chat").Msg("feed read error")
				}
				return
			}
			f.dispatch(data)
		}
	}
}

func (f *Feed) dispatch(data []byte) {
	var env feedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("bad feed json")
		return
	}
	switch env.Type {
	case "comment":
		if f.handlers.OnComment != nil {
			f.handlers.OnComment(env.Comment)
		}
	case "reaction":
		// Reaction floods are dropped per author, not surfaced.
		if !f.limiter.Allow(env.Reaction.Author) {
			return
		}
		if f.handlers.OnReaction != nil {
			f.handlers.OnReaction(env.Reaction)
		}
	default:
		log.Warn().Str("module", "chat").Str("type", env.Type).Msg("unknown feed event")
	}
}
