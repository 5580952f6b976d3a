package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/adapters/api"
	"github.com/lumacart/broadcast/internal/adapters/chat"
	"github.com/lumacart/broadcast/internal/core"
	"github.com/lumacart/broadcast/internal/domain"
	"github.com/lumacart/broadcast/internal/media"
	"github.com/lumacart/broadcast/internal/session"
)

type Handlers struct {
	ctrl         *session.Controller
	inventory    *media.Inventory
	platform     *api.Client
	chatEndpoint string

	mu      sync.Mutex
	current *domain.Broadcast
	feed    *chat.Feed
}

func NewHandlers(ctrl *session.Controller, inventory *media.Inventory, platform *api.Client, chatEndpoint string) *Handlers {
	return &Handlers{ctrl: ctrl, inventory: inventory, platform: platform, chatEndpoint: chatEndpoint}
}

type statusResponse struct {
	ConnectionState        string `json:"connection_state"`
	IsPublishingVideo      bool   `json:"is_publishing_video"`
	IsPublishingAudio      bool   `json:"is_publishing_audio"`
	MediaError             string `json:"media_error,omitempty"`
	SessionError           string `json:"session_error,omitempty"`
	RemoteParticipantCount int    `json:"remote_participant_count"`
}

func toStatusResponse(st session.Status) statusResponse {
	out := statusResponse{
		ConnectionState:        st.ConnectionState.String(),
		IsPublishingVideo:      st.IsPublishingVideo,
		IsPublishingAudio:      st.IsPublishingAudio,
		RemoteParticipantCount: st.RemoteParticipantCount,
	}
	if st.MediaError != nil {
		out.MediaError = st.MediaError.Error()
	}
	if st.SessionError != nil {
		out.SessionError = st.SessionError.Error()
	}
	return out
}

func (h *Handlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResponse(h.ctrl.Status()))
}

func (h *Handlers) GetDevices(c *gin.Context) {
	devices, err := h.inventory.ListDevices()
	if err != nil {
		// Enumeration denial is not fatal; report empty lists with the cause.
		c.JSON(http.StatusOK, gin.H{"cameras": []media.DeviceDescriptor{}, "microphones": []media.DeviceDescriptor{}, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

type selectDevicesRequest struct {
	CameraID     string `json:"camera_id"`
	MicrophoneID string `json:"microphone_id"`
}

func (h *Handlers) SelectDevices(c *gin.Context) {
	var req selectDevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.ctrl.SetDeviceSelection(media.Selection{CameraID: req.CameraID, MicrophoneID: req.MicrophoneID})
	c.Status(http.StatusNoContent)
}

type startLiveRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// StartLive runs the go-live flow: register the broadcast, fetch a session
// token, force both intents on (going live requires video and audio), then
// connect.
func (h *Handlers) StartLive(c *gin.Context) {
	var req startLiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	actor, err := h.platform.Me(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !actor.Role.CanBroadcast() {
		c.JSON(http.StatusForbidden, gin.H{"error": "role " + string(actor.Role) + " cannot broadcast"})
		return
	}

	b, err := h.platform.StartBroadcast(ctx, req.Title, req.Description)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	token, err := h.platform.SessionToken(ctx, b.Room)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	_ = h.ctrl.SetVideoIntent(ctx, true)
	_ = h.ctrl.SetAudioIntent(ctx, true)

	if err := h.ctrl.Connect(ctx, string(b.Room), token); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrInvalidConnectionParameters) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	feed := h.dialChatFeed(ctx, token, b.Room)

	h.mu.Lock()
	h.current = b
	if h.feed != nil {
		h.feed.Close()
	}
	h.feed = feed
	h.mu.Unlock()

	log.Info().Str("module", "adapters.http").Str("broadcast", string(b.ID)).Str("room", string(b.Room)).Msg("live")
	c.JSON(http.StatusOK, b)
}

// dialChatFeed is best effort; a broadcast without chat is still a broadcast.
func (h *Handlers) dialChatFeed(ctx context.Context, token string, room domain.RoomName) *chat.Feed {
	if h.chatEndpoint == "" {
		return nil
	}
	feed, err := chat.Dial(ctx, h.chatEndpoint, token, room, chat.Handlers{
		OnComment: func(c chat.Comment) {
			log.Info().Str("module", "chat").Str("author", string(c.Author)).Str("body", c.Body).Msg("comment")
		},
		OnReaction: func(r chat.Reaction) {
			log.Info().Str("module", "chat").Str("author", string(r.Author)).Str("emote", r.Emote).Msg("reaction")
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("chat feed unavailable")
		return nil
	}
	return feed
}

func (h *Handlers) StopLive(c *gin.Context) {
	h.mu.Lock()
	b := h.current
	h.current = nil
	feed := h.feed
	h.feed = nil
	h.mu.Unlock()

	if feed != nil {
		feed.Close()
	}
	h.ctrl.Teardown()

	if b != nil {
		if err := h.platform.EndBroadcast(c.Request.Context(), b.ID); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

type intentRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handlers) SetVideoIntent(c *gin.Context) {
	h.setIntent(c, h.ctrl.SetVideoIntent)
}

func (h *Handlers) SetAudioIntent(c *gin.Context) {
	h.setIntent(c, h.ctrl.SetAudioIntent)
}

func (h *Handlers) setIntent(c *gin.Context, set func(ctx context.Context, enabled bool) error) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := set(c.Request.Context(), *req.Enabled); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": toStatusResponse(h.ctrl.Status())})
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(h.ctrl.Status()))
}
