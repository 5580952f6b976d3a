package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumacart/broadcast/internal/domain"
)

func TestStartBroadcast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/broadcasts", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Launch Day", body["title"])

		json.NewEncoder(w).Encode(map[string]string{
			"broadcastId": "bc-42",
			"roomName":    "room-42",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token")
	b, err := c.StartBroadcast(context.Background(), "Launch Day", "spring lineup")
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastID("bc-42"), b.ID)
	assert.Equal(t, domain.RoomName("room-42"), b.Room)
	assert.Equal(t, "Launch Day", b.Title)
	assert.False(t, b.StartedAt.IsZero())
}

func TestEndBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		wantErr bool
	}{
		{"acknowledged", true, false},
		{"rejected", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/broadcasts/end", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]bool{"success": tt.success})
			}))
			defer srv.Close()

			err := NewClient(srv.URL, "secret-token").EndBroadcast(context.Background(), "bc-42")
			if tt.wantErr {
				assert.ErrorContains(t, err, "bc-42")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActiveBroadcastNoneIsNil(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		b, err := NewClient(srv.URL, "secret-token").ActiveBroadcast(context.Background())
		srv.Close()
		require.NoError(t, err)
		assert.Nil(t, b, "status %d means no active broadcast", status)
	}
}

func TestActiveBroadcastDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/broadcasts/active", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "bc-7", "room": "room-7"})
	}))
	defer srv.Close()

	b, err := NewClient(srv.URL, "secret-token").ActiveBroadcast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, domain.BroadcastID("bc-7"), b.ID)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/me", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "u-1", "name": "Dana", "role": "presenter"})
	}))
	defer srv.Close()

	actor, err := NewClient(srv.URL, "secret-token").Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u-1"), actor.ID)
	assert.Equal(t, domain.RolePresenter, actor.Role)
	assert.True(t, actor.Role.CanBroadcast())
}

func TestSessionToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "room-7", body["roomName"])
		json.NewEncoder(w).Encode(map[string]string{"token": "jwt-abcdefgh"})
	}))
	defer srv.Close()

	token, err := NewClient(srv.URL, "secret-token").SessionToken(context.Background(), "room-7")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abcdefgh", token)
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "secret-token").StartBroadcast(context.Background(), "t", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
}
