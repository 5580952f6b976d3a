// Package api is the typed client for the platform's broadcast endpoints:
// session tokens and the broadcast lifecycle.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumacart/broadcast/internal/domain"
)

type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

type startRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type startResponse struct {
	BroadcastID domain.BroadcastID `json:"broadcastId"`
	RoomName    domain.RoomName    `json:"roomName"`
}

type endRequest struct {
	BroadcastID domain.BroadcastID `json:"broadcastId"`
}

type endResponse struct {
	Success bool `json:"success"`
}

type tokenRequest struct {
	RoomName domain.RoomName `json:"roomName"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Me resolves the authenticated identity behind the API token.
func (c *Client) Me(ctx context.Context) (*domain.Actor, error) {
	var actor domain.Actor
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// StartBroadcast registers a new broadcast and returns its id and room.
func (c *Client) StartBroadcast(ctx context.Context, title, description string) (*domain.Broadcast, error) {
	var resp startResponse
	err := c.do(ctx, http.MethodPost, "/v1/broadcasts", startRequest{Title: title, Description: description}, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.Broadcast{
		ID:          resp.BroadcastID,
		Room:        resp.RoomName,
		Title:       title,
		Description: description,
		StartedAt:   time.Now(),
	}, nil
}

func (c *Client) EndBroadcast(ctx context.Context, id domain.BroadcastID) error {
	var resp endResponse
	if err := c.do(ctx, http.MethodPost, "/v1/broadcasts/end", endRequest{BroadcastID: id}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("broadcast %s not ended", id)
	}
	return nil
}

// ActiveBroadcast returns the caller's live broadcast, or nil when none.
func (c *Client) ActiveBroadcast(ctx context.Context) (*domain.Broadcast, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/broadcasts/active", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, statusError(res)
	}
	var b domain.Broadcast
	if err := json.NewDecoder(res.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode active broadcast: %w", err)
	}
	return &b, nil
}

// SessionToken fetches a room join credential.
func (c *Client) SessionToken(ctx context.Context, room domain.RoomName) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/token", tokenRequest{RoomName: room}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("api %s: status %d: %s", res.Request.URL.Path, res.StatusCode, bytes.TrimSpace(b))
}
