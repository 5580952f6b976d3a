package domain

import "time"

type BroadcastID string
type RoomName string

type Broadcast struct {
	ID          BroadcastID `json:"id"`
	Room        RoomName    `json:"room"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartedAt   time.Time   `json:"started_at"`
}
