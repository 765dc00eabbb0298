package arenadto

import "time"

type Room struct {
	Code      string    `json:"code"`
	CreatorID string    `json:"creatorId"`
	Status    string    `json:"status"`
	Occupants []string  `json:"occupants"`
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Room   Room   `json:"room"`
}

// RoomActionResponse answers join/cancel/rematch.
type RoomActionResponse struct {
	Success bool   `json:"success"`
	Room    *Room  `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

type RoomList struct {
	Rooms []Room `json:"rooms"`
}
