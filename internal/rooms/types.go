package rooms

import (
	"strings"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Status is the lifecycle of a private room.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusFull      Status = "FULL"
	StatusActive    Status = "ACTIVE"
	StatusFinished  Status = "FINISHED"
	StatusCancelled Status = "CANCELLED"
)

// open rooms hold their occupants.
func (s Status) open() bool {
	return s == StatusWaiting || s == StatusFull || s == StatusActive
}

// ColorChoice is the creator's color preference, applied at start.
type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

func ParseColorChoice(s string) ColorChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

const Capacity = 2

type Room struct {
	Code      string      `json:"code"`
	CreatorID string      `json:"creator_id"`
	Status    Status      `json:"status"`
	Occupants []string    `json:"occupants"`
	Color     ColorChoice `json:"color"`
	SessionID string      `json:"session_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (r Room) clone() Room {
	r.Occupants = append([]string{}, r.Occupants...)
	return r
}

func (r Room) Has(identity string) bool {
	for _, o := range r.Occupants {
		if o == identity {
			return true
		}
	}
	return false
}

// Joiner is the non-creator occupant, if any.
func (r Room) Joiner() string {
	for _, o := range r.Occupants {
		if o != r.CreatorID {
			return o
		}
	}
	return ""
}

func (r Room) DTO() arenadto.Room {
	return arenadto.Room{
		Code:      r.Code,
		CreatorID: r.CreatorID,
		Status:    string(r.Status),
		Occupants: append([]string{}, r.Occupants...),
		SessionID: r.SessionID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// LeaveResult tells the caller what a departure did.
type LeaveResult struct {
	Room Room
	// Evicted occupants must be told the room is gone.
	Evicted   []string
	Cancelled bool
	// SessionID is set when the room was ACTIVE; the caller resigns the leaver.
	SessionID string
}

// Mirror receives every room change. Implementations must not block.
type Mirror interface {
	SaveRoom(r Room)
}

// Mirrors fans one change out to several mirrors.
type Mirrors []Mirror

func (ms Mirrors) SaveRoom(r Room) {
	for _, m := range ms {
		if m != nil {
			m.SaveRoom(r.clone())
		}
	}
}

var (
	ErrInvalidArgs    = errf("invalid arguments")
	ErrAlreadyHasRoom = errf("creator already owns an open room")
	ErrAlreadyInRoom  = errf("identity already occupies another room")
	ErrRoomNotFound   = errf("room not found")
	ErrRoomFull       = errf("room is full")
	ErrNotCreator     = errf("only the room creator can do this")
	ErrNotOccupant    = errf("identity is not in this room")
	ErrRoomNotReady   = errf("room is not ready")
	ErrRoomActive     = errf("room has an active match")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
