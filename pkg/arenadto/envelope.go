package arenadto

import (
	"bytes"
	"encoding/json"
)

// Envelope is the frame exchanged on the game socket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into a typed envelope. A nil payload is omitted.
func NewEnvelope(typ string, payload any) Envelope {
	if payload == nil {
		return Envelope{Type: typ}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	return Envelope{Type: typ, Payload: raw}
}

// Decode unmarshals the payload into v. Empty and null payloads leave v untouched.
func (e Envelope) Decode(v any) error {
	p := bytes.TrimSpace(e.Payload)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil
	}
	return json.Unmarshal(p, v)
}

// Client → server
const (
	TypeInitGame         = "init_game"
	TypeCancelMatching   = "cancel_matching"
	TypeInitRoomGame     = "init_room_game"
	TypeInitComputerGame = "init_computer_game"
	TypeMove             = "move"
	TypeOfferDraw        = "offer_draw"
	TypeAcceptDraw       = "accept_draw"
	TypeRejectDraw       = "reject_draw"
	TypeResign           = "resign"
	TypeAbort            = "abort"
	TypeLeaveRoom        = "leave_room"
	TypeReconnect        = "reconnect"
)

// Server → client
const (
	TypeWaitingForOpponent = "waiting_for_opponent"
	TypeMatchingCancelled  = "matching_cancelled"
	TypeRoomWaiting        = "room_waiting"
	TypeRoomReady          = "room_ready"
	TypeRoomCancelled      = "room_cancelled"
	TypeGameActive         = "game_active"
	TypeExistingGameFound  = "existing_game_found"
	TypeCheckMove          = "check_move"
	TypeTimer              = "timer"
	TypeGameOver           = "game_over"
	TypeGameDrawn          = "game_drawn"
	TypeTimeExceeded       = "time_exceeded"
	TypeDrawOffered        = "draw_offered"
	TypeDrawOfferSent      = "draw_offer_sent"
	TypeDrawAccepted       = "draw_accepted"
	TypeDrawRejected       = "draw_rejected"
	TypeOppDisconnected    = "opp_disconnected"
	TypeOppReconnected     = "opp_reconnected"
	TypePlayerLeft         = "player_left"
)

// Error envelope types. The payload is a DomainError.
const (
	TypeWrongPlayerMove  = "wrong_player_move"
	TypeIllegalMove      = "illegal_move"
	TypePayloadError     = "payload_error"
	TypeServerError      = "server_error"
	TypeUnauthorized     = "unauthorized"
	TypeNotFound         = "not_found"
	TypeConflict         = "conflict"
	TypeMatchEnded       = "match_ended"
	TypeNoActiveSession  = "no_active_session"
	TypeDrawLimitReached = "draw_limit_reached"
	TypeDrawCooldown     = "draw_cooldown"
)
