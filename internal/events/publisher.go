package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rooms"
	"go.uber.org/zap"
)

// Publisher announces settled matches and room changes to other services.
// Calls never block on the network beyond the client's write buffer.
type Publisher interface {
	MatchFinished(m *domain.MatchRecord)
	RoomChanged(r rooms.Room)
	Close() error
}

type MatchFinishedEvent struct {
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	White      string    `json:"white"`
	Black      string    `json:"black"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Moves      int       `json:"moves"`
	PGN        string    `json:"pgn"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
}

type RoomChangedEvent struct {
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatorID string    `json:"creator_id"`
	Occupants []string  `json:"occupants"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	nc     conn
	prefix string
	log    *zap.Logger
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, prefix string) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("NATS_URL is required")
	}
	nc, err := nats.Connect(url,
		nats.Name("cheese-arena"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, prefix), nil
}

func newPublisher(nc conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "arena"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: obslog.Named("events")}
}

func (p *NATSPublisher) MatchFinished(m *domain.MatchRecord) {
	if m == nil {
		return
	}
	p.publish(p.prefix+".match.finished", MatchFinishedEvent{
		SessionID:  m.SessionID,
		Mode:       m.Mode,
		White:      m.WhiteID,
		Black:      m.BlackID,
		Result:     m.Result,
		Method:     m.ResultMethod,
		Moves:      len(m.MovesUCI),
		PGN:        m.PGN,
		EndedAt:    m.EndedAt,
		DurationMS: m.Duration.Milliseconds(),
	})
}

func (p *NATSPublisher) RoomChanged(r rooms.Room) {
	p.publish(p.prefix+".room."+strings.ToLower(string(r.Status)), RoomChangedEvent{
		Code:      r.Code,
		Status:    string(r.Status),
		CreatorID: r.CreatorID,
		Occupants: append([]string{}, r.Occupants...),
		SessionID: r.SessionID,
		At:        r.UpdatedAt,
	})
}

func (p *NATSPublisher) publish(subject string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		p.log.Warn("event_encode_failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, raw); err != nil {
		p.log.Warn("event_publish_failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error { return p.nc.Drain() }

// Nop discards every event. Used when NATS_URL is unset.
type Nop struct{}

func (Nop) MatchFinished(*domain.MatchRecord) {}
func (Nop) RoomChanged(rooms.Room)            {}
func (Nop) Close() error                      { return nil }

// RoomMirror adapts a Publisher to rooms.Mirror.
type RoomMirror struct{ Publisher }

func (m RoomMirror) SaveRoom(r rooms.Room) { m.RoomChanged(r) }
