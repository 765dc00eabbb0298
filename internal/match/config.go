package match

import (
	"context"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

type Config struct {
	ClockSeconds int
	// TickInterval drives the clocks. ManualClock turns the wall-clock ticker
	// off and leaves ticking to the caller.
	TickInterval        time.Duration
	ManualClock         bool
	MaxDrawOffers       int
	DrawCooldown        time.Duration
	DrawResponseTimeout time.Duration
	OracleTimeout       time.Duration
	EngineTimeout       time.Duration
	QueueSize           int
	Now                 func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ClockSeconds:        600,
		TickInterval:        time.Second,
		MaxDrawOffers:       3,
		DrawCooldown:        30 * time.Second,
		DrawResponseTimeout: 30 * time.Second,
		OracleTimeout:       2 * time.Second,
		EngineTimeout:       5 * time.Second,
		QueueSize:           32,
		Now:                 time.Now,
	}
}

// WithDefaults fills every unset field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ClockSeconds <= 0 {
		c.ClockSeconds = d.ClockSeconds
	}
	switch {
	case c.ManualClock:
		c.TickInterval = 0
	case c.TickInterval <= 0:
		c.TickInterval = d.TickInterval
	}
	if c.MaxDrawOffers <= 0 {
		c.MaxDrawOffers = d.MaxDrawOffers
	}
	if c.DrawCooldown <= 0 {
		c.DrawCooldown = d.DrawCooldown
	}
	if c.DrawResponseTimeout <= 0 {
		c.DrawResponseTimeout = d.DrawResponseTimeout
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = d.OracleTimeout
	}
	if c.EngineTimeout <= 0 {
		c.EngineTimeout = d.EngineTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Notifier delivers envelopes to a participant. Implementations must not block.
type Notifier interface {
	Notify(identity string, mode Mode, env arenadto.Envelope)
}

type NotifierFunc func(identity string, mode Mode, env arenadto.Envelope)

func (f NotifierFunc) Notify(identity string, mode Mode, env arenadto.Envelope) {
	f(identity, mode, env)
}

// Computer answers with a UCI move for the side to move.
type Computer interface {
	Reply(ctx context.Context, fen string, difficulty int) (string, error)
}

// Journal receives a record after every state change. Implementations must not block.
type Journal interface {
	Record(rec Record)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Mode, arenadto.Envelope) {}

type nopJournal struct{}

func (nopJournal) Record(Record) {}
