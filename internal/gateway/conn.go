package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// StatusReplaced closes a socket superseded by a newer one for the same
// identity and mode.
const StatusReplaced websocket.StatusCode = 4000

const writeWait = 10 * time.Second

// Conn is one accepted game socket. Writes go through a bounded queue
// drained by writeLoop; a full queue drops the envelope.
type Conn struct {
	id       uint64
	identity string
	mode     match.Mode
	ws       *websocket.Conn
	send     chan arenadto.Envelope
	log      *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id uint64, identity string, mode match.Mode, ws *websocket.Conn, queue int, log *zap.Logger) *Conn {
	if queue <= 0 {
		queue = 64
	}
	return &Conn{
		id:       id,
		identity: identity,
		mode:     mode,
		ws:       ws,
		send:     make(chan arenadto.Envelope, queue),
		log:      log.With(zap.String("identity", identity), zap.String("mode", string(mode)), zap.Uint64("conn", id)),
		done:     make(chan struct{}),
	}
}

func (c *Conn) Identity() string      { return c.identity }
func (c *Conn) Mode() match.Mode      { return c.mode }
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send queues env without blocking. It reports false when the envelope was
// dropped.
func (c *Conn) Send(env arenadto.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		c.log.Warn("gateway_queue_full", zap.String("type", env.Type))
		return false
	}
}

// Close stops the write loop and performs the close handshake once.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.ws.Close(code, reason); err != nil {
			c.log.Debug("gateway_close", zap.Error(err))
		}
	})
}

func (c *Conn) writeLoop(ctx context.Context, ping time.Duration) {
	if ping <= 0 {
		ping = 30 * time.Second
	}
	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case env := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(wctx, c.ws, env)
			cancel()
			if err != nil {
				c.log.Debug("gateway_write_failed", zap.String("type", env.Type), zap.Error(err))
				go c.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug("gateway_ping_failed", zap.Error(err))
				go c.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
