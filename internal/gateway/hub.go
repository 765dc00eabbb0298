package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type connKey struct {
	identity string
	mode     match.Mode
}

// Hub tracks the current socket per (identity, mode) and delivers session
// output to it. It implements match.Notifier.
type Hub struct {
	msgs *msgcat.Catalog
	log  *zap.Logger
	seq  atomic.Uint64

	mu    sync.RWMutex
	conns map[connKey]*Conn
}

func NewHub(msgs *msgcat.Catalog) *Hub {
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	return &Hub{
		msgs:  msgs,
		log:   obslog.Named("gateway"),
		conns: make(map[connKey]*Conn),
	}
}

// register makes c current and returns the socket it replaced, if any.
func (h *Hub) register(c *Conn) *Conn {
	k := connKey{c.identity, c.mode}
	h.mu.Lock()
	prev := h.conns[k]
	h.conns[k] = c
	h.mu.Unlock()
	return prev
}

// unregister drops c and reports whether it was still current.
func (h *Hub) unregister(c *Conn) bool {
	k := connKey{c.identity, c.mode}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[k] != c {
		return false
	}
	delete(h.conns, k)
	return true
}

func (h *Hub) nextID() uint64 { return h.seq.Add(1) }

// Notify sends env to the identity's current socket. Offline identities are
// skipped; they resync on reconnect.
func (h *Hub) Notify(identity string, mode match.Mode, env arenadto.Envelope) {
	h.mu.RLock()
	c := h.conns[connKey{identity, mode}]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	c.Send(h.decorate(env))
}

func (h *Hub) Online(identity string, mode match.Mode) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[connKey{identity, mode}]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every socket with going-away.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for k, c := range h.conns {
		conns = append(conns, c)
		delete(h.conns, k)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "server shutdown")
	}
}

// notice 타입이면 비어 있는 message 를 카탈로그 문구로 채운다.
func (h *Hub) decorate(env arenadto.Envelope) arenadto.Envelope {
	if env.Type == arenadto.TypeServerError {
		var de arenadto.DomainError
		if err := env.Decode(&de); err != nil || de.Message != "" {
			return env
		}
		de.Message = h.msgs.Text("errors."+de.Code, msgData{}, "")
		return arenadto.NewEnvelope(env.Type, de)
	}
	if !noticeTypes[env.Type] {
		return env
	}
	var n arenadto.Notice
	if err := env.Decode(&n); err != nil || n.Message != "" {
		return env
	}
	n.Message = h.msgs.Text("notices."+env.Type, msgData{Code: n.RoomCode, Seconds: n.Seconds}, "")
	if n.Message == "" {
		return env
	}
	return arenadto.NewEnvelope(env.Type, n)
}

var noticeTypes = map[string]bool{
	arenadto.TypeWaitingForOpponent: true,
	arenadto.TypeMatchingCancelled:  true,
	arenadto.TypeRoomWaiting:        true,
	arenadto.TypeRoomReady:          true,
	arenadto.TypeRoomCancelled:      true,
	arenadto.TypeOppDisconnected:    true,
	arenadto.TypeOppReconnected:     true,
	arenadto.TypePlayerLeft:         true,
}
