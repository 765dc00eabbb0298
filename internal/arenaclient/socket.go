package arenaclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type SocketState int

const (
	StateDisconnected SocketState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s SocketState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

var ErrNotConnected = errors.New("socket not connected")

type MessageCallback func(env arenadto.Envelope)

type StateCallback func(state SocketState)

// Socket is a game socket for one identity and mode. After a drop it
// redials with backoff and asks the server to resync.
type Socket struct {
	wsURL    string
	identity string

	connM     sync.RWMutex
	conn      *websocket.Conn
	state     SocketState
	connected chan struct{}

	cbM      sync.RWMutex
	msgCbs   []MessageCallback
	stateCbs []StateCallback

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewSocket builds a socket for baseURL (ws:// or wss://) and mode.
func NewSocket(baseURL, mode, identity string, maxReconnectAttempts int) *Socket {
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		wsURL:                strings.TrimRight(baseURL, "/") + "/ws/" + mode,
		identity:             identity,
		state:                StateDisconnected,
		connected:            make(chan struct{}),
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

func (s *Socket) Connect(ctx context.Context) error {
	s.connM.RLock()
	st := s.state
	s.connM.RUnlock()
	if st == StateConnected || st == StateConnecting {
		return nil
	}
	s.setState(StateConnecting)

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.attach(conn)
	return nil
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	hdr := http.Header{}
	hdr.Set("X-User-Id", s.identity)
	conn, _, err := websocket.Dial(dialCtx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      hdr,
	})
	return conn, err
}

func (s *Socket) attach(conn *websocket.Conn) {
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StateConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
}

// Send writes one frame.
func (s *Socket) Send(ctx context.Context, typ string, payload any) error {
	s.connM.RLock()
	conn := s.conn
	s.connM.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, arenadto.NewEnvelope(typ, payload))
}

// WaitConnected blocks until the socket is connected or ctx ends.
func (s *Socket) WaitConnected(ctx context.Context) error {
	s.connM.RLock()
	ch := s.connected
	s.connM.RUnlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Socket) State() SocketState {
	s.connM.RLock()
	defer s.connM.RUnlock()
	return s.state
}

func (s *Socket) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var env arenadto.Envelope
		if err := wsjson.Read(s.rootCtx, conn, &env); err != nil {
			if s.isStopping() {
				return
			}
			replaced := websocket.CloseStatus(err) == 4000
			s.drop(conn, websocket.StatusGoingAway, "reconnect")
			if !replaced {
				s.scheduleReconnect()
			}
			return
		}

		s.cbM.RLock()
		callbacks := append([]MessageCallback(nil), s.msgCbs...)
		s.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(env)
		}
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.rootCtx.Done():
			return
		case <-t.C:
			if s.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// listen 쪽이 읽기 오류로 재연결을 시작한다.
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *Socket) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 {
		s.setState(StateFailed)
		return
	}
	s.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			conn, err := s.dial(s.rootCtx)
			if err != nil {
				continue
			}
			s.attach(conn)
			ctx, cancel := context.WithTimeout(s.rootCtx, 5*time.Second)
			_ = s.Send(ctx, arenadto.TypeReconnect, nil)
			cancel()
			return
		}
		s.setState(StateFailed)
	}()
}

func (s *Socket) OnMessage(cb MessageCallback) {
	s.cbM.Lock()
	s.msgCbs = append(s.msgCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	s.stateCbs = append(s.stateCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) setState(state SocketState) {
	s.connM.Lock()
	prev := s.state
	s.state = state
	switch {
	case state == StateConnected && prev != StateConnected:
		close(s.connected)
	case state != StateConnected && prev == StateConnected:
		s.connected = make(chan struct{})
	}
	s.connM.Unlock()

	s.cbM.RLock()
	callbacks := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (s *Socket) current() *websocket.Conn {
	s.connM.RLock()
	defer s.connM.RUnlock()
	return s.conn
}

func (s *Socket) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.connM.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connM.Unlock()
	_ = conn.Close(code, reason)
	s.setState(StateDisconnected)
}

func (s *Socket) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if conn := s.current(); conn != nil {
		s.drop(conn, websocket.StatusNormalClosure, "close")
	}
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Socket) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
