package arenaclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/gateway"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
)

func newArena(t *testing.T, n match.Notifier) *arena.Service {
	t.Helper()
	cfg := arena.DefaultConfig()
	cfg.Match.ManualClock = true
	svc := arena.New(cfg, arena.Deps{Notifier: n, Logger: zap.NewNop()})
	t.Cleanup(svc.Close)
	return svc
}

func TestClientRoomFlow(t *testing.T) {
	svc := newArena(t, nil)
	srv := httpapi.NewServer(svc, httpapi.Options{})
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()); _ = ln.Close() })

	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	alice := NewClient("http://arena", "alice", WithHTTPClient(hc), WithRetry(1))
	bob := NewClient("http://arena", "bob", WithHTTPClient(hc), WithRetry(1))
	ctx := context.Background()

	created, err := alice.CreateRoom(ctx, "black")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	room, err := bob.JoinRoom(ctx, created.RoomID)
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if room.Status != "FULL" || len(room.Occupants) != 2 {
		t.Fatalf("unexpected room %+v", room)
	}

	_, err = bob.CancelRoom(ctx, created.RoomID)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != fasthttp.StatusForbidden || se.Body.Code != "unauthorized" {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}

	h, err := alice.Health(ctx)
	if err != nil || h.Status != "ok" || h.WaitingRooms != 0 {
		t.Fatalf("health %+v err=%v", h, err)
	}
}

func TestSocketPlaysQuickMatch(t *testing.T) {
	hub := gateway.NewHub(msgcat.MustDefault())
	svc := newArena(t, hub)
	mux := http.NewServeMux()
	gateway.NewServer(hub, svc, gateway.Options{}).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() { hub.CloseAll(); ts.Close() })

	base := "ws" + strings.TrimPrefix(ts.URL, "http")
	a := NewSocket(base, "quick", "A", 0)
	b := NewSocket(base, "quick", "B", 0)
	inbox := map[string]chan arenadto.Envelope{"A": make(chan arenadto.Envelope, 32), "B": make(chan arenadto.Envelope, 32)}
	a.OnMessage(func(env arenadto.Envelope) { inbox["A"] <- env })
	b.OnMessage(func(env arenadto.Envelope) { inbox["B"] <- env })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, s := range []*Socket{a, b} {
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if err := s.WaitConnected(ctx); err != nil {
			t.Fatalf("WaitConnected: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(context.Background()) })
	}

	wait := func(who, typ string) {
		t.Helper()
		for {
			select {
			case env := <-inbox[who]:
				if env.Type == typ {
					return
				}
			case <-ctx.Done():
				t.Fatalf("%s never got %s", who, typ)
			}
		}
	}

	if err := a.Send(ctx, arenadto.TypeInitGame, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	wait("A", arenadto.TypeWaitingForOpponent)
	if err := b.Send(ctx, arenadto.TypeInitGame, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	wait("A", arenadto.TypeGameActive)
	wait("B", arenadto.TypeGameActive)

	if err := a.Send(ctx, arenadto.TypeMove, arenadto.Move{From: "g1", To: "f3"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	wait("B", arenadto.TypeMove)
	if a.State() != StateConnected {
		t.Fatalf("state = %s", a.State())
	}
}
