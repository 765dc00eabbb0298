package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
)

type harness struct {
	client *fasthttp.Client
	repo   *archive.MemoryRepository
}

func newHarness(t *testing.T, journal ...JournalReader) *harness {
	t.Helper()
	cfg := arena.DefaultConfig()
	cfg.Match.ManualClock = true
	svc := arena.New(cfg, arena.Deps{Logger: zap.NewNop()})
	repo := archive.NewMemoryRepository()
	opts := Options{Archive: repo, Sockets: func() int { return 7 }}
	if len(journal) > 0 {
		opts.Journal = journal[0]
	}
	srv := NewServer(svc, opts)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = ln.Close()
		svc.Close()
	})
	return &harness{
		client: &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }},
		repo:   repo,
	}
}

func (h *harness) do(t *testing.T, method, path, identity string, body any, out any) int {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://arena" + path)
	if identity != "" {
		req.Header.Set(HeaderUserID, identity)
	}
	if body != nil {
		b, _ := json.Marshal(body)
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}
	if err := h.client.DoTimeout(req, resp, 2*time.Second); err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, resp.Body(), err)
		}
	}
	return resp.StatusCode()
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)

	var created arenadto.CreateRoomResponse
	if st := h.do(t, "POST", "/rooms", "alice", map[string]string{"color": "white"}, &created); st != fasthttp.StatusCreated {
		t.Fatalf("create status %d", st)
	}
	code := created.RoomID
	if code == "" || created.Room.Status != "WAITING" {
		t.Fatalf("unexpected create response %+v", created)
	}

	var list arenadto.RoomList
	h.do(t, "GET", "/rooms", "", nil, &list)
	if len(list.Rooms) != 1 || list.Rooms[0].Code != code {
		t.Fatalf("waiting rooms = %+v", list.Rooms)
	}

	var joined arenadto.RoomActionResponse
	if st := h.do(t, "POST", "/rooms/"+code+"/join", "bob", nil, &joined); st != fasthttp.StatusOK {
		t.Fatalf("join status %d", st)
	}
	if joined.Room == nil || joined.Room.Status != "FULL" {
		t.Fatalf("unexpected join response %+v", joined)
	}

	var de arenadto.DomainError
	if st := h.do(t, "POST", "/rooms/"+code+"/join", "carol", nil, &de); st != fasthttp.StatusConflict {
		t.Fatalf("third join status %d (%+v)", st, de)
	}
	if st := h.do(t, "POST", "/rooms/"+code+"/cancel", "bob", nil, &de); st != fasthttp.StatusForbidden {
		t.Fatalf("joiner cancel status %d", st)
	}
	if st := h.do(t, "POST", "/rooms/"+code+"/cancel", "alice", nil, &joined); st != fasthttp.StatusOK {
		t.Fatalf("cancel status %d", st)
	}

	var room arenadto.Room
	h.do(t, "GET", "/rooms/"+code, "", nil, &room)
	if room.Status != "CANCELLED" {
		t.Fatalf("room status after cancel = %s", room.Status)
	}
}

func TestRoomErrors(t *testing.T) {
	h := newHarness(t)
	var de arenadto.DomainError

	if st := h.do(t, "POST", "/rooms", "", nil, &de); st != fasthttp.StatusUnauthorized {
		t.Fatalf("anonymous create status %d", st)
	}
	if st := h.do(t, "GET", "/rooms/ZZZZZZ", "", nil, &de); st != fasthttp.StatusNotFound {
		t.Fatalf("unknown room status %d", st)
	}
	if st := h.do(t, "POST", "/rooms/ZZZZZZ/explode", "alice", nil, &de); st != fasthttp.StatusNotFound {
		t.Fatalf("unknown action status %d", st)
	}
	h.do(t, "POST", "/rooms", "alice", nil, nil)
	if st := h.do(t, "POST", "/rooms", "alice", nil, &de); st != fasthttp.StatusConflict {
		t.Fatalf("second create status %d", st)
	}
}

func TestHealthAndHistory(t *testing.T) {
	h := newHarness(t)

	var health arenadto.Health
	if st := h.do(t, "GET", "/healthz", "", nil, &health); st != fasthttp.StatusOK {
		t.Fatalf("health status %d", st)
	}
	if health.Status != "ok" || health.Sockets != 7 {
		t.Fatalf("unexpected health %+v", health)
	}

	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &domain.MatchRecord{
		SessionID: "s-1", Mode: "quick", WhiteID: "alice", BlackID: "bob",
		Result: "white", ResultMethod: "checkmate", MovesUCI: []string{"e2e4"},
		StartedAt: end.Add(-time.Minute), EndedAt: end, Duration: time.Minute,
	}
	if err := h.repo.SaveMatch(context.Background(), rec); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	var m arenadto.MatchSummary
	if st := h.do(t, "GET", "/matches/s-1", "", nil, &m); st != fasthttp.StatusOK {
		t.Fatalf("match status %d", st)
	}
	if m.White != "alice" || m.DurationMs != 60000 {
		t.Fatalf("unexpected summary %+v", m)
	}
	var de arenadto.DomainError
	if st := h.do(t, "GET", "/matches/nope", "", nil, &de); st != fasthttp.StatusNotFound {
		t.Fatalf("missing match status %d", st)
	}

	var list arenadto.MatchList
	h.do(t, "GET", "/players/bob/matches", "", nil, &list)
	if len(list.Matches) != 1 || list.Matches[0].SessionID != "s-1" {
		t.Fatalf("history = %+v", list.Matches)
	}
}

func TestMatchFallsBackToJournal(t *testing.T) {
	mr := miniredis.RunT(t)
	st, err := store.Open(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	h := newHarness(t, st)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := match.Record{
		ID: "live-1", Mode: match.ModeQuick, White: "alice", Black: "bob",
		MovesUCI: []string{"e2e4", "e7e5"}, Status: match.StatusActive,
		StartedAt: started, UpdatedAt: started.Add(30 * time.Second),
	}
	if err := st.SaveMatch(context.Background(), rec); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	var m arenadto.MatchSummary
	if code := h.do(t, "GET", "/matches/live-1", "", nil, &m); code != fasthttp.StatusOK {
		t.Fatalf("journal match status %d", code)
	}
	if m.Result != "" || len(m.MovesUCI) != 2 || m.Black != "bob" {
		t.Fatalf("unexpected journal summary %+v", m)
	}
}
