package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestMatchRoundTrip(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	rec := match.Record{
		ID:       "s1",
		Mode:     match.ModeQuick,
		White:    "w",
		Black:    "b",
		FEN:      "fen",
		MovesUCI: []string{"e2e4"},
		Status:   match.StatusTerminal,
		Result:   &match.Result{Kind: match.ResultResignation, Winner: match.White},
	}
	if err := st.SaveMatch(ctx, rec); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	got, err := st.LoadMatch(ctx, "s1")
	if err != nil || got == nil {
		t.Fatalf("LoadMatch: %v %v", got, err)
	}
	if got.Result == nil || got.Result.Winner != match.White || len(got.MovesUCI) != 1 {
		t.Fatalf("got=%+v", got)
	}
	ids, err := st.MatchesByUser(ctx, "b")
	if err != nil || len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("index=%v err=%v", ids, err)
	}
	if ttl := mr.TTL(keyMatch("s1")); ttl <= 0 {
		t.Fatalf("snapshot has no ttl")
	}
	if missing, err := st.LoadMatch(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("missing=%v err=%v", missing, err)
	}
}

func TestComputerMatchSkipsEmptySide(t *testing.T) {
	st, mr := newTestStore(t)
	if err := st.SaveMatch(context.Background(), match.Record{ID: "c1", White: "h"}); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	if mr.Exists(keyUserIdx("")) {
		t.Fatalf("indexed the computer side")
	}
}

func TestWaitingRoomIndex(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := rooms.Room{Code: "AAAA1111", CreatorID: "u1", Status: rooms.StatusWaiting, CreatedAt: base.Add(time.Minute)}
	b := rooms.Room{Code: "BBBB2222", CreatorID: "u2", Status: rooms.StatusWaiting, CreatedAt: base}
	for _, r := range []rooms.Room{a, b} {
		if err := st.SaveRoom(ctx, r); err != nil {
			t.Fatalf("SaveRoom: %v", err)
		}
	}
	list, err := st.ListWaitingRooms(ctx)
	if err != nil || len(list) != 2 || list[0].Code != "BBBB2222" {
		t.Fatalf("list=%v err=%v", list, err)
	}
	b.Status = rooms.StatusFull
	_ = st.SaveRoom(ctx, b)
	list, _ = st.ListWaitingRooms(ctx)
	if len(list) != 1 || list[0].Code != "AAAA1111" {
		t.Fatalf("list=%v", list)
	}
	got, err := st.LoadRoom(ctx, "BBBB2222")
	if err != nil || got == nil || got.Status != rooms.StatusFull {
		t.Fatalf("room=%v err=%v", got, err)
	}
}

func TestWriterFlushesOnClose(t *testing.T) {
	st, _ := newTestStore(t)
	w := NewWriter(st, 8)
	w.Record(match.Record{ID: "s9", White: "w", Black: "b"})
	w.SaveRoom(rooms.Room{Code: "CCCC3333", Status: rooms.StatusWaiting})
	w.Close()
	w.Record(match.Record{ID: "late"})
	ctx := context.Background()
	if rec, _ := st.LoadMatch(ctx, "s9"); rec == nil {
		t.Fatalf("journal write lost")
	}
	if r, _ := st.LoadRoom(ctx, "CCCC3333"); r == nil {
		t.Fatalf("room write lost")
	}
	if rec, _ := st.LoadMatch(ctx, "late"); rec != nil {
		t.Fatalf("write after close was applied")
	}
}

func TestParseURL(t *testing.T) {
	opts, err := ParseURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("opts=%+v", opts)
	}
	if _, err := ParseURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
