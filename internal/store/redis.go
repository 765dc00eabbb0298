package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Store keeps match snapshots and the room table in Redis. It is a mirror
// of in-process state, read back for lookups and after a restart.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb, ttl: defaultTTL} }

// Open connects to REDIS_URL and pings it.
func Open(ctx context.Context, rawURL string) (*Store, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for store")
	}
	opts, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func keyMatch(id string) string        { return "arena:match:" + strings.TrimSpace(id) }
func keyUserIdx(identity string) string { return "arena:index:user:" + strings.TrimSpace(identity) }
func keyRoom(code string) string        { return "arena:room:" + strings.TrimSpace(code) }
func keyWaiting() string                { return "arena:rooms:waiting" }

func (s *Store) SaveMatch(ctx context.Context, rec match.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyMatch(rec.ID), raw, s.ttl)
	for _, id := range []string{rec.White, rec.Black} {
		if strings.TrimSpace(id) == "" {
			continue
		}
		pipe.SAdd(ctx, keyUserIdx(id), rec.ID)
		pipe.Expire(ctx, keyUserIdx(id), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// LoadMatch returns nil, nil when the snapshot is missing or expired.
func (s *Store) LoadMatch(ctx context.Context, id string) (*match.Record, error) {
	raw, err := s.rdb.Get(ctx, keyMatch(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec match.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MatchesByUser lists session ids identity played in, sorted.
func (s *Store) MatchesByUser(ctx context.Context, identity string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, keyUserIdx(identity)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SaveRoom(ctx context.Context, r rooms.Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyRoom(r.Code), raw, s.ttl)
	if r.Status == rooms.StatusWaiting {
		pipe.SAdd(ctx, keyWaiting(), r.Code)
		pipe.Expire(ctx, keyWaiting(), s.ttl)
	} else {
		pipe.SRem(ctx, keyWaiting(), r.Code)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) LoadRoom(ctx context.Context, code string) (*rooms.Room, error) {
	raw, err := s.rdb.Get(ctx, keyRoom(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r rooms.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListWaitingRooms returns mirrored WAITING rooms, oldest first.
func (s *Store) ListWaitingRooms(ctx context.Context) ([]rooms.Room, error) {
	codes, err := s.rdb.SMembers(ctx, keyWaiting()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]rooms.Room, 0, len(codes))
	for _, c := range codes {
		r, _ := s.LoadRoom(ctx, c)
		if r == nil || r.Status != rooms.StatusWaiting {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ParseURL turns redis://[:pass@]host:port/db into client options.
func ParseURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
