package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS arena_matches (
	session_id    TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	white_id      TEXT NOT NULL DEFAULT '',
	black_id      TEXT NOT NULL DEFAULT '',
	difficulty    INTEGER NOT NULL DEFAULT 0,
	result        TEXT NOT NULL DEFAULT '',
	result_method TEXT NOT NULL DEFAULT '',
	moves_uci     JSONB NOT NULL DEFAULT '[]',
	moves_san     JSONB NOT NULL DEFAULT '[]',
	pgn           TEXT NOT NULL DEFAULT '',
	white_timer   INTEGER NOT NULL DEFAULT 0,
	black_timer   INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS arena_matches_white_idx ON arena_matches (white_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS arena_matches_black_idx ON arena_matches (black_id, ended_at DESC);`

type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL and pings it.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure arena schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveMatch(ctx context.Context, m *domain.MatchRecord) error {
	if m == nil {
		return ErrNilRecord
	}
	movesUCI, err := json.Marshal(m.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(m.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const q = `INSERT INTO arena_matches (
		session_id, mode, white_id, black_id, difficulty,
		result, result_method, moves_uci, moves_san, pgn,
		white_timer, black_timer, started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::jsonb,$10,$11,$12,$13,$14,$15
	) ON CONFLICT (session_id) DO UPDATE SET
		result=EXCLUDED.result,
		result_method=EXCLUDED.result_method,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		white_timer=EXCLUDED.white_timer,
		black_timer=EXCLUDED.black_timer,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		m.SessionID, m.Mode, m.WhiteID, m.BlackID, m.Difficulty,
		m.Result, m.ResultMethod, string(movesUCI), string(movesSAN), m.PGN,
		m.WhiteTimer, m.BlackTimer, m.StartedAt, m.EndedAt, m.Duration.Milliseconds(),
	)
	return err
}

const selectColumns = `session_id, mode, white_id, black_id, difficulty,
	result, result_method, moves_uci, moves_san, pgn,
	white_timer, black_timer, started_at, ended_at, duration_ms`

func (r *PostgresRepository) GetMatch(ctx context.Context, sessionID string) (*domain.MatchRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM arena_matches WHERE session_id = $1`, strings.TrimSpace(sessionID))
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *PostgresRepository) RecentByPlayer(ctx context.Context, identity string, limit int) ([]*domain.MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM arena_matches
		WHERE white_id = $1 OR black_id = $1
		ORDER BY ended_at DESC LIMIT $2`, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.MatchRecord, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(s scanner) (*domain.MatchRecord, error) {
	var (
		m          domain.MatchRecord
		uci, san   []byte
		durationMS int64
	)
	if err := s.Scan(
		&m.SessionID, &m.Mode, &m.WhiteID, &m.BlackID, &m.Difficulty,
		&m.Result, &m.ResultMethod, &uci, &san, &m.PGN,
		&m.WhiteTimer, &m.BlackTimer, &m.StartedAt, &m.EndedAt, &durationMS,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(uci, &m.MovesUCI); err != nil {
		return nil, fmt.Errorf("decode moves_uci: %w", err)
	}
	if err := json.Unmarshal(san, &m.MovesSAN); err != nil {
		return nil, fmt.Errorf("decode moves_san: %w", err)
	}
	m.Duration = time.Duration(durationMS) * time.Millisecond
	return &m, nil
}
