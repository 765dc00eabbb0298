package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
	"go.uber.org/zap"
)

// ErrNoLegalMove is returned when the position has no move to play.
var ErrNoLegalMove = errors.New("no legal move")

// BestMover searches a position for one move in UCI form.
type BestMover interface {
	BestMove(ctx context.Context, fen string, lvl Level) (string, error)
}

// Stockfish serves BestMove from a process pool.
type Stockfish struct {
	pool *Pool
}

func NewStockfish(binaryPath string, perLevel int) (*Stockfish, error) {
	pool, err := NewPool(PoolConfig{BinaryPath: binaryPath, PerLevelCapacity: perLevel})
	if err != nil {
		return nil, err
	}
	return &Stockfish{pool: pool}, nil
}

func (s *Stockfish) BestMove(ctx context.Context, fen string, lvl Level) (string, error) {
	proc, err := s.pool.Acquire(ctx, lvl.Options())
	if err != nil {
		return "", fmt.Errorf("acquire engine: %w", err)
	}
	mv, err := proc.BestMove(ctx, fen, lvl.Limits())
	s.pool.Release(proc, err)
	return mv, err
}

func (s *Stockfish) Close() error { return s.pool.Close() }

// Adapter answers computer moves. Any engine failure falls back to a
// uniformly random legal move, so Reply only fails when no move exists.
type Adapter struct {
	mover   BestMover
	oracle  rules.Oracle
	timeout time.Duration
	log     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type AdapterOption func(*Adapter)

func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithOracle(o rules.Oracle) AdapterOption {
	return func(a *Adapter) {
		if o != nil {
			a.oracle = o
		}
	}
}

// WithSeed makes the fallback choice reproducible.
func WithSeed(seed uint64) AdapterOption {
	return func(a *Adapter) { a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewAdapter wraps mover. A nil mover runs fallback-only.
func NewAdapter(mover BestMover, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		mover:   mover,
		oracle:  rules.New(),
		timeout: 5 * time.Second,
		log:     obslog.Named("engine"),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Reply(ctx context.Context, fen string, difficulty int) (string, error) {
	legal, err := a.oracle.ValidMoves(fen)
	if err != nil {
		return "", err
	}
	if len(legal) == 0 {
		return "", ErrNoLegalMove
	}
	if a.mover != nil {
		mv, err := a.search(ctx, fen, LevelFor(difficulty))
		mv = strings.ToLower(strings.TrimSpace(mv))
		switch {
		case err != nil:
			a.log.Warn("engine_search_failed", zap.Int("difficulty", difficulty), zap.Error(err))
		case !slices.Contains(legal, mv):
			a.log.Warn("engine_move_illegal", zap.String("move", mv), zap.String("fen", fen))
		default:
			return mv, nil
		}
	}
	return a.pick(legal), nil
}

// search bounds the mover by the adapter timeout even if it ignores ctx.
func (a *Adapter) search(ctx context.Context, fen string, lvl Level) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		mv  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		mv, err := a.mover.BestMove(ctx, fen, lvl)
		ch <- result{mv, err}
	}()
	select {
	case r := <-ch:
		return r.mv, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *Adapter) pick(legal []string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return legal[a.rng.IntN(len(legal))]
}
