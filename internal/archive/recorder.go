package archive

import (
	"context"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

// Recorder archives terminal matches in the background.
type Recorder struct {
	repo    Repository
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, timeout: 5 * time.Second, log: obslog.Named("archive")}
}

// Archive returns immediately; the write happens on its own goroutine.
func (r *Recorder) Archive(rec match.Record) *domain.MatchRecord {
	row := FromRecord(rec)
	if r == nil || r.repo == nil {
		return row
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.repo.SaveMatch(ctx, row); err != nil {
			r.log.Error("archive_failed", zap.String("session_id", row.SessionID), zap.Error(err))
			return
		}
		r.log.Info("archive_saved", zap.String("session_id", row.SessionID), zap.String("result", row.Result))
	}()
	return row
}

// Wait blocks until pending writes finish.
func (r *Recorder) Wait() { r.wg.Wait() }
