package archive

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/domain"
)

var ErrNilRecord = errors.New("nil match record")

// Repository stores finished matches. SaveMatch is an upsert keyed by session id.
type Repository interface {
	SaveMatch(ctx context.Context, m *domain.MatchRecord) error
	GetMatch(ctx context.Context, sessionID string) (*domain.MatchRecord, error)
	RecentByPlayer(ctx context.Context, identity string, limit int) ([]*domain.MatchRecord, error)
}
