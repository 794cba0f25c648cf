package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// CommunityRepository is a read-only projection of community records.
type CommunityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Community, error)
}

type communityRepository struct {
	pool *pgxpool.Pool
}

// NewCommunityRepository instantiates the repository.
func NewCommunityRepository(pool *pgxpool.Pool) CommunityRepository {
	return &communityRepository{pool: pool}
}

func (r *communityRepository) GetByID(ctx context.Context, id string) (*domain.Community, error) {
	const query = `SELECT id, name, active_flag, created_at FROM communities WHERE id=$1`
	var community domain.Community
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&community.ID,
		&community.Name,
		&community.Active,
		&community.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &community, nil
}
