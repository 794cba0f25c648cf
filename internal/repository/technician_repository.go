package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// TechnicianFilter defines query params for the technician directory.
type TechnicianFilter struct {
	CommunityID *string
	Expertise   *domain.Category
	Active      *bool
	Limit       int
	Offset      int
}

// TechnicianRepository is the read-only technician directory. The
// user-management subsystem owns the underlying records.
type TechnicianRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Technician, error)
	List(ctx context.Context, filter TechnicianFilter) ([]domain.Technician, error)
}

type technicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository instantiates the repository.
func NewTechnicianRepository(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepository{pool: pool}
}

func (r *technicianRepository) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	const query = `
        SELECT id, name, expertise, community_id, active_flag, created_at
        FROM technicians WHERE id=$1`
	var tech domain.Technician
	var expertise []string
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&tech.ID,
		&tech.Name,
		&expertise,
		&tech.CommunityID,
		&tech.Active,
		&tech.CreatedAt,
	); err != nil {
		return nil, err
	}
	tech.Expertise = toCategories(expertise)
	return &tech, nil
}

func (r *technicianRepository) List(ctx context.Context, filter TechnicianFilter) ([]domain.Technician, error) {
	base := `SELECT id, name, expertise, community_id, active_flag, created_at FROM technicians`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CommunityID != nil {
		args = append(args, *filter.CommunityID)
		clauses = append(clauses, fmt.Sprintf("community_id=$%d", len(args)))
	}
	if filter.Expertise != nil {
		args = append(args, string(*filter.Expertise))
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(expertise)", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

func scanTechnicians(rows pgx.Rows) ([]domain.Technician, error) {
	var result []domain.Technician
	for rows.Next() {
		var tech domain.Technician
		var expertise []string
		if err := rows.Scan(
			&tech.ID,
			&tech.Name,
			&expertise,
			&tech.CommunityID,
			&tech.Active,
			&tech.CreatedAt,
		); err != nil {
			return nil, err
		}
		tech.Expertise = toCategories(expertise)
		result = append(result, tech)
	}
	return result, rows.Err()
}

func toCategories(values []string) []domain.Category {
	categories := make([]domain.Category, 0, len(values))
	for _, v := range values {
		categories = append(categories, domain.Category(v))
	}
	return categories
}
