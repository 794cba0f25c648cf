package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CommunityID *string
	ReportedBy  *string
	AssignedTo  *string
	Category    *domain.Category
	Statuses    []domain.TicketStatus
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. The lifecycle manager is
// the only service allowed to call the mutating methods.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	UpdateEnrichment(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context, communityID *string) (map[domain.TicketStatus]int, error)
	CountActiveByTechnician(ctx context.Context, technicianID string) (int, error)
	ListOpenUnassigned(ctx context.Context, limit int) ([]domain.Ticket, error)

	// ClaimAssignment performs a compare-and-set: it assigns only if the
	// ticket is still open and unassigned, so two concurrent auto-assigns
	// cannot both win. Returns false when the claim was lost.
	ClaimAssignment(ctx context.Context, ticketID, technicianID string, meta domain.AssignmentMetadata) (bool, error)

	// Assign overwrites the current assignee unconditionally (manual path;
	// reassignment is allowed).
	Assign(ctx context.Context, ticketID, technicianID string, meta domain.AssignmentMetadata) error

	// Merge atomically applies the merged target state and deletes the
	// absorbed ticket. The target write is guarded on the updated_at value
	// the caller read, so it fails with pgx.ErrNoRows if either row
	// vanished or the target changed concurrently, leaving both rows
	// untouched.
	Merge(ctx context.Context, target *domain.Ticket, absorbedID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, reported_by, community_id, title, description, images,
       category, location, priority, status, assigned_to, history, ai_metadata,
       required_tools, required_materials, estimated_duration_minutes, difficulty_level,
       spam_metadata, assignment_metadata, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, reported_by, community_id, title, description, images,
            category, location, priority, status, history)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	history, err := json.Marshal(historyOrEmpty(ticket.History))
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.ReportedBy,
		ticket.CommunityID,
		ticket.Title,
		ticket.Description,
		ticket.Images,
		ticket.Category,
		ticket.Location,
		ticket.Priority,
		ticket.Status,
		history,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	query, args, err := fullUpdateArgs(ticket)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateEnrichment is a partial write touching only engine-owned fields, so a
// concurrent status change cannot be clobbered by late enrichment.
func (r *ticketRepository) UpdateEnrichment(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET ai_metadata=$1, required_tools=$2, required_materials=$3,
            estimated_duration_minutes=$4, difficulty_level=$5, priority=$6, updated_at=NOW()
        WHERE id=$7`
	aiMeta, err := marshalNullable(ticket.AIMetadata)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, query,
		aiMeta,
		ticket.RequiredTools,
		ticket.RequiredMaterials,
		ticket.EstimatedDurationMinutes,
		ticket.DifficultyLevel,
		ticket.Priority,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicketRow(row)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CommunityID != nil {
		args = append(args, *filter.CommunityID)
		clauses = append(clauses, fmt.Sprintf("community_id=$%d", len(args)))
	}
	if filter.ReportedBy != nil {
		args = append(args, *filter.ReportedBy)
		clauses = append(clauses, fmt.Sprintf("reported_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatus(ctx context.Context, communityID *string) (map[domain.TicketStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM tickets`
	args := []any{}
	if communityID != nil {
		query += ` WHERE community_id=$1`
		args = append(args, *communityID)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status domain.TicketStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) CountActiveByTechnician(ctx context.Context, technicianID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE assigned_to=$1 AND status = ANY($2)`
	statuses := make([]string, len(domain.ActiveStatuses))
	for i, s := range domain.ActiveStatuses {
		statuses[i] = string(s)
	}
	var count int
	err := r.pool.QueryRow(ctx, query, technicianID, statuses).Scan(&count)
	return count, err
}

func (r *ticketRepository) ListOpenUnassigned(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE status=$1 AND assigned_to IS NULL
        ORDER BY created_at ASC LIMIT %d`, ticketColumns, limit)
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ClaimAssignment(ctx context.Context, ticketID, technicianID string, meta domain.AssignmentMetadata) (bool, error) {
	const query = `
        UPDATE tickets SET assigned_to=$1, status=$2, assignment_metadata=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5 AND assigned_to IS NULL`
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}
	cmd, err := r.pool.Exec(ctx, query,
		technicianID, domain.TicketStatusAssigned, metaJSON,
		ticketID, domain.TicketStatusOpen)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) Assign(ctx context.Context, ticketID, technicianID string, meta domain.AssignmentMetadata) error {
	const query = `
        UPDATE tickets SET assigned_to=$1, status=$2, assignment_metadata=$3, updated_at=NOW()
        WHERE id=$4`
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, query,
		technicianID, domain.TicketStatusAssigned, metaJSON, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Merge(ctx context.Context, target *domain.Ticket, absorbedID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query, args, err := fullUpdateArgs(target)
	if err != nil {
		return err
	}
	// Guard the write on the updated_at the caller read so a concurrent
	// change to the target aborts the merge instead of being overwritten.
	args = append(args, target.UpdatedAt)
	query += fmt.Sprintf(" AND updated_at=$%d", len(args))
	cmd, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	cmd, err = tx.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, absorbedID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}

func fullUpdateArgs(ticket *domain.Ticket) (string, []any, error) {
	const query = `
        UPDATE tickets SET title=$1, description=$2, images=$3, category=$4, location=$5,
            priority=$6, status=$7, assigned_to=$8, history=$9, ai_metadata=$10,
            required_tools=$11, required_materials=$12, estimated_duration_minutes=$13,
            difficulty_level=$14, spam_metadata=$15, assignment_metadata=$16, updated_at=NOW()
        WHERE id=$17`
	history, err := json.Marshal(historyOrEmpty(ticket.History))
	if err != nil {
		return "", nil, err
	}
	aiMeta, err := marshalNullable(ticket.AIMetadata)
	if err != nil {
		return "", nil, err
	}
	spamMeta, err := marshalNullable(ticket.SpamMetadata)
	if err != nil {
		return "", nil, err
	}
	assignMeta, err := marshalNullable(ticket.AssignmentMetadata)
	if err != nil {
		return "", nil, err
	}
	args := []any{
		ticket.Title, ticket.Description, ticket.Images, ticket.Category, ticket.Location,
		ticket.Priority, ticket.Status, ticket.AssignedTo, history, aiMeta,
		ticket.RequiredTools, ticket.RequiredMaterials, ticket.EstimatedDurationMinutes,
		ticket.DifficultyLevel, spamMeta, assignMeta, ticket.ID,
	}
	return query, args, nil
}

func historyOrEmpty(history []domain.AbsorbedReport) []domain.AbsorbedReport {
	if history == nil {
		return []domain.AbsorbedReport{}
	}
	return history
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *domain.AIMetadata:
		if val == nil {
			return nil, nil
		}
	case *domain.SpamMetadata:
		if val == nil {
			return nil, nil
		}
	case *domain.AssignmentMetadata:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketRow(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		history    []byte
		aiMeta     []byte
		spamMeta   []byte
		assignMeta []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.ReportedBy,
		&ticket.CommunityID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Images,
		&ticket.Category,
		&ticket.Location,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AssignedTo,
		&history,
		&aiMeta,
		&ticket.RequiredTools,
		&ticket.RequiredMaterials,
		&ticket.EstimatedDurationMinutes,
		&ticket.DifficultyLevel,
		&spamMeta,
		&assignMeta,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &ticket.History); err != nil {
			return nil, err
		}
	}
	if len(aiMeta) > 0 {
		ticket.AIMetadata = &domain.AIMetadata{}
		if err := json.Unmarshal(aiMeta, ticket.AIMetadata); err != nil {
			return nil, err
		}
	}
	if len(spamMeta) > 0 {
		ticket.SpamMetadata = &domain.SpamMetadata{}
		if err := json.Unmarshal(spamMeta, ticket.SpamMetadata); err != nil {
			return nil, err
		}
	}
	if len(assignMeta) > 0 {
		ticket.AssignmentMetadata = &domain.AssignmentMetadata{}
		if err := json.Unmarshal(assignMeta, ticket.AssignmentMetadata); err != nil {
			return nil, err
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
