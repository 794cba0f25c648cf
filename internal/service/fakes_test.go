package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/repository"
)

// fakeTicketRepo is an in-memory TicketRepository for service tests.
type fakeTicketRepo struct {
	tickets map[string]*domain.Ticket
	nextID  int

	failCreate  bool
	claimDenied bool
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (f *fakeTicketRepo) add(t *domain.Ticket) *domain.Ticket {
	if t.ID == "" {
		f.nextID++
		t.ID = fmt.Sprintf("t-%03d", f.nextID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = time.Now()
	stored := *t
	f.tickets[t.ID] = &stored
	return t
}

func (f *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if f.failCreate {
		return fmt.Errorf("store unavailable")
	}
	f.add(ticket)
	return nil
}

func (f *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if _, ok := f.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *ticket
	stored.UpdatedAt = time.Now()
	f.tickets[ticket.ID] = &stored
	return nil
}

func (f *fakeTicketRepo) UpdateEnrichment(ctx context.Context, ticket *domain.Ticket) error {
	stored, ok := f.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.AIMetadata = ticket.AIMetadata
	stored.RequiredTools = ticket.RequiredTools
	stored.RequiredMaterials = ticket.RequiredMaterials
	stored.EstimatedDurationMinutes = ticket.EstimatedDurationMinutes
	stored.DifficultyLevel = ticket.DifficultyLevel
	stored.Priority = ticket.Priority
	stored.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	stored, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (f *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range f.tickets {
		if filter.CommunityID != nil && t.CommunityID != *filter.CommunityID {
			continue
		}
		if filter.ReportedBy != nil && t.ReportedBy != *filter.ReportedBy {
			continue
		}
		if filter.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if filter.Category != nil && t.Category != *filter.Category {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if t.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTicketRepo) CountByStatus(ctx context.Context, communityID *string) (map[domain.TicketStatus]int, error) {
	counts := map[domain.TicketStatus]int{}
	for _, t := range f.tickets {
		if communityID != nil && t.CommunityID != *communityID {
			continue
		}
		counts[t.Status]++
	}
	return counts, nil
}

func (f *fakeTicketRepo) CountActiveByTechnician(ctx context.Context, technicianID string) (int, error) {
	count := 0
	for _, t := range f.tickets {
		if t.AssignedTo != nil && *t.AssignedTo == technicianID && t.IsActive() {
			count++
		}
	}
	return count, nil
}

func (f *fakeTicketRepo) ListOpenUnassigned(ctx context.Context, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, t := range f.tickets {
		if t.Status == domain.TicketStatusOpen && t.AssignedTo == nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTicketRepo) ClaimAssignment(ctx context.Context, ticketID, technicianID string, meta domain.AssignmentMetadata) (bool, error) {
	if f.claimDenied {
		return false, nil
	}
	stored, ok := f.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if stored.Status != domain.TicketStatusOpen || stored.AssignedTo != nil {
		return false, nil
	}
	tech := technicianID
	stored.AssignedTo = &tech
	stored.Status = domain.TicketStatusAssigned
	metaCopy := meta
	stored.AssignmentMetadata = &metaCopy
	stored.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeTicketRepo) Assign(ctx context.Context, ticketID, technicianID string, meta domain.AssignmentMetadata) error {
	stored, ok := f.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	tech := technicianID
	stored.AssignedTo = &tech
	stored.Status = domain.TicketStatusAssigned
	metaCopy := meta
	stored.AssignmentMetadata = &metaCopy
	stored.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTicketRepo) Merge(ctx context.Context, target *domain.Ticket, absorbedID string) error {
	current, ok := f.tickets[target.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	// Same guard as the real repository: the write is conditional on the
	// updated_at the caller read.
	if !current.UpdatedAt.Equal(target.UpdatedAt) {
		return pgx.ErrNoRows
	}
	if _, ok := f.tickets[absorbedID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *target
	stored.UpdatedAt = time.Now()
	f.tickets[target.ID] = &stored
	delete(f.tickets, absorbedID)
	return nil
}

// fakeTechnicianRepo serves a fixed roster.
type fakeTechnicianRepo struct {
	roster []domain.Technician
}

func (f *fakeTechnicianRepo) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	for _, tech := range f.roster {
		if tech.ID == id {
			clone := tech
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTechnicianRepo) List(ctx context.Context, filter repository.TechnicianFilter) ([]domain.Technician, error) {
	var out []domain.Technician
	for _, tech := range f.roster {
		if filter.CommunityID != nil && tech.CommunityID != *filter.CommunityID {
			continue
		}
		if filter.Active != nil && tech.Active != *filter.Active {
			continue
		}
		if filter.Expertise != nil && !tech.HasExpertise(*filter.Expertise) {
			continue
		}
		out = append(out, tech)
	}
	return out, nil
}

// fakeCommunityRepo serves a fixed community set.
type fakeCommunityRepo struct {
	communities map[string]*domain.Community
}

func (f *fakeCommunityRepo) GetByID(ctx context.Context, id string) (*domain.Community, error) {
	c, ok := f.communities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *c
	return &clone, nil
}
