package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/events"
	"github.com/communityfix/maintenance-service/internal/repository"
	apperrors "github.com/communityfix/maintenance-service/pkg/util"
)

// Scoring weights. A primary expertise match dominates any combination of
// related-skill and priority bonuses.
const (
	primaryMatchScore  = 100
	relatedMatchScore  = 30
	workloadPenalty    = 5
	highPriorityBonus  = 20
	defaultMaxWorkload = 10
)

// relatedSkills maps each trade to the trades considered adjacent to it. A
// technician holding an adjacent skill earns relatedMatchScore per match.
var relatedSkills = map[domain.Category][]domain.Category{
	domain.CategoryPlumbing:    {domain.CategoryMaintenance, domain.CategoryHVAC},
	domain.CategoryElectrical:  {domain.CategoryMaintenance, domain.CategoryAppliance, domain.CategoryFireSafety},
	domain.CategoryHVAC:        {domain.CategoryElectrical, domain.CategoryPlumbing, domain.CategoryMaintenance},
	domain.CategoryAppliance:   {domain.CategoryElectrical, domain.CategoryMaintenance},
	domain.CategoryCarpentry:   {domain.CategoryMaintenance, domain.CategoryPainting},
	domain.CategoryPainting:    {domain.CategoryCarpentry, domain.CategoryMaintenance},
	domain.CategoryCleaning:    {domain.CategoryMaintenance, domain.CategoryLandscaping},
	domain.CategoryLandscaping: {domain.CategoryCleaning, domain.CategoryMaintenance},
	domain.CategoryPestControl: {domain.CategoryCleaning, domain.CategoryMaintenance},
	domain.CategoryFireSafety:  {domain.CategoryElectrical, domain.CategorySecurity, domain.CategoryMaintenance},
	domain.CategorySecurity:    {domain.CategoryFireSafety, domain.CategoryMaintenance},
	domain.CategoryMaintenance: {domain.CategoryPlumbing, domain.CategoryElectrical, domain.CategoryCarpentry, domain.CategoryPainting},
	domain.CategoryOther:       {domain.CategoryMaintenance},
}

// Score is the deterministic assignment scoring function. It is pure: same
// inputs always yield the same value and reason. The reason names the
// deciding factor, in priority order: primary match, related skills, light
// workload, plain availability.
func Score(ticket *domain.Ticket, tech *domain.Technician, workload int) (int, string) {
	score := 0
	primary := tech.HasExpertise(ticket.Category)
	if primary {
		score += primaryMatchScore
	}

	related := 0
	for _, adjacent := range relatedSkills[ticket.Category] {
		if tech.HasExpertise(adjacent) {
			related++
		}
	}
	score += related * relatedMatchScore

	score -= workload * workloadPenalty

	if ticket.Priority == domain.TicketPriorityHigh {
		score += highPriorityBonus
	}

	if score < 0 {
		score = 0
	}

	var reason string
	switch {
	case primary:
		reason = fmt.Sprintf("expert in %s", ticket.Category)
	case related > 0:
		reason = fmt.Sprintf("%d related skill(s) for %s", related, ticket.Category)
	case workload == 0:
		reason = "light workload"
	default:
		reason = "available technician"
	}
	return score, reason
}

// AssignmentService ranks technicians and commits assignments.
type AssignmentService struct {
	tickets     repository.TicketRepository
	technicians repository.TechnicianRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	cfg         config.AssignmentConfig
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo     repository.TicketRepository
	TechnicianRepo repository.TechnicianRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(cfg config.AssignmentConfig, deps AssignmentDependencies) *AssignmentService {
	if cfg.MaxWorkload <= 0 {
		cfg.MaxWorkload = defaultMaxWorkload
	}
	return &AssignmentService{
		tickets:     deps.TicketRepo,
		technicians: deps.TechnicianRepo,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		cfg:         cfg,
	}
}

// FindAvailableTechnicians returns scored candidates for the ticket's
// community, best first. Technicians at or beyond the workload cap are
// excluded entirely, not merely penalized. Ordering is deterministic: score
// descending, then lowest workload, then lexicographic id.
func (s *AssignmentService) FindAvailableTechnicians(ctx context.Context, ticket *domain.Ticket) ([]domain.AssignmentCandidate, error) {
	active := true
	roster, err := s.technicians.List(ctx, repository.TechnicianFilter{
		CommunityID: &ticket.CommunityID,
		Active:      &active,
		Limit:       500,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	candidates := make([]domain.AssignmentCandidate, 0, len(roster))
	for _, tech := range roster {
		workload, err := s.tickets.CountActiveByTechnician(ctx, tech.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if workload >= s.cfg.MaxWorkload {
			continue
		}
		score, reason := Score(ticket, &tech, workload)
		candidates = append(candidates, domain.AssignmentCandidate{
			Technician: tech,
			Workload:   workload,
			Score:      score,
			Reason:     reason,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Workload != candidates[j].Workload {
			return candidates[i].Workload < candidates[j].Workload
		}
		return candidates[i].Technician.ID < candidates[j].Technician.ID
	})
	return candidates, nil
}

// FindBestTechnician returns the top candidate, or nil when nobody is
// available. An empty result is not an error.
func (s *AssignmentService) FindBestTechnician(ctx context.Context, ticket *domain.Ticket) (*domain.AssignmentCandidate, error) {
	candidates, err := s.FindAvailableTechnicians(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// AutoAssignResult is the structured outcome of an auto-assign pass.
type AutoAssignResult struct {
	Assigned bool
	Ticket   *domain.Ticket
	Chosen   *domain.AssignmentCandidate
	Reason   string
}

// AutoAssign picks the best available technician and commits via a
// compare-and-set write, so a concurrent auto-assign against the same ticket
// cannot silently overwrite the winner. Workloads read at scoring time may be
// stale; each candidate's workload is re-checked right before claiming and
// the next candidate is tried if the chosen one filled up in between.
func (s *AssignmentService) AutoAssign(ctx context.Context, ticketID, actorID string) (*AutoAssignResult, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Status == domain.TicketStatusSpam {
		return nil, apperrors.NewConflict("spam tickets are excluded from triage", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.AssignedTo != nil {
		return nil, apperrors.NewConflict("ticket is not open for assignment", map[string]any{
			"ticket_id": ticketID,
			"status":    ticket.Status,
		})
	}

	candidates, err := s.FindAvailableTechnicians(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &AutoAssignResult{Assigned: false, Ticket: ticket, Reason: "no available technicians"}, nil
	}

	for i := range candidates {
		candidate := &candidates[i]

		workload, err := s.tickets.CountActiveByTechnician(ctx, candidate.Technician.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if workload >= s.cfg.MaxWorkload {
			s.logger.Info("candidate filled up between scoring and claim, trying next",
				zap.String("technician_id", candidate.Technician.ID))
			continue
		}

		meta := domain.AssignmentMetadata{
			AutoAssigned:     true,
			AssignedAt:       time.Now(),
			AssignmentScore:  candidate.Score,
			AssignmentReason: candidate.Reason,
			AssignedBy:       actorID,
		}
		claimed, err := s.tickets.ClaimAssignment(ctx, ticket.ID, candidate.Technician.ID, meta)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !claimed {
			// Lost the race: another assignment landed first.
			return nil, apperrors.NewConflict("ticket was assigned concurrently", map[string]any{"ticket_id": ticketID})
		}

		updated, err := s.tickets.GetByID(ctx, ticket.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		s.publishAssigned(ctx, actorID, updated, candidate, true)
		return &AutoAssignResult{Assigned: true, Ticket: updated, Chosen: candidate}, nil
	}

	return &AutoAssignResult{Assigned: false, Ticket: ticket, Reason: "no available technicians"}, nil
}

// ManualAssign assigns the given technician, overwriting any prior assignee.
func (s *AssignmentService) ManualAssign(ctx context.Context, ticketID, technicianID, actorID string) (*domain.Ticket, error) {
	tech, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
		}
		return nil, apperrors.MapError(err)
	}
	if !tech.Active {
		return nil, apperrors.NewConflict("technician inactive", map[string]any{"technician_id": technicianID})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Status == domain.TicketStatusSpam {
		return nil, apperrors.NewConflict("spam tickets are excluded from triage", map[string]any{"ticket_id": ticketID})
	}

	meta := domain.AssignmentMetadata{
		AutoAssigned: false,
		AssignedAt:   time.Now(),
		AssignedBy:   actorID,
	}
	if err := s.tickets.Assign(ctx, ticket.ID, tech.ID, meta); err != nil {
		return nil, apperrors.MapError(err)
	}

	updated, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishAssigned(ctx, actorID, updated, &domain.AssignmentCandidate{Technician: *tech}, false)
	return updated, nil
}

func (s *AssignmentService) publishAssigned(ctx context.Context, actorID string, ticket *domain.Ticket, candidate *domain.AssignmentCandidate, auto bool) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticket.ID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload: events.TicketAssignedPayload{
			TechnicianID: candidate.Technician.ID,
			ReportedBy:   ticket.ReportedBy,
			AutoAssigned: auto,
			Score:        candidate.Score,
			Reason:       candidate.Reason,
		},
	})
}
