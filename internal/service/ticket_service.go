package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/events"
	"github.com/communityfix/maintenance-service/internal/repository"
	apperrors "github.com/communityfix/maintenance-service/pkg/util"
)

// TicketService owns the ticket state machine. It is the only component that
// mutates persisted ticket state; the orchestrator and assignment service go
// through it or through the repository writes it sanctions.
type TicketService struct {
	tickets     repository.TicketRepository
	technicians repository.TechnicianRepository
	communities repository.CommunityRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// TicketDependencies bundles collaborators for the lifecycle manager.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	TechnicianRepo repository.TechnicianRepository
	CommunityRepo  repository.CommunityRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		technicians: deps.TechnicianRepo,
		communities: deps.CommunityRepo,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
	}
}

// TicketCreateInput describes the reporter-supplied draft.
type TicketCreateInput struct {
	CommunityID string
	Title       string
	Description string
	Category    domain.Category
	Location    string
	Priority    domain.TicketPriority
	Images      []string
}

// CreateDraft validates the draft and persists the ticket in the open state.
// Enrichment happens afterwards, best-effort, in the intake orchestrator.
func (s *TicketService) CreateDraft(ctx context.Context, reporterID string, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Description) == "" ||
		strings.TrimSpace(input.Location) == "" || input.Category == "" {
		return nil, apperrors.NewValidationError("title, description, category, location required", nil)
	}
	if !domain.ValidCategory(input.Category) {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": input.Category})
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityAuto
	}
	if !domain.ValidPriority(input.Priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}

	community, err := s.communities.GetByID(ctx, input.CommunityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("community", map[string]any{"community_id": input.CommunityID})
		}
		return nil, apperrors.MapError(err)
	}
	if !community.Active {
		return nil, apperrors.NewConflict("community inactive", map[string]any{"community_id": community.ID})
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		ReportedBy:  reporterID,
		CommunityID: community.ID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Images:      input.Images,
		Category:    input.Category,
		Location:    strings.TrimSpace(input.Location),
		Priority:    input.Priority,
		Status:      domain.TicketStatusOpen,
	}
	if ticket.Images == nil {
		ticket.Images = []string{}
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, reporterID, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		CommunityID: ticket.CommunityID,
		ReportedBy:  ticket.ReportedBy,
		Category:    ticket.Category,
		Priority:    ticket.Priority,
		Title:       ticket.Title,
	})
	return ticket, nil
}

// ApplyEnrichment persists the engine-written classification fields. Priority
// "auto" is resolved here: predicted urgency high maps to high, anything else
// to medium.
func (s *TicketService) ApplyEnrichment(ctx context.Context, ticket *domain.Ticket, meta domain.AIMetadata, tools, materials []string, durationMinutes int, difficulty domain.DifficultyLevel) error {
	ticket.AIMetadata = &meta
	ticket.RequiredTools = tools
	ticket.RequiredMaterials = materials
	ticket.EstimatedDurationMinutes = durationMinutes
	ticket.DifficultyLevel = difficulty
	if ticket.RequiredTools == nil {
		ticket.RequiredTools = []string{}
	}
	if ticket.RequiredMaterials == nil {
		ticket.RequiredMaterials = []string{}
	}
	if ticket.Priority == domain.TicketPriorityAuto {
		if meta.PredictedUrgency == domain.UrgencyHigh {
			ticket.Priority = domain.TicketPriorityHigh
		} else {
			ticket.Priority = domain.TicketPriorityMedium
		}
	}

	if err := s.tickets.UpdateEnrichment(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}

	s.publish(ctx, "", events.EventTicketTriaged, ticket.ID, events.TicketTriagedPayload{
		PredictedCategory: meta.PredictedCategory,
		PredictedUrgency:  meta.PredictedUrgency,
		Confidence:        meta.Confidence,
		Fallback:          meta.Fallback,
	})
	return nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListSpam returns tickets currently flagged as spam.
func (s *TicketService) ListSpam(ctx context.Context, communityID *string, limit, offset int) ([]domain.Ticket, error) {
	return s.ListTickets(ctx, repository.TicketFilter{
		CommunityID: communityID,
		Statuses:    []domain.TicketStatus{domain.TicketStatusSpam},
		Limit:       limit,
		Offset:      offset,
	})
}

// Stats returns ticket counts grouped by status.
func (s *TicketService) Stats(ctx context.Context, communityID *string) (map[domain.TicketStatus]int, error) {
	counts, err := s.tickets.CountByStatus(ctx, communityID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return counts, nil
}

// UpdateStatus applies a caller-driven transition among the non-spam
// statuses. Backward transitions (e.g. resolved back to open) are permitted
// but logged; the spam branch has its own entry points.
func (s *TicketService) UpdateStatus(ctx context.Context, actorID, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !domain.ValidStatus(newStatus) || newStatus == domain.TicketStatusSpam {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusSpam {
		return nil, apperrors.NewConflict("unmark spam before changing status", map[string]any{"ticket_id": ticketID})
	}

	oldStatus := ticket.Status
	if isBackwardTransition(oldStatus, newStatus) {
		s.logger.Warn("backward status transition",
			zap.String("ticket_id", ticketID),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(newStatus)))
	}

	ticket.Status = newStatus
	if newStatus == domain.TicketStatusOpen {
		ticket.AssignedTo = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, actorID, events.EventTicketStatusChanged, ticket.ID, events.TicketStatusChangedPayload{
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		ReportedBy: ticket.ReportedBy,
		AssignedTo: ticket.AssignedTo,
	})
	return ticket, nil
}

// MarkSpam flags the ticket as spam, recording who and why. The ticket stays
// queryable but drops out of normal triage. Spam tickets carry no assignee;
// any current assignment is released.
func (s *TicketService) MarkSpam(ctx context.Context, actorID, ticketID, reason string, confidence float64, automatic bool) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ticket.Status = domain.TicketStatusSpam
	ticket.AssignedTo = nil
	ticket.SpamMetadata = &domain.SpamMetadata{
		Confidence: confidence,
		Reason:     reason,
		DetectedAt: time.Now(),
		MarkedBy:   actorID,
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, actorID, events.EventTicketSpamFlagged, ticket.ID, events.TicketSpamFlaggedPayload{
		ReportedBy: ticket.ReportedBy,
		Confidence: confidence,
		Reason:     reason,
		Automatic:  automatic,
	})
	return ticket, nil
}

// UnmarkSpam restores a spam ticket to the given target status (default
// open). The original spam determination is annotated, not erased.
func (s *TicketService) UnmarkSpam(ctx context.Context, actorID, ticketID string, targetStatus domain.TicketStatus) (*domain.Ticket, error) {
	if targetStatus == "" {
		targetStatus = domain.TicketStatusOpen
	}
	if !domain.ValidStatus(targetStatus) || targetStatus == domain.TicketStatusSpam {
		return nil, apperrors.NewValidationError("invalid target status", map[string]any{"status": targetStatus})
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusSpam {
		return nil, apperrors.NewConflict("ticket is not flagged as spam", map[string]any{"ticket_id": ticketID})
	}

	// Flagging released the assignee, so only open is reachable directly;
	// later statuses need a technician attached first.
	if targetStatus == domain.TicketStatusOpen {
		ticket.AssignedTo = nil
	} else if ticket.AssignedTo == nil {
		return nil, apperrors.NewConflict("ticket has no assignee for target status", map[string]any{
			"ticket_id": ticketID,
			"status":    targetStatus,
		})
	}

	now := time.Now()
	ticket.Status = targetStatus
	if ticket.SpamMetadata != nil {
		ticket.SpamMetadata.UnmarkedAt = &now
		ticket.SpamMetadata.UnmarkedBy = &actorID
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, actorID, events.EventTicketUnspammed, ticket.ID, events.TicketUnspammedPayload{
		ReportedBy:   ticket.ReportedBy,
		TargetStatus: targetStatus,
	})
	return ticket, nil
}

// mergeSeparator visibly delimits absorbed descriptions inside the target.
const mergeSeparator = "\n\n--- merged duplicate report ---\n"

// MergeAbsorb folds the absorbed ticket into the target: description appended
// under a visible separator, images concatenated in creation order, a
// self-contained snapshot added to history, and the absorbed row deleted. The
// write is transactional; if either ticket vanished or the target changed
// since it was read, the merge fails closed with ErrMergeTargetGone and
// neither record changes.
func (s *TicketService) MergeAbsorb(ctx context.Context, target *domain.Ticket, absorbed *domain.Ticket) (*domain.Ticket, error) {
	target.Description = target.Description + mergeSeparator + absorbed.Description
	target.Images = append(target.Images, absorbed.Images...)
	target.History = append(target.History, domain.AbsorbedReport{
		TicketID:    absorbed.ID,
		Title:       absorbed.Title,
		Description: absorbed.Description,
		ReportedBy:  absorbed.ReportedBy,
		MergedAt:    time.Now(),
	})

	if err := s.tickets.Merge(ctx, target, absorbed.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMergeTargetGone
		}
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, absorbed.ReportedBy, events.EventTicketMerged, target.ID, events.TicketMergedPayload{
		AbsorbedTicketID:   absorbed.ID,
		AbsorbedReportedBy: absorbed.ReportedBy,
		TargetReportedBy:   target.ReportedBy,
	})
	return target, nil
}

// ErrMergeTargetGone signals that the merge lost a race with a concurrent
// delete, merge, or edit of the target; the caller falls back to the
// independent-ticket path.
var ErrMergeTargetGone = errors.New("merge target no longer exists")

// isBackwardTransition reports whether the change moves against the normal
// open -> assigned -> in_progress -> resolved -> closed ordering.
func isBackwardTransition(from, to domain.TicketStatus) bool {
	order := map[domain.TicketStatus]int{
		domain.TicketStatusOpen:       0,
		domain.TicketStatusAssigned:   1,
		domain.TicketStatusInProgress: 2,
		domain.TicketStatusResolved:   3,
		domain.TicketStatusClosed:     4,
	}
	fromRank, okFrom := order[from]
	toRank, okTo := order[to]
	return okFrom && okTo && toRank < fromRank
}

func generateTicketKey() string {
	return "MNT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publish(ctx context.Context, actorID string, eventType events.EventType, ticketID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
