package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/observability"
	"github.com/communityfix/maintenance-service/internal/oracle"
	"github.com/communityfix/maintenance-service/internal/repository"
	apperrors "github.com/communityfix/maintenance-service/pkg/util"
)

// intakeActor identifies engine-initiated mutations in events and metadata.
const intakeActor = "intake-engine"

// IntakeOutcome is the definitive result the reporter receives.
type IntakeOutcome string

const (
	OutcomeCreated     IntakeOutcome = "created"
	OutcomeMerged      IntakeOutcome = "merged"
	OutcomeFlaggedSpam IntakeOutcome = "flagged_spam"
)

// IntakeResult describes what happened to a submitted report.
type IntakeResult struct {
	Outcome    IntakeOutcome
	Ticket     *domain.Ticket
	MergedInto string
	Assignment *AutoAssignResult
}

// IntakeService orchestrates a single incoming report: persist the draft,
// classify best-effort, branch on spam or merge, enrich, and optionally
// auto-assign. Oracle unavailability never fails the request; only a store
// failure does.
type IntakeService struct {
	lifecycle   *TicketService
	assignments *AssignmentService
	classifier  oracle.Classifier
	tickets     repository.TicketRepository
	technicians repository.TechnicianRepository
	metrics     *observability.Metrics
	logger      *zap.Logger
	oracleCfg   config.OracleConfig
	assignCfg   config.AssignmentConfig
}

// IntakeDependencies bundles collaborators for the orchestrator.
type IntakeDependencies struct {
	Lifecycle      *TicketService
	Assignments    *AssignmentService
	Classifier     oracle.Classifier
	TicketRepo     repository.TicketRepository
	TechnicianRepo repository.TechnicianRepository
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewIntakeService constructs the orchestrator.
func NewIntakeService(oracleCfg config.OracleConfig, assignCfg config.AssignmentConfig, deps IntakeDependencies) *IntakeService {
	return &IntakeService{
		lifecycle:   deps.Lifecycle,
		assignments: deps.Assignments,
		classifier:  deps.Classifier,
		tickets:     deps.TicketRepo,
		technicians: deps.TechnicianRepo,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		oracleCfg:   oracleCfg,
		assignCfg:   assignCfg,
	}
}

// SubmitReport runs the full intake pipeline for one reporter submission.
func (s *IntakeService) SubmitReport(ctx context.Context, reporterID string, input TicketCreateInput) (*IntakeResult, error) {
	ticket, err := s.lifecycle.CreateDraft(ctx, reporterID, input)
	if err != nil {
		return nil, err
	}

	draft := oracle.TicketDraft{
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		Location:    ticket.Location,
		Priority:    ticket.Priority,
		Images:      ticket.Images,
	}
	communityCtx, contextTickets := s.gatherContext(ctx, ticket)

	// The oracle call is detached from the request context: a client
	// disconnect must not leave the ticket half-created. The timeout stays
	// bounded either way.
	classifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.oracleCfg.Timeout())
	outcome := s.classifier.Classify(classifyCtx, draft, communityCtx)
	cancel()

	if outcome.Fallback {
		s.metrics.RecordOracleFallback()
		s.logger.Info("intake proceeding with fallback classification",
			zap.String("ticket_id", ticket.ID),
			zap.String("reason", outcome.FallbackReason))
	}
	classification := outcome.Classification

	// Spam branch: side-branch of the lifecycle, not a normal status.
	if classification.IsSpam && classification.SpamConfidence >= s.assignCfg.SpamThreshold {
		flagged, err := s.lifecycle.MarkSpam(ctx, intakeActor, ticket.ID, classification.SpamReason, classification.SpamConfidence, true)
		if err != nil {
			return nil, err
		}
		return &IntakeResult{Outcome: OutcomeFlaggedSpam, Ticket: flagged}, nil
	}

	// Dedup branch: merge only when the suggested target is in the
	// candidate set, and fall back to an independent ticket if the target
	// vanished in the meantime.
	if decision := ResolveDuplicate(classification, contextTickets); decision.Merge {
		if result, ok := s.tryMerge(ctx, ticket, decision.TargetID); ok {
			return result, nil
		}
	}

	meta := domain.AIMetadata{
		PredictedCategory:      classification.PredictedCategory,
		PredictedUrgency:       classification.PredictedUrgency,
		Confidence:             classification.Confidence,
		SimilarPastTickets:     classification.SimilarTickets,
		RecommendedTechnician:  classification.RecommendedTechnician,
		AlternativeTechnicians: classification.AlternativeTechnicians,
		Fallback:               outcome.Fallback,
		FallbackReason:         outcome.FallbackReason,
	}
	if err := s.lifecycle.ApplyEnrichment(ctx, ticket, meta,
		classification.RequiredTools, classification.RequiredMaterials,
		classification.EstimatedDurationMinutes, classification.DifficultyLevel); err != nil {
		return nil, err
	}

	result := &IntakeResult{Outcome: OutcomeCreated, Ticket: ticket}
	if s.assignCfg.AutoAssign {
		assignment, err := s.assignments.AutoAssign(ctx, ticket.ID, intakeActor)
		if err != nil {
			// A lost race or transient assignment failure is not fatal to
			// intake; the ticket stays open and the retry worker will pick
			// it up.
			var domainErr *apperrors.DomainError
			if errors.As(err, &domainErr) && domainErr.Code == "CONFLICT" {
				s.logger.Info("auto-assign lost race during intake", zap.String("ticket_id", ticket.ID))
			} else {
				s.logger.Warn("auto-assign failed during intake", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		} else {
			result.Assignment = assignment
			result.Ticket = assignment.Ticket
			if assignment.Assigned {
				s.metrics.RecordAutoAssignment()
			}
		}
	}
	return result, nil
}

// gatherContext loads the oracle's read-only surroundings. Failures here are
// logged and degrade to an empty context rather than failing intake.
func (s *IntakeService) gatherContext(ctx context.Context, ticket *domain.Ticket) (oracle.CommunityContext, []domain.Ticket) {
	limit := s.oracleCfg.ContextTickets
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	recent, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		CommunityID: &ticket.CommunityID,
		Statuses:    []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.TicketStatusInProgress},
		Limit:       limit,
	})
	if err != nil {
		s.logger.Warn("failed to load recent tickets for oracle context", zap.Error(err))
		recent = nil
	}
	// The freshly created draft is part of the listing; the oracle should
	// not see the ticket it is classifying among the candidates.
	filtered := make([]domain.Ticket, 0, len(recent))
	for _, t := range recent {
		if t.ID != ticket.ID {
			filtered = append(filtered, t)
		}
	}

	active := true
	roster, err := s.technicians.List(ctx, repository.TechnicianFilter{
		CommunityID: &ticket.CommunityID,
		Active:      &active,
		Limit:       500,
	})
	if err != nil {
		s.logger.Warn("failed to load roster for oracle context", zap.Error(err))
		roster = nil
	}

	return oracle.CommunityContext{RecentTickets: filtered, Technicians: roster}, filtered
}

// tryMerge attempts the merge path; ok=false means the caller should fall
// through to the independent-ticket path.
func (s *IntakeService) tryMerge(ctx context.Context, ticket *domain.Ticket, targetID string) (*IntakeResult, bool) {
	target, err := s.lifecycle.GetTicket(ctx, targetID)
	if err != nil {
		s.logger.Info("merge target gone, keeping independent ticket",
			zap.String("ticket_id", ticket.ID),
			zap.String("target_id", targetID))
		return nil, false
	}

	merged, err := s.lifecycle.MergeAbsorb(ctx, target, ticket)
	if err != nil {
		if errors.Is(err, ErrMergeTargetGone) {
			s.logger.Info("merge raced with concurrent delete, keeping independent ticket",
				zap.String("ticket_id", ticket.ID),
				zap.String("target_id", targetID))
			return nil, false
		}
		s.logger.Warn("merge failed, keeping independent ticket",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, false
	}

	s.metrics.RecordMerge()
	return &IntakeResult{Outcome: OutcomeMerged, Ticket: merged, MergedInto: merged.ID}, true
}
