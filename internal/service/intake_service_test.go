package service

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/observability"
	"github.com/communityfix/maintenance-service/internal/oracle"
	"github.com/communityfix/maintenance-service/internal/repository"
)

// scriptedClassifier returns a canned outcome.
type scriptedClassifier struct {
	outcome oracle.Outcome
}

func (s *scriptedClassifier) Classify(ctx context.Context, draft oracle.TicketDraft, cctx oracle.CommunityContext) oracle.Outcome {
	return s.outcome
}

// failingClassifier simulates an unreachable oracle.
type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, draft oracle.TicketDraft, cctx oracle.CommunityContext) oracle.Outcome {
	return oracle.FallbackOutcome(draft, "oracle unreachable")
}

func newIntakeFixture(classifier oracle.Classifier, autoAssign bool) (*IntakeService, *fakeTicketRepo, *fakeTechnicianRepo) {
	tickets := newFakeTicketRepo()
	technicians := &fakeTechnicianRepo{}
	communities := &fakeCommunityRepo{communities: map[string]*domain.Community{
		"c-1": {ID: "c-1", Name: "Riverview", Active: true},
	}}
	logger := zap.NewNop()

	lifecycle := NewTicketService(TicketDependencies{
		TicketRepo:     tickets,
		TechnicianRepo: technicians,
		CommunityRepo:  communities,
		Logger:         logger,
	})
	assignCfg := config.AssignmentConfig{AutoAssign: autoAssign, MaxWorkload: 10, SpamThreshold: 0.7}
	assignments := NewAssignmentService(assignCfg, AssignmentDependencies{
		TicketRepo:     tickets,
		TechnicianRepo: technicians,
		Logger:         logger,
	})
	intake := NewIntakeService(config.OracleConfig{TimeoutSeconds: 1, ContextTickets: 20}, assignCfg, IntakeDependencies{
		Lifecycle:      lifecycle,
		Assignments:    assignments,
		Classifier:     classifier,
		TicketRepo:     tickets,
		TechnicianRepo: technicians,
		Metrics:        observability.NewMetrics(),
		Logger:         logger,
	})
	return intake, tickets, technicians
}

func draftInput() TicketCreateInput {
	return TicketCreateInput{
		CommunityID: "c-1",
		Title:       "Leaking kitchen faucet",
		Description: "Water drips constantly from the faucet base.",
		Category:    domain.CategoryPlumbing,
		Location:    "Unit 4B",
	}
}

func TestSubmitReportSurvivesOracleOutage(t *testing.T) {
	intake, _, _ := newIntakeFixture(failingClassifier{}, false)

	result, err := intake.SubmitReport(context.Background(), "user-1", draftInput())
	if err != nil {
		t.Fatalf("intake must not fail on oracle outage: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want created", result.Outcome)
	}
	meta := result.Ticket.AIMetadata
	if meta == nil || !meta.Fallback {
		t.Fatalf("fallback not recorded: %+v", meta)
	}
	if meta.PredictedCategory != domain.CategoryPlumbing {
		t.Fatalf("fallback category = %q, want reporter's category", meta.PredictedCategory)
	}
	if meta.Confidence != 0 {
		t.Fatalf("fallback confidence = %v, want 0", meta.Confidence)
	}
}

func TestSubmitReportResolvesAutoPriority(t *testing.T) {
	classifier := &scriptedClassifier{outcome: oracle.Outcome{
		Classification: oracle.Classification{
			PredictedCategory: domain.CategoryPlumbing,
			PredictedUrgency:  domain.UrgencyHigh,
			Confidence:        0.9,
			DifficultyLevel:   domain.DifficultyMedium,
		},
	}}
	intake, _, _ := newIntakeFixture(classifier, false)

	result, err := intake.SubmitReport(context.Background(), "user-1", draftInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ticket.Priority != domain.TicketPriorityHigh {
		t.Fatalf("priority = %q, want high for predicted high urgency", result.Ticket.Priority)
	}
}

func TestSubmitReportFlagsConfidentSpam(t *testing.T) {
	classifier := &scriptedClassifier{outcome: oracle.Outcome{
		Classification: oracle.Classification{
			PredictedCategory: domain.CategoryPlumbing,
			IsSpam:            true,
			SpamConfidence:    0.95,
			SpamReason:        "gibberish content",
		},
	}}
	intake, tickets, _ := newIntakeFixture(classifier, false)

	result, err := intake.SubmitReport(context.Background(), "user-1", draftInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeFlaggedSpam {
		t.Fatalf("outcome = %q, want flagged_spam", result.Outcome)
	}
	if result.Ticket.Status != domain.TicketStatusSpam {
		t.Fatalf("status = %q, want spam", result.Ticket.Status)
	}
	meta := result.Ticket.SpamMetadata
	if meta == nil || meta.Reason != "gibberish content" || meta.MarkedBy != "intake-engine" {
		t.Fatalf("spam metadata wrong: %+v", meta)
	}
	stored, err := tickets.GetByID(context.Background(), result.Ticket.ID)
	if err != nil || stored.Status != domain.TicketStatusSpam {
		t.Fatalf("spam ticket not retained in store: %v", err)
	}
}

func TestSubmitReportBelowSpamThresholdProceeds(t *testing.T) {
	classifier := &scriptedClassifier{outcome: oracle.Outcome{
		Classification: oracle.Classification{
			PredictedCategory: domain.CategoryPlumbing,
			IsSpam:            true,
			SpamConfidence:    0.4,
		},
	}}
	intake, _, _ := newIntakeFixture(classifier, false)

	result, err := intake.SubmitReport(context.Background(), "user-1", draftInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want created for low-confidence spam", result.Outcome)
	}
}

func TestSubmitReportMergesIntoCandidate(t *testing.T) {
	classifier := &scriptedClassifier{}
	intake, tickets, _ := newIntakeFixture(classifier, false)
	target := tickets.add(&domain.Ticket{
		CommunityID: "c-1",
		ReportedBy:  "user-0",
		Title:       "Faucet leak in 4B",
		Description: "Original faucet report.",
		Category:    domain.CategoryPlumbing,
		Status:      domain.TicketStatusOpen,
		Images:      []string{"a.jpg"},
	})

	classifier.outcome = oracle.Outcome{
		Classification: oracle.Classification{
			PredictedCategory: domain.CategoryPlumbing,
			ShouldMerge:       true,
			MergeTargetID:     target.ID,
		},
	}

	input := draftInput()
	input.Images = []string{"b.jpg"}
	result, err := intake.SubmitReport(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeMerged {
		t.Fatalf("outcome = %q, want merged", result.Outcome)
	}
	if result.MergedInto != target.ID {
		t.Fatalf("merged into %q, want %q", result.MergedInto, target.ID)
	}

	merged := result.Ticket
	if !strings.Contains(merged.Description, "Original faucet report.") ||
		!strings.Contains(merged.Description, "Water drips constantly") {
		t.Fatalf("merged description lost content: %q", merged.Description)
	}
	if !strings.Contains(merged.Description, "merged duplicate report") {
		t.Fatalf("merged description missing separator: %q", merged.Description)
	}
	if len(merged.Images) != 2 {
		t.Fatalf("images = %v, want both tickets' images", merged.Images)
	}
	if len(merged.History) != 1 || merged.History[0].ReportedBy != "user-1" {
		t.Fatalf("history snapshot missing: %+v", merged.History)
	}

	// The absorbed row must be gone.
	remaining, _ := tickets.ListWithFilter(context.Background(), repository.TicketFilter{})
	if len(remaining) != 1 {
		t.Fatalf("got %d tickets after merge, want 1", len(remaining))
	}
}

func TestSubmitReportIgnoresHallucinatedMergeTarget(t *testing.T) {
	classifier := &scriptedClassifier{outcome: oracle.Outcome{
		Classification: oracle.Classification{
			PredictedCategory: domain.CategoryPlumbing,
			ShouldMerge:       true,
			MergeTargetID:     "t-does-not-exist",
		},
	}}
	intake, _, _ := newIntakeFixture(classifier, false)

	result, err := intake.SubmitReport(context.Background(), "user-1", draftInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want independent ticket for unknown target", result.Outcome)
	}
}

func TestSubmitReportAutoAssigns(t *testing.T) {
	classifier := &scriptedClassifier{outcome: oracle.Outcome{
		Classification: oracle.Classification{
			PredictedCategory: domain.CategoryPlumbing,
			PredictedUrgency:  domain.UrgencyHigh,
		},
	}}
	intake, _, technicians := newIntakeFixture(classifier, true)
	technicians.roster = []domain.Technician{
		{ID: "tech-1", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}

	result, err := intake.SubmitReport(context.Background(), "user-1", draftInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Assignment == nil || !result.Assignment.Assigned {
		t.Fatalf("expected auto-assignment, got %+v", result.Assignment)
	}
	if result.Ticket.AssignedTo == nil || *result.Ticket.AssignedTo != "tech-1" {
		t.Fatalf("assignee = %v, want tech-1", result.Ticket.AssignedTo)
	}
}

func TestResolveDuplicateRequiresCandidate(t *testing.T) {
	classification := oracle.Classification{ShouldMerge: true, MergeTargetID: "t-1"}

	decision := ResolveDuplicate(classification, nil)
	if decision.Merge {
		t.Fatal("merge approved without candidate set")
	}

	decision = ResolveDuplicate(classification, []domain.Ticket{{ID: "t-1"}})
	if !decision.Merge || decision.TargetID != "t-1" {
		t.Fatalf("decision = %+v, want merge into t-1", decision)
	}

	decision = ResolveDuplicate(oracle.Classification{ShouldMerge: true}, []domain.Ticket{{ID: "t-1"}})
	if decision.Merge {
		t.Fatal("merge approved without target id")
	}
}
