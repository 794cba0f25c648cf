package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/domain"
	apperrors "github.com/communityfix/maintenance-service/pkg/util"
)

func newAssignmentService(tickets *fakeTicketRepo, technicians *fakeTechnicianRepo) *AssignmentService {
	return NewAssignmentService(config.AssignmentConfig{MaxWorkload: 10}, AssignmentDependencies{
		TicketRepo:     tickets,
		TechnicianRepo: technicians,
		Logger:         zap.NewNop(),
	})
}

func plumbingTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:          "t-100",
		CommunityID: "c-1",
		Category:    domain.CategoryPlumbing,
		Priority:    domain.TicketPriorityHigh,
		Status:      domain.TicketStatusOpen,
	}
}

func TestScoreIsPure(t *testing.T) {
	ticket := plumbingTicket()
	tech := &domain.Technician{ID: "tech-1", Expertise: []domain.Category{domain.CategoryPlumbing}}

	first, firstReason := Score(ticket, tech, 3)
	for i := 0; i < 5; i++ {
		score, reason := Score(ticket, tech, 3)
		if score != first || reason != firstReason {
			t.Fatalf("score not deterministic: got (%d, %q), want (%d, %q)", score, reason, first, firstReason)
		}
	}
}

func TestScorePlumberHighPriority(t *testing.T) {
	ticket := plumbingTicket()

	// Primary plumbing match, related hvac, 2 active jobs, high priority:
	// 100 + 30 - 10 + 20 = 140.
	tech := &domain.Technician{ID: "tech-1", Expertise: []domain.Category{domain.CategoryPlumbing, domain.CategoryHVAC}}
	score, reason := Score(ticket, tech, 2)
	if score != 140 {
		t.Fatalf("score = %d, want 140", score)
	}
	if reason != "expert in plumbing" {
		t.Fatalf("reason = %q, want primary match reason", reason)
	}
}

func TestScoreRelatedOnly(t *testing.T) {
	ticket := plumbingTicket()
	ticket.Priority = domain.TicketPriorityMedium

	// maintenance is adjacent to plumbing: 30 - 5 = 25.
	tech := &domain.Technician{ID: "tech-2", Expertise: []domain.Category{domain.CategoryMaintenance}}
	score, reason := Score(ticket, tech, 1)
	if score != 25 {
		t.Fatalf("score = %d, want 25", score)
	}
	if reason != "1 related skill(s) for plumbing" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	ticket := plumbingTicket()
	ticket.Priority = domain.TicketPriorityLow

	tech := &domain.Technician{ID: "tech-3", Expertise: []domain.Category{domain.CategoryPainting}}
	score, reason := Score(ticket, tech, 9)
	if score != 0 {
		t.Fatalf("score = %d, want floor at 0", score)
	}
	if reason != "available technician" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestScoreIdleNoMatchReason(t *testing.T) {
	ticket := plumbingTicket()
	ticket.Priority = domain.TicketPriorityMedium

	tech := &domain.Technician{ID: "tech-4", Expertise: []domain.Category{domain.CategoryPainting}}
	_, reason := Score(ticket, tech, 0)
	if reason != "light workload" {
		t.Fatalf("reason = %q, want light workload", reason)
	}
}

func TestScoreMonotonicInWorkload(t *testing.T) {
	ticket := plumbingTicket()
	tech := &domain.Technician{ID: "tech-1", Expertise: []domain.Category{domain.CategoryPlumbing}}

	prev, _ := Score(ticket, tech, 0)
	for workload := 1; workload < 10; workload++ {
		score, _ := Score(ticket, tech, workload)
		if score > prev {
			t.Fatalf("score increased with workload: %d -> %d at workload %d", prev, score, workload)
		}
		prev = score
	}
}

func TestFindAvailableExcludesSaturated(t *testing.T) {
	tickets := newFakeTicketRepo()
	busy := "tech-busy"
	for i := 0; i < 10; i++ {
		tickets.add(&domain.Ticket{
			CommunityID: "c-1",
			Status:      domain.TicketStatusAssigned,
			AssignedTo:  &busy,
		})
	}
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-busy", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
		{ID: "tech-free", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	candidates, err := svc.FindAvailableTechnicians(context.Background(), plumbingTicket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Technician.ID != "tech-free" {
		t.Fatalf("saturated technician was not excluded: %q", candidates[0].Technician.ID)
	}
}

func TestFindAvailableRanking(t *testing.T) {
	tickets := newFakeTicketRepo()
	generalist := "tech-2"
	// The generalist carries 4 active jobs; the plumber is idle.
	for i := 0; i < 4; i++ {
		tickets.add(&domain.Ticket{
			CommunityID: "c-1",
			Status:      domain.TicketStatusInProgress,
			AssignedTo:  &generalist,
		})
	}
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-2", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryMaintenance, domain.CategoryHVAC}},
		{ID: "tech-1", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	candidates, err := svc.FindAvailableTechnicians(context.Background(), plumbingTicket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	// tech-1: 100 + 0 - 0 + 20 = 120. tech-2: 0 + 60 - 20 + 20 = 60.
	if candidates[0].Technician.ID != "tech-1" || candidates[0].Score != 120 {
		t.Fatalf("best candidate = %q score %d, want tech-1 at 120", candidates[0].Technician.ID, candidates[0].Score)
	}
	if candidates[1].Technician.ID != "tech-2" || candidates[1].Score != 60 {
		t.Fatalf("second candidate = %q score %d, want tech-2 at 60", candidates[1].Technician.ID, candidates[1].Score)
	}
}

func TestFindAvailableTieBreakByID(t *testing.T) {
	tickets := newFakeTicketRepo()
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-b", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
		{ID: "tech-a", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	candidates, err := svc.FindAvailableTechnicians(context.Background(), plumbingTicket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidates[0].Technician.ID != "tech-a" {
		t.Fatalf("tie not broken lexicographically: first = %q", candidates[0].Technician.ID)
	}
}

func TestFindBestTechnician(t *testing.T) {
	tickets := newFakeTicketRepo()
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-2", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryMaintenance}},
		{ID: "tech-1", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	best, err := svc.FindBestTechnician(context.Background(), plumbingTicket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best == nil || best.Technician.ID != "tech-1" {
		t.Fatalf("best = %+v, want tech-1", best)
	}
}

func TestFindBestTechnicianEmptyRoster(t *testing.T) {
	svc := newAssignmentService(newFakeTicketRepo(), &fakeTechnicianRepo{})

	best, err := svc.FindBestTechnician(context.Background(), plumbingTicket())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best != nil {
		t.Fatalf("best = %+v, want nil when nobody is available", best)
	}
}

func TestAutoAssignCommitsBestCandidate(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticket := tickets.add(plumbingTicket())
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-1", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	result, err := svc.AutoAssign(context.Background(), ticket.ID, "mgr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Assigned {
		t.Fatalf("expected assignment, got reason %q", result.Reason)
	}
	if result.Ticket.AssignedTo == nil || *result.Ticket.AssignedTo != "tech-1" {
		t.Fatalf("assignee = %v, want tech-1", result.Ticket.AssignedTo)
	}
	if result.Ticket.Status != domain.TicketStatusAssigned {
		t.Fatalf("status = %q, want assigned", result.Ticket.Status)
	}
	meta := result.Ticket.AssignmentMetadata
	if meta == nil || !meta.AutoAssigned || meta.AssignedBy != "mgr-1" {
		t.Fatalf("assignment metadata not recorded: %+v", meta)
	}
}

func TestAutoAssignNoCandidates(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticket := tickets.add(plumbingTicket())
	svc := newAssignmentService(tickets, &fakeTechnicianRepo{})

	result, err := svc.AutoAssign(context.Background(), ticket.ID, "mgr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Assigned {
		t.Fatal("expected no assignment")
	}
	if result.Ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("ticket should stay open, got %q", result.Ticket.Status)
	}
}

func TestAutoAssignLostRaceConflicts(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticket := tickets.add(plumbingTicket())
	tickets.claimDenied = true
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-1", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	_, err := svc.AutoAssign(context.Background(), ticket.ID, "mgr-1")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONFLICT" {
		t.Fatalf("expected CONFLICT on lost claim, got %v", err)
	}
}

func TestAutoAssignRejectsSpam(t *testing.T) {
	tickets := newFakeTicketRepo()
	ticket := plumbingTicket()
	ticket.Status = domain.TicketStatusSpam
	stored := tickets.add(ticket)
	svc := newAssignmentService(tickets, &fakeTechnicianRepo{})

	_, err := svc.AutoAssign(context.Background(), stored.ID, "mgr-1")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONFLICT" {
		t.Fatalf("expected CONFLICT for spam ticket, got %v", err)
	}
}

func TestManualAssignOverwrites(t *testing.T) {
	tickets := newFakeTicketRepo()
	prior := "tech-old"
	ticket := plumbingTicket()
	ticket.Status = domain.TicketStatusAssigned
	ticket.AssignedTo = &prior
	stored := tickets.add(ticket)
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-new", CommunityID: "c-1", Active: true, Expertise: []domain.Category{domain.CategoryPlumbing}},
	}}
	svc := newAssignmentService(tickets, technicians)

	updated, err := svc.ManualAssign(context.Background(), stored.ID, "tech-new", "mgr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.AssignedTo == nil || *updated.AssignedTo != "tech-new" {
		t.Fatalf("assignee = %v, want tech-new", updated.AssignedTo)
	}
	if updated.AssignmentMetadata == nil || updated.AssignmentMetadata.AutoAssigned {
		t.Fatalf("manual assignment metadata wrong: %+v", updated.AssignmentMetadata)
	}
}

func TestManualAssignInactiveTechnician(t *testing.T) {
	tickets := newFakeTicketRepo()
	stored := tickets.add(plumbingTicket())
	technicians := &fakeTechnicianRepo{roster: []domain.Technician{
		{ID: "tech-1", CommunityID: "c-1", Active: false},
	}}
	svc := newAssignmentService(tickets, technicians)

	_, err := svc.ManualAssign(context.Background(), stored.ID, "tech-1", "mgr-1")
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONFLICT" {
		t.Fatalf("expected CONFLICT for inactive technician, got %v", err)
	}
}
