package dto

import (
	"time"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CommunityID string                `json:"community_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.Category       `json:"category"`
	Location    string                `json:"location"`
	Priority    domain.TicketPriority `json:"priority"`
	Images      []string              `json:"images"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignRequest payload for manual assignment.
type AssignRequest struct {
	TechnicianID string `json:"technician_id"`
}

// MarkSpamRequest payload.
type MarkSpamRequest struct {
	Reason string `json:"reason"`
}

// UnmarkSpamRequest payload. Status defaults to open.
type UnmarkSpamRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	CommunityID string                `json:"community_id"`
	ReportedBy  string                `json:"reported_by"`
	Title       string                `json:"title"`
	Category    domain.Category       `json:"category"`
	Location    string                `json:"location"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	AssignedTo  *string               `json:"assigned_to,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetail provides full ticket info including enrichment.
type TicketDetail struct {
	TicketSummary
	Description              string                     `json:"description"`
	Images                   []string                   `json:"images"`
	History                  []domain.AbsorbedReport    `json:"history,omitempty"`
	AIMetadata               *domain.AIMetadata         `json:"ai_metadata,omitempty"`
	RequiredTools            []string                   `json:"required_tools,omitempty"`
	RequiredMaterials        []string                   `json:"required_materials,omitempty"`
	EstimatedDurationMinutes int                        `json:"estimated_duration_minutes,omitempty"`
	DifficultyLevel          domain.DifficultyLevel     `json:"difficulty_level,omitempty"`
	SpamMetadata             *domain.SpamMetadata       `json:"spam_metadata,omitempty"`
	AssignmentMetadata       *domain.AssignmentMetadata `json:"assignment_metadata,omitempty"`
}

// IntakeResponse is the definitive submission outcome.
type IntakeResponse struct {
	Outcome    string             `json:"outcome"`
	Ticket     TicketDetail       `json:"ticket"`
	MergedInto string             `json:"merged_into,omitempty"`
	Assignment *AssignmentOutcome `json:"assignment,omitempty"`
}

// AssignmentOutcome summarizes the auto-assign result within intake.
type AssignmentOutcome struct {
	Assigned     bool   `json:"assigned"`
	TechnicianID string `json:"technician_id,omitempty"`
	Score        int    `json:"score,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// CandidateResponse is one scored technician.
type CandidateResponse struct {
	TechnicianID string            `json:"technician_id"`
	Name         string            `json:"name"`
	Expertise    []domain.Category `json:"expertise"`
	Workload     int               `json:"workload"`
	Score        int               `json:"score"`
	Reason       string            `json:"reason"`
}
