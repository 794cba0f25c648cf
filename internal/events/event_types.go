package events

import (
	"time"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketTriaged       EventType = "ticket_triaged"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketSpamFlagged   EventType = "ticket_spam_flagged"
	EventTicketUnspammed     EventType = "ticket_unspammed"
	EventTicketMerged        EventType = "ticket_merged"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CommunityID string                `json:"community_id"`
	ReportedBy  string                `json:"reported_by"`
	Category    domain.Category       `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Title       string                `json:"title"`
}

// TicketTriagedPayload payload.
type TicketTriagedPayload struct {
	PredictedCategory domain.Category `json:"predicted_category"`
	PredictedUrgency  domain.Urgency  `json:"predicted_urgency"`
	Confidence        float64         `json:"confidence"`
	Fallback          bool            `json:"fallback"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TechnicianID string `json:"technician_id"`
	ReportedBy   string `json:"reported_by"`
	AutoAssigned bool   `json:"auto_assigned"`
	Score        int    `json:"score,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus  domain.TicketStatus `json:"old_status"`
	NewStatus  domain.TicketStatus `json:"new_status"`
	ReportedBy string              `json:"reported_by"`
	AssignedTo *string             `json:"assigned_to,omitempty"`
}

// TicketSpamFlaggedPayload payload.
type TicketSpamFlaggedPayload struct {
	ReportedBy string  `json:"reported_by"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Automatic  bool    `json:"automatic"`
}

// TicketUnspammedPayload payload.
type TicketUnspammedPayload struct {
	ReportedBy   string              `json:"reported_by"`
	TargetStatus domain.TicketStatus `json:"target_status"`
}

// TicketMergedPayload payload.
type TicketMergedPayload struct {
	AbsorbedTicketID   string `json:"absorbed_ticket_id"`
	AbsorbedReportedBy string `json:"absorbed_reported_by"`
	TargetReportedBy   string `json:"target_reported_by"`
}
