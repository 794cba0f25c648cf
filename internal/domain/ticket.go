package domain

import "time"

// TicketStatus enumerates lifecycle states for maintenance tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusAssigned   TicketStatus = "assigned"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusSpam       TicketStatus = "spam"
)

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress,
		TicketStatusResolved, TicketStatusClosed, TicketStatusSpam:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that count toward a technician's workload.
var ActiveStatuses = []TicketStatus{TicketStatusAssigned, TicketStatusInProgress}

// TicketPriority enumerates reporter-facing urgency. "auto" defers the
// decision to the enrichment step.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityAuto   TicketPriority = "auto"
)

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityAuto:
		return true
	}
	return false
}

// Category enumerates maintenance trades.
type Category string

const (
	CategoryPlumbing    Category = "plumbing"
	CategoryElectrical  Category = "electrical"
	CategoryHVAC        Category = "hvac"
	CategoryAppliance   Category = "appliance"
	CategoryCarpentry   Category = "carpentry"
	CategoryPainting    Category = "painting"
	CategoryCleaning    Category = "cleaning"
	CategoryLandscaping Category = "landscaping"
	CategoryPestControl Category = "pest_control"
	CategoryFireSafety  Category = "fire_safety"
	CategorySecurity    Category = "security"
	CategoryMaintenance Category = "maintenance"
	CategoryOther       Category = "other"
)

// Categories lists every known trade, in declaration order.
var Categories = []Category{
	CategoryPlumbing, CategoryElectrical, CategoryHVAC, CategoryAppliance,
	CategoryCarpentry, CategoryPainting, CategoryCleaning, CategoryLandscaping,
	CategoryPestControl, CategoryFireSafety, CategorySecurity,
	CategoryMaintenance, CategoryOther,
}

// ValidCategory reports whether c is a known trade.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Urgency is the oracle's predicted urgency for a ticket.
type Urgency string

const (
	UrgencyLow  Urgency = "low"
	UrgencyHigh Urgency = "high"
)

// DifficultyLevel is the oracle's estimate of job complexity.
type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// AIMetadata captures the enrichment written by the intake engine. The
// reporter never supplies any of these fields.
type AIMetadata struct {
	PredictedCategory      Category `json:"predicted_category"`
	PredictedUrgency       Urgency  `json:"predicted_urgency"`
	Confidence             float64  `json:"confidence"`
	SimilarPastTickets     []string `json:"similar_past_tickets,omitempty"`
	RecommendedTechnician  string   `json:"recommended_technician,omitempty"`
	AlternativeTechnicians []string `json:"alternative_technicians,omitempty"`
	Fallback               bool     `json:"fallback"`
	FallbackReason         string   `json:"fallback_reason,omitempty"`
}

// SpamMetadata records spam determinations. Unmarking preserves the original
// fields and annotates them rather than clearing the record.
type SpamMetadata struct {
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
	DetectedAt time.Time  `json:"detected_at"`
	MarkedBy   string     `json:"marked_by"`
	UnmarkedAt *time.Time `json:"unmarked_at,omitempty"`
	UnmarkedBy *string    `json:"unmarked_by,omitempty"`
}

// AssignmentMetadata records how the current assignee was chosen.
type AssignmentMetadata struct {
	AutoAssigned     bool      `json:"auto_assigned"`
	AssignedAt       time.Time `json:"assigned_at"`
	AssignmentScore  int       `json:"assignment_score,omitempty"`
	AssignmentReason string    `json:"assignment_reason,omitempty"`
	AssignedBy       string    `json:"assigned_by,omitempty"`
}

// AbsorbedReport is a self-contained snapshot of a ticket that was merged
// into this one. The absorbed row is deleted, so the snapshot carries
// everything needed for the audit trail.
type AbsorbedReport struct {
	TicketID    string    `json:"ticket_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ReportedBy  string    `json:"reported_by"`
	MergedAt    time.Time `json:"merged_at"`
}

// Ticket is the aggregate for reported maintenance issues.
type Ticket struct {
	ID          string
	ExternalKey string
	ReportedBy  string
	CommunityID string
	Title       string
	Description string
	Images      []string
	Category    Category
	Location    string
	Priority    TicketPriority
	Status      TicketStatus
	AssignedTo  *string
	History     []AbsorbedReport

	// Enrichment fields, written only by the intake engine.
	AIMetadata               *AIMetadata
	RequiredTools            []string
	RequiredMaterials        []string
	EstimatedDurationMinutes int
	DifficultyLevel          DifficultyLevel
	SpamMetadata             *SpamMetadata
	AssignmentMetadata       *AssignmentMetadata

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the ticket counts toward its assignee's workload.
func (t *Ticket) IsActive() bool {
	for _, s := range ActiveStatuses {
		if t.Status == s {
			return true
		}
	}
	return false
}
