package oracle

import (
	"encoding/json"
	"strings"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// TicketDraft is the reporter-supplied input to classification. All fields
// except Images are required by intake validation before the oracle is called.
type TicketDraft struct {
	Title       string
	Description string
	Category    domain.Category
	Location    string
	Priority    domain.TicketPriority
	Images      []string
}

// CommunityContext supplies read-only surroundings for the oracle prompt:
// recent open/assigned/in_progress tickets from the same community and the
// technician roster. Never mutated.
type CommunityContext struct {
	RecentTickets []domain.Ticket
	Technicians   []domain.Technician
}

// Classification is the parsed prediction set returned by the oracle.
type Classification struct {
	PredictedCategory        domain.Category
	PredictedUrgency         domain.Urgency
	Confidence               float64
	IsSpam                   bool
	SpamConfidence           float64
	SpamReason               string
	SimilarTickets           []string
	ShouldMerge              bool
	MergeTargetID            string
	RecommendedTechnician    string
	AlternativeTechnicians   []string
	RequiredTools            []string
	RequiredMaterials        []string
	EstimatedDurationMinutes int
	DifficultyLevel          domain.DifficultyLevel
}

// Outcome is the tagged result of a classify call. Fallback outcomes are not
// errors: ticket creation must proceed regardless of oracle availability.
type Outcome struct {
	Classification Classification
	Fallback       bool
	FallbackReason string
}

// FallbackOutcome builds the degraded classification used whenever the oracle
// is unreachable or its reply cannot be decoded.
func FallbackOutcome(draft TicketDraft, reason string) Outcome {
	return Outcome{
		Classification: Classification{
			PredictedCategory: draft.Category,
			PredictedUrgency:  domain.UrgencyLow,
			Confidence:        0,
			DifficultyLevel:   domain.DifficultyMedium,
		},
		Fallback:       true,
		FallbackReason: reason,
	}
}

// wireClassification mirrors the JSON contract with the oracle. Fields are
// decoded loosely and normalized afterwards; a reply that fails to decode as
// a whole degrades to fallback instead of surfacing an error.
type wireClassification struct {
	PredictedCategory        string   `json:"predicted_category"`
	PredictedUrgency         string   `json:"predicted_urgency"`
	Confidence               float64  `json:"confidence"`
	IsSpam                   bool     `json:"is_spam"`
	SpamConfidence           float64  `json:"spam_confidence"`
	SpamReason               string   `json:"spam_reason"`
	SimilarTickets           []string `json:"similar_tickets"`
	ShouldMerge              bool     `json:"should_merge"`
	MergeTargetID            string   `json:"merge_target_id"`
	RecommendedTechnician    string   `json:"recommended_technician"`
	AlternativeTechnicians   []string `json:"alternative_technicians"`
	RequiredTools            []string `json:"required_tools"`
	RequiredMaterials        []string `json:"required_materials"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	DifficultyLevel          string   `json:"difficulty_level"`
}

// DecodeReply parses the oracle's free-form text reply into a strict
// Classification. The model is asked for a plain JSON object but frequently
// wraps it in prose or markdown fences, so decoding starts at the first '{'
// and ends at the last '}'.
func DecodeReply(reply string, draft TicketDraft) Outcome {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return FallbackOutcome(draft, "no JSON object in oracle reply")
	}

	var wire wireClassification
	if err := json.Unmarshal([]byte(reply[start:end+1]), &wire); err != nil {
		return FallbackOutcome(draft, "undecodable oracle reply: "+err.Error())
	}

	return Outcome{Classification: normalize(wire, draft)}
}

// normalize coerces loosely-typed oracle output onto the domain enums.
// Unknown values fall back field-by-field rather than discarding the whole
// classification.
func normalize(wire wireClassification, draft TicketDraft) Classification {
	c := Classification{
		PredictedCategory:        domain.Category(strings.ToLower(strings.TrimSpace(wire.PredictedCategory))),
		PredictedUrgency:         domain.Urgency(strings.ToLower(strings.TrimSpace(wire.PredictedUrgency))),
		Confidence:               clamp01(wire.Confidence),
		IsSpam:                   wire.IsSpam,
		SpamConfidence:           clamp01(wire.SpamConfidence),
		SpamReason:               strings.TrimSpace(wire.SpamReason),
		SimilarTickets:           wire.SimilarTickets,
		ShouldMerge:              wire.ShouldMerge,
		MergeTargetID:            strings.TrimSpace(wire.MergeTargetID),
		RecommendedTechnician:    strings.TrimSpace(wire.RecommendedTechnician),
		AlternativeTechnicians:   wire.AlternativeTechnicians,
		RequiredTools:            wire.RequiredTools,
		RequiredMaterials:        wire.RequiredMaterials,
		EstimatedDurationMinutes: wire.EstimatedDurationMinutes,
		DifficultyLevel:          domain.DifficultyLevel(strings.ToLower(strings.TrimSpace(wire.DifficultyLevel))),
	}

	if !domain.ValidCategory(c.PredictedCategory) {
		c.PredictedCategory = draft.Category
	}
	if c.PredictedUrgency != domain.UrgencyLow && c.PredictedUrgency != domain.UrgencyHigh {
		c.PredictedUrgency = domain.UrgencyLow
	}
	switch c.DifficultyLevel {
	case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
	default:
		c.DifficultyLevel = domain.DifficultyMedium
	}
	if c.EstimatedDurationMinutes < 0 {
		c.EstimatedDurationMinutes = 0
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
