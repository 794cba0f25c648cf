package oracle

import (
	"testing"

	"github.com/communityfix/maintenance-service/internal/domain"
)

func testDraft() TicketDraft {
	return TicketDraft{
		Title:       "Leaking faucet",
		Description: "Drips from the base.",
		Category:    domain.CategoryPlumbing,
		Location:    "Unit 4B",
		Priority:    domain.TicketPriorityAuto,
	}
}

func TestDecodeReplyPlainJSON(t *testing.T) {
	reply := `{"predicted_category":"electrical","predicted_urgency":"high","confidence":0.82,
		"required_tools":["multimeter"],"estimated_duration_minutes":45,"difficulty_level":"hard"}`

	outcome := DecodeReply(reply, testDraft())
	if outcome.Fallback {
		t.Fatalf("unexpected fallback: %s", outcome.FallbackReason)
	}
	c := outcome.Classification
	if c.PredictedCategory != domain.CategoryElectrical {
		t.Fatalf("category = %q", c.PredictedCategory)
	}
	if c.PredictedUrgency != domain.UrgencyHigh {
		t.Fatalf("urgency = %q", c.PredictedUrgency)
	}
	if c.Confidence != 0.82 {
		t.Fatalf("confidence = %v", c.Confidence)
	}
	if c.DifficultyLevel != domain.DifficultyHard || c.EstimatedDurationMinutes != 45 {
		t.Fatalf("enrichment lost: %+v", c)
	}
}

func TestDecodeReplyMarkdownFenced(t *testing.T) {
	reply := "Here is my analysis:\n```json\n{\"predicted_category\": \"plumbing\", \"predicted_urgency\": \"low\", \"confidence\": 0.5}\n```\nLet me know if you need anything else."

	outcome := DecodeReply(reply, testDraft())
	if outcome.Fallback {
		t.Fatalf("unexpected fallback: %s", outcome.FallbackReason)
	}
	if outcome.Classification.PredictedCategory != domain.CategoryPlumbing {
		t.Fatalf("category = %q", outcome.Classification.PredictedCategory)
	}
}

func TestDecodeReplyNoJSONFallsBack(t *testing.T) {
	outcome := DecodeReply("I could not process this request.", testDraft())
	if !outcome.Fallback {
		t.Fatal("expected fallback for prose reply")
	}
	c := outcome.Classification
	if c.PredictedCategory != domain.CategoryPlumbing {
		t.Fatalf("fallback category = %q, want reporter's", c.PredictedCategory)
	}
	if c.PredictedUrgency != domain.UrgencyLow || c.Confidence != 0 || c.DifficultyLevel != domain.DifficultyMedium {
		t.Fatalf("fallback defaults wrong: %+v", c)
	}
}

func TestDecodeReplyMalformedJSONFallsBack(t *testing.T) {
	outcome := DecodeReply(`{"predicted_category": }`, testDraft())
	if !outcome.Fallback {
		t.Fatal("expected fallback for malformed JSON")
	}
}

func TestNormalizeUnknownValues(t *testing.T) {
	outcome := DecodeReply(`{"predicted_category":"WELDING","predicted_urgency":"Critical",
		"confidence":1.7,"spam_confidence":-0.3,"estimated_duration_minutes":-10,
		"difficulty_level":"impossible"}`, testDraft())
	if outcome.Fallback {
		t.Fatalf("field-level normalization must not fall back wholesale: %s", outcome.FallbackReason)
	}
	c := outcome.Classification
	if c.PredictedCategory != domain.CategoryPlumbing {
		t.Fatalf("unknown category not replaced: %q", c.PredictedCategory)
	}
	if c.PredictedUrgency != domain.UrgencyLow {
		t.Fatalf("unknown urgency not replaced: %q", c.PredictedUrgency)
	}
	if c.Confidence != 1 || c.SpamConfidence != 0 {
		t.Fatalf("confidences not clamped: %v, %v", c.Confidence, c.SpamConfidence)
	}
	if c.EstimatedDurationMinutes != 0 {
		t.Fatalf("negative duration not floored: %d", c.EstimatedDurationMinutes)
	}
	if c.DifficultyLevel != domain.DifficultyMedium {
		t.Fatalf("unknown difficulty not replaced: %q", c.DifficultyLevel)
	}
}

func TestNormalizeCaseInsensitive(t *testing.T) {
	outcome := DecodeReply(`{"predicted_category":" Electrical ","predicted_urgency":"HIGH","difficulty_level":"Easy"}`, testDraft())
	c := outcome.Classification
	if c.PredictedCategory != domain.CategoryElectrical || c.PredictedUrgency != domain.UrgencyHigh || c.DifficultyLevel != domain.DifficultyEasy {
		t.Fatalf("case/space normalization failed: %+v", c)
	}
}
