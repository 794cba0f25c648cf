package service

import (
	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/oracle"
)

// MergeDecision is the dedup resolver's verdict for a new report.
type MergeDecision struct {
	Merge    bool
	TargetID string
}

// ResolveDuplicate decides whether the new report should merge into an
// existing ticket. It trusts the oracle only as far as the candidate set: the
// suggested target must appear among the same-community candidates, which
// guards against stale or hallucinated ids.
func ResolveDuplicate(classification oracle.Classification, candidates []domain.Ticket) MergeDecision {
	if !classification.ShouldMerge || classification.MergeTargetID == "" {
		return MergeDecision{}
	}
	for _, candidate := range candidates {
		if candidate.ID == classification.MergeTargetID {
			return MergeDecision{Merge: true, TargetID: candidate.ID}
		}
	}
	return MergeDecision{}
}
