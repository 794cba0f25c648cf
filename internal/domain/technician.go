package domain

import "time"

// Technician is a read-only projection of a maintenance worker owned by the
// user-management subsystem. The engine never mutates technicians.
type Technician struct {
	ID          string
	Name        string
	Expertise   []Category
	CommunityID string
	Active      bool
	CreatedAt   time.Time
}

// HasExpertise reports whether the technician covers the given trade.
func (t *Technician) HasExpertise(c Category) bool {
	for _, skill := range t.Expertise {
		if skill == c {
			return true
		}
	}
	return false
}

// AssignmentCandidate is an ephemeral scoring record for one technician.
// Candidates are never persisted; they exist only for a single scoring pass.
type AssignmentCandidate struct {
	Technician Technician
	Workload   int
	Score      int
	Reason     string
}
