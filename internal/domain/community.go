package domain

import "time"

// Community is a read-only projection of a residential community. Community
// CRUD belongs to another subsystem; the engine only checks existence and
// scopes queries by community id.
type Community struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}
