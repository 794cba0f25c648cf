package domain

// Role enumerates the caller roles the engine recognizes. Identity and
// credential management live in an external service; the engine only reads
// the role off a validated token.
type Role string

const (
	RoleResident   Role = "resident"
	RoleTechnician Role = "technician"
	RoleManager    Role = "manager"
)
