package taskdeck

import "time"

// AuditLog records a task action performed (or refused) on behalf of a user.
// The user email is denormalized into the row so the viewer does not depend
// on the user still existing.
type AuditLog struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"-"`
	UserEmail string    `json:"user_email"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
}

type AuditLogRepository interface {
	Append(entry AuditLog) error
	// FindAll returns entries newest first.
	FindAll() ([]AuditLog, error)
}
