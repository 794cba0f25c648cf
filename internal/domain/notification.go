package domain

import "time"

// NotificationType labels the event that produced a notification.
type NotificationType string

const (
	NotificationTicketCreated  NotificationType = "ticket_created"
	NotificationTicketAssigned NotificationType = "ticket_assigned"
	NotificationStatusChanged  NotificationType = "status_changed"
	NotificationTicketMerged   NotificationType = "ticket_merged"
	NotificationSpamFlagged    NotificationType = "spam_flagged"
)

// Notification is a stored per-user message produced by the engine's
// fire-and-forget side effects. Delivery mechanics (push, email) are owned by
// downstream consumers of the Redis channel.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Priority  TicketPriority
	TicketID  *string
	Data      map[string]any
	ReadAt    *time.Time
	CreatedAt time.Time
}
