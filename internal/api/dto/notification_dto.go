package dto

import (
	"time"

	"github.com/communityfix/maintenance-service/internal/domain"
)

// NotificationResponse is one stored notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Priority  domain.TicketPriority   `json:"priority"`
	TicketID  *string                 `json:"ticket_id,omitempty"`
	Data      map[string]any          `json:"data,omitempty"`
	ReadAt    *time.Time              `json:"read_at,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// MarkAllReadResponse reports how many rows the batch write touched.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
