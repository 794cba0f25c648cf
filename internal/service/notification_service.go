package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/events"
	"github.com/communityfix/maintenance-service/internal/persistence"
	"github.com/communityfix/maintenance-service/internal/repository"
)

// NotificationService is the engine's notification sink. It stores per-user
// notifications and hands delivery off to downstream consumers via a Redis
// channel. Push subscription state is owned externally and lives in Redis;
// the engine only reads it. Every operation here is fire-and-forget: a
// failure is logged and never propagated into the state transition that
// produced the event.
type NotificationService struct {
	store      repository.NotificationRepository
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the sink.
func NewNotificationService(store repository.NotificationRepository, dispatcher events.Dispatcher, redis *persistence.Redis, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		store:      store,
		dispatcher: dispatcher,
		redis:      redis,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to domain events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketSpamFlagged, n.handleSpamFlagged)
	n.dispatcher.Subscribe(events.EventTicketUnspammed, n.handleUnspammed)
	n.dispatcher.Subscribe(events.EventTicketMerged, n.handleMerged)
}

// ListForUser returns a user's stored notifications, newest first.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return n.store.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkAllRead marks every unread notification for the user and reports how
// many rows changed.
func (n *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return n.store.MarkAllRead(ctx, userID)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, payload.ReportedBy, domain.NotificationTicketCreated,
		"Report received", "Your maintenance report has been received: "+payload.Title,
		payload.Priority, event.TicketID, nil)
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, payload.TechnicianID, domain.NotificationTicketAssigned,
		"New assignment", "A maintenance ticket has been assigned to you",
		domain.TicketPriorityMedium, event.TicketID, map[string]any{
			"auto_assigned": payload.AutoAssigned,
			"reason":        payload.Reason,
		})
	n.notify(ctx, payload.ReportedBy, domain.NotificationTicketAssigned,
		"Technician assigned", "A technician has been assigned to your report",
		domain.TicketPriorityMedium, event.TicketID, nil)
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, payload.ReportedBy, domain.NotificationStatusChanged,
		"Status update", "Your report is now "+string(payload.NewStatus),
		domain.TicketPriorityMedium, event.TicketID, map[string]any{
			"old_status": payload.OldStatus,
			"new_status": payload.NewStatus,
		})
	if payload.AssignedTo != nil {
		n.notify(ctx, *payload.AssignedTo, domain.NotificationStatusChanged,
			"Ticket update", "An assigned ticket moved to "+string(payload.NewStatus),
			domain.TicketPriorityMedium, event.TicketID, nil)
	}
	return nil
}

func (n *NotificationService) handleSpamFlagged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketSpamFlaggedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, payload.ReportedBy, domain.NotificationSpamFlagged,
		"Report flagged", "Your report was flagged for review: "+payload.Reason,
		domain.TicketPriorityLow, event.TicketID, nil)
	return nil
}

func (n *NotificationService) handleUnspammed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUnspammedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, payload.ReportedBy, domain.NotificationStatusChanged,
		"Report restored", "Your report has been restored and is "+string(payload.TargetStatus),
		domain.TicketPriorityMedium, event.TicketID, nil)
	return nil
}

func (n *NotificationService) handleMerged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMergedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, payload.AbsorbedReportedBy, domain.NotificationTicketMerged,
		"Duplicate report merged", "Your report matched an existing ticket and was merged into it",
		domain.TicketPriorityMedium, event.TicketID, map[string]any{
			"absorbed_ticket_id": payload.AbsorbedTicketID,
		})
	return nil
}

func (n *NotificationService) notify(ctx context.Context, userID string, notifType domain.NotificationType, title, message string, priority domain.TicketPriority, ticketID string, data map[string]any) {
	if userID == "" || userID == intakeActor {
		return
	}
	notification := &domain.Notification{
		UserID:   userID,
		Type:     notifType,
		Title:    title,
		Message:  message,
		Priority: priority,
		TicketID: &ticketID,
		Data:     data,
	}
	if err := n.store.Create(ctx, notification); err != nil {
		n.logger.Warn("failed to store notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	n.publish(ctx, notification)
}

// publish fans the notification out on the Redis channel, tagged with the
// user's registered device subscriptions. Delivery mechanics beyond this
// point belong to downstream push/email workers.
func (n *NotificationService) publish(ctx context.Context, notification *domain.Notification) {
	if n.redis == nil || n.redis.Client == nil {
		return
	}

	subscriptions, err := n.redis.Client.HGetAll(ctx, n.cfg.SubscriptionPrefix+notification.UserID).Result()
	if err != nil {
		n.logger.Warn("failed to read subscription registry", zap.String("user_id", notification.UserID), zap.Error(err))
	}

	envelope := map[string]any{
		"notification_id": notification.ID,
		"user_id":         notification.UserID,
		"type":            notification.Type,
		"title":           notification.Title,
		"message":         notification.Message,
		"priority":        notification.Priority,
		"ticket_id":       notification.TicketID,
		"subscriptions":   subscriptions,
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		n.logger.Warn("failed to encode notification envelope", zap.Error(err))
		return
	}
	if err := n.redis.Client.Publish(ctx, n.cfg.Channel, encoded).Err(); err != nil {
		n.logger.Warn("failed to publish notification", zap.Error(err))
	}
}
