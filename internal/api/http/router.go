package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/communityfix/maintenance-service/internal/api/http/handlers"
	"github.com/communityfix/maintenance-service/internal/auth"
	"github.com/communityfix/maintenance-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats", auth.RequireRole(domain.RoleManager), cfg.Tickets.Stats)
	tickets.Get("/spam", auth.RequireRole(domain.RoleManager), cfg.Tickets.ListSpam)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", auth.RequireRole(domain.RoleTechnician, domain.RoleManager), cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/assign", auth.RequireRole(domain.RoleManager), cfg.Tickets.Assign)
	tickets.Post("/:id/auto-assign", auth.RequireRole(domain.RoleManager), cfg.Tickets.AutoAssign)
	tickets.Get("/:id/available-technicians", auth.RequireRole(domain.RoleManager), cfg.Tickets.AvailableTechnicians)
	tickets.Post("/:id/mark-spam", auth.RequireRole(domain.RoleManager), cfg.Tickets.MarkSpam)
	tickets.Post("/:id/unmark-spam", auth.RequireRole(domain.RoleManager), cfg.Tickets.UnmarkSpam)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
}
