package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/communityfix/maintenance-service/internal/api/dto"
	"github.com/communityfix/maintenance-service/internal/auth"
	"github.com/communityfix/maintenance-service/internal/domain"
	"github.com/communityfix/maintenance-service/internal/repository"
	"github.com/communityfix/maintenance-service/internal/service"
	apperrors "github.com/communityfix/maintenance-service/pkg/util"
)

// TicketsHandler exposes the intake and lifecycle endpoints.
type TicketsHandler struct {
	intake      *service.IntakeService
	lifecycle   *service.TicketService
	assignments *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(intake *service.IntakeService, lifecycle *service.TicketService, assignments *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{intake: intake, lifecycle: lifecycle, assignments: assignments}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	communityID := req.CommunityID
	if communityID == "" {
		communityID = principal.CommunityID
	}
	if communityID == "" || req.Title == "" || req.Description == "" || req.Category == "" || req.Location == "" {
		return apperrors.NewValidationError("community_id, title, description, category, location required", nil)
	}

	result, err := h.intake.SubmitReport(c.Context(), principal.UserID, service.TicketCreateInput{
		CommunityID: communityID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Priority:    req.Priority,
		Images:      req.Images,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": intakeResponse(result)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter := parseTicketQuery(c)
	applyRoleScope(&filter, principal)

	tickets, err := h.lifecycle.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	var communityID *string
	if v := c.Query("community_id"); v != "" {
		communityID = &v
	}
	counts, err := h.lifecycle.Stats(c.Context(), communityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counts})
}

// ListSpam GET /tickets/spam.
func (h *TicketsHandler) ListSpam(c *fiber.Ctx) error {
	var communityID *string
	if v := c.Query("community_id"); v != "" {
		communityID = &v
	}
	limit, offset := parsePaging(c)
	tickets, err := h.lifecycle.ListSpam(c.Context(), communityID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.TicketDetail, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketDetail(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	ticket, err := h.lifecycle.UpdateStatus(c.Context(), principal.UserID, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Assign PATCH /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TechnicianID == "" {
		return apperrors.NewValidationError("technician_id required", nil)
	}
	ticket, err := h.assignments.ManualAssign(c.Context(), c.Params("id"), req.TechnicianID, principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AutoAssign POST /tickets/:id/auto-assign.
func (h *TicketsHandler) AutoAssign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	result, err := h.assignments.AutoAssign(c.Context(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	response := fiber.Map{
		"assigned": result.Assigned,
		"ticket":   ticketDetail(result.Ticket),
	}
	if !result.Assigned {
		response["reason"] = result.Reason
	}
	return c.JSON(fiber.Map{"data": response})
}

// AvailableTechnicians GET /tickets/:id/available-technicians.
func (h *TicketsHandler) AvailableTechnicians(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	candidates, err := h.assignments.FindAvailableTechnicians(c.Context(), ticket)
	if err != nil {
		return err
	}
	items := make([]dto.CandidateResponse, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, dto.CandidateResponse{
			TechnicianID: candidate.Technician.ID,
			Name:         candidate.Technician.Name,
			Expertise:    candidate.Technician.Expertise,
			Workload:     candidate.Workload,
			Score:        candidate.Score,
			Reason:       candidate.Reason,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkSpam POST /tickets/:id/mark-spam.
func (h *TicketsHandler) MarkSpam(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.MarkSpamRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manually flagged"
	}
	ticket, err := h.lifecycle.MarkSpam(c.Context(), principal.UserID, c.Params("id"), reason, 1.0, false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UnmarkSpam POST /tickets/:id/unmark-spam.
func (h *TicketsHandler) UnmarkSpam(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UnmarkSpamRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.UnmarkSpam(c.Context(), principal.UserID, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if v := c.Query("category"); v != "" {
		category := domain.Category(v)
		filter.Category = &category
	}
	if v := c.Query("community_id"); v != "" {
		filter.CommunityID = &v
	}
	if v := c.Query("assigned_to"); v != "" {
		filter.AssignedTo = &v
	}
	if v := c.Query("reported_by"); v != "" {
		filter.ReportedBy = &v
	}
	filter.Limit, filter.Offset = parsePaging(c)
	return filter
}

// applyRoleScope restricts listings: residents see their own reports,
// technicians their own assignments. Managers see everything they ask for.
func applyRoleScope(filter *repository.TicketFilter, principal *auth.Principal) {
	switch principal.Role {
	case domain.RoleResident:
		filter.ReportedBy = &principal.UserID
	case domain.RoleTechnician:
		if filter.AssignedTo == nil {
			filter.AssignedTo = &principal.UserID
		}
	}
}

func parsePaging(c *fiber.Ctx) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	return limit, offset
}

func ticketSummary(t *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		CommunityID: t.CommunityID,
		ReportedBy:  t.ReportedBy,
		Title:       t.Title,
		Category:    t.Category,
		Location:    t.Location,
		Priority:    t.Priority,
		Status:      t.Status,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func ticketDetail(t *domain.Ticket) dto.TicketDetail {
	return dto.TicketDetail{
		TicketSummary:            ticketSummary(t),
		Description:              t.Description,
		Images:                   t.Images,
		History:                  t.History,
		AIMetadata:               t.AIMetadata,
		RequiredTools:            t.RequiredTools,
		RequiredMaterials:        t.RequiredMaterials,
		EstimatedDurationMinutes: t.EstimatedDurationMinutes,
		DifficultyLevel:          t.DifficultyLevel,
		SpamMetadata:             t.SpamMetadata,
		AssignmentMetadata:       t.AssignmentMetadata,
	}
}

func intakeResponse(result *service.IntakeResult) dto.IntakeResponse {
	response := dto.IntakeResponse{
		Outcome:    string(result.Outcome),
		Ticket:     ticketDetail(result.Ticket),
		MergedInto: result.MergedInto,
	}
	if result.Assignment != nil {
		outcome := &dto.AssignmentOutcome{Assigned: result.Assignment.Assigned}
		if result.Assignment.Chosen != nil {
			outcome.TechnicianID = result.Assignment.Chosen.Technician.ID
			outcome.Score = result.Assignment.Chosen.Score
			outcome.Reason = result.Assignment.Chosen.Reason
		} else {
			outcome.Reason = result.Assignment.Reason
		}
		response.Assignment = outcome
	}
	return response
}
