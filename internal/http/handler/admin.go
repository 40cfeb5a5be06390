package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docflow/internal/model"
	"docflow/internal/service"
)

// ListAuditLogs godoc
// @Summary List audit entries, newest first
// @Tags Admin
// @Produce json
// @Param limit query int false "Max entries (default 100, max 1000)"
// @Success 200 {array} model.AuditEntry
// @Failure 403 {object} errorPayload
// @Security BearerAuth
// @Router /audit/logs [get]
func ListAuditLogs(svc service.AuditService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
			}
			limit = n
		}
		entries, err := svc.List(c.UserContext(), limit)
		if err != nil {
			return respondError(c, err)
		}
		if entries == nil {
			entries = []model.AuditEntry{}
		}
		return c.JSON(entries)
	}
}

// DashboardStats godoc
// @Summary Pipeline counters for the dashboard
// @Tags Admin
// @Produce json
// @Success 200 {object} service.Stats
// @Security BearerAuth
// @Router /dashboard/stats [get]
func DashboardStats(svc service.StatsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := svc.Get(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	}
}
