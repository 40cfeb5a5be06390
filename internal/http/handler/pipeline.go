package handler

import (
	"github.com/gofiber/fiber/v2"

	"docflow/internal/model"
	"docflow/internal/service"
)

// SuggestBatches godoc
// @Summary Suggest batches from the analyzed pool
// @Description Groups analyzed, unbatched documents by normalized counterparty and amount.
// @Tags Correlation
// @Produce json
// @Success 200 {array} model.Suggestion
// @Security BearerAuth
// @Router /documents/suggest-batches [get]
func SuggestBatches(svc service.CorrelationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sgs, err := svc.SuggestBatches(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		if sgs == nil {
			sgs = []model.Suggestion{}
		}
		return c.JSON(sgs)
	}
}

// ReanalyzeGroup godoc
// @Summary Re-run extraction on a group of documents
// @Tags Correlation
// @Accept json
// @Produce json
// @Param body body idsRequest true "Document ids"
// @Success 200 {object} service.ReanalyzeResult
// @Security BearerAuth
// @Router /documents/reanalyze-group [post]
func ReanalyzeGroup(svc service.CorrelationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req idsRequest
		if !parseBody(c, &req) {
			return nil
		}
		res, err := svc.ReanalyzeGroup(c.UserContext(), req.DocumentIDs)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// AnalyzeChunk godoc
// @Summary Analyze one chunk of validated documents
// @Description Clients loop on this endpoint until remaining is zero, or start a job instead.
// @Tags Bulk
// @Produce json
// @Success 200 {object} service.ChunkResult
// @Security BearerAuth
// @Router /documents/analyze-all [post]
func AnalyzeChunk(svc service.BulkService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.AnalyzeChunk(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// BulkCreate godoc
// @Summary Create and render a batch per suggestion
// @Tags Bulk
// @Accept json
// @Produce json
// @Param body body suggestionsRequest true "Suggestions"
// @Success 200 {object} service.BulkCreateResult
// @Security BearerAuth
// @Router /batches/bulk-create [post]
func BulkCreate(svc service.BulkService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req suggestionsRequest
		if !parseBody(c, &req) {
			return nil
		}
		res, err := svc.BulkCreateAllFromSuggestions(c.UserContext(), req.Suggestions)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// StartAnalyzeAllJob godoc
// @Summary Start a background analyze-all run
// @Tags Jobs
// @Produce json
// @Success 202 {object} service.Job
// @Failure 409 {object} errorPayload
// @Security BearerAuth
// @Router /jobs/analyze-all [post]
func StartAnalyzeAllJob(jobs service.JobService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		job, err := jobs.Submit(c.UserContext(), service.JobAnalyzeAll)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(job)
	}
}

// GetJob godoc
// @Summary Poll a background job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} service.Job
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /jobs/{id} [get]
func GetJob(jobs service.JobService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		job, err := jobs.Poll(id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(job)
	}
}

// CancelJob godoc
// @Summary Cancel a queued or running job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} service.Job
// @Failure 409 {object} errorPayload
// @Security BearerAuth
// @Router /jobs/{id} [delete]
func CancelJob(jobs service.JobService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		job, err := jobs.Cancel(id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(job)
	}
}
