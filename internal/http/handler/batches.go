package handler

import (
	"github.com/gofiber/fiber/v2"

	"docflow/internal/service"
)

// CreateBatch godoc
// @Summary Create a batch from explicit document ids
// @Description All or nothing. Every id must be analyzed and not yet batched.
// @Tags Batches
// @Accept json
// @Produce json
// @Param body body idsRequest true "Document ids"
// @Success 201 {object} model.Batch
// @Failure 409 {object} errorPayload
// @Security BearerAuth
// @Router /batches/create [post]
func CreateBatch(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req idsRequest
		if !parseBody(c, &req) {
			return nil
		}
		b, err := svc.CreateBatch(c.UserContext(), req.DocumentIDs)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(b)
	}
}

// CreateBatchFromSuggestion godoc
// @Summary Create and render a batch from a suggestion
// @Tags Batches
// @Accept json
// @Produce json
// @Param body body suggestionRequest true "Suggestion"
// @Success 201 {object} service.GenerateResult
// @Failure 409 {object} errorPayload
// @Security BearerAuth
// @Router /batches/create-from-suggestion [post]
func CreateBatchFromSuggestion(svc service.ConsolidationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req suggestionRequest
		if !parseBody(c, &req) {
			return nil
		}
		return generated(c)(svc.CreateBatchFromSuggestion(c.UserContext(), req.Suggestion))
	}
}

// CreateAndGenerate godoc
// @Summary Create a batch and render its PDF
// @Description When rendering fails the batch still exists in status created.
// @Tags Batches
// @Accept json
// @Produce json
// @Param body body idsRequest true "Document ids"
// @Success 201 {object} service.GenerateResult
// @Failure 502 {object} errorPayload
// @Security BearerAuth
// @Router /batches/create-and-generate [post]
func CreateAndGenerate(svc service.ConsolidationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req idsRequest
		if !parseBody(c, &req) {
			return nil
		}
		return generated(c)(svc.CreateAndGenerate(c.UserContext(), req.DocumentIDs))
	}
}

// generated writes a GenerateResult. A render failure after the batch was created is
// reported as an error carrying the batch id so the client can retry generation.
func generated(c *fiber.Ctx) func(*service.GenerateResult, error) error {
	return func(res *service.GenerateResult, err error) error {
		if err != nil {
			if res != nil && res.Batch != nil {
				c.Set("X-Batch-ID", res.Batch.ID)
			}
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ListBatches godoc
// @Summary List batches with their members
// @Tags Batches
// @Produce json
// @Success 200 {array} service.BatchView
// @Security BearerAuth
// @Router /batches/list [get]
func ListBatches(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		views, err := svc.List(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		if views == nil {
			views = []service.BatchView{}
		}
		return c.JSON(views)
	}
}

// GetBatch godoc
// @Summary Get a batch with its members
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} service.BatchView
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /batches/{id} [get]
func GetBatch(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		view, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	}
}

// DeleteBatch godoc
// @Summary Delete a batch
// @Description Releases every member back to the analyzed pool and removes the artifact.
// @Tags Batches
// @Param id path string true "Batch ID"
// @Param confirm query bool true "Must be true"
// @Success 204
// @Security BearerAuth
// @Router /batches/{id} [delete]
func DeleteBatch(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok || !confirmed(c) {
			return nil
		}
		if err := svc.DeleteBatch(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// AddBatchDocument godoc
// @Summary Upload a document straight into a batch
// @Description The file is uploaded, validated and analyzed before it joins the batch.
// @Tags Batches
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param folder formData string true "Folder"
// @Param file formData file true "File"
// @Success 201 {object} model.Document
// @Security BearerAuth
// @Router /batches/{id}/documents [post]
func AddBatchDocument(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		folder, ok := parseFolder(c, c.FormValue("folder"))
		if !ok {
			return nil
		}
		files, ok := formFiles(c, "file")
		if !ok {
			return nil
		}
		doc, err := svc.AddDocument(c.UserContext(), id, folder, files[0])
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// RemoveBatchDocument godoc
// @Summary Remove a document from a batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param docId path string true "Document ID"
// @Param confirm query bool true "Must be true"
// @Success 200 {object} model.Batch
// @Failure 409 {object} errorPayload
// @Security BearerAuth
// @Router /batches/{id}/documents/{docId} [delete]
func RemoveBatchDocument(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		docID, ok := pathID(c, "docId")
		if !ok || !confirmed(c) {
			return nil
		}
		b, err := svc.RemoveDocument(c.UserContext(), id, docID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(b)
	}
}
