package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"docflow/internal/model"
	"docflow/internal/pdf"
	"docflow/internal/service"
)

// GenerateBatchPDF godoc
// @Summary Render the consolidated PDF of a created batch
// @Tags Artifacts
// @Produce json
// @Param id path string true "Batch ID"
// @Success 201 {object} model.Artifact
// @Failure 409 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Security BearerAuth
// @Router /batches/{id}/generate-pdf [post]
func GenerateBatchPDF(svc service.ConsolidationService) fiber.Handler {
	return render(svc.Generate)
}

// RegenerateBatchPDF godoc
// @Summary Rebuild the consolidated PDF from current membership
// @Tags Artifacts
// @Produce json
// @Param id path string true "Batch ID"
// @Success 201 {object} model.Artifact
// @Failure 502 {object} errorPayload
// @Security BearerAuth
// @Router /batches/{id}/regenerate-pdf [post]
func RegenerateBatchPDF(svc service.ConsolidationService) fiber.Handler {
	return render(svc.Regenerate)
}

func render(fn func(ctx context.Context, batchID string) (*model.Artifact, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		art, err := fn(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(art)
	}
}

// ListArtifacts godoc
// @Summary List generated PDFs
// @Tags Artifacts
// @Produce json
// @Success 200 {array} model.Artifact
// @Security BearerAuth
// @Router /pdfs/list [get]
func ListArtifacts(svc service.ConsolidationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		arts, err := svc.ListArtifacts(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		if arts == nil {
			arts = []model.Artifact{}
		}
		return c.JSON(arts)
	}
}

// DownloadArtifact godoc
// @Summary Download a generated PDF
// @Tags Artifacts
// @Produce application/pdf
// @Param id path string true "Artifact ID"
// @Success 200 {file} file
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /pdfs/{id}/download [get]
func DownloadArtifact(svc service.ConsolidationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		art, body, err := svc.Download(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		// fasthttp closes the stream once the body is written
		c.Attachment(art.Filename)
		c.Set(fiber.HeaderContentType, pdf.ContentTypePDF)
		return c.SendStream(body, int(art.Size))
	}
}

// ArtifactDetails godoc
// @Summary Describe a generated PDF with its batch and members
// @Tags Artifacts
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} service.ArtifactDetails
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /pdfs/{id}/details [get]
func ArtifactDetails(svc service.ConsolidationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		d, err := svc.Details(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	}
}
