package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"docflow/internal/model"
	"docflow/internal/service"
)

// ListDocuments godoc
// @Summary List documents
// @Tags Documents
// @Produce json
// @Param folder query string false "Folder filter"
// @Param status query string false "Status filter"
// @Success 200 {array} model.Document
// @Failure 400 {object} errorPayload
// @Security BearerAuth
// @Router /documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q service.DocumentQuery
		if raw := c.Query("folder"); raw != "" {
			f, ok := parseFolder(c, raw)
			if !ok {
				return nil
			}
			q.Folder = f
		}
		if raw := c.Query("status"); raw != "" {
			s := model.Status(raw)
			if !s.Valid() {
				return writeError(c, fiber.StatusBadRequest, "INVALID_STATUS", "unknown status")
			}
			q.Status = s
		}

		docs, err := svc.List(c.UserContext(), q)
		if err != nil {
			return respondError(c, err)
		}
		if docs == nil {
			docs = []model.Document{}
		}
		return c.JSON(docs)
	}
}

// UploadDocuments godoc
// @Summary Upload documents into a folder
// @Description Stores every file as a new uploaded document. Duplicates within the folder are reported and skipped.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param folder formData string true "Folder"
// @Param files formData file true "Files"
// @Success 201 {object} service.UploadResult
// @Failure 400 {object} errorPayload
// @Security BearerAuth
// @Router /documents/upload [post]
func UploadDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		folder, ok := parseFolder(c, c.FormValue("folder"))
		if !ok {
			return nil
		}
		files, ok := formFiles(c, "files", "file")
		if !ok {
			return nil
		}

		res, err := svc.UploadMany(c.UserContext(), folder, files)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// GetDocument godoc
// @Summary Get a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} model.Document
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument godoc
// @Summary Delete an unbatched document
// @Tags Documents
// @Param id path string true "Document ID"
// @Param confirm query bool true "Must be true"
// @Success 204
// @Failure 409 {object} errorPayload
// @Security BearerAuth
// @Router /documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok || !confirmed(c) {
			return nil
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ValidateDocument godoc
// @Summary Run the structural check on a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} model.Document
// @Security BearerAuth
// @Router /documents/{id}/validate [post]
func ValidateDocument(svc service.DocumentService) fiber.Handler {
	return documentAction(svc.Validate)
}

// AnalyzeDocument godoc
// @Summary Extract fields from a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} model.Document
// @Security BearerAuth
// @Router /documents/{id}/analyze [post]
func AnalyzeDocument(svc service.DocumentService) fiber.Handler {
	return documentAction(svc.Analyze)
}

// documentAction runs a single-document transition and returns the updated document.
func documentAction(fn func(ctx context.Context, id string) (*model.Document, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		doc, err := fn(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(doc)
	}
}

// SplitDocument godoc
// @Summary Split a multi-document PDF
// @Description Cuts an uploaded PDF holding several logical documents into child documents.
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} service.SplitResult
// @Security BearerAuth
// @Router /documents/{id}/split [post]
func SplitDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok {
			return nil
		}
		res, err := svc.SplitIfMultiPage(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// ValidateFolder godoc
// @Summary Validate every uploaded document of a folder
// @Tags Documents
// @Produce json
// @Param folder path string true "Folder"
// @Success 200 {object} service.FolderValidationResult
// @Security BearerAuth
// @Router /documents/validate-folder/{folder} [post]
func ValidateFolder(svc service.BulkService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		folder, ok := parseFolder(c, c.Params("folder"))
		if !ok {
			return nil
		}
		res, err := svc.BulkValidate(c.UserContext(), folder)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// ReplaceDocumentFile godoc
// @Summary Replace the file of a batched document
// @Description Keeps the document id and batch membership. The document must be analyzed again and the batch regenerated.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document ID"
// @Param confirm query bool true "Must be true"
// @Param file formData file true "Replacement file"
// @Success 200 {object} model.Document
// @Security BearerAuth
// @Router /documents/{id}/file [put]
func ReplaceDocumentFile(svc service.BatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := pathID(c, "id")
		if !ok || !confirmed(c) {
			return nil
		}
		files, ok := formFiles(c, "file")
		if !ok {
			return nil
		}
		doc, err := svc.ReplaceDocumentFile(c.UserContext(), id, files[0])
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(doc)
	}
}
