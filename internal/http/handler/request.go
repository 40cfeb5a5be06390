package handler

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docflow/internal/model"
	"docflow/internal/service"
)

var validate = validator.New()

// idsRequest carries an explicit list of document ids.
type idsRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,dive,required"`
}

type suggestionRequest struct {
	Suggestion model.Suggestion `json:"suggestion"`
}

type suggestionsRequest struct {
	Suggestions []model.Suggestion `json:"suggestions" validate:"required,min=1"`
}

// pathID returns the uuid path parameter name, writing INVALID_ID when malformed.
func pathID(c *fiber.Ctx, name string) (string, bool) {
	id := c.Params(name)
	if _, err := uuid.Parse(id); err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		return "", false
	}
	return id, true
}

// confirmed reports whether the caller acknowledged a destructive operation with
// ?confirm=true, writing CONFIRMATION_REQUIRED otherwise.
func confirmed(c *fiber.Ctx) bool {
	if c.QueryBool("confirm", false) {
		return true
	}
	_ = writeError(c, fiber.StatusBadRequest, "CONFIRMATION_REQUIRED", "repeat the request with confirm=true")
	return false
}

// parseFolder reads a folder value, writing INVALID_FOLDER when unknown.
func parseFolder(c *fiber.Ctx, raw string) (model.Folder, bool) {
	f := model.Folder(strings.TrimSpace(raw))
	if !f.Valid() {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_FOLDER", "unknown folder")
		return "", false
	}
	return f, true
}

// parseBody decodes and validates a JSON body into dst, writing INVALID_BODY on failure.
func parseBody(c *fiber.Ctx, dst any) bool {
	if err := c.BodyParser(dst); err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_BODY", err.Error())
		return false
	}
	return true
}

// readFileHeader loads one multipart part into memory.
func readFileHeader(fh *multipart.FileHeader) (service.FileInput, error) {
	f, err := fh.Open()
	if err != nil {
		return service.FileInput{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.FileInput{}, err
	}
	return service.FileInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// formFiles collects the parts of field. FILE_REQUIRED is written when there are none.
func formFiles(c *fiber.Ctx, fields ...string) ([]service.FileInput, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "multipart form with files is required")
		return nil, false
	}
	var out []service.FileInput
	for _, field := range fields {
		for _, fh := range form.File[field] {
			in, err := readFileHeader(fh)
			if err != nil {
				_ = writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
				return nil, false
			}
			out = append(out, in)
		}
	}
	if len(out) == 0 {
		_ = writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		return nil, false
	}
	return out, true
}
