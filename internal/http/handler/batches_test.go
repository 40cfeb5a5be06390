package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"docflow/internal/model"
	"docflow/internal/service"
	serviceMocks "docflow/internal/service/mocks"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateBatch(t *testing.T) {
	mockSvc := new(serviceMocks.MockBatchService)
	app := fiber.New()
	app.Post("/batches/create", CreateBatch(mockSvc))

	t.Run("success", func(t *testing.T) {
		ids := []string{uuid.NewString(), uuid.NewString()}
		mockSvc.On("CreateBatch", mock.Anything, ids).
			Return(&model.Batch{ID: uuid.NewString(), DocumentIDs: ids, Status: model.BatchCreated}, nil).Once()

		body := fmt.Sprintf(`{"document_ids":["%s","%s"]}`, ids[0], ids[1])
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create", body))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var b model.Batch
		json.NewDecoder(resp.Body).Decode(&b)
		assert.Equal(t, ids, b.DocumentIDs)
	})

	t.Run("empty ids", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create", `{"document_ids":[]}`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create", `{"document_ids":`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("already batched", func(t *testing.T) {
		mockSvc.On("CreateBatch", mock.Anything, []string{"d1"}).
			Return(nil, fmt.Errorf("%w: document d1 is already batched", service.ErrConflict)).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create", `{"document_ids":["d1"]}`))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "CONFLICT", body.Error.Code)
		assert.Contains(t, body.Error.Message, "d1")
	})

	mockSvc.AssertExpectations(t)
}

func TestCreateAndGenerate_RenderFailureKeepsBatch(t *testing.T) {
	mockSvc := new(serviceMocks.MockConsolidationService)
	app := fiber.New()
	app.Post("/batches/create-and-generate", CreateAndGenerate(mockSvc))

	batchID := uuid.NewString()
	mockSvc.On("CreateAndGenerate", mock.Anything, []string{"a", "b"}).
		Return(&service.GenerateResult{Batch: &model.Batch{ID: batchID, Status: model.BatchCreated}},
			fmt.Errorf("%w: broken xref", service.ErrRender)).Once()

	resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create-and-generate", `{"document_ids":["a","b"]}`))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, batchID, resp.Header.Get("X-Batch-ID"))
	assert.Equal(t, "RENDER_FAILED", decodeError(t, resp).Error.Code)
	mockSvc.AssertExpectations(t)
}

func TestCreateBatchFromSuggestion(t *testing.T) {
	mockSvc := new(serviceMocks.MockConsolidationService)
	app := fiber.New()
	app.Post("/batches/create-from-suggestion", CreateBatchFromSuggestion(mockSvc))

	t.Run("too few members", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create-from-suggestion",
			`{"suggestion":{"document_ids":["a"],"counterparty":"acme","amount":100}}`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		mockSvc.AssertNotCalled(t, "CreateBatchFromSuggestion", mock.Anything, mock.Anything)
	})

	t.Run("stale suggestion", func(t *testing.T) {
		mockSvc.On("CreateBatchFromSuggestion", mock.Anything, mock.MatchedBy(func(sg model.Suggestion) bool {
			return len(sg.DocumentIDs) == 2 && sg.Amount == 100
		})).Return(nil, fmt.Errorf("%w: suggestion is stale", service.ErrConflict)).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/create-from-suggestion",
			`{"suggestion":{"document_ids":["a","b"],"counterparty":"acme","amount":100}}`))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDeleteBatch(t *testing.T) {
	mockSvc := new(serviceMocks.MockBatchService)
	app := fiber.New()
	app.Delete("/batches/:id", DeleteBatch(mockSvc))

	id := uuid.NewString()

	t.Run("missing confirmation", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/batches/"+id, nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "CONFIRMATION_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("confirmed", func(t *testing.T) {
		mockSvc.On("DeleteBatch", mock.Anything, id).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/batches/"+id+"?confirm=true", nil))

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestBatchMembership(t *testing.T) {
	mockSvc := new(serviceMocks.MockBatchService)
	app := fiber.New()
	app.Post("/batches/:id/documents", AddBatchDocument(mockSvc))
	app.Delete("/batches/:id/documents/:docId", RemoveBatchDocument(mockSvc))
	app.Put("/documents/:id/file", ReplaceDocumentFile(mockSvc))

	batchID, docID := uuid.NewString(), uuid.NewString()

	t.Run("add", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"folder": "soporte_pago"}, "file", map[string]string{"s.pdf": "%PDF-s"})
		mockSvc.On("AddDocument", mock.Anything, batchID, model.FolderPaymentSupport, mock.MatchedBy(func(f service.FileInput) bool {
			return f.Filename == "s.pdf" && string(f.Data) == "%PDF-s"
		})).Return(&model.Document{ID: docID, BatchID: &batchID, Status: model.StatusBatched}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/batches/"+batchID+"/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("remove last member", func(t *testing.T) {
		mockSvc.On("RemoveDocument", mock.Anything, batchID, docID).
			Return(nil, fmt.Errorf("%w: batch would become empty", service.ErrConflict)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete,
			"/batches/"+batchID+"/documents/"+docID+"?confirm=true", nil))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("remove with bad doc id", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete,
			"/batches/"+batchID+"/documents/nope?confirm=true", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("replace requires confirmation", func(t *testing.T) {
		body, ct := multipartBody(t, nil, "file", map[string]string{"new.pdf": "%PDF-new"})
		req := httptest.NewRequest(http.MethodPut, "/documents/"+docID+"/file", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "CONFIRMATION_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("replace", func(t *testing.T) {
		body, ct := multipartBody(t, nil, "file", map[string]string{"new.pdf": "%PDF-new"})
		mockSvc.On("ReplaceDocumentFile", mock.Anything, docID, mock.Anything).
			Return(&model.Document{ID: docID, Status: model.StatusBatched, StatusMessage: "pending re-analysis"}, nil).Once()

		req := httptest.NewRequest(http.MethodPut, "/documents/"+docID+"/file?confirm=true", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestArtifacts(t *testing.T) {
	mockSvc := new(serviceMocks.MockConsolidationService)
	app := fiber.New()
	app.Post("/batches/:id/generate-pdf", GenerateBatchPDF(mockSvc))
	app.Post("/batches/:id/regenerate-pdf", RegenerateBatchPDF(mockSvc))
	app.Get("/pdfs/:id/download", DownloadArtifact(mockSvc))
	app.Get("/pdfs/:id/details", ArtifactDetails(mockSvc))

	batchID, artID := uuid.NewString(), uuid.NewString()

	t.Run("generate on ready batch", func(t *testing.T) {
		mockSvc.On("Generate", mock.Anything, batchID).
			Return(nil, fmt.Errorf("%w: batch is ready, regenerate instead", service.ErrConflict)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/batches/"+batchID+"/generate-pdf", nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("regenerate", func(t *testing.T) {
		mockSvc.On("Regenerate", mock.Anything, batchID).
			Return(&model.Artifact{ID: artID, BatchID: batchID, Filename: "acme_CE-1.pdf"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/batches/"+batchID+"/regenerate-pdf", nil))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("download", func(t *testing.T) {
		content := "%PDF-1.7 merged"
		mockSvc.On("Download", mock.Anything, artID).
			Return(&model.Artifact{ID: artID, Filename: "acme_CE-1.pdf", Size: int64(len(content))},
				io.NopCloser(strings.NewReader(content)), nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/pdfs/"+artID+"/download", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "acme_CE-1.pdf")
		got, _ := io.ReadAll(resp.Body)
		assert.Equal(t, content, string(got))
	})

	t.Run("details", func(t *testing.T) {
		mockSvc.On("Details", mock.Anything, artID).Return(&service.ArtifactDetails{
			Artifact: model.Artifact{ID: artID},
			Summary:  service.ArtifactSummary{Count: 4, TotalAmount: 400},
		}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/pdfs/"+artID+"/details", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var d service.ArtifactDetails
		json.NewDecoder(resp.Body).Decode(&d)
		assert.Equal(t, 4, d.Summary.Count)
	})

	mockSvc.AssertExpectations(t)
}

func TestJobs(t *testing.T) {
	mockSvc := new(serviceMocks.MockJobService)
	app := fiber.New()
	app.Get("/jobs/:id", GetJob(mockSvc))
	app.Delete("/jobs/:id", CancelJob(mockSvc))

	id := uuid.NewString()

	t.Run("poll", func(t *testing.T) {
		mockSvc.On("Poll", id).Return(service.Job{ID: id, State: service.JobRunning,
			Progress: service.AnalyzeAllResult{Analyzed: 5, Remaining: 7, Iterations: 1}}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var job service.Job
		json.NewDecoder(resp.Body).Decode(&job)
		assert.Equal(t, service.JobRunning, job.State)
		assert.Equal(t, 7, job.Progress.Remaining)
	})

	t.Run("cancel finished job", func(t *testing.T) {
		mockSvc.On("Cancel", id).Return(service.Job{}, fmt.Errorf("%w: job already finished", service.ErrConflict)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/jobs/"+id, nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestBulkEndpoints(t *testing.T) {
	bulk := new(serviceMocks.MockBulkService)
	correlation := new(serviceMocks.MockCorrelationService)
	app := fiber.New()
	app.Post("/documents/analyze-all", AnalyzeChunk(bulk))
	app.Post("/documents/validate-folder/:folder", ValidateFolder(bulk))
	app.Post("/batches/bulk-create", BulkCreate(bulk))
	app.Post("/documents/reanalyze-group", ReanalyzeGroup(correlation))

	t.Run("analyze chunk", func(t *testing.T) {
		bulk.On("AnalyzeChunk", mock.Anything).Return(&service.ChunkResult{Analyzed: 5, Remaining: 7}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/documents/analyze-all", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var res service.ChunkResult
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, 7, res.Remaining)
	})

	t.Run("validate folder", func(t *testing.T) {
		bulk.On("BulkValidate", mock.Anything, model.FolderDisbursementVoucher).
			Return(&service.FolderValidationResult{Validated: 3}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/documents/validate-folder/comprobante_egreso", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("validate unknown folder", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/documents/validate-folder/other", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bulk create", func(t *testing.T) {
		bulk.On("BulkCreateAllFromSuggestions", mock.Anything, mock.MatchedBy(func(sgs []model.Suggestion) bool {
			return len(sgs) == 2
		})).Return(&service.BulkCreateResult{Created: 1, Failed: 1}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/batches/bulk-create",
			`{"suggestions":[{"document_ids":["a","b"]},{"document_ids":["c","d"]}]}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("reanalyze group", func(t *testing.T) {
		correlation.On("ReanalyzeGroup", mock.Anything, []string{"a", "b"}).
			Return(&service.ReanalyzeResult{Analyzed: 1, Failed: 1}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/documents/reanalyze-group", `{"document_ids":["a","b"]}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	bulk.AssertExpectations(t)
	correlation.AssertExpectations(t)
}

func TestDashboardStats(t *testing.T) {
	mockSvc := new(serviceMocks.MockStatsService)
	app := fiber.New()
	app.Get("/dashboard/stats", DashboardStats(mockSvc))

	mockSvc.On("Get", mock.Anything).Return(&service.Stats{
		DocumentsByStatus: map[model.Status]int{model.StatusAnalyzed: 3},
		TotalDocuments:    3,
	}, nil).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mockSvc.AssertExpectations(t)
}
