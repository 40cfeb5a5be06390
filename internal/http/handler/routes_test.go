package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docflow/internal/auth"
	"docflow/internal/model"
	"docflow/internal/service"
	serviceMocks "docflow/internal/service/mocks"
)

const testSecret = "handler-test-secret"

type routeMocks struct {
	docs          *serviceMocks.MockDocumentService
	correlation   *serviceMocks.MockCorrelationService
	batches       *serviceMocks.MockBatchService
	consolidation *serviceMocks.MockConsolidationService
	bulk          *serviceMocks.MockBulkService
	audit         *serviceMocks.MockAuditService
	stats         *serviceMocks.MockStatsService
	jobs          *serviceMocks.MockJobService
}

func newRouteMocks() *routeMocks {
	return &routeMocks{
		docs:          new(serviceMocks.MockDocumentService),
		correlation:   new(serviceMocks.MockCorrelationService),
		batches:       new(serviceMocks.MockBatchService),
		consolidation: new(serviceMocks.MockConsolidationService),
		bulk:          new(serviceMocks.MockBulkService),
		audit:         new(serviceMocks.MockAuditService),
		stats:         new(serviceMocks.MockStatsService),
		jobs:          new(serviceMocks.MockJobService),
	}
}

func (m *routeMocks) deps() Deps {
	return Deps{
		Services: &service.Services{
			Documents:     m.docs,
			Correlation:   m.correlation,
			Batches:       m.batches,
			Consolidation: m.consolidation,
			Bulk:          m.bulk,
			Audit:         m.audit,
			Stats:         m.stats,
		},
		Jobs:     m.jobs,
		Verifier: auth.NewVerifier(testSecret),
	}
}

func testDeps() Deps { return newRouteMocks().deps() }

func bearer(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.NewVerifier(testSecret).Sign(
		auth.Caller{UserID: "user-" + string(role), Email: string(role) + "@example.com", Role: role},
		jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	)
	require.NoError(t, err)
	return "Bearer " + token
}

func newRoutedApp(m *routeMocks) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, m.deps())
	return app
}

func TestRoutes_Authentication(t *testing.T) {
	m := newRouteMocks()
	app := newRoutedApp(m)

	t.Run("missing token", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/documents", nil))

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", decodeError(t, resp).Error.Code)
	})

	t.Run("health stays public", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRoutes_Authorization(t *testing.T) {
	m := newRouteMocks()
	app := newRoutedApp(m)

	t.Run("reviewer reads documents", func(t *testing.T) {
		m.docs.On("List", mock.Anything, service.DocumentQuery{}).Return([]model.Document{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		req.Header.Set("Authorization", bearer(t, auth.RoleReviewer))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("reviewer may not create batches", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/batches/create", strings.NewReader(`{"document_ids":["a"]}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", bearer(t, auth.RoleReviewer))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp).Error.Code)
		m.batches.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("operator may not read audit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/audit/logs", nil)
		req.Header.Set("Authorization", bearer(t, auth.RoleOperator))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("administrator reads audit", func(t *testing.T) {
		m.audit.On("List", mock.Anything, 5).Return([]model.AuditEntry{{Action: service.ActionCreateBatch}}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/audit/logs?limit=5", nil)
		req.Header.Set("Authorization", bearer(t, auth.RoleAdministrator))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	m.docs.AssertExpectations(t)
	m.audit.AssertExpectations(t)
}

func TestRoutes_CallerReachesService(t *testing.T) {
	m := newRouteMocks()
	app := newRoutedApp(m)

	m.jobs.On("Submit", mock.MatchedBy(func(ctx context.Context) bool {
		caller, ok := auth.FromContext(ctx)
		return ok && caller.UserID == "user-operativo"
	}), service.JobAnalyzeAll).Return(service.Job{ID: uuid.NewString(), State: service.JobQueued}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/analyze-all", nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleOperator))
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	m.jobs.AssertExpectations(t)
}

func TestRoutes_StaticSegmentsBeforeID(t *testing.T) {
	m := newRouteMocks()
	app := newRoutedApp(m)

	m.correlation.On("SuggestBatches", mock.Anything).Return(nil, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/documents/suggest-batches", nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleReviewer))
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	m.correlation.AssertExpectations(t)
	m.docs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}
