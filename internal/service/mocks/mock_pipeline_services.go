package mocks

import (
	"context"

	"docflow/internal/model"
	"docflow/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockCorrelationService struct {
	mock.Mock
}

var _ service.CorrelationService = (*MockCorrelationService)(nil)

func (m *MockCorrelationService) SuggestBatches(ctx context.Context) ([]model.Suggestion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Suggestion), args.Error(1)
}

func (m *MockCorrelationService) ReanalyzeGroup(ctx context.Context, ids []string) (*service.ReanalyzeResult, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReanalyzeResult), args.Error(1)
}

type MockBulkService struct {
	mock.Mock
}

var _ service.BulkService = (*MockBulkService)(nil)

func (m *MockBulkService) AnalyzeChunk(ctx context.Context) (*service.ChunkResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChunkResult), args.Error(1)
}

func (m *MockBulkService) RunAnalyzeAll(ctx context.Context, progress func(service.AnalyzeAllResult)) (*service.AnalyzeAllResult, error) {
	args := m.Called(ctx, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnalyzeAllResult), args.Error(1)
}

func (m *MockBulkService) BulkCreateAllFromSuggestions(ctx context.Context, sgs []model.Suggestion) (*service.BulkCreateResult, error) {
	args := m.Called(ctx, sgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BulkCreateResult), args.Error(1)
}

func (m *MockBulkService) BulkValidate(ctx context.Context, folder model.Folder) (*service.FolderValidationResult, error) {
	args := m.Called(ctx, folder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FolderValidationResult), args.Error(1)
}

type MockJobService struct {
	mock.Mock
}

var _ service.JobService = (*MockJobService)(nil)

func (m *MockJobService) Submit(ctx context.Context, kind service.JobKind) (service.Job, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(service.Job), args.Error(1)
}

func (m *MockJobService) Poll(id string) (service.Job, error) {
	args := m.Called(id)
	return args.Get(0).(service.Job), args.Error(1)
}

func (m *MockJobService) Cancel(id string) (service.Job, error) {
	args := m.Called(id)
	return args.Get(0).(service.Job), args.Error(1)
}

type MockAuditService struct {
	mock.Mock
}

var _ service.AuditService = (*MockAuditService)(nil)

func (m *MockAuditService) List(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}

type MockStatsService struct {
	mock.Mock
}

var _ service.StatsService = (*MockStatsService)(nil)

func (m *MockStatsService) Get(ctx context.Context) (*service.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Stats), args.Error(1)
}
