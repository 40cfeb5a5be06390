package mocks

import (
	"context"
	"io"

	"docflow/internal/model"
	"docflow/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockConsolidationService struct {
	mock.Mock
}

var _ service.ConsolidationService = (*MockConsolidationService)(nil)

func (m *MockConsolidationService) Generate(ctx context.Context, batchID string) (*model.Artifact, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *MockConsolidationService) Regenerate(ctx context.Context, batchID string) (*model.Artifact, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *MockConsolidationService) CreateAndGenerate(ctx context.Context, ids []string) (*service.GenerateResult, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GenerateResult), args.Error(1)
}

func (m *MockConsolidationService) CreateBatchFromSuggestion(ctx context.Context, sg model.Suggestion) (*service.GenerateResult, error) {
	args := m.Called(ctx, sg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GenerateResult), args.Error(1)
}

func (m *MockConsolidationService) Download(ctx context.Context, artifactID string) (*model.Artifact, io.ReadCloser, error) {
	args := m.Called(ctx, artifactID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Artifact), args.Get(1).(io.ReadCloser), args.Error(2)
}

func (m *MockConsolidationService) Details(ctx context.Context, artifactID string) (*service.ArtifactDetails, error) {
	args := m.Called(ctx, artifactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ArtifactDetails), args.Error(1)
}

func (m *MockConsolidationService) ListArtifacts(ctx context.Context) ([]model.Artifact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Artifact), args.Error(1)
}
