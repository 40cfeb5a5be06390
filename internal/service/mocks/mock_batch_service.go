package mocks

import (
	"context"

	"docflow/internal/model"
	"docflow/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockBatchService struct {
	mock.Mock
}

var _ service.BatchService = (*MockBatchService)(nil)

func (m *MockBatchService) CreateBatch(ctx context.Context, ids []string) (*model.Batch, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *MockBatchService) AddDocument(ctx context.Context, batchID string, folder model.Folder, f service.FileInput) (*model.Document, error) {
	args := m.Called(ctx, batchID, folder, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockBatchService) RemoveDocument(ctx context.Context, batchID, docID string) (*model.Batch, error) {
	args := m.Called(ctx, batchID, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Batch), args.Error(1)
}

func (m *MockBatchService) ReplaceDocumentFile(ctx context.Context, docID string, f service.FileInput) (*model.Document, error) {
	args := m.Called(ctx, docID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockBatchService) DeleteBatch(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

func (m *MockBatchService) Get(ctx context.Context, id string) (*service.BatchView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchView), args.Error(1)
}

func (m *MockBatchService) List(ctx context.Context) ([]service.BatchView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.BatchView), args.Error(1)
}
