package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docflow/internal/extraction"
	"docflow/internal/model"
)

// Extractor is a testify mock of extraction.Extractor.
type Extractor struct {
	mock.Mock
}

func (m *Extractor) Extract(ctx context.Context, data []byte, contentType string) (model.ExtractedFields, error) {
	args := m.Called(ctx, data, contentType)
	if fn, ok := args.Get(0).(func([]byte, string) model.ExtractedFields); ok {
		return fn(data, contentType), args.Error(1)
	}
	return args.Get(0).(model.ExtractedFields), args.Error(1)
}

func (m *Extractor) DetectBoundaries(ctx context.Context, data []byte) ([]extraction.PageRange, error) {
	args := m.Called(ctx, data)
	var ranges []extraction.PageRange
	if v := args.Get(0); v != nil {
		ranges = v.([]extraction.PageRange)
	}
	return ranges, args.Error(1)
}
