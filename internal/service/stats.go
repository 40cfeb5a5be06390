package service

import (
	"context"

	"docflow/internal/model"
)

// Stats is the dashboard summary.
type Stats struct {
	DocumentsByStatus map[model.Status]int `json:"documents_by_status"`
	TotalDocuments    int                  `json:"total_documents"`
	TotalBatches      int                  `json:"total_batches"`
	StaleBatches      int                  `json:"batches_needing_regeneration"`
	TotalArtifacts    int                  `json:"total_artifacts"`
}

// StatsService aggregates counts for the dashboard.
type StatsService interface {
	Get(ctx context.Context) (*Stats, error)
}

type statsService struct {
	*core
}

func (s *statsService) Get(ctx context.Context) (*Stats, error) {
	byStatus, err := s.docs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{DocumentsByStatus: make(map[model.Status]int, len(model.AllStatuses))}
	for _, st := range model.AllStatuses {
		out.DocumentsByStatus[st] = byStatus[st]
		out.TotalDocuments += byStatus[st]
	}
	if out.TotalBatches, out.StaleBatches, err = s.batches.Stats(ctx); err != nil {
		return nil, err
	}
	if out.TotalArtifacts, err = s.artifacts.Count(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
