package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docflow/internal/model"
	"docflow/internal/repository"
)

// ChunkResult is the tally of one AnalyzeChunk call.
// Failed counts extraction failures recorded on the document; Errors counts
// documents whose outcome could not be recorded at all.
type ChunkResult struct {
	Analyzed  int           `json:"analyzed"`
	Failed    int           `json:"failed"`
	Errors    int           `json:"errors"`
	Remaining int           `json:"remaining"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// AnalyzeAllResult accumulates chunk results across a RunAnalyzeAll loop.
type AnalyzeAllResult struct {
	Analyzed   int `json:"analyzed"`
	Failed     int `json:"failed"`
	Errors     int `json:"errors"`
	Remaining  int `json:"remaining"`
	Iterations int `json:"iterations"`
}

// SuggestionOutcome is the result of one suggestion in BulkCreateAllFromSuggestions.
type SuggestionOutcome struct {
	Index      int    `json:"index"`
	BatchID    string `json:"batch_id,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BulkCreateResult is the tally of BulkCreateAllFromSuggestions.
type BulkCreateResult struct {
	Created int                 `json:"created"`
	Failed  int                 `json:"failed"`
	Results []SuggestionOutcome `json:"results"`
}

// BulkService runs multi-document operations in bounded steps.
type BulkService interface {
	// AnalyzeChunk analyzes up to one chunk of validated documents concurrently.
	// Each document succeeds or fails on its own. Once started, a chunk runs to
	// completion even if ctx is cancelled.
	AnalyzeChunk(ctx context.Context) (*ChunkResult, error)
	// RunAnalyzeAll repeats AnalyzeChunk until nothing remains. It stops with
	// ErrCircuitBreakerStop when a chunk makes no progress or the iteration cap is hit.
	// progress, when non-nil, is called after every chunk.
	RunAnalyzeAll(ctx context.Context, progress func(AnalyzeAllResult)) (*AnalyzeAllResult, error)
	// BulkCreateAllFromSuggestions creates and renders a batch per suggestion, sequentially.
	BulkCreateAllFromSuggestions(ctx context.Context, sgs []model.Suggestion) (*BulkCreateResult, error)
	// BulkValidate validates every uploaded document of folder.
	BulkValidate(ctx context.Context, folder model.Folder) (*FolderValidationResult, error)
}

type bulkService struct {
	*core
	documents     *documentService
	consolidation *consolidationService
}

var pendingAnalysis = repository.DocumentFilter{Statuses: []model.Status{model.StatusValidated}}

func (s *bulkService) AnalyzeChunk(ctx context.Context) (*ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := pendingAnalysis
	f.Limit = s.bulk.ChunkSize
	pending, err := s.docs.List(ctx, f)
	if err != nil {
		return nil, err
	}

	// cancellation is honored between chunks, never inside one
	work := context.WithoutCancel(ctx)
	res := &ChunkResult{}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.bulk.ChunkSize)
	for _, d := range pending {
		id := d.ID
		g.Go(func() error {
			a, err := s.documents.analyze(work, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Errors++
				res.Failures = append(res.Failures, ItemFailure{Ref: id, Error: err.Error()})
				s.log.Warn("bulk analyze failed", zap.String("document_id", id), zap.Error(err))
			case a.failure != nil:
				res.Failed++
				res.Failures = append(res.Failures, ItemFailure{Ref: id, Error: a.failure.Error()})
			default:
				res.Analyzed++
			}
			return nil
		})
	}
	_ = g.Wait()

	remaining, err := s.docs.Count(work, pendingAnalysis)
	if err != nil {
		return nil, err
	}
	res.Remaining = remaining
	s.metrics.BulkChunk()
	return res, nil
}

func (s *bulkService) RunAnalyzeAll(ctx context.Context, progress func(AnalyzeAllResult)) (*AnalyzeAllResult, error) {
	total := &AnalyzeAllResult{}
	defer func() {
		s.record(context.WithoutCancel(ctx), ActionBulkAnalyze, fmt.Sprintf("analyzed %d, failed %d, errors %d, remaining %d in %d chunks",
			total.Analyzed, total.Failed, total.Errors, total.Remaining, total.Iterations))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if total.Iterations >= s.bulk.MaxIterations {
			s.metrics.BreakerStop("max_iterations")
			return total, fmt.Errorf("%w: %d chunks processed, %d documents remaining", ErrCircuitBreakerStop, total.Iterations, total.Remaining)
		}

		chunk, err := s.AnalyzeChunk(ctx)
		if err != nil {
			return total, err
		}
		total.Iterations++
		total.Analyzed += chunk.Analyzed
		total.Failed += chunk.Failed
		total.Errors += chunk.Errors
		total.Remaining = chunk.Remaining
		if progress != nil {
			progress(*total)
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		if chunk.Remaining == 0 {
			return total, nil
		}
		if chunk.Analyzed+chunk.Failed == 0 {
			s.metrics.BreakerStop("no_progress")
			return total, fmt.Errorf("%w: chunk %d made no progress, %d documents remaining", ErrCircuitBreakerStop, total.Iterations, chunk.Remaining)
		}
	}
}

func (s *bulkService) BulkCreateAllFromSuggestions(ctx context.Context, sgs []model.Suggestion) (*BulkCreateResult, error) {
	if len(sgs) == 0 {
		return nil, fmt.Errorf("%w: suggestions is required", ErrValidation)
	}

	res := &BulkCreateResult{Results: make([]SuggestionOutcome, 0, len(sgs))}
	for i, sg := range sgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := SuggestionOutcome{Index: i}
		gr, err := s.consolidation.CreateBatchFromSuggestion(ctx, sg)
		if gr != nil && gr.Batch != nil {
			out.BatchID = gr.Batch.ID
		}
		if err != nil {
			res.Failed++
			out.Error = err.Error()
		} else {
			res.Created++
			out.ArtifactID = gr.Artifact.ID
		}
		res.Results = append(res.Results, out)
	}

	s.record(ctx, ActionBulkCreate, fmt.Sprintf("created %d, failed %d of %d suggestions", res.Created, res.Failed, len(sgs)))
	return res, nil
}

func (s *bulkService) BulkValidate(ctx context.Context, folder model.Folder) (*FolderValidationResult, error) {
	return s.documents.ValidateFolder(ctx, folder)
}
