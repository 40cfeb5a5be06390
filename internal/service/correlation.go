package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"docflow/internal/model"
	"docflow/internal/repository"
)

// ItemResult is the outcome for one document of a multi-document operation.
type ItemResult struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ReanalyzeResult is the tally of ReanalyzeGroup.
type ReanalyzeResult struct {
	Analyzed int          `json:"analyzed"`
	Failed   int          `json:"failed"`
	Results  []ItemResult `json:"results"`
}

// CorrelationService groups analyzed documents into payment suggestions.
type CorrelationService interface {
	// SuggestBatches is a read-only view over the analyzed, unbatched pool.
	// Two calls without an intervening mutation return identical results.
	SuggestBatches(ctx context.Context) ([]model.Suggestion, error)
	// ReanalyzeGroup re-runs extraction on exactly ids. It does not recompute suggestions.
	ReanalyzeGroup(ctx context.Context, ids []string) (*ReanalyzeResult, error)
}

type correlationService struct {
	*core
	documents *documentService
}

// NormalizeCounterparty lower-cases name and drops everything but letters and digits.
func NormalizeCounterparty(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type groupKey struct {
	counterparty string
	amount       int64
}

func (s *correlationService) SuggestBatches(ctx context.Context) ([]model.Suggestion, error) {
	pool, err := s.docs.List(ctx, repository.DocumentFilter{
		Statuses:  []model.Status{model.StatusAnalyzed},
		Unbatched: true,
	})
	if err != nil {
		return nil, err
	}

	groups := make(map[groupKey][]model.Document)
	for _, d := range pool {
		if !d.Correlatable() {
			continue
		}
		k := groupKey{counterparty: NormalizeCounterparty(*d.Counterparty), amount: *d.Amount}
		if k.counterparty == "" {
			continue
		}
		groups[k] = append(groups[k], d)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].counterparty != keys[j].counterparty {
			return keys[i].counterparty < keys[j].counterparty
		}
		return keys[i].amount < keys[j].amount
	})

	out := make([]model.Suggestion, 0)
	for _, k := range keys {
		if sg, ok := suggest(groups[k], k.amount); ok {
			s.metrics.Suggestion(string(sg.Confidence))
			out = append(out, sg)
		}
	}
	return out, nil
}

// suggest turns one equivalence class into a suggestion when it spans at least two folders.
func suggest(members []model.Document, amount int64) (model.Suggestion, bool) {
	if len(members) < 2 {
		return model.Suggestion{}, false
	}
	sort.Slice(members, func(i, j int) bool {
		ri, rj := members[i].Folder.Rank(), members[j].Folder.Rank()
		if ri != rj {
			return ri < rj
		}
		return members[i].ID < members[j].ID
	})

	seen := make(map[model.Folder]bool)
	folders := make([]model.Folder, 0, len(model.CanonicalFolderOrder))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
		if !seen[m.Folder] {
			seen[m.Folder] = true
			folders = append(folders, m.Folder)
		}
	}
	if len(folders) < 2 {
		return model.Suggestion{}, false
	}

	confidence := model.ConfidenceMedium
	if len(folders) >= 3 {
		confidence = model.ConfidenceHigh
	}
	return model.Suggestion{
		DocumentIDs:  ids,
		Counterparty: strings.TrimSpace(*members[0].Counterparty),
		Amount:       amount,
		Confidence:   confidence,
		Folders:      folders,
	}, true
}

func (s *correlationService) ReanalyzeGroup(ctx context.Context, ids []string) (*ReanalyzeResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: document_ids is required", ErrValidation)
	}

	res := &ReanalyzeResult{Results: make([]ItemResult, 0, len(ids))}
	for _, id := range ids {
		a, err := s.documents.analyze(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			res.Results = append(res.Results, ItemResult{ID: id, Error: err.Error()})
		case a.failure != nil:
			res.Failed++
			res.Results = append(res.Results, ItemResult{ID: id, Status: a.doc.Status, Error: a.failure.Error()})
		default:
			res.Analyzed++
			res.Results = append(res.Results, ItemResult{ID: id, Status: a.doc.Status})
		}
	}

	s.record(ctx, ActionAnalyzeDocument, fmt.Sprintf("re-analyzed group of %d: %d ok, %d failed", len(ids), res.Analyzed, res.Failed))
	return res, nil
}
