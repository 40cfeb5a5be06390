package service

import (
	"fmt"

	"docflow/internal/model"
)

// transitions lists the legal document status moves.
var transitions = map[model.Status][]model.Status{
	model.StatusUploaded:    {model.StatusValidating, model.StatusSplit},
	model.StatusValidating:  {model.StatusValidated, model.StatusNeedsReview},
	model.StatusValidated:   {model.StatusAnalyzing},
	model.StatusAnalyzing:   {model.StatusAnalyzed, model.StatusNeedsReview},
	model.StatusAnalyzed:    {model.StatusAnalyzing, model.StatusBatched},
	model.StatusBatched:     {model.StatusAnalyzed},
	model.StatusNeedsReview: {model.StatusValidating, model.StatusAnalyzing},
}

// CanTransition reports whether a document may move from one status to another.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves doc to status to, or returns ErrConflict.
func (c *core) transition(doc *model.Document, to model.Status) error {
	if !CanTransition(doc.Status, to) {
		return fmt.Errorf("%w: document %s cannot go from %s to %s", ErrConflict, doc.ID, doc.Status, to)
	}
	c.metrics.Transition(string(doc.Status), string(to))
	doc.Status = to
	doc.UpdatedAt = c.now()
	return nil
}

// checkDocument verifies batch_id is set exactly when the document is batched.
func checkDocument(doc *model.Document) error {
	if (doc.BatchID != nil) != (doc.Status == model.StatusBatched) {
		return fmt.Errorf("%w: document %s has status %s and batch %v", ErrConflict, doc.ID, doc.Status, doc.BatchID)
	}
	return nil
}
