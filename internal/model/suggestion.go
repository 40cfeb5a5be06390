package model

// Confidence of a suggested grouping.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Suggestion is an unpersisted grouping proposal computed from the analyzed pool.
type Suggestion struct {
	DocumentIDs  []string   `json:"document_ids" validate:"required,min=2,dive,required"`
	Counterparty string     `json:"counterparty"`
	Amount       int64      `json:"amount"`
	Confidence   Confidence `json:"confidence"`
	Folders      []Folder   `json:"folders"`
}
