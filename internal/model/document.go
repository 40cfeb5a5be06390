package model

import "time"

// Folder is one of the four fixed document-type categories.
type Folder string

const (
	FolderDisbursementVoucher Folder = "comprobante_egreso"
	FolderPayableAccount      Folder = "cuenta_por_pagar"
	FolderInvoice             Folder = "factura"
	FolderPaymentSupport      Folder = "soporte_pago"
)

// CanonicalFolderOrder is the page order of a consolidated PDF for a batch holding
// exactly one document of each folder. It follows the payment flow, not the alphabet.
var CanonicalFolderOrder = []Folder{
	FolderDisbursementVoucher,
	FolderPayableAccount,
	FolderPaymentSupport,
	FolderInvoice,
}

// Valid reports whether f is one of the known folders.
func (f Folder) Valid() bool {
	switch f {
	case FolderDisbursementVoucher, FolderPayableAccount, FolderInvoice, FolderPaymentSupport:
		return true
	}
	return false
}

// Rank returns the position of f in CanonicalFolderOrder, or len(CanonicalFolderOrder) if unknown.
func (f Folder) Rank() int {
	for i, c := range CanonicalFolderOrder {
		if c == f {
			return i
		}
	}
	return len(CanonicalFolderOrder)
}

// Status is the lifecycle state of a Document.
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusValidating  Status = "validating"
	StatusValidated   Status = "validated"
	StatusAnalyzing   Status = "analyzing"
	StatusAnalyzed    Status = "analyzed"
	StatusBatched     Status = "batched"
	StatusSplit       Status = "split"
	StatusNeedsReview Status = "needs_review"
)

// AllStatuses lists every status, used for dashboards and filters.
var AllStatuses = []Status{
	StatusUploaded, StatusValidating, StatusValidated, StatusAnalyzing,
	StatusAnalyzed, StatusBatched, StatusSplit, StatusNeedsReview,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ExtractedFields holds the structured values returned by the extraction engine.
// Every field stays nil until the document has been analyzed successfully.
// Amount is expressed in cents.
type ExtractedFields struct {
	Counterparty   *string `json:"counterparty"`
	Amount         *int64  `json:"amount"`
	Date           *string `json:"date"`
	TaxID          *string `json:"tax_id"`
	DocumentNumber *string `json:"document_number"`
	Concept        *string `json:"concept"`
}

// Document is one physical file, or one logical part of a split file.
type Document struct {
	ID            string     `json:"id"`
	Folder        Folder     `json:"folder"`
	Filename      string     `json:"filename"`
	ContentType   string     `json:"content_type"`
	Size          int64      `json:"size"`
	ContentHash   string     `json:"content_hash"`
	StorageKey    string     `json:"storage_key"`
	Status        Status     `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	ParentID      *string    `json:"parent_id,omitempty"`
	BatchID       *string    `json:"batch_id,omitempty"`
	ReplacedAt    *time.Time `json:"replaced_at,omitempty"`
	UploadedBy    string     `json:"uploaded_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	ExtractedFields
}

// ClearExtracted nulls every extracted field.
func (d *Document) ClearExtracted() {
	d.ExtractedFields = ExtractedFields{}
}

// Correlatable reports whether the document carries the fields grouping depends on.
func (d *Document) Correlatable() bool {
	return d.Amount != nil && d.Counterparty != nil && *d.Counterparty != ""
}
