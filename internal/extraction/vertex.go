package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"

	"docflow/internal/config"
	"docflow/internal/model"
)

const fieldsSystemPrompt = "You are an accounts-payable assistant. You read Colombian payment documents " +
	"(comprobantes de egreso, cuentas por pagar, facturas, soportes de pago) and return their key fields as JSON."

const fieldsUserPrompt = `Read the attached document and return a single JSON object with exactly these keys:
- "counterparty": legal name of the supplier or beneficiary being paid, as printed.
- "amount": total amount paid or payable, as printed (keep separators, no currency words).
- "date": document date in YYYY-MM-DD.
- "tax_id": NIT or cedula of the counterparty, digits and check digit only.
- "document_number": the document's own number or consecutive.
- "concept": one short sentence describing what is being paid.
Use null for any value that is not present. Do not guess.`

const boundariesSystemPrompt = "You are a document segmentation tool. You decide where one logical document ends and the next begins inside a scanned PDF."

const boundariesUserPrompt = `The attached PDF may contain several independent payment documents scanned together.
Return a JSON array with one object per logical document, in page order:
[{"start_page": 1, "end_page": 2}, {"start_page": 3, "end_page": 3}]
Pages are 1-based and inclusive. If the whole file is a single document return a one-element array.`

// generator is the subset of *genai.GenerativeModel used here.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Vertex is an Extractor backed by a Gemini model on Vertex AI.
type Vertex struct {
	client     *genai.Client
	fields     generator
	boundaries generator
	timeout    time.Duration
	log        *zap.Logger
}

var _ Extractor = (*Vertex)(nil)

// NewVertex creates the Gemini client and configures both JSON-mode models.
func NewVertex(ctx context.Context, cfg config.VertexConfig, log *zap.Logger) (*Vertex, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex: project id and region are required")
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &Vertex{
		client:     client,
		fields:     jsonModel(client, cfg.Model, fieldsSystemPrompt),
		boundaries: jsonModel(client, cfg.Model, boundariesSystemPrompt),
		timeout:    cfg.Timeout,
		log:        log.Named("extraction"),
	}, nil
}

func jsonModel(client *genai.Client, name, system string) *genai.GenerativeModel {
	m := client.GenerativeModel(name)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	return m
}

// Close releases the underlying client.
func (v *Vertex) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

type fieldsResponse struct {
	Counterparty   *string         `json:"counterparty"`
	Amount         json.RawMessage `json:"amount"`
	Date           *string         `json:"date"`
	TaxID          *string         `json:"tax_id"`
	DocumentNumber *string         `json:"document_number"`
	Concept        *string         `json:"concept"`
}

func (v *Vertex) Extract(ctx context.Context, data []byte, contentType string) (model.ExtractedFields, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	resp, err := v.fields.GenerateContent(ctx, genai.Blob{MIMEType: contentType, Data: data}, genai.Text(fieldsUserPrompt))
	if err != nil {
		return model.ExtractedFields{}, fmt.Errorf("gemini generate: %w", err)
	}

	raw := responseJSON(resp)
	if raw == "" {
		return model.ExtractedFields{}, fmt.Errorf("%w: empty response", ErrUnreadable)
	}

	var out fieldsResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		v.log.Warn("unparseable extraction response", zap.Error(err), zap.String("body", raw))
		return model.ExtractedFields{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	fields := model.ExtractedFields{
		Counterparty:   trimmed(out.Counterparty),
		Date:           trimmed(out.Date),
		TaxID:          trimmed(out.TaxID),
		DocumentNumber: trimmed(out.DocumentNumber),
		Concept:        trimmed(out.Concept),
	}
	cents, err := amountCents(out.Amount)
	switch {
	case err != nil:
		v.log.Debug("amount not convertible", zap.ByteString("amount", out.Amount), zap.Error(err))
	case cents != nil:
		fields.Amount = cents
	}
	return fields, nil
}

func (v *Vertex) DetectBoundaries(ctx context.Context, data []byte) ([]PageRange, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	resp, err := v.boundaries.GenerateContent(ctx, genai.Blob{MIMEType: "application/pdf", Data: data}, genai.Text(boundariesUserPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	raw := responseJSON(resp)
	if raw == "" {
		return nil, nil
	}

	var ranges []PageRange
	if err := json.Unmarshal([]byte(raw), &ranges); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	for _, r := range ranges {
		if r.From < 1 || r.To < r.From {
			return nil, fmt.Errorf("%w: invalid page range %d-%d", ErrUnreadable, r.From, r.To)
		}
	}
	return ranges, nil
}

func (v *Vertex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.timeout)
}

// responseJSON returns the first text part of the first candidate, with any markdown fence removed.
func responseJSON(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return ""
	}
	s := strings.TrimSpace(string(txt))
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// amountCents accepts the amount as either a JSON number or a printed JSON string.
func amountCents(raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var printed string
	if err := json.Unmarshal(raw, &printed); err == nil {
		if strings.TrimSpace(printed) == "" {
			return nil, nil
		}
		c, err := ToCents(printed)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: amount %s", ErrUnreadable, raw)
	}
	c := int64(math.Round(n * 100))
	return &c, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
