// Package extraction defines the contract with the field-extraction engine and
// its Vertex AI (Gemini) implementation.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"docflow/internal/model"
)

// ErrUnreadable is returned when the engine answers but the answer cannot be used.
var ErrUnreadable = errors.New("extraction response unreadable")

// PageRange is an inclusive, 1-based page span of one logical document inside a file.
type PageRange struct {
	From int `json:"start_page"`
	To   int `json:"end_page"`
}

// String renders the range in pdfcpu page selection syntax.
func (r PageRange) String() string {
	if r.From == r.To {
		return strconv.Itoa(r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Extractor reads structured payment fields out of a raw document.
type Extractor interface {
	// Extract returns the fields found in data. Missing fields are nil.
	Extract(ctx context.Context, data []byte, contentType string) (model.ExtractedFields, error)
	// DetectBoundaries returns the page ranges of the logical documents contained in a PDF.
	// A nil or single-element result means the file holds one document.
	DetectBoundaries(ctx context.Context, data []byte) ([]PageRange, error)
}

// ToCents converts a decimal amount as written on a document into integer cents,
// rounding half away from zero. It accepts "1234.5", "1,234.50", "1.234,50" and "$ 1.234".
func ToCents(raw string) (int64, error) {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, raw)
	if s == "" || s == "-" {
		return 0, fmt.Errorf("%w: amount %q", ErrUnreadable, raw)
	}

	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// a single dot followed by exactly three digits is a thousands separator
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", ErrUnreadable, raw)
	}
	return int64(math.Round(f * 100)), nil
}
