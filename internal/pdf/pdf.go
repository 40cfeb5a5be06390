// Package pdf validates uploaded documents and renders consolidated PDFs.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// Accepted content types.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

var (
	// ErrUnsupportedType is returned for content types other than pdf, jpeg and png.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrInvalidContent is returned when bytes do not parse as their declared type.
	ErrInvalidContent = errors.New("invalid document content")
)

// Part is one document fed into a merge, in page order.
type Part struct {
	Name        string
	ContentType string
	Data        []byte
}

// Engine is the render collaborator used by the document and consolidation services.
type Engine interface {
	// Validate checks that data is a well-formed document of the given type.
	Validate(data []byte, contentType string) error
	// PageCount returns the number of pages of a PDF.
	PageCount(data []byte) (int, error)
	// ExtractPages returns a new PDF holding only the selected pages, e.g. "2-3".
	ExtractPages(data []byte, selection string) ([]byte, error)
	// Merge concatenates the parts into one PDF. Images become single A4 pages.
	Merge(parts []Part) ([]byte, error)
}

// Processor implements Engine with pdfcpu and gofpdf.
type Processor struct {
	log *zap.Logger
}

var _ Engine = (*Processor)(nil)

// NewProcessor creates a Processor.
func NewProcessor(log *zap.Logger) *Processor {
	return &Processor{log: log.Named("pdf")}
}

func relaxed() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// IsSupported reports whether contentType can be stored and merged.
func IsSupported(contentType string) bool {
	switch contentType {
	case ContentTypePDF, ContentTypeJPEG, ContentTypePNG:
		return true
	}
	return false
}

func (p *Processor) Validate(data []byte, contentType string) error {
	switch contentType {
	case ContentTypePDF:
		if err := api.Validate(bytes.NewReader(data), relaxed()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		return nil
	case ContentTypeJPEG, ContentTypePNG:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		if cfg.Width == 0 || cfg.Height == 0 {
			return fmt.Errorf("%w: empty image", ErrInvalidContent)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}

func (p *Processor) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), relaxed())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return n, nil
}

func (p *Processor) ExtractPages(data []byte, selection string) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, []string{selection}, relaxed()); err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", selection, err)
	}
	return out.Bytes(), nil
}

func (p *Processor) Merge(parts []Part) ([]byte, error) {
	if len(parts) == 0 {
		return nil, errors.New("merge: no parts")
	}

	readers := make([]io.ReadSeeker, 0, len(parts))
	for _, part := range parts {
		data := part.Data
		switch part.ContentType {
		case ContentTypePDF:
		case ContentTypeJPEG, ContentTypePNG:
			page, err := imagePage(part)
			if err != nil {
				return nil, fmt.Errorf("merge %s: %w", part.Name, err)
			}
			data = page
		default:
			return nil, fmt.Errorf("merge %s: %w: %s", part.Name, ErrUnsupportedType, part.ContentType)
		}
		readers = append(readers, bytes.NewReader(data))
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, relaxed()); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	p.log.Debug("merged parts", zap.Int("parts", len(parts)), zap.Int("bytes", out.Len()))
	return out.Bytes(), nil
}

// A4 portrait in millimetres.
const (
	pageW  = 210.0
	pageH  = 297.0
	margin = 10.0
)

// imagePage wraps an image in a single A4 page, scaled to fit inside the margins.
func imagePage(part Part) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(part.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}

	w, h := fit(float64(cfg.Width), float64(cfg.Height), pageW-2*margin, pageH-2*margin)

	imgType := "PNG"
	if part.ContentType == ContentTypeJPEG {
		imgType = "JPG"
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(margin, margin, margin)
	doc.AddPage()
	opts := gofpdf.ImageOptions{ImageType: imgType, ReadDpi: false}
	doc.RegisterImageOptionsReader("page", opts, bytes.NewReader(part.Data))
	doc.ImageOptions("page", (pageW-w)/2, margin, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render image page: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales (w, h) to the largest size inside (maxW, maxH) keeping the aspect ratio.
func fit(w, h, maxW, maxH float64) (float64, float64) {
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}
