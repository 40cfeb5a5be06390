package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Arial", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, "page")
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessor_Validate(t *testing.T) {
	p := NewProcessor(zap.NewNop())

	assert.NoError(t, p.Validate(samplePDF(t, 1), ContentTypePDF))
	assert.NoError(t, p.Validate(samplePNG(t), ContentTypePNG))

	assert.ErrorIs(t, p.Validate([]byte("not a pdf"), ContentTypePDF), ErrInvalidContent)
	assert.ErrorIs(t, p.Validate([]byte("not a png"), ContentTypePNG), ErrInvalidContent)
	assert.ErrorIs(t, p.Validate([]byte("x"), "text/plain"), ErrUnsupportedType)
}

func TestProcessor_PageCountAndExtract(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	src := samplePDF(t, 3)

	n, err := p.PageCount(src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	part, err := p.ExtractPages(src, "2-3")
	require.NoError(t, err)
	n, err = p.PageCount(part)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestProcessor_Merge(t *testing.T) {
	p := NewProcessor(zap.NewNop())

	out, err := p.Merge([]Part{
		{Name: "voucher.pdf", ContentType: ContentTypePDF, Data: samplePDF(t, 2)},
		{Name: "receipt.png", ContentType: ContentTypePNG, Data: samplePNG(t)},
		{Name: "invoice.pdf", ContentType: ContentTypePDF, Data: samplePDF(t, 1)},
	})
	require.NoError(t, err)

	n, err := p.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestProcessor_Merge_Errors(t *testing.T) {
	p := NewProcessor(zap.NewNop())

	_, err := p.Merge(nil)
	assert.Error(t, err)

	_, err = p.Merge([]Part{{Name: "a.txt", ContentType: "text/plain", Data: []byte("x")}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFit(t *testing.T) {
	w, h := fit(400, 200, 190, 277)
	assert.InDelta(t, 190.0, w, 0.001)
	assert.InDelta(t, 95.0, h, 0.001)

	w, h = fit(100, 1000, 190, 277)
	assert.InDelta(t, 27.7, w, 0.001)
	assert.InDelta(t, 277.0, h, 0.001)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("application/pdf"))
	assert.True(t, IsSupported("image/jpeg"))
	assert.False(t, IsSupported("image/gif"))
}
