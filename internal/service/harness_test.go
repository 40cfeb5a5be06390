package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docflow/internal/extraction"
	"docflow/internal/model"
	"docflow/internal/pdf"
	"docflow/internal/repository"
	"docflow/internal/repository/memory"
	"docflow/internal/storage"
)

// fakeEngine treats documents as opaque text. Content starting with "corrupt" fails
// validation and Merge joins part names so tests can read the page order back.
type fakeEngine struct {
	mu       sync.Mutex
	pages    int
	mergeErr error
	merges   [][]string
}

func (e *fakeEngine) Validate(data []byte, _ string) error {
	if bytes.HasPrefix(data, []byte("corrupt")) {
		return pdf.ErrInvalidContent
	}
	return nil
}

func (e *fakeEngine) PageCount([]byte) (int, error) { return e.pages, nil }

func (e *fakeEngine) ExtractPages(data []byte, selection string) ([]byte, error) {
	return []byte(string(data) + "#pages=" + selection), nil
}

func (e *fakeEngine) Merge(parts []pdf.Part) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mergeErr != nil {
		return nil, e.mergeErr
	}
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, p.Name)
	}
	e.merges = append(e.merges, names)
	return []byte("%PDF " + strings.Join(names, ",")), nil
}

func (e *fakeEngine) lastMerge() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.merges) == 0 {
		return nil
	}
	return e.merges[len(e.merges)-1]
}

// contentExtractor reads fields from "key=value;" pairs in the document body.
// A body containing "unreadable" fails extraction.
type contentExtractor struct {
	calls atomic.Int32
}

func (x *contentExtractor) Extract(_ context.Context, data []byte, _ string) (model.ExtractedFields, error) {
	x.calls.Add(1)
	body := string(data)
	if strings.Contains(body, "unreadable") {
		return model.ExtractedFields{}, errors.New("model returned no fields")
	}
	var f model.ExtractedFields
	for _, kv := range strings.Split(body, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "cp":
			f.Counterparty = &v
		case "amt":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return model.ExtractedFields{}, err
			}
			f.Amount = &n
		case "num":
			f.DocumentNumber = &v
		}
	}
	return f, nil
}

func (x *contentExtractor) DetectBoundaries(context.Context, []byte) ([]extraction.PageRange, error) {
	return nil, nil
}

// flakyDocuments refuses writes on a cancelled context, as database/sql does, and
// fails every Update while failUpdates is set.
type flakyDocuments struct {
	repository.DocumentRepository
	failUpdates atomic.Bool
}

func (r *flakyDocuments) Update(ctx context.Context, doc *model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.failUpdates.Load() {
		return errors.New("connection reset by peer")
	}
	return r.DocumentRepository.Update(ctx, doc)
}

// flakyBatches fails every Update while failUpdates is set.
type flakyBatches struct {
	repository.BatchRepository
	failUpdates atomic.Bool
}

func (r *flakyBatches) Update(ctx context.Context, b *model.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.failUpdates.Load() {
		return errors.New("connection reset by peer")
	}
	return r.BatchRepository.Update(ctx, b)
}

// withFlakyRepositories wraps the harness repositories in the flaky variants.
func withFlakyRepositories(docs *flakyDocuments, batches *flakyBatches) func(*Deps) {
	return func(d *Deps) {
		docs.DocumentRepository = d.Documents
		batches.BatchRepository = d.Batches
		d.Documents = docs
		d.Batches = batches
	}
}

// gatedExtractor parses fields like contentExtractor but holds every call until
// release is closed or the call's context ends.
type gatedExtractor struct {
	contentExtractor
	started chan string
	release chan struct{}
}

func newGatedExtractor() *gatedExtractor {
	return &gatedExtractor{started: make(chan string, 16), release: make(chan struct{})}
}

func (x *gatedExtractor) Extract(ctx context.Context, data []byte, contentType string) (model.ExtractedFields, error) {
	x.started <- string(data)
	select {
	case <-x.release:
	case <-ctx.Done():
		return model.ExtractedFields{}, ctx.Err()
	}
	return x.contentExtractor.Extract(ctx, data, contentType)
}

type harness struct {
	svc       *Services
	store     *memory.Store
	objects   *storage.Memory
	engine    *fakeEngine
	extractor *contentExtractor
	seq       atomic.Int64
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:     memory.NewStore(),
		objects:   storage.NewMemory(),
		engine:    &fakeEngine{pages: 1},
		extractor: &contentExtractor{},
	}
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	d := Deps{
		Documents: h.store.Documents(),
		Batches:   h.store.Batches(),
		Artifacts: h.store.Artifacts(),
		Audit:     h.store.Audit(),
		Storage:   h.objects,
		Extractor: h.extractor,
		Engine:    h.engine,
		Now:       func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Millisecond) },
	}
	for _, o := range opts {
		o(&d)
	}
	h.svc = New(d)
	return h
}

// file builds a unique pdf upload whose body carries the given fields.
func (h *harness) file(fields string) FileInput {
	n := h.seq.Add(1)
	return FileInput{
		Filename:    fmt.Sprintf("doc-%d.pdf", n),
		ContentType: "application/pdf",
		Data:        []byte(fmt.Sprintf("%s;n=%d", fields, n)),
	}
}

func (h *harness) upload(t *testing.T, folder model.Folder, fields string) *model.Document {
	t.Helper()
	doc, err := h.svc.Documents.Upload(context.Background(), folder, h.file(fields))
	require.NoError(t, err)
	return doc
}

func (h *harness) validated(t *testing.T, folder model.Folder, fields string) *model.Document {
	t.Helper()
	doc := h.upload(t, folder, fields)
	doc, err := h.svc.Documents.Validate(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusValidated, doc.Status)
	return doc
}

// analyzed uploads, validates and analyzes a document of folder for counterparty and amount.
func (h *harness) analyzed(t *testing.T, folder model.Folder, counterparty string, amount int64) *model.Document {
	t.Helper()
	fields := fmt.Sprintf("cp=%s;amt=%d;num=%s-%d", counterparty, amount, folder, h.seq.Load()+1)
	doc := h.validated(t, folder, fields)
	doc, err := h.svc.Documents.Analyze(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusAnalyzed, doc.Status, doc.StatusMessage)
	return doc
}

// paymentGroup creates one analyzed document per folder for the same payment.
func (h *harness) paymentGroup(t *testing.T, counterparty string, amount int64, folders ...model.Folder) []string {
	t.Helper()
	ids := make([]string, 0, len(folders))
	for _, f := range folders {
		ids = append(ids, h.analyzed(t, f, counterparty, amount).ID)
	}
	return ids
}

func (h *harness) doc(t *testing.T, id string) *model.Document {
	t.Helper()
	d, err := h.store.Documents().FindByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (h *harness) batch(t *testing.T, id string) *model.Batch {
	t.Helper()
	b, err := h.store.Batches().FindByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *harness) actions(t *testing.T) []string {
	t.Helper()
	entries, err := h.store.Audit().List(context.Background(), 1000)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

var allFolders = []model.Folder{
	model.FolderInvoice,
	model.FolderPaymentSupport,
	model.FolderPayableAccount,
	model.FolderDisbursementVoucher,
}
