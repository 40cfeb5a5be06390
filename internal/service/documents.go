package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"docflow/internal/lock"
	"docflow/internal/model"
	tracing "docflow/internal/otel"
	"docflow/internal/pdf"
	"docflow/internal/repository"
	"docflow/internal/storage"
)

// FileInput is one uploaded file held in memory.
type FileInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DocumentQuery filters List. Empty fields match everything.
type DocumentQuery struct {
	Folder model.Folder
	Status model.Status
}

// ItemFailure describes one failed element of a bulk operation.
type ItemFailure struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// UploadResult is the tally of a multi-file upload.
type UploadResult struct {
	Uploaded           int              `json:"uploaded"`
	Duplicates         int              `json:"duplicates"`
	DuplicateFilenames []string         `json:"duplicate_filenames"`
	Failed             int              `json:"failed"`
	Failures           []ItemFailure    `json:"failures,omitempty"`
	Documents          []model.Document `json:"documents"`
}

// SplitResult lists the documents cut out of a multi-document file.
// Children is empty when the file holds a single document.
type SplitResult struct {
	Parent   *model.Document  `json:"parent"`
	Children []model.Document `json:"children"`
	Skipped  int              `json:"skipped_duplicates"`
}

// FolderValidationResult is the tally of ValidateFolder.
type FolderValidationResult struct {
	Validated int           `json:"validated"`
	Errors    int           `json:"errors"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// DocumentService owns the document store and its status machine.
type DocumentService interface {
	// Upload stores one file in folder as a new uploaded document. Identical content
	// already present in the folder yields ErrDuplicate and nothing is stored.
	Upload(ctx context.Context, folder model.Folder, f FileInput) (*model.Document, error)
	// UploadMany uploads every file, continuing past duplicates and failures.
	UploadMany(ctx context.Context, folder model.Folder, files []FileInput) (*UploadResult, error)

	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, q DocumentQuery) ([]model.Document, error)

	// Validate runs the structural check. A failing check leaves the document in
	// needs_review with the reason in StatusMessage; it is not returned as an error.
	Validate(ctx context.Context, id string) (*model.Document, error)
	// ValidateFolder validates every uploaded document of folder.
	ValidateFolder(ctx context.Context, folder model.Folder) (*FolderValidationResult, error)

	// Analyze extracts fields. Extraction failures leave the document in needs_review
	// with the reason in StatusMessage. A batched document is refreshed in place.
	Analyze(ctx context.Context, id string) (*model.Document, error)

	// Delete removes an unbatched document and its stored bytes.
	Delete(ctx context.Context, id string) error

	// SplitIfMultiPage cuts an uploaded PDF holding several logical documents into children.
	SplitIfMultiPage(ctx context.Context, id string) (*SplitResult, error)
}

type documentService struct {
	*core
}

// normalizeContentType strips parameters and sniffs the bytes when the client sent nothing useful.
func normalizeContentType(declared string, data []byte) string {
	ct := strings.TrimSpace(strings.ToLower(declared))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		ct, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	if ct == "image/jpg" {
		ct = pdf.ContentTypeJPEG
	}
	return ct
}

func (s *documentService) checkFile(f *FileInput) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrValidation, f.Filename)
	}
	if s.upload.MaxFileBytes > 0 && int64(len(f.Data)) > s.upload.MaxFileBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrValidation, f.Filename, s.upload.MaxFileBytes)
	}
	f.ContentType = normalizeContentType(f.ContentType, f.Data)
	if !pdf.IsSupported(f.ContentType) {
		return fmt.Errorf("%w: %s has unsupported type %s", ErrValidation, f.Filename, f.ContentType)
	}
	return nil
}

func (s *documentService) Upload(ctx context.Context, folder model.Folder, f FileInput) (*model.Document, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("%w: unknown folder %q", ErrValidation, folder)
	}
	if err := s.checkFile(&f); err != nil {
		return nil, err
	}
	doc, err := s.create(ctx, folder, f, nil)
	switch {
	case errors.Is(err, ErrDuplicate):
		s.metrics.Upload(string(folder), "duplicate")
	case err != nil:
		s.metrics.Upload(string(folder), "failed")
	default:
		s.metrics.Upload(string(folder), "ok")
	}
	return doc, err
}

// create stores f and inserts an uploaded document. Same-content uploads into one
// folder are serialized so only one of them can win.
func (s *documentService) create(ctx context.Context, folder model.Folder, f FileInput, parentID *string) (*model.Document, error) {
	hash := contentHash(f.Data)

	unlock, err := s.locker.Lock(ctx, "upload:"+string(folder)+":"+hash)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.docs.FindByHash(ctx, folder, hash)
	if err == nil {
		return nil, fmt.Errorf("%w: %s matches %s in %s", ErrDuplicate, f.Filename, existing.Filename, folder)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find by hash: %w", err)
	}

	id := newID()
	key := filepath.ToSlash(filepath.Join("documents", string(folder), id+strings.ToLower(filepath.Ext(f.Filename))))
	if _, err := storage.PutBytes(ctx, s.store, key, f.Data, f.ContentType, map[string]string{
		"original-filename": f.Filename,
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	now := s.now()
	doc := &model.Document{
		ID:          id,
		Folder:      folder,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        int64(len(f.Data)),
		ContentHash: hash,
		StorageKey:  key,
		Status:      model.StatusUploaded,
		ParentID:    parentID,
		UploadedBy:  callerID(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, err := s.docs.Create(ctx, doc)
	if err != nil {
		s.dropObject(ctx, key)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s already present in %s", ErrDuplicate, f.Filename, folder)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *documentService) UploadMany(ctx context.Context, folder model.Folder, files []FileInput) (*UploadResult, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("%w: unknown folder %q", ErrValidation, folder)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrValidation)
	}
	if s.upload.MaxFiles > 0 && len(files) > s.upload.MaxFiles {
		return nil, fmt.Errorf("%w: at most %d files per upload", ErrValidation, s.upload.MaxFiles)
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	if s.upload.MaxTotal > 0 && total > s.upload.MaxTotal {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", ErrValidation, s.upload.MaxTotal)
	}

	res := &UploadResult{DuplicateFilenames: []string{}, Documents: []model.Document{}}
	for _, f := range files {
		doc, err := s.Upload(ctx, folder, f)
		switch {
		case err == nil:
			res.Uploaded++
			res.Documents = append(res.Documents, *doc)
		case errors.Is(err, ErrDuplicate):
			res.Duplicates++
			res.DuplicateFilenames = append(res.DuplicateFilenames, f.Filename)
		default:
			res.Failed++
			res.Failures = append(res.Failures, ItemFailure{Ref: f.Filename, Error: err.Error()})
			s.log.Warn("upload failed", zap.String("filename", f.Filename), zap.Error(err))
		}
	}

	s.record(ctx, ActionUploadDocuments, fmt.Sprintf("uploaded %d, duplicates %d, failed %d to %s",
		res.Uploaded, res.Duplicates, res.Failed, folder))
	return res, nil
}

func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "document", id)
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, q DocumentQuery) ([]model.Document, error) {
	f := repository.DocumentFilter{Folder: q.Folder}
	if q.Folder != "" && !q.Folder.Valid() {
		return nil, fmt.Errorf("%w: unknown folder %q", ErrValidation, q.Folder)
	}
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
		}
		f.Statuses = []model.Status{q.Status}
	}
	return s.docs.List(ctx, f)
}

// lockDocument locks id and loads the document.
func (s *documentService) lockDocument(ctx context.Context, id string) (*model.Document, func(), error) {
	unlock, err := s.locker.Lock(ctx, lock.DocumentKey(id))
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return doc, unlock, nil
}

func (s *documentService) Validate(ctx context.Context, id string) (*model.Document, error) {
	doc, unlock, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.validateLocked(ctx, doc); err != nil {
		return nil, err
	}
	s.record(ctx, ActionValidateDocument, fmt.Sprintf("%s %s: %s", doc.ID, doc.Filename, doc.Status))
	return doc, nil
}

// validateLocked runs uploaded|needs_review -> validating -> validated|needs_review.
// A document already in validating was left there by an interrupted run and resumes.
func (s *documentService) validateLocked(ctx context.Context, doc *model.Document) error {
	if doc.Status != model.StatusValidating {
		if err := s.transition(doc, model.StatusValidating); err != nil {
			return err
		}
		if err := s.saveDocument(ctx, doc); err != nil {
			return err
		}
	}

	data, err := s.readContent(ctx, doc)
	if err == nil {
		err = s.engine.Validate(data, doc.ContentType)
	}
	if err != nil {
		s.metrics.CollaboratorError("validation")
		if terr := s.transition(doc, model.StatusNeedsReview); terr != nil {
			return terr
		}
		doc.StatusMessage = "validation: " + err.Error()
	} else {
		if terr := s.transition(doc, model.StatusValidated); terr != nil {
			return terr
		}
		doc.StatusMessage = ""
	}
	// the outcome is recorded even if the caller went away
	return s.saveDocument(context.WithoutCancel(ctx), doc)
}

func (s *documentService) ValidateFolder(ctx context.Context, folder model.Folder) (*FolderValidationResult, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("%w: unknown folder %q", ErrValidation, folder)
	}
	pending, err := s.docs.List(ctx, repository.DocumentFilter{
		Folder:   folder,
		Statuses: []model.Status{model.StatusUploaded},
	})
	if err != nil {
		return nil, err
	}

	res := &FolderValidationResult{}
	for _, p := range pending {
		doc, unlock, err := s.lockDocument(ctx, p.ID)
		if err != nil {
			res.Errors++
			res.Failures = append(res.Failures, ItemFailure{Ref: p.ID, Error: err.Error()})
			continue
		}
		err = s.validateLocked(ctx, doc)
		unlock()
		switch {
		case err != nil:
			res.Errors++
			res.Failures = append(res.Failures, ItemFailure{Ref: p.ID, Error: err.Error()})
		case doc.Status == model.StatusValidated:
			res.Validated++
		default:
			res.Errors++
			res.Failures = append(res.Failures, ItemFailure{Ref: p.ID, Error: doc.StatusMessage})
		}
	}

	s.record(ctx, ActionValidateDocument, fmt.Sprintf("folder %s: validated %d, errors %d", folder, res.Validated, res.Errors))
	return res, nil
}

func (s *documentService) Analyze(ctx context.Context, id string) (*model.Document, error) {
	res, err := s.analyze(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, ActionAnalyzeDocument, fmt.Sprintf("%s %s: %s", res.doc.ID, res.doc.Filename, res.doc.Status))
	return res.doc, nil
}

// analysis is the recorded outcome of one extraction attempt.
type analysis struct {
	doc *model.Document
	// failure is the extraction error already stored in doc.StatusMessage.
	failure error
}

// analyze returns err only for failures that prevented recording an outcome.
func (s *documentService) analyze(ctx context.Context, id string) (analysis, error) {
	ctx, span := tracing.Tracer().Start(ctx, "document.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", id))

	doc, unlock, err := s.lockDocument(ctx, id)
	if err != nil {
		return analysis{}, err
	}
	defer unlock()

	refresh := doc.Status == model.StatusBatched
	// under the document lock, analyzing can only be left over from an interrupted run
	if !refresh && doc.Status != model.StatusAnalyzing {
		if err := s.transition(doc, model.StatusAnalyzing); err != nil {
			return analysis{}, err
		}
		if err := s.saveDocument(ctx, doc); err != nil {
			return analysis{}, err
		}
	}

	fields, extractErr := s.extract(ctx, doc)
	// the outcome is recorded even if the caller went away
	ctx = context.WithoutCancel(ctx)
	if extractErr != nil {
		span.RecordError(extractErr)
		span.SetStatus(codes.Error, "extraction failed")
		s.metrics.CollaboratorError("extraction")
		doc.StatusMessage = extractErr.Error()
		doc.UpdatedAt = s.now()
		if !refresh {
			if err := s.transition(doc, model.StatusNeedsReview); err != nil {
				return analysis{}, err
			}
		}
		if err := s.saveDocument(ctx, doc); err != nil {
			return analysis{}, err
		}
		return analysis{doc: doc, failure: extractErr}, nil
	}

	doc.ExtractedFields = fields
	doc.StatusMessage = ""
	doc.UpdatedAt = s.now()
	if !refresh {
		if err := s.transition(doc, model.StatusAnalyzed); err != nil {
			return analysis{}, err
		}
	}
	if err := s.saveDocument(ctx, doc); err != nil {
		return analysis{}, err
	}
	return analysis{doc: doc}, nil
}

func (s *documentService) extract(ctx context.Context, doc *model.Document) (model.ExtractedFields, error) {
	data, err := s.readContent(ctx, doc)
	if err != nil {
		return model.ExtractedFields{}, fmt.Errorf("%w: read content: %v", ErrExtraction, err)
	}
	fields, err := s.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		return model.ExtractedFields{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return fields, nil
}

func (s *documentService) Delete(ctx context.Context, id string) error {
	doc, unlock, err := s.lockDocument(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if doc.BatchID != nil {
		return fmt.Errorf("%w: document is batched, remove from batch first", ErrConflict)
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete from storage: %w", err)
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete from repository: %w", err)
	}

	s.record(ctx, ActionDeleteDocument, fmt.Sprintf("%s %s", doc.ID, doc.Filename))
	return nil
}

func (s *documentService) SplitIfMultiPage(ctx context.Context, id string) (*SplitResult, error) {
	parent, unlock, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if parent.Status != model.StatusUploaded {
		return nil, fmt.Errorf("%w: only uploaded documents can be split, %s is %s", ErrConflict, id, parent.Status)
	}
	res := &SplitResult{Parent: parent, Children: []model.Document{}}
	if parent.ContentType != pdf.ContentTypePDF {
		return res, nil
	}

	data, err := s.readContent(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	ranges, err := s.extractor.DetectBoundaries(ctx, data)
	if err != nil {
		s.metrics.CollaboratorError("extraction")
		return nil, fmt.Errorf("%w: detect boundaries: %v", ErrExtraction, err)
	}
	if len(ranges) <= 1 {
		return res, nil
	}

	pages, err := s.engine.PageCount(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, r := range ranges {
		if r.To > pages {
			return nil, fmt.Errorf("%w: range %s exceeds %d pages", ErrExtraction, r, pages)
		}
	}

	base := strings.TrimSuffix(parent.Filename, filepath.Ext(parent.Filename))
	// ownChildren counts cuts already stored as children of parent by an earlier run
	ownChildren := 0
	for _, r := range ranges {
		part, err := s.engine.ExtractPages(data, r.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		child, err := s.create(ctx, parent.Folder, FileInput{
			Filename:    fmt.Sprintf("%s_p%s.pdf", base, r),
			ContentType: pdf.ContentTypePDF,
			Data:        part,
		}, &parent.ID)
		if errors.Is(err, ErrDuplicate) {
			res.Skipped++
			if existing, ferr := s.docs.FindByHash(ctx, parent.Folder, contentHash(part)); ferr == nil &&
				existing.ParentID != nil && *existing.ParentID == parent.ID {
				ownChildren++
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Children = append(res.Children, *child)
	}

	// a parent whose every cut belongs to other documents stays uploaded
	if len(res.Children) == 0 && ownChildren == 0 {
		s.record(ctx, ActionSplitDocument, fmt.Sprintf("%s not split: all %d parts are duplicates of other documents", parent.Filename, res.Skipped))
		return res, nil
	}
	if err := s.transition(parent, model.StatusSplit); err != nil {
		return nil, err
	}
	if err := s.saveDocument(ctx, parent); err != nil {
		return nil, err
	}

	s.record(ctx, ActionSplitDocument, fmt.Sprintf("%s into %d documents (%d duplicates skipped)", parent.Filename, len(res.Children), res.Skipped))
	return res, nil
}
