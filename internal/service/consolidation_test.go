package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/model"
)

func TestGenerate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.paymentGroup(t, "ACME S.A.S.", 150000, allFolders...)
	b, err := h.svc.Batches.CreateBatch(ctx, ids)
	require.NoError(t, err)

	a, err := h.svc.Consolidation.Generate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, a.BatchID)
	assert.True(t, h.objects.Has(a.StorageKey))
	assert.Regexp(t, `^comprobante_egreso-\d+_ACME_S_A_S\.pdf$`, a.Filename)

	stored := h.batch(t, b.ID)
	assert.Equal(t, model.BatchReady, stored.Status)
	require.NotNil(t, stored.ArtifactID)
	assert.Equal(t, a.ID, *stored.ArtifactID)
	assert.False(t, stored.NeedsRegeneration)

	// voucher, payable, support, invoice
	merged := h.engine.lastMerge()
	require.Len(t, merged, 4)
	assert.Equal(t, h.doc(t, ids[3]).Filename, merged[0])
	assert.Equal(t, h.doc(t, ids[2]).Filename, merged[1])
	assert.Equal(t, h.doc(t, ids[1]).Filename, merged[2])
	assert.Equal(t, h.doc(t, ids[0]).Filename, merged[3])

	_, err = h.svc.Consolidation.Generate(ctx, b.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, h.actions(t), ActionGeneratePDF)
}

func TestGenerate_RenderFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPaymentSupport)
	b, err := h.svc.Batches.CreateBatch(ctx, ids)
	require.NoError(t, err)

	h.engine.mergeErr = errors.New("broken xref")
	_, err = h.svc.Consolidation.Generate(ctx, b.ID)
	require.ErrorIs(t, err, ErrRender)

	stored := h.batch(t, b.ID)
	assert.Equal(t, model.BatchCreated, stored.Status)
	assert.Nil(t, stored.ArtifactID)
	artifacts, err := h.svc.Consolidation.ListArtifacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	h.engine.mergeErr = nil
	_, err = h.svc.Consolidation.Generate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchReady, h.batch(t, b.ID).Status)
}

func TestRegenerate_AfterReplace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPaymentSupport)
	b, err := h.svc.Batches.CreateBatch(ctx, ids)
	require.NoError(t, err)
	first, err := h.svc.Consolidation.Generate(ctx, b.ID)
	require.NoError(t, err)

	_, err = h.svc.Batches.ReplaceDocumentFile(ctx, ids[1], h.file("cp=ACME;amt=100;v=2"))
	require.NoError(t, err)
	stale := h.batch(t, b.ID)
	assert.True(t, stale.NeedsRegeneration)
	assert.Equal(t, model.BatchReady, stale.Status)
	assert.Equal(t, first.ID, *stale.ArtifactID)

	second, err := h.svc.Consolidation.Regenerate(ctx, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	fresh := h.batch(t, b.ID)
	assert.False(t, fresh.NeedsRegeneration)
	assert.Equal(t, second.ID, *fresh.ArtifactID)
	assert.False(t, h.objects.Has(first.StorageKey))
	_, err = h.svc.Consolidation.Details(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// a clean batch may be rebuilt on demand
	third, err := h.svc.Consolidation.Regenerate(ctx, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, second.ID, third.ID)
}

func TestRegenerate_FailureKeepsPreviousArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPaymentSupport)
	b, err := h.svc.Batches.CreateBatch(ctx, ids)
	require.NoError(t, err)
	first, err := h.svc.Consolidation.Generate(ctx, b.ID)
	require.NoError(t, err)

	h.engine.mergeErr = errors.New("boom")
	_, err = h.svc.Consolidation.Regenerate(ctx, b.ID)
	require.ErrorIs(t, err, ErrRender)

	stored := h.batch(t, b.ID)
	assert.Equal(t, model.BatchReady, stored.Status)
	assert.Equal(t, first.ID, *stored.ArtifactID)
	assert.True(t, h.objects.Has(first.StorageKey))
}

func TestCreateAndGenerate(t *testing.T) {
	h := newHarness(t)
	ids := h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPaymentSupport)

	res, err := h.svc.Consolidation.CreateAndGenerate(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, model.BatchReady, res.Batch.Status)
	assert.Equal(t, res.Artifact.ID, *res.Batch.ArtifactID)
}

func TestCreateAndGenerate_ThreeFoldersMergeInCanonicalOrder(t *testing.T) {
	h := newHarness(t)
	ids := h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPayableAccount, model.FolderDisbursementVoucher)

	_, err := h.svc.Consolidation.CreateAndGenerate(context.Background(), ids)
	require.NoError(t, err)

	// voucher, payable, invoice
	assert.Equal(t, []string{
		h.doc(t, ids[2]).Filename,
		h.doc(t, ids[1]).Filename,
		h.doc(t, ids[0]).Filename,
	}, h.engine.lastMerge())
}

func TestCreateBatchFromSuggestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPaymentSupport)

	sgs, err := h.svc.Correlation.SuggestBatches(ctx)
	require.NoError(t, err)
	require.Len(t, sgs, 1)

	res, err := h.svc.Consolidation.CreateBatchFromSuggestion(ctx, sgs[0])
	require.NoError(t, err)
	assert.Equal(t, sgs[0].DocumentIDs, res.Batch.DocumentIDs)

	// the same suggestion is now stale
	_, err = h.svc.Consolidation.CreateBatchFromSuggestion(ctx, sgs[0])
	assert.ErrorIs(t, err, ErrConflict)

	_, err = h.svc.Consolidation.CreateBatchFromSuggestion(ctx, model.Suggestion{DocumentIDs: []string{"only-one"}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDownloadAndDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.paymentGroup(t, "ACME", 150000, model.FolderDisbursementVoucher, model.FolderInvoice)
	res, err := h.svc.Consolidation.CreateAndGenerate(ctx, ids)
	require.NoError(t, err)

	a, rc, err := h.svc.Consolidation.Download(ctx, res.Artifact.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, res.Artifact.ID, a.ID)
	assert.Contains(t, string(body), "%PDF")
	assert.Contains(t, h.actions(t), ActionDownloadPDF)

	det, err := h.svc.Consolidation.Details(ctx, res.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACME", det.Summary.Counterparty)
	assert.Equal(t, int64(300000), det.Summary.TotalAmount)
	assert.Equal(t, 2, det.Summary.Count)
	assert.Len(t, det.Documents, 2)

	_, _, err = h.svc.Consolidation.Download(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArtifactFilename(t *testing.T) {
	str := func(s string) *string { return &s }
	voucher := model.Document{Folder: model.FolderDisbursementVoucher}
	voucher.DocumentNumber = str("CE-0042")
	voucher.Counterparty = str("Ferretería El Tornillo S.A.S.")
	invoice := model.Document{Folder: model.FolderInvoice}
	invoice.Counterparty = str("Tornillo SAS")

	assert.Equal(t, "CE-0042_Ferreter_a_El_Tornillo_S_A_S.pdf", ArtifactFilename("b1", []model.Document{invoice, voucher}))
	assert.Equal(t, "consolidado_b1.pdf", ArtifactFilename("b1", []model.Document{invoice}))

	noName := voucher
	noName.Counterparty = nil
	assert.Equal(t, "CE-0042_Tornillo_SAS.pdf", ArtifactFilename("b1", []model.Document{noName, invoice}))
	assert.Equal(t, "CE-0042.pdf", ArtifactFilename("b1", []model.Document{noName}))
}
