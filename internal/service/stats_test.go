package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/auth"
	"docflow/internal/model"
)

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.paymentGroup(t, "ACME", 100, model.FolderInvoice, model.FolderPaymentSupport)
	h.upload(t, model.FolderInvoice, "cp=B")
	res, err := h.svc.Consolidation.CreateAndGenerate(ctx, ids)
	require.NoError(t, err)
	_, err = h.svc.Batches.ReplaceDocumentFile(ctx, ids[0], h.file("cp=ACME;amt=100;v=2"))
	require.NoError(t, err)

	st, err := h.svc.Stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalDocuments)
	assert.Equal(t, 2, st.DocumentsByStatus[model.StatusBatched])
	assert.Equal(t, 1, st.DocumentsByStatus[model.StatusUploaded])
	assert.Equal(t, 0, st.DocumentsByStatus[model.StatusSplit])
	assert.Len(t, st.DocumentsByStatus, len(model.AllStatuses))
	assert.Equal(t, 1, st.TotalBatches)
	assert.Equal(t, 1, st.StaleBatches)
	assert.Equal(t, 1, st.TotalArtifacts)
	assert.NotNil(t, res.Artifact)
}

func TestAuditList_RecordsCaller(t *testing.T) {
	h := newHarness(t)
	ctx := auth.WithCaller(context.Background(), auth.Caller{UserID: "u7", Email: "ana@example.com", Role: auth.RoleOperator})

	_, err := h.svc.Documents.UploadMany(ctx, model.FolderInvoice, []FileInput{h.file("cp=A")})
	require.NoError(t, err)

	entries, err := h.svc.Audit.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionUploadDocuments, entries[0].Action)
	assert.Equal(t, "u7", entries[0].UserID)
	assert.Equal(t, "ana@example.com", entries[0].UserEmail)
	assert.Contains(t, entries[0].Details, "uploaded 1")
}
