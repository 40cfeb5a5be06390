package storage

import (
	"context"
	"testing"

	"docflow/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutBytesReadAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	info, err := PutBytes(ctx, m, "documents/factura/a.pdf", []byte("%PDF-1.7"), "application/pdf",
		map[string]string{"original-filename": "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.True(t, m.Has("documents/factura/a.pdf"))

	got, err := ReadAll(ctx, m, "documents/factura/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), got)

	_, info, err = m.Get(ctx, "documents/factura/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", info.Metadata["original-filename"])
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := PutBytes(ctx, m, "k", []byte("x"), "application/pdf", nil)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "k"))
	assert.False(t, m.Has("k"))
	assert.NoError(t, m.Delete(ctx, "k"))

	_, err = ReadAll(ctx, m, "k")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemory_PresignGet(t *testing.T) {
	url, err := NewMemory().PresignGet(context.Background(), "artifacts/b1.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "memory://artifacts/b1.pdf", url)
}

func TestCheckMinIOConfig(t *testing.T) {
	valid := config.MinIOConfig{Endpoint: "minio:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "docflow"}
	assert.NoError(t, checkMinIOConfig(valid))

	tests := []struct {
		name   string
		mutate func(*config.MinIOConfig)
		want   string
	}{
		{"endpoint", func(c *config.MinIOConfig) { c.Endpoint = "" }, "endpoint"},
		{"secret", func(c *config.MinIOConfig) { c.SecretKey = "" }, "credentials"},
		{"bucket", func(c *config.MinIOConfig) { c.Bucket = "" }, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorContains(t, checkMinIOConfig(cfg), tt.want)
		})
	}
}

func TestNewGCS_RequiresBucket(t *testing.T) {
	_, err := NewGCS(context.Background(), config.GCSConfig{})
	assert.ErrorContains(t, err, "bucket is required")
}
