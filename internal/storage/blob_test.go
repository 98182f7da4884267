package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreWriteRead(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := DocumentKey("case-1", "doc-1", ".pdf")

	n, err := store.Write(ctx, key, bytes.NewReader([]byte("hello pdf")))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	rc, err := store.Read(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello pdf", string(data))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, DocumentKey("case-1", "other", ".pdf"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStoreIdempotentRewrite(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := DocumentKey("case-1", "doc-1", ".jpg")

	_, err = store.Write(ctx, key, bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	_, err = store.Write(ctx, key, bytes.NewReader([]byte("content")))
	require.NoError(t, err)

	rc, err := store.Read(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "content", string(data))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write(context.Background(), "../escape", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "cases/cu/docs/du.pdf", DocumentKey("cu", "du", ".pdf"))
	assert.Equal(t, "cases/cu/reports/r1.pdf", ReportKey("cu", "r1"))
}
