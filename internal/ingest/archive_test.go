package ingest

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExpandArchivesSkipsMetadataEntries(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"__MACOSX/._statement.pdf": []byte("junk"),
		".DS_Store":                []byte("junk"),
		"statement.pdf":            []byte("%PDF-1.4 content"),
		"empty.pdf":                {},
	})

	leaves, rejected := ExpandArchives([]IncomingFile{{Name: "docs.zip", Data: archive}})

	require.Len(t, leaves, 1)
	assert.Equal(t, "statement.pdf", leaves[0].Name)
	assert.Empty(t, rejected)
}

func TestExpandArchivesNestedZip(t *testing.T) {
	inner := buildZip(t, map[string][]byte{"pan.jpg": []byte("jpegdata")})
	outer := buildZip(t, map[string][]byte{
		"inner.zip":   inner,
		"aadhaar.png": []byte("pngdata"),
	})

	leaves, rejected := ExpandArchives([]IncomingFile{{Name: "outer.zip", Data: outer}})

	require.Len(t, leaves, 2)
	names := []string{leaves[0].Name, leaves[1].Name}
	assert.ElementsMatch(t, []string{"pan.jpg", "aadhaar.png"}, names)
	assert.Empty(t, rejected)
}

func TestExpandArchivesCorruptZip(t *testing.T) {
	leaves, rejected := ExpandArchives([]IncomingFile{{Name: "bad.zip", Data: []byte("not a zip")}})

	assert.Empty(t, leaves)
	require.Len(t, rejected, 1)
	assert.Equal(t, "bad.zip", rejected[0].Filename)
}

func TestExpandArchivesPassesPlainFilesThrough(t *testing.T) {
	leaves, rejected := ExpandArchives([]IncomingFile{{Name: "pan.jpg", Data: []byte("jpeg")}})

	require.Len(t, leaves, 1)
	assert.Equal(t, "pan.jpg", leaves[0].Name)
	assert.Empty(t, rejected)
}
