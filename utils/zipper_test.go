package utils

import (
	"archive/zip"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDatasetArchive(t *testing.T) {
	dir := t.TempDir()
	entries := []ArchiveEntry{
		{Name: "annotations.json", Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(`{"images":[]}`)), nil
		}},
		{Name: "images/a.jpg", Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("jpeg-bytes")), nil
		}},
	}

	path, size, err := CreateDatasetArchive(dir, entries)
	require.NoError(t, err)
	defer os.Remove(path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), size)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	names := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		names[f.Name] = string(data)
	}
	assert.Equal(t, `{"images":[]}`, names["annotations.json"])
	assert.Equal(t, "jpeg-bytes", names["images/a.jpg"])
}
