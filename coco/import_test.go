package coco

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/database"
	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	return db
}

const sampleJSON = `{
	"images": [
		{"id": 1, "file_name": "a.jpg", "width": 640, "height": 480},
		{"id": 2, "file_name": "b.jpg", "width": 800, "height": 600}
	],
	"categories": [
		{"id": 1, "name": "person", "supercategory": "human"},
		{"id": 2, "name": "car"}
	],
	"annotations": [
		{"id": 1, "image_id": 1, "category_id": 1, "bbox": [10, 20, 30, 40], "area": 1200, "iscrowd": 0},
		{"id": 2, "image_id": 2, "category_id": 2, "bbox": [1, 2, 3, 4], "iscrowd": 1},
		{"id": 3, "image_id": 99, "category_id": 1, "bbox": [0, 0, 1, 1]}
	]
}`

func TestParseRejectsMalformedFiles(t *testing.T) {
	_, err := Parse(strings.NewReader("not json"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(`{"images": [], "categories": [{"id":1,"name":"x"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no images")

	_, err = Parse(strings.NewReader(`{"images": [{"id":1,"file_name":"a.jpg"}], "categories": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no categories")

	_, err = Parse(strings.NewReader(`{
		"images": [{"id":1,"file_name":"a.jpg"}],
		"categories": [{"id":1,"name":"x"}],
		"annotations": [{"id":1,"image_id":1,"category_id":1,"bbox":[1,2]}]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bbox")
}

func TestImportCreatesAllRecords(t *testing.T) {
	db := newTestDB(t)
	file, err := Parse(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	result, err := Import(db, "sample", "a test set", file)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ImagesCreated)
	assert.Equal(t, 2, result.CategoriesCreated)
	assert.Equal(t, 2, result.AnnotationsCreated)
	require.Len(t, result.SkippedAnnotations, 1, "the annotation referencing image 99 is skipped")
	assert.Contains(t, result.SkippedAnnotations[0], "unknown image 99")

	ds, err := repository.NewDatasetRepository(db).GetWithContents(result.Dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, "sample", ds.Name)
	require.NotNil(t, ds.Description)
	assert.Equal(t, "a test set", *ds.Description)

	require.Len(t, ds.Categories, 2)
	require.NotNil(t, ds.Categories[0].Supercategory)
	assert.Equal(t, "human", *ds.Categories[0].Supercategory)
	assert.Nil(t, ds.Categories[1].Supercategory)

	require.Len(t, ds.Images, 2)
	for _, img := range ds.Images {
		assert.Nil(t, img.FilePath, "JSON-only imports store no binaries")
	}

	var anns []models.Annotation
	require.NoError(t, db.Where("dataset_id = ?", ds.ID).Order("coco_id").Find(&anns).Error)
	require.Len(t, anns, 2)
	assert.Equal(t, [4]float64{10, 20, 30, 40}, anns[0].Bbox())
	assert.Equal(t, float64(1200), anns[0].Area)
	assert.False(t, anns[0].IsCrowd)
	assert.Equal(t, float64(12), anns[1].Area, "missing area falls back to bbox width*height")
	assert.True(t, anns[1].IsCrowd)
}

func TestImportDuplicateNameFails(t *testing.T) {
	db := newTestDB(t)
	file, err := Parse(strings.NewReader(sampleJSON))
	require.NoError(t, err)

	_, err = Import(db, "sample", "", file)
	require.NoError(t, err)
	_, err = Import(db, "sample", "", file)
	assert.Error(t, err, "dataset names are unique")
}

func buildArchive(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func TestImportArchiveStoresBinaries(t *testing.T) {
	db := newTestDB(t)
	store, err := media.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	zr := buildArchive(t, map[string]string{
		"annotations/instances.json": sampleJSON,
		"images/a.jpg":               "jpeg-bytes-a",
		// b.jpg intentionally absent from the archive
	})

	result, err := ImportArchive(db, store, "archived", "", zr)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AssetsStored)

	var images []models.Image
	require.NoError(t, db.Where("dataset_id = ?", result.Dataset.ID).Order("coco_id").Find(&images).Error)
	require.Len(t, images, 2)

	require.NotNil(t, images[0].FilePath)
	assert.Equal(t, media.ImageKey(result.Dataset.ID, "a.jpg"), *images[0].FilePath)
	exists, err := store.Exists(*images[0].FilePath)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Nil(t, images[1].FilePath, "images without a matching binary keep a NULL key")
}

func TestImportArchiveWithoutJSON(t *testing.T) {
	db := newTestDB(t)
	store, err := media.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	zr := buildArchive(t, map[string]string{"images/a.jpg": "jpeg-bytes"})
	_, err = ImportArchive(db, store, "broken", "", zr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no COCO JSON")
}
