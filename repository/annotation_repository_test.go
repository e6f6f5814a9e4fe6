package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/database"
	"github.com/jmestanza/tag-editor/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	return db
}

type fixture struct {
	dataset  models.Dataset
	category models.Category
	image    models.Image
}

func seedFixture(t *testing.T, db *gorm.DB, name string) fixture {
	t.Helper()
	f := fixture{dataset: models.Dataset{Name: name}}
	require.NoError(t, db.Create(&f.dataset).Error)
	f.category = models.Category{DatasetID: f.dataset.ID, CocoID: 1, Name: "person"}
	require.NoError(t, db.Create(&f.category).Error)
	f.image = models.Image{DatasetID: f.dataset.ID, CocoID: 1, FileName: "a.jpg"}
	require.NoError(t, db.Create(&f.image).Error)
	return f
}

func TestAnnotationCreateComputesDefaults(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db, "setA")
	repo := NewAnnotationRepository(db)

	ann := models.Annotation{
		DatasetID:  f.dataset.ID,
		ImageID:    f.image.ID,
		CategoryID: f.category.ID,
		BboxX:      1, BboxY: 2, BboxWidth: 10, BboxHeight: 5,
	}
	require.NoError(t, repo.Create(&ann))
	assert.Equal(t, float64(50), ann.Area, "area defaults to bbox width*height")
	assert.Equal(t, 1, ann.CocoID, "coco id is allocated sequentially per dataset")

	second := models.Annotation{
		DatasetID:  f.dataset.ID,
		ImageID:    f.image.ID,
		CategoryID: f.category.ID,
		BboxWidth:  1, BboxHeight: 1,
	}
	require.NoError(t, repo.Create(&second))
	assert.Equal(t, 2, second.CocoID)
}

func TestAnnotationCreateRejectsCrossDatasetReferences(t *testing.T) {
	db := newTestDB(t)
	a := seedFixture(t, db, "setA")
	b := seedFixture(t, db, "setB")
	repo := NewAnnotationRepository(db)

	err := repo.Create(&models.Annotation{
		DatasetID:  a.dataset.ID,
		ImageID:    a.image.ID,
		CategoryID: b.category.ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrossDatasetReference)

	err = repo.Create(&models.Annotation{
		DatasetID:  a.dataset.ID,
		ImageID:    b.image.ID,
		CategoryID: a.category.ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrossDatasetReference)
}

func TestAnnotationUpdateRevalidatesCategory(t *testing.T) {
	db := newTestDB(t)
	a := seedFixture(t, db, "setA")
	b := seedFixture(t, db, "setB")
	repo := NewAnnotationRepository(db)

	ann := models.Annotation{
		DatasetID: a.dataset.ID, ImageID: a.image.ID, CategoryID: a.category.ID,
		BboxWidth: 2, BboxHeight: 3,
	}
	require.NoError(t, repo.Create(&ann))

	err := repo.Update(ann.ID, nil, &b.category.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrossDatasetReference)

	bbox := [4]float64{5, 6, 7, 8}
	crowd := true
	require.NoError(t, repo.Update(ann.ID, &bbox, nil, &crowd))

	reloaded, err := repo.GetByID(ann.ID)
	require.NoError(t, err)
	assert.Equal(t, bbox, reloaded.Bbox())
	assert.Equal(t, float64(56), reloaded.Area, "bbox updates recompute the area")
	assert.True(t, reloaded.IsCrowd)
	require.NotNil(t, reloaded.Category, "GetByID preloads the category")
}

func TestAnnotationDelete(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db, "setA")
	repo := NewAnnotationRepository(db)

	ann := models.Annotation{DatasetID: f.dataset.ID, ImageID: f.image.ID, CategoryID: f.category.ID}
	require.NoError(t, repo.Create(&ann))
	require.NoError(t, repo.Delete(ann.ID))

	err := repo.Delete(ann.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCategoryDeleteRefusesWhileReferenced(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db, "setA")
	annotations := NewAnnotationRepository(db)
	categories := NewCategoryRepository(db)

	ann := models.Annotation{DatasetID: f.dataset.ID, ImageID: f.image.ID, CategoryID: f.category.ID}
	require.NoError(t, annotations.Create(&ann))

	err := categories.Delete(f.category.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCategoryInUse)

	require.NoError(t, annotations.Delete(ann.ID))
	assert.NoError(t, categories.Delete(f.category.ID))
}

func TestDatasetDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db, "setA")
	annotations := NewAnnotationRepository(db)
	datasets := NewDatasetRepository(db)

	ann := models.Annotation{DatasetID: f.dataset.ID, ImageID: f.image.ID, CategoryID: f.category.ID}
	require.NoError(t, annotations.Create(&ann))

	require.NoError(t, datasets.Delete(f.dataset.ID))

	var count int64
	require.NoError(t, db.Model(&models.Annotation{}).Where("dataset_id = ?", f.dataset.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Image{}).Where("dataset_id = ?", f.dataset.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Category{}).Where("dataset_id = ?", f.dataset.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, err := datasets.GetByID(f.dataset.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
