package merge

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/database"
	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/models"
)

func newTestMerger(t *testing.T) (*Merger, *gorm.DB, media.Store, *ProgressTracker) {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "merge_test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	store, err := media.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	tracker := NewProgressTracker(time.Minute)
	t.Cleanup(tracker.Stop)

	return NewMerger(db, store, tracker, time.Minute), db, store, tracker
}

func seedDataset(t *testing.T, db *gorm.DB, name string) *models.Dataset {
	t.Helper()
	ds := &models.Dataset{Name: name}
	mustCreate(t, db, ds)
	return ds
}

func seedCategory(t *testing.T, db *gorm.DB, ds *models.Dataset, cocoID int, name string) *models.Category {
	t.Helper()
	cat := &models.Category{DatasetID: ds.ID, CocoID: cocoID, Name: name}
	mustCreate(t, db, cat)
	return cat
}

func seedImage(t *testing.T, db *gorm.DB, ds *models.Dataset, cocoID int, fileName string, filePath *string) *models.Image {
	t.Helper()
	img := &models.Image{DatasetID: ds.ID, CocoID: cocoID, FileName: fileName, Width: 640, Height: 480, FilePath: filePath}
	mustCreate(t, db, img)
	return img
}

func seedAnnotation(t *testing.T, db *gorm.DB, ds *models.Dataset, cocoID int, img *models.Image, cat *models.Category) *models.Annotation {
	t.Helper()
	ann := &models.Annotation{
		DatasetID: ds.ID, CocoID: cocoID, ImageID: img.ID, CategoryID: cat.ID,
		BboxX: 1, BboxY: 2, BboxWidth: 10, BboxHeight: 20, Area: 200,
	}
	mustCreate(t, db, ann)
	return ann
}

func loadTarget(t *testing.T, db *gorm.DB, id uint) (cats []models.Category, imgs []models.Image, anns []models.Annotation) {
	t.Helper()
	require.NoError(t, db.Where("dataset_id = ?", id).Order("coco_id").Find(&cats).Error)
	require.NoError(t, db.Where("dataset_id = ?", id).Order("coco_id").Find(&imgs).Error)
	require.NoError(t, db.Where("dataset_id = ?", id).Order("coco_id").Find(&anns).Error)
	return cats, imgs, anns
}

// seedPair creates two datasets sharing one category name+cocoID, each with
// one annotated image.
func seedPair(t *testing.T, db *gorm.DB) (a, b *models.Dataset) {
	a = seedDataset(t, db, "setA")
	b = seedDataset(t, db, "setB")
	catA := seedCategory(t, db, a, 1, "person")
	catB := seedCategory(t, db, b, 1, "person")
	imgA := seedImage(t, db, a, 1, "a.jpg", nil)
	imgB := seedImage(t, db, b, 1, "b.jpg", nil)
	seedAnnotation(t, db, a, 1, imgA, catA)
	seedAnnotation(t, db, b, 1, imgB, catB)
	return a, b
}

func TestMergeIntoNewDatasetMergesByName(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a, b := seedPair(t, db)

	result, err := merger.Run("run-new", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "merged",
		CategoryStrategy: CategoryMergeByName,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotZero(t, result.DatasetID)

	cats, imgs, anns := loadTarget(t, db, result.DatasetID)
	require.Len(t, cats, 1, "one shared name maps to a single target category")
	assert.Equal(t, "person", cats[0].Name)
	assert.Equal(t, 1, cats[0].CocoID)

	require.Len(t, imgs, 2)
	assert.Equal(t, 1, imgs[0].CocoID, "target images get fresh sequential ids")
	assert.Equal(t, 2, imgs[1].CocoID)

	require.Len(t, anns, 2)
	imageIDs := map[uint]bool{imgs[0].ID: true, imgs[1].ID: true}
	for _, ann := range anns {
		assert.Equal(t, result.DatasetID, ann.DatasetID)
		assert.Equal(t, cats[0].ID, ann.CategoryID, "annotations are re-parented onto target categories")
		assert.True(t, imageIDs[ann.ImageID], "annotations reference target images only")
	}

	assert.Equal(t, 2, result.Statistics.CategoriesProcessed)
	assert.Equal(t, 1, result.Statistics.CategoriesCreated)
	assert.Equal(t, 2, result.Statistics.ImagesProcessed)
	assert.Equal(t, 0, result.Statistics.ImagesSkipped)
	assert.Equal(t, 2, result.Statistics.AnnotationsCopied)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.AnnotationErrors)

	// sources are untouched
	srcCats, srcImgs, srcAnns := loadTarget(t, db, a.ID)
	assert.Len(t, srcCats, 1)
	assert.Len(t, srcImgs, 1)
	assert.Len(t, srcAnns, 1)
}

func TestMergeValidation(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")

	_, err := merger.Run("run-v1", Request{SourceDatasetIDs: []uint{a.ID}, NewDatasetName: "x"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err), "fewer than 2 sources is a validation error")

	b := seedDataset(t, db, "setB")
	_, err = merger.Run("run-v2", Request{SourceDatasetIDs: []uint{a.ID, b.ID}})
	require.Error(t, err)
	assert.True(t, IsValidationError(err), "a name is required when no target dataset is given")

	_, err = merger.Run("run-v3", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "x",
		CategoryStrategy: CategoryMergeStrategy("bogus"),
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = merger.Run("run-v4", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "x",
		Decisions:        []MappingDecision{{ConflictIndex: -1, Action: ActionMerge}},
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestMergeSkipDuplicatesExcludesAnnotations(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")
	b := seedDataset(t, db, "setB")
	catA := seedCategory(t, db, a, 1, "person")
	catB := seedCategory(t, db, b, 1, "person")
	imgA := seedImage(t, db, a, 1, "shared.jpg", nil)
	imgB := seedImage(t, db, b, 1, "shared.jpg", nil)
	seedAnnotation(t, db, a, 1, imgA, catA)
	seedAnnotation(t, db, b, 1, imgB, catB)
	seedAnnotation(t, db, b, 2, imgB, catB)

	result, err := merger.Run("run-skip", Request{
		SourceDatasetIDs:  []uint{a.ID, b.ID},
		NewDatasetName:    "merged",
		DuplicateStrategy: DuplicateSkip,
	})
	require.NoError(t, err)

	_, imgs, anns := loadTarget(t, db, result.DatasetID)
	require.Len(t, imgs, 1, "skip keeps only the first occurrence")
	assert.Len(t, anns, 1, "annotations of skipped images are not copied")

	assert.Equal(t, 1, result.Statistics.ImagesProcessed)
	assert.Equal(t, 1, result.Statistics.ImagesSkipped)
	assert.Equal(t, 1, result.Statistics.DuplicateImagesFound)
	require.Len(t, result.DuplicateWarnings, 1)
	assert.Equal(t, "setA", result.DuplicateWarnings[0].SelectedDataset)
}

func TestMergeRenameDuplicatesKeepsAll(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")
	b := seedDataset(t, db, "setB")
	seedCategory(t, db, a, 1, "person")
	seedCategory(t, db, b, 1, "person")
	seedImage(t, db, a, 1, "shared.jpg", nil)
	seedImage(t, db, b, 1, "shared.jpg", nil)

	result, err := merger.Run("run-rename", Request{
		SourceDatasetIDs:  []uint{a.ID, b.ID},
		NewDatasetName:    "merged",
		DuplicateStrategy: DuplicateRename,
	})
	require.NoError(t, err)

	_, imgs, _ := loadTarget(t, db, result.DatasetID)
	require.Len(t, imgs, 2)
	names := []string{imgs[0].FileName, imgs[1].FileName}
	assert.Contains(t, names, "shared.jpg")
	assert.Contains(t, names, "shared_setB.jpg")
	assert.Equal(t, 0, result.Statistics.ImagesSkipped)
}

func TestMergeKeepBestAnnotated(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")
	b := seedDataset(t, db, "setB")
	catA := seedCategory(t, db, a, 1, "person")
	catB := seedCategory(t, db, b, 1, "person")
	imgA := seedImage(t, db, a, 1, "shared.jpg", nil)
	imgB := seedImage(t, db, b, 1, "shared.jpg", nil)
	seedAnnotation(t, db, a, 1, imgA, catA)
	seedAnnotation(t, db, b, 1, imgB, catB)
	seedAnnotation(t, db, b, 2, imgB, catB)

	result, err := merger.Run("run-best", Request{
		SourceDatasetIDs:  []uint{a.ID, b.ID},
		NewDatasetName:    "merged",
		DuplicateStrategy: DuplicateKeepBestAnnotated,
	})
	require.NoError(t, err)

	_, imgs, anns := loadTarget(t, db, result.DatasetID)
	require.Len(t, imgs, 1)
	assert.Len(t, anns, 2, "the more annotated occurrence survives")
	require.Len(t, result.DuplicateWarnings, 1)
	assert.Equal(t, "setB", result.DuplicateWarnings[0].SelectedDataset)
}

func TestMergeCreatesPlaceholderForForeignCategory(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")
	b := seedDataset(t, db, "setB")
	other := seedDataset(t, db, "unrelated")

	seedCategory(t, db, a, 1, "person")
	seedCategory(t, db, b, 1, "person")
	foreign := seedCategory(t, db, other, 1, "alien")

	imgA := seedImage(t, db, a, 1, "a.jpg", nil)
	seedImage(t, db, b, 1, "b.jpg", nil)
	// references a category owned by a dataset outside the merge
	seedAnnotation(t, db, a, 1, imgA, foreign)

	result, err := merger.Run("run-orphan", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "merged",
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	cats, _, anns := loadTarget(t, db, result.DatasetID)
	var placeholder *models.Category
	for i := range cats {
		if strings.HasPrefix(cats[i].Name, "[MISSING]_setA_CategoryID_") {
			placeholder = &cats[i]
		}
	}
	require.NotNil(t, placeholder, "unresolvable references synthesize a marked placeholder")
	require.Len(t, anns, 1)
	assert.Equal(t, placeholder.ID, anns[0].CategoryID, "the annotation is preserved, not dropped")
	assert.Equal(t, 1, result.Statistics.AnnotationsCopied)
	assert.Equal(t, 0, result.Statistics.AnnotationsSkipped)
}

func TestMergeIntoExistingTargetReusesCategories(t *testing.T) {
	merger, db, _, _ := newTestMerger(t)
	a, b := seedPair(t, db)

	target := seedDataset(t, db, "existing")
	existingCat := seedCategory(t, db, target, 1, "person")
	existingImg := seedImage(t, db, target, 1, "old.jpg", nil)
	seedAnnotation(t, db, target, 1, existingImg, existingCat)

	result, err := merger.Run("run-existing", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		TargetDatasetID:  &target.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, target.ID, result.DatasetID)
	assert.Equal(t, 0, result.Statistics.CategoriesCreated, "the existing category is reused by name")

	cats, imgs, anns := loadTarget(t, db, target.ID)
	require.Len(t, cats, 1)
	require.Len(t, imgs, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{imgs[0].CocoID, imgs[1].CocoID, imgs[2].CocoID},
		"new image ids continue after the target's existing maximum")
	assert.Len(t, anns, 3)

	seenCocoIDs := map[int]bool{}
	for _, c := range cats {
		assert.False(t, seenCocoIDs[c.CocoID], "target category coco ids stay unique")
		seenCocoIDs[c.CocoID] = true
	}
}

func TestMergeCopiesBinaryAssets(t *testing.T) {
	merger, db, store, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")
	b := seedDataset(t, db, "setB")
	seedCategory(t, db, a, 1, "person")
	seedCategory(t, db, b, 1, "person")

	srcKey := media.ImageKey(a.ID, "a.jpg")
	_, err := store.Save(srcKey, strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	seedImage(t, db, a, 1, "a.jpg", &srcKey)
	seedImage(t, db, b, 1, "b.jpg", nil)

	result, err := merger.Run("run-copy", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "merged",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Statistics.ImagesCopied)
	assert.Equal(t, 0, result.Statistics.ImageCopyFailures)
	assert.Empty(t, result.CopyErrors)

	dstKey := media.ImageKey(result.DatasetID, "a.jpg")
	exists, err := store.Exists(dstKey)
	require.NoError(t, err)
	assert.True(t, exists, "the binary asset is copied under the target's key")

	_, imgs, _ := loadTarget(t, db, result.DatasetID)
	for _, img := range imgs {
		if img.FileName == "a.jpg" {
			require.NotNil(t, img.FilePath)
			assert.Equal(t, dstKey, *img.FilePath)
		} else {
			assert.Nil(t, img.FilePath, "images without a stored asset keep a NULL key")
		}
	}
}

func TestMergeCopiesThumbnails(t *testing.T) {
	merger, db, store, _ := newTestMerger(t)
	a := seedDataset(t, db, "setA")
	b := seedDataset(t, db, "setB")
	seedCategory(t, db, a, 1, "person")
	seedCategory(t, db, b, 1, "person")

	thumbKey := media.ThumbnailKey(a.ID, "a.jpg")
	_, err := store.Save(thumbKey, strings.NewReader("thumb-bytes"))
	require.NoError(t, err)
	mustCreate(t, db, &models.Image{DatasetID: a.ID, CocoID: 1, FileName: "a.jpg", Width: 640, Height: 480, ThumbnailPath: &thumbKey})

	// record points at a thumbnail the store never received
	ghostKey := media.ThumbnailKey(b.ID, "b.jpg")
	mustCreate(t, db, &models.Image{DatasetID: b.ID, CocoID: 1, FileName: "b.jpg", Width: 640, Height: 480, ThumbnailPath: &ghostKey})

	result, err := merger.Run("run-thumbs", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "merged",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Statistics.ThumbnailsCopied)
	assert.Equal(t, 0, result.Statistics.ThumbnailsFailed)
	assert.Empty(t, result.CopyErrors)

	dstKey := media.ThumbnailKey(result.DatasetID, "a.jpg")
	exists, err := store.Exists(dstKey)
	require.NoError(t, err)
	assert.True(t, exists, "the thumbnail is copied under the target's key")

	_, imgs, _ := loadTarget(t, db, result.DatasetID)
	for _, img := range imgs {
		if img.FileName == "a.jpg" {
			require.NotNil(t, img.ThumbnailPath)
			assert.Equal(t, dstKey, *img.ThumbnailPath)
		} else {
			assert.Nil(t, img.ThumbnailPath, "a key with no object behind it is not carried over")
		}
	}
}

func TestMergeRegistersRunBeforeLoading(t *testing.T) {
	merger, db, _, tracker := newTestMerger(t)
	a, b := seedPair(t, db)

	var events []RunProgress
	tracker.Notify = func(p RunProgress) { events = append(events, p) }

	_, err := merger.Run("run-early", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "merged",
	})
	require.NoError(t, err)

	// the first snapshot is the provisional registration, published before
	// the sources are read, so early polls resolve the run id
	require.NotEmpty(t, events)
	assert.Equal(t, 0, events[0].Current)
	assert.Equal(t, 1, events[0].Total)
	assert.False(t, events[0].Completed)

	loadingIdx, loadedIdx := -1, -1
	for i, e := range events {
		if loadingIdx == -1 && e.CurrentOperation == "loading source datasets" {
			loadingIdx = i
		}
		if loadedIdx == -1 && e.CurrentOperation == "loaded source datasets" {
			loadedIdx = i
		}
	}
	require.NotEqual(t, -1, loadingIdx)
	require.NotEqual(t, -1, loadedIdx)
	assert.Less(t, loadingIdx, loadedIdx)
}

func TestMergeProgressLifecycle(t *testing.T) {
	merger, db, _, tracker := newTestMerger(t)
	a, b := seedPair(t, db)

	result, err := merger.Run("run-progress", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		NewDatasetName:   "merged",
	})
	require.NoError(t, err)

	p, ok := tracker.Get("run-progress")
	require.True(t, ok)
	assert.True(t, p.Completed)
	assert.True(t, p.Success)
	assert.InDelta(t, 100.0, p.Percentage, 0.001)
	require.NotNil(t, p.Result)
	assert.Equal(t, result.DatasetID, p.Result.DatasetID)
}

func TestMergeFailureMarksProgressFailed(t *testing.T) {
	merger, db, _, tracker := newTestMerger(t)
	a, b := seedPair(t, db)

	missing := uint(9999)
	_, err := merger.Run("run-fail", Request{
		SourceDatasetIDs: []uint{a.ID, b.ID},
		TargetDatasetID:  &missing,
	})
	require.Error(t, err)

	p, ok := tracker.Get("run-fail")
	require.True(t, ok)
	assert.True(t, p.Completed)
	assert.False(t, p.Success)
	assert.NotEmpty(t, p.Error)

	var count int64
	require.NoError(t, db.Model(&models.Dataset{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "a failed run leaves no partial target dataset behind")
}
