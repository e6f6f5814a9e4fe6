package merge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
)

const (
	// copyConcurrency bounds the fan-out of object-store copy operations
	copyConcurrency = 5
	// setupSteps is the fixed unit count added to the progress total for
	// loading, target preparation, category mapping and asset copying
	setupSteps = 4
)

// ValidationError marks a request rejected before any side effect.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a request validation failure
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// copyOp is one queued object-store copy.
type copyOp struct {
	srcKey    string
	dstKey    string
	thumbnail bool
}

// Merger drives the end-to-end dataset merge: target selection, category
// mapping, duplicate resolution, record creation, asset copying and
// statistics aggregation. Record creation runs in one GORM transaction;
// object-store copies are NOT covered by it, so a rolled-back merge can
// leave already-copied objects behind (an accepted, documented window).
type Merger struct {
	db        *gorm.DB
	store     media.Store
	progress  *ProgressTracker
	txTimeout time.Duration
}

// NewMerger creates a merge orchestrator. txTimeout should be generous
// (minutes, not seconds): large merges create thousands of rows in one
// transaction.
func NewMerger(db *gorm.DB, store media.Store, progress *ProgressTracker, txTimeout time.Duration) *Merger {
	return &Merger{db: db, store: store, progress: progress, txTimeout: txTimeout}
}

// Validate checks the request shape and normalizes empty strategies to
// their defaults. It performs no reads or writes.
func (m *Merger) Validate(req *Request) error {
	if len(req.SourceDatasetIDs) < 2 {
		return validationErrorf("at least 2 source datasets are required, got %d", len(req.SourceDatasetIDs))
	}
	if req.TargetDatasetID == nil && req.NewDatasetName == "" {
		return validationErrorf("new_dataset_name is required when no target dataset is given")
	}

	if req.CategoryStrategy == "" {
		req.CategoryStrategy = CategoryMergeByName
	} else if _, err := ParseCategoryMergeStrategy(string(req.CategoryStrategy)); err != nil {
		return validationErrorf("%v", err)
	}

	if req.DuplicateStrategy == "" {
		req.DuplicateStrategy = DuplicateSkip
	} else if _, err := ParseDuplicateImageStrategy(string(req.DuplicateStrategy)); err != nil {
		return validationErrorf("%v", err)
	}

	for _, d := range req.Decisions {
		if _, err := ParseDecisionAction(string(d.Action)); err != nil {
			return validationErrorf("decision for conflict %d: %v", d.ConflictIndex, err)
		}
		if d.ConflictIndex < 0 {
			return validationErrorf("decision conflict index must not be negative, got %d", d.ConflictIndex)
		}
	}
	return nil
}

// Analyze performs the pre-flight conflict analysis for a prospective merge.
func (m *Merger) Analyze(sourceIDs []uint, targetID *uint, strategy CategoryMergeStrategy) (*AnalysisResult, []*SourceDataset, error) {
	if strategy == "" {
		strategy = CategoryMergeByName
	}
	datasets := repository.NewDatasetRepository(m.db)
	sources, err := LoadSources(datasets, sourceIDs)
	if err != nil {
		return nil, nil, err
	}
	var target *SourceDataset
	if targetID != nil {
		loaded, err := LoadSources(datasets, []uint{*targetID})
		if err != nil {
			return nil, nil, err
		}
		target = loaded[0]
	}
	return AnalyzeConflicts(sources, target, strategy), sources, nil
}

// Run executes one merge. Progress is reported under runID; the returned
// Result is also published through the progress tracker on completion.
// Sources are never mutated.
func (m *Merger) Run(runID string, req Request) (*Result, error) {
	// register the run before any loading so a poll issued right after the
	// accepted response finds it instead of run_not_found; the provisional
	// total is replaced once the sources are counted
	m.progress.Start(runID, 1)
	m.progress.Advance(runID, 0, "loading source datasets")

	if err := m.Validate(&req); err != nil {
		m.progress.Fail(runID, err)
		return nil, err
	}

	sources, err := LoadSources(repository.NewDatasetRepository(m.db), req.SourceDatasetIDs)
	if err != nil {
		m.progress.Fail(runID, err)
		return nil, err
	}

	// precompute the progress total so the percentage stays stable
	total := setupSteps
	categoryCount := 0
	for _, src := range sources {
		categoryCount += len(src.Categories)
		total += len(src.Categories) + len(src.Images) + src.AnnotationTotal
	}
	m.progress.SetTotal(runID, total)
	m.progress.Advance(runID, 1, "loaded source datasets")

	result := &Result{
		DuplicateWarnings: []DuplicateWarning{},
		Errors:            []string{},
		CopyErrors:        []string{},
		AnnotationErrors:  []string{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.txTimeout)
	defer cancel()

	txErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return m.runInTransaction(tx, runID, req, sources, categoryCount, result)
	})
	if txErr != nil {
		// the record-store portion rolled back; object copies already issued
		// are not reconciled
		m.progress.Fail(runID, txErr)
		return nil, fmt.Errorf("merge transaction failed: %w", txErr)
	}

	result.Success = true
	m.progress.Complete(runID, result)
	log.Printf("merge: run %s committed into dataset %d (%d images, %d annotations, %d categories created)",
		runID, result.DatasetID, result.Statistics.ImagesProcessed, result.Statistics.AnnotationsCopied, result.Statistics.CategoriesCreated)
	return result, nil
}

func (m *Merger) runInTransaction(tx *gorm.DB, runID string, req Request, sources []*SourceDataset, categoryCount int, result *Result) error {
	datasets := repository.NewDatasetRepository(tx)
	categories := repository.NewCategoryRepository(tx)

	// create or select the target dataset
	var targetDataset *models.Dataset
	var targetLoaded *SourceDataset
	if req.TargetDatasetID != nil {
		loaded, err := LoadSources(datasets, []uint{*req.TargetDatasetID})
		if err != nil {
			return err
		}
		targetLoaded = loaded[0]
		targetDataset = &targetLoaded.Dataset
	} else {
		targetDataset = &models.Dataset{Name: req.NewDatasetName}
		if req.NewDescription != "" {
			targetDataset.Description = &req.NewDescription
		}
		if err := datasets.Create(targetDataset); err != nil {
			return err
		}
	}
	result.DatasetID = targetDataset.ID
	m.progress.Advance(runID, 1, "prepared target dataset")

	// category mapping
	mapper := NewCategoryMapper(categories, targetDataset.ID, req.CategoryStrategy, req.Decisions)
	if err := mapper.Build(sources, targetLoaded); err != nil {
		return err
	}
	result.Statistics.CategoriesProcessed = mapper.Processed()
	m.progress.Advance(runID, categoryCount+1, "mapped categories")

	// duplicate image resolution
	survivors, warnings, err := ResolveDuplicateImages(sources, req.DuplicateStrategy)
	if err != nil {
		return err
	}
	result.DuplicateWarnings = warnings
	result.Statistics.DuplicateImagesFound = len(warnings)

	totalSourceImages := 0
	for _, src := range sources {
		totalSourceImages += len(src.Images)
	}
	result.Statistics.ImagesSkipped = totalSourceImages - len(survivors)

	nextImageCocoID, err := nextCocoID(tx, &models.Image{}, targetDataset.ID)
	if err != nil {
		return err
	}
	nextAnnotationCocoID, err := nextCocoID(tx, &models.Annotation{}, targetDataset.ID)
	if err != nil {
		return err
	}

	var copies []copyOp
	now := time.Now().Unix()

	for _, survivor := range survivors {
		srcImage := &survivor.Source.Images[survivor.ImageIndex]

		newImage := models.Image{
			DatasetID: targetDataset.ID,
			CocoID:    nextImageCocoID,
			FileName:  survivor.FinalFileName,
			Width:     srcImage.Width,
			Height:    srcImage.Height,
			CreatedAt: now,
			UpdatedAt: now,
		}
		nextImageCocoID++

		if srcImage.FilePath != nil {
			dstKey := media.ImageKey(targetDataset.ID, survivor.FinalFileName)
			newImage.FilePath = &dstKey
			copies = append(copies, copyOp{srcKey: *srcImage.FilePath, dstKey: dstKey})
		}
		if srcImage.ThumbnailPath != nil {
			// confirm presence rather than trusting the record
			present, existsErr := m.store.Exists(*srcImage.ThumbnailPath)
			if existsErr != nil {
				result.CopyErrors = append(result.CopyErrors, fmt.Sprintf("thumbnail check failed for %s: %v", *srcImage.ThumbnailPath, existsErr))
			} else if present {
				dstKey := media.ThumbnailKey(targetDataset.ID, survivor.FinalFileName)
				newImage.ThumbnailPath = &dstKey
				copies = append(copies, copyOp{srcKey: *srcImage.ThumbnailPath, dstKey: dstKey, thumbnail: true})
			}
		}

		if err := tx.Create(&newImage).Error; err != nil {
			return fmt.Errorf("failed to create target image %q: %w", survivor.FinalFileName, err)
		}
		result.Statistics.ImagesProcessed++

		// re-parent this image's annotations through the category map
		var newAnnotations []models.Annotation
		for i := range srcImage.Annotations {
			ann := &srcImage.Annotations[i]
			result.Statistics.AnnotationsProcessed++

			categoryID, resolveErr := mapper.ResolveOrPlaceholder(survivor.Source, ann.CategoryID)
			if resolveErr != nil {
				result.Statistics.AnnotationsSkipped++
				result.AnnotationErrors = append(result.AnnotationErrors,
					fmt.Sprintf("skipped annotation %d of image %q: %v", ann.CocoID, srcImage.FileName, resolveErr))
				continue
			}

			newAnnotations = append(newAnnotations, models.Annotation{
				DatasetID:  targetDataset.ID,
				CocoID:     nextAnnotationCocoID,
				ImageID:    newImage.ID,
				CategoryID: categoryID,
				BboxX:      ann.BboxX,
				BboxY:      ann.BboxY,
				BboxWidth:  ann.BboxWidth,
				BboxHeight: ann.BboxHeight,
				Area:       ann.Area,
				IsCrowd:    ann.IsCrowd,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			nextAnnotationCocoID++
		}
		if len(newAnnotations) > 0 {
			if err := tx.Create(&newAnnotations).Error; err != nil {
				return fmt.Errorf("failed to create annotations for image %q: %w", survivor.FinalFileName, err)
			}
			result.Statistics.AnnotationsCopied += len(newAnnotations)
		}

		m.progress.Advance(runID, 1+len(srcImage.Annotations), fmt.Sprintf("copied image %s", survivor.FinalFileName))
	}

	result.Statistics.CategoriesCreated = mapper.Created()

	m.executeCopies(copies, result)
	m.progress.Advance(runID, 1, "copied binary assets")
	return nil
}

// executeCopies runs the queued object-store copies with bounded fan-out.
// Failures are per-object and non-fatal: the corresponding record keeps its
// target key and the asset is surfaced as missing in the statistics.
func (m *Merger) executeCopies(copies []copyOp, result *Result) {
	if len(copies) == 0 {
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, copyConcurrency)

	for _, op := range copies {
		wg.Add(1)
		sem <- struct{}{}
		go func(op copyOp) {
			defer wg.Done()
			defer func() { <-sem }()

			err := m.store.Copy(op.srcKey, op.dstKey)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if op.thumbnail {
					result.Statistics.ThumbnailsFailed++
				} else {
					result.Statistics.ImageCopyFailures++
				}
				result.CopyErrors = append(result.CopyErrors, fmt.Sprintf("copy %s -> %s failed: %v", op.srcKey, op.dstKey, err))
				return
			}
			if op.thumbnail {
				result.Statistics.ThumbnailsCopied++
			} else {
				result.Statistics.ImagesCopied++
			}
		}(op)
	}
	wg.Wait()
}

// nextCocoID allocates the next free per-dataset COCO id for the given model
func nextCocoID(tx *gorm.DB, model interface{}, datasetID uint) (int, error) {
	var maxID int
	err := tx.Model(model).
		Where("dataset_id = ?", datasetID).
		Select("COALESCE(MAX(coco_id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, fmt.Errorf("failed to allocate coco_id in dataset %d: %w", datasetID, err)
	}
	return maxID + 1, nil
}
