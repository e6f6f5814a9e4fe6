package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
)

// ErrCrossDatasetReference is returned when an annotation would reference an
// image or category belonging to a different dataset.
var ErrCrossDatasetReference = errors.New("annotation references a record outside its dataset")

// AnnotationRepository handles database operations for Annotation entities
type AnnotationRepository struct {
	DB *gorm.DB
}

// NewAnnotationRepository creates a new instance of AnnotationRepository
func NewAnnotationRepository(db *gorm.DB) *AnnotationRepository {
	return &AnnotationRepository{DB: db}
}

// WithTx returns a repository bound to the given transaction handle
func (r *AnnotationRepository) WithTx(tx *gorm.DB) AnnotationRepositoryInterface {
	return &AnnotationRepository{DB: tx}
}

// checkSameDataset verifies that the referenced image and category belong to
// the annotation's dataset.
func (r *AnnotationRepository) checkSameDataset(datasetID, imageID, categoryID uint) error {
	var image models.Image
	if err := r.DB.Select("dataset_id").First(&image, imageID).Error; err != nil {
		return fmt.Errorf("failed to load image %d: %w", imageID, err)
	}
	if image.DatasetID != datasetID {
		return fmt.Errorf("image %d belongs to dataset %d, not %d: %w", imageID, image.DatasetID, datasetID, ErrCrossDatasetReference)
	}

	var category models.Category
	if err := r.DB.Select("dataset_id").First(&category, categoryID).Error; err != nil {
		return fmt.Errorf("failed to load category %d: %w", categoryID, err)
	}
	if category.DatasetID != datasetID {
		return fmt.Errorf("category %d belongs to dataset %d, not %d: %w", categoryID, category.DatasetID, datasetID, ErrCrossDatasetReference)
	}
	return nil
}

// Create inserts a new annotation after verifying the same-dataset invariant
func (r *AnnotationRepository) Create(annotation *models.Annotation) error {
	if err := r.checkSameDataset(annotation.DatasetID, annotation.ImageID, annotation.CategoryID); err != nil {
		return err
	}
	if annotation.Area == 0 {
		annotation.Area = annotation.BboxWidth * annotation.BboxHeight
	}
	if annotation.CocoID == 0 {
		next, err := r.nextCocoID(annotation.DatasetID)
		if err != nil {
			return err
		}
		annotation.CocoID = next
	}
	now := time.Now().Unix()
	annotation.CreatedAt = now
	annotation.UpdatedAt = now
	if err := r.DB.Create(annotation).Error; err != nil {
		return fmt.Errorf("failed to create annotation in dataset %d: %w", annotation.DatasetID, err)
	}
	return nil
}

// nextCocoID allocates the next free COCO numeric id within a dataset
func (r *AnnotationRepository) nextCocoID(datasetID uint) (int, error) {
	var maxID int
	err := r.DB.Model(&models.Annotation{}).
		Where("dataset_id = ?", datasetID).
		Select("COALESCE(MAX(coco_id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, fmt.Errorf("failed to allocate annotation coco_id in dataset %d: %w", datasetID, err)
	}
	return maxID + 1, nil
}

// GetByID retrieves an annotation by its primary key
func (r *AnnotationRepository) GetByID(id uint) (*models.Annotation, error) {
	var annotation models.Annotation
	err := r.DB.Preload("Category").First(&annotation, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get annotation %d: %w", id, err)
	}
	return &annotation, nil
}

// ListByImage retrieves all annotations of an image with their categories
func (r *AnnotationRepository) ListByImage(imageID uint) ([]models.Annotation, error) {
	var annotations []models.Annotation
	err := r.DB.Preload("Category").Where("image_id = ?", imageID).Order("id ASC").Find(&annotations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations for image %d: %w", imageID, err)
	}
	return annotations, nil
}

// Update modifies an annotation's bbox, category and/or crowd flag. Category
// changes are checked against the same-dataset invariant.
func (r *AnnotationRepository) Update(id uint, bbox *[4]float64, categoryID *uint, isCrowd *bool) error {
	existing, err := r.GetByID(id)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if bbox != nil {
		updates["bbox_x"] = bbox[0]
		updates["bbox_y"] = bbox[1]
		updates["bbox_width"] = bbox[2]
		updates["bbox_height"] = bbox[3]
		updates["area"] = bbox[2] * bbox[3]
	}
	if categoryID != nil {
		var category models.Category
		if err := r.DB.Select("dataset_id").First(&category, *categoryID).Error; err != nil {
			return fmt.Errorf("failed to load category %d: %w", *categoryID, err)
		}
		if category.DatasetID != existing.DatasetID {
			return fmt.Errorf("category %d belongs to dataset %d, not %d: %w", *categoryID, category.DatasetID, existing.DatasetID, ErrCrossDatasetReference)
		}
		updates["category_id"] = *categoryID
	}
	if isCrowd != nil {
		updates["is_crowd"] = *isCrowd
	}

	result := r.DB.Model(&models.Annotation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update annotation %d: %w", id, result.Error)
	}
	return nil
}

// Delete removes an annotation record
func (r *AnnotationRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Annotation{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete annotation %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
