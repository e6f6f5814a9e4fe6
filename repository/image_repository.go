package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
)

// ImageRepository handles database operations for Image entities
type ImageRepository struct {
	DB *gorm.DB
}

// NewImageRepository creates a new instance of ImageRepository
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: db}
}

// WithTx returns a repository bound to the given transaction handle
func (r *ImageRepository) WithTx(tx *gorm.DB) ImageRepositoryInterface {
	return &ImageRepository{DB: tx}
}

// Create inserts a new image record
func (r *ImageRepository) Create(image *models.Image) error {
	now := time.Now().Unix()
	image.CreatedAt = now
	image.UpdatedAt = now
	if err := r.DB.Create(image).Error; err != nil {
		return fmt.Errorf("failed to create image %q in dataset %d: %w", image.FileName, image.DatasetID, err)
	}
	return nil
}

// GetByID retrieves an image by its primary key
func (r *ImageRepository) GetByID(id uint) (*models.Image, error) {
	var image models.Image
	err := r.DB.First(&image, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get image %d: %w", id, err)
	}
	return &image, nil
}

// GetWithAnnotations retrieves an image with its annotations, each carrying
// its category
func (r *ImageRepository) GetWithAnnotations(id uint) (*models.Image, error) {
	var image models.Image
	err := r.DB.
		Preload("Annotations").
		Preload("Annotations.Category").
		First(&image, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load image %d with annotations: %w", id, err)
	}
	return &image, nil
}

// ListByDataset retrieves all images of a dataset. The handler layer applies
// natural filename ordering for display.
func (r *ImageRepository) ListByDataset(datasetID uint) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.Where("dataset_id = ?", datasetID).Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images for dataset %d: %w", datasetID, err)
	}
	return images, nil
}

// UpdateFilePath sets (or clears) the object-store key of an image's binary
// asset
func (r *ImageRepository) UpdateFilePath(id uint, filePath *string) error {
	updates := map[string]interface{}{
		"file_path":  filePath,
		"updated_at": time.Now().Unix(),
	}
	result := r.DB.Model(&models.Image{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update file path for image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateThumbnailResult records the outcome of a thumbnail generation task.
// On failure the thumbnail path is cleared and the error logged by the
// worker; the image record itself stays valid.
func (r *ImageRepository) UpdateThumbnailResult(id uint, thumbnailPath *string, taskErr error) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if taskErr != nil {
		updates["thumbnail_path"] = gorm.Expr("NULL")
	} else {
		updates["thumbnail_path"] = thumbnailPath
	}

	result := r.DB.Model(&models.Image{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update thumbnail result for image %d: %w", id, result.Error)
	}
	return nil
}

// Delete removes an image record and its annotations
func (r *ImageRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return fmt.Errorf("failed to delete annotations of image %d: %w", id, err)
		}
		result := tx.Delete(&models.Image{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete image %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
