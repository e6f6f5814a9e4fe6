package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
)

// DatasetRepository handles database operations for Dataset entities
type DatasetRepository struct {
	DB *gorm.DB
}

// NewDatasetRepository creates a new instance of DatasetRepository
func NewDatasetRepository(db *gorm.DB) *DatasetRepository {
	return &DatasetRepository{DB: db}
}

// WithTx returns a repository bound to the given transaction handle. Every
// multi-step operation must pass its transaction explicitly instead of
// relying on the repository's ambient connection.
func (r *DatasetRepository) WithTx(tx *gorm.DB) DatasetRepositoryInterface {
	return &DatasetRepository{DB: tx}
}

// Create inserts a new dataset record
func (r *DatasetRepository) Create(dataset *models.Dataset) error {
	now := time.Now().Unix()
	dataset.CreatedAt = now
	dataset.UpdatedAt = now
	if err := r.DB.Create(dataset).Error; err != nil {
		return fmt.Errorf("failed to create dataset %q: %w", dataset.Name, err)
	}
	return nil
}

// GetByID retrieves a dataset without its children
func (r *DatasetRepository) GetByID(id uint) (*models.Dataset, error) {
	var dataset models.Dataset
	err := r.DB.First(&dataset, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get dataset %d: %w", id, err)
	}
	return &dataset, nil
}

// GetWithContents retrieves a dataset with categories and images, each image
// carrying its annotations
func (r *DatasetRepository) GetWithContents(id uint) (*models.Dataset, error) {
	var dataset models.Dataset
	err := r.DB.
		Preload("Categories").
		Preload("Images").
		Preload("Images.Annotations").
		First(&dataset, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load dataset %d with contents: %w", id, err)
	}
	return &dataset, nil
}

// ListAll retrieves all datasets ordered by creation time
func (r *DatasetRepository) ListAll() ([]models.Dataset, error) {
	var datasets []models.Dataset
	if err := r.DB.Order("created_at DESC").Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

// Update modifies the name and/or description of a dataset
func (r *DatasetRepository) Update(id uint, name *string, description *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if name != nil {
		updates["name"] = *name
	}
	if description != nil {
		updates["description"] = *description
	}

	result := r.DB.Model(&models.Dataset{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update dataset %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a dataset and cascades to its categories, images and
// annotations. Object-store cleanup is the caller's concern.
func (r *DatasetRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return fmt.Errorf("failed to delete annotations of dataset %d: %w", id, err)
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return fmt.Errorf("failed to delete images of dataset %d: %w", id, err)
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&models.Category{}).Error; err != nil {
			return fmt.Errorf("failed to delete categories of dataset %d: %w", id, err)
		}
		result := tx.Delete(&models.Dataset{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete dataset %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
