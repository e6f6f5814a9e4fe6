package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
)

// ErrCategoryInUse is returned when deleting a category that annotations
// still reference.
var ErrCategoryInUse = errors.New("category is referenced by annotations")

// CategoryRepository handles database operations for Category entities
type CategoryRepository struct {
	DB *gorm.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{DB: db}
}

// WithTx returns a repository bound to the given transaction handle
func (r *CategoryRepository) WithTx(tx *gorm.DB) CategoryRepositoryInterface {
	return &CategoryRepository{DB: tx}
}

// Create inserts a new category record
func (r *CategoryRepository) Create(category *models.Category) error {
	now := time.Now().Unix()
	category.CreatedAt = now
	category.UpdatedAt = now
	if err := r.DB.Create(category).Error; err != nil {
		return fmt.Errorf("failed to create category %q in dataset %d: %w", category.Name, category.DatasetID, err)
	}
	return nil
}

// GetByID retrieves a category by its primary key
func (r *CategoryRepository) GetByID(id uint) (*models.Category, error) {
	var category models.Category
	err := r.DB.First(&category, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get category %d: %w", id, err)
	}
	return &category, nil
}

// ListByDataset retrieves all categories owned by a dataset, ordered by
// their COCO id
func (r *CategoryRepository) ListByDataset(datasetID uint) ([]models.Category, error) {
	var categories []models.Category
	err := r.DB.Where("dataset_id = ?", datasetID).Order("coco_id ASC").Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories for dataset %d: %w", datasetID, err)
	}
	return categories, nil
}

// FindByDatasetAndName retrieves a category by its name within a dataset
func (r *CategoryRepository) FindByDatasetAndName(datasetID uint, name string) (*models.Category, error) {
	var category models.Category
	err := r.DB.Where("dataset_id = ? AND name = ?", datasetID, name).First(&category).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find category %q in dataset %d: %w", name, datasetID, err)
	}
	return &category, nil
}

// Update modifies the name and/or supercategory of a category
func (r *CategoryRepository) Update(id uint, name *string, supercategory *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if name != nil {
		updates["name"] = *name
	}
	if supercategory != nil {
		updates["supercategory"] = *supercategory
	}

	result := r.DB.Model(&models.Category{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update category %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a category. It refuses to delete a category that still has
// annotations referencing it.
func (r *CategoryRepository) Delete(id uint) error {
	var count int64
	if err := r.DB.Model(&models.Annotation{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count annotations for category %d: %w", id, err)
	}
	if count > 0 {
		return fmt.Errorf("category %d is referenced by %d annotation(s): %w", id, count, ErrCategoryInUse)
	}

	result := r.DB.Delete(&models.Category{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
