package repository

import (
	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
)

// DatasetRepositoryInterface defines the methods for dataset data operations
type DatasetRepositoryInterface interface {
	WithTx(tx *gorm.DB) DatasetRepositoryInterface
	Create(dataset *models.Dataset) error
	GetByID(id uint) (*models.Dataset, error)
	// GetWithContents loads a dataset with its categories and its images,
	// each image carrying its annotations
	GetWithContents(id uint) (*models.Dataset, error)
	ListAll() ([]models.Dataset, error)
	Update(id uint, name *string, description *string) error
	Delete(id uint) error
}

// CategoryRepositoryInterface defines the methods for category data operations
type CategoryRepositoryInterface interface {
	WithTx(tx *gorm.DB) CategoryRepositoryInterface
	Create(category *models.Category) error
	GetByID(id uint) (*models.Category, error)
	ListByDataset(datasetID uint) ([]models.Category, error)
	FindByDatasetAndName(datasetID uint, name string) (*models.Category, error)
	Update(id uint, name *string, supercategory *string) error
	Delete(id uint) error
}

// ImageRepositoryInterface defines the methods for image data operations
type ImageRepositoryInterface interface {
	WithTx(tx *gorm.DB) ImageRepositoryInterface
	Create(image *models.Image) error
	GetByID(id uint) (*models.Image, error)
	GetWithAnnotations(id uint) (*models.Image, error)
	ListByDataset(datasetID uint) ([]models.Image, error)
	UpdateFilePath(id uint, filePath *string) error
	UpdateThumbnailResult(id uint, thumbnailPath *string, taskErr error) error
	Delete(id uint) error
}

// AnnotationRepositoryInterface defines the methods for annotation data operations
type AnnotationRepositoryInterface interface {
	WithTx(tx *gorm.DB) AnnotationRepositoryInterface
	Create(annotation *models.Annotation) error
	GetByID(id uint) (*models.Annotation, error)
	ListByImage(imageID uint) ([]models.Annotation, error)
	Update(id uint, bbox *[4]float64, categoryID *uint, isCrowd *bool) error
	Delete(id uint) error
}
