package models

import "gorm.io/gorm"

// Dataset represents one uploaded or merged COCO dataset in the database
// using GORM. It corresponds to the 'datasets' table.
type Dataset struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"not null;unique" json:"name"`
	Description *string        `gorm:"" json:"description,omitempty"`     // Nullable
	CreatedAt   int64          `gorm:"not null" json:"created_at"`        // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt   int64          `gorm:"not null" json:"updated_at"`        // Stored as INTEGER in SQLite, Unix timestamp
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"` // For soft deletes

	// Relationships (cascade delete to children)
	Categories []Category `gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE" json:"categories,omitempty"`
	Images     []Image    `gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Dataset) TableName() string {
	return "datasets"
}
