package models

// Image represents one COCO image record in the database using GORM.
// It corresponds to the 'images' table.
//
// FilePath and ThumbnailPath are object-store keys, not filesystem paths.
// FilePath stays NULL until the binary asset has been uploaded; a record
// without an asset is valid (annotations can be edited before pixels
// arrive). FileName is the cross-dataset join key used by the merge
// engine's duplicate detection.
type Image struct {
	ID            uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetID     uint    `gorm:"not null;index;uniqueIndex:idx_images_dataset_coco_id" json:"dataset_id"`
	CocoID        int     `gorm:"not null;uniqueIndex:idx_images_dataset_coco_id" json:"coco_id"`
	FileName      string  `gorm:"not null;index" json:"file_name"`
	Width         int     `gorm:"not null" json:"width"`
	Height        int     `gorm:"not null" json:"height"`
	FilePath      *string `gorm:"" json:"file_path,omitempty"`      // Nullable object-store key
	ThumbnailPath *string `gorm:"" json:"thumbnail_path,omitempty"` // Nullable object-store key
	CreatedAt     int64   `gorm:"not null" json:"created_at"`       // Unix timestamp
	UpdatedAt     int64   `gorm:"not null" json:"updated_at"`       // Unix timestamp

	// Relationships
	Annotations []Annotation `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE" json:"annotations,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}
