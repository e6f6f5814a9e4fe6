package models

// Category represents one COCO category owned by a dataset, using GORM.
// It corresponds to the 'categories' table.
//
// CocoID is the numeric id carried in the source COCO JSON. It is unique
// per dataset, not globally: two datasets can both declare category 1, and
// equal (name, coco_id) pairs across datasets only mark the pair as a merge
// candidate, never as the same record.
type Category struct {
	ID            uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetID     uint    `gorm:"not null;index;uniqueIndex:idx_categories_dataset_coco_id" json:"dataset_id"`
	CocoID        int     `gorm:"not null;uniqueIndex:idx_categories_dataset_coco_id" json:"coco_id"`
	Name          string  `gorm:"not null;index" json:"name"`
	Supercategory *string `gorm:"" json:"supercategory,omitempty"` // Nullable
	CreatedAt     int64   `gorm:"not null" json:"created_at"`      // Unix timestamp
	UpdatedAt     int64   `gorm:"not null" json:"updated_at"`      // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Category) TableName() string {
	return "categories"
}
