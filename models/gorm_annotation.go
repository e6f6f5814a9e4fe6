package models

// Annotation represents one COCO bounding-box annotation using GORM.
// It corresponds to the 'annotations' table.
//
// Invariant: CategoryID and ImageID must reference rows belonging to the
// same DatasetID as the annotation itself. The bbox is stored as four
// columns in image-pixel space with a top-left origin; the coco package
// converts to and from the JSON [x,y,w,h] array form.
type Annotation struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetID  uint    `gorm:"not null;index;uniqueIndex:idx_annotations_dataset_coco_id" json:"dataset_id"`
	CocoID     int     `gorm:"not null;uniqueIndex:idx_annotations_dataset_coco_id" json:"coco_id"`
	ImageID    uint    `gorm:"not null;index" json:"image_id"`
	CategoryID uint    `gorm:"not null;index" json:"category_id"`
	BboxX      float64 `gorm:"not null" json:"bbox_x"`
	BboxY      float64 `gorm:"not null" json:"bbox_y"`
	BboxWidth  float64 `gorm:"not null" json:"bbox_width"`
	BboxHeight float64 `gorm:"not null" json:"bbox_height"`
	Area       float64 `gorm:"not null" json:"area"`
	IsCrowd    bool    `gorm:"not null;default:false" json:"is_crowd"`
	CreatedAt  int64   `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt  int64   `gorm:"not null" json:"updated_at"` // Unix timestamp

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"` // Belongs to Category
}

// Bbox returns the bounding box in COCO [x,y,w,h] order.
func (a *Annotation) Bbox() [4]float64 {
	return [4]float64{a.BboxX, a.BboxY, a.BboxWidth, a.BboxHeight}
}

// SetBbox assigns the bounding box from COCO [x,y,w,h] order.
func (a *Annotation) SetBbox(bbox [4]float64) {
	a.BboxX, a.BboxY, a.BboxWidth, a.BboxHeight = bbox[0], bbox[1], bbox[2], bbox[3]
}

// TableName explicitly sets the table name for GORM.
func (Annotation) TableName() string {
	return "annotations"
}
