// Package coco maps between the COCO object-detection JSON format and the
// database models.
package coco

// File is the top-level COCO JSON document.
type File struct {
	Info        Info         `json:"info,omitempty"`
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`
}

// Info carries optional dataset metadata.
type Info struct {
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Year        int    `json:"year,omitempty"`
	DateCreated string `json:"date_created,omitempty"`
}

// Image is one COCO image entry.
type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Category is one COCO category entry.
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// Annotation is one COCO bounding-box annotation entry. Bbox is [x,y,w,h]
// in image-pixel space with a top-left origin.
type Annotation struct {
	ID         int       `json:"id"`
	ImageID    int       `json:"image_id"`
	CategoryID int       `json:"category_id"`
	Bbox       []float64 `json:"bbox"`
	Area       float64   `json:"area"`
	IsCrowd    int       `json:"iscrowd"`
}
