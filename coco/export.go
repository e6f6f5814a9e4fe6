package coco

import (
	"fmt"
	"time"

	"github.com/jmestanza/tag-editor/repository"
)

// Export serializes a dataset back into COCO JSON form. Category, image and
// annotation ids in the output are the per-dataset COCO ids, so a
// re-imported export round-trips.
func Export(datasets repository.DatasetRepositoryInterface, datasetID uint) (*File, error) {
	dataset, err := datasets.GetWithContents(datasetID)
	if err != nil {
		return nil, err
	}

	file := &File{
		Info: Info{
			Description: dataset.Name,
			DateCreated: time.Unix(dataset.CreatedAt, 0).UTC().Format(time.RFC3339),
		},
		Images:      make([]Image, 0, len(dataset.Images)),
		Annotations: []Annotation{},
		Categories:  make([]Category, 0, len(dataset.Categories)),
	}
	if dataset.Description != nil {
		file.Info.Description = *dataset.Description
	}

	categoryCocoIDs := make(map[uint]int, len(dataset.Categories))
	for _, cat := range dataset.Categories {
		entry := Category{ID: cat.CocoID, Name: cat.Name}
		if cat.Supercategory != nil {
			entry.Supercategory = *cat.Supercategory
		}
		file.Categories = append(file.Categories, entry)
		categoryCocoIDs[cat.ID] = cat.CocoID
	}

	for i := range dataset.Images {
		img := &dataset.Images[i]
		file.Images = append(file.Images, Image{
			ID:       img.CocoID,
			FileName: img.FileName,
			Width:    img.Width,
			Height:   img.Height,
		})

		for j := range img.Annotations {
			ann := &img.Annotations[j]
			cocoCategoryID, ok := categoryCocoIDs[ann.CategoryID]
			if !ok {
				return nil, fmt.Errorf("annotation %d references category %d outside dataset %d", ann.ID, ann.CategoryID, datasetID)
			}
			isCrowd := 0
			if ann.IsCrowd {
				isCrowd = 1
			}
			bbox := ann.Bbox()
			file.Annotations = append(file.Annotations, Annotation{
				ID:         ann.CocoID,
				ImageID:    img.CocoID,
				CategoryID: cocoCategoryID,
				Bbox:       bbox[:],
				Area:       ann.Area,
				IsCrowd:    isCrowd,
			})
		}
	}

	return file, nil
}
