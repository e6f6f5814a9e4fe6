package coco

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
	"github.com/jmestanza/tag-editor/utils"
)

// Parse decodes a COCO JSON document and checks it for the minimal
// structure an import needs.
func Parse(r io.Reader) (*File, error) {
	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode COCO JSON: %w", err)
	}
	if len(file.Images) == 0 {
		return nil, fmt.Errorf("COCO file contains no images")
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("COCO file contains no categories")
	}
	for i, ann := range file.Annotations {
		if len(ann.Bbox) != 4 {
			return nil, fmt.Errorf("annotation %d has a bbox with %d element(s), want 4", i, len(ann.Bbox))
		}
	}
	return &file, nil
}

// ImportResult summarizes a completed dataset import.
type ImportResult struct {
	Dataset            *models.Dataset
	ImagesCreated      int
	CategoriesCreated  int
	AnnotationsCreated int
	AssetsStored       int
	SkippedAnnotations []string
}

// Import creates a dataset with all categories, images and annotations from
// a parsed COCO file in one transaction. Image records start without a
// FilePath; binaries arrive separately (zip import or per-image upload).
// Annotations referencing unknown image or category ids are skipped with a
// message rather than failing the import.
func Import(db *gorm.DB, name, description string, file *File) (*ImportResult, error) {
	result := &ImportResult{}

	err := db.Transaction(func(tx *gorm.DB) error {
		datasets := repository.NewDatasetRepository(tx)

		dataset := &models.Dataset{Name: name}
		if description != "" {
			dataset.Description = &description
		}
		if err := datasets.Create(dataset); err != nil {
			return err
		}
		result.Dataset = dataset
		now := time.Now().Unix()

		categoryIDs := make(map[int]uint, len(file.Categories))
		for _, c := range file.Categories {
			category := models.Category{
				DatasetID: dataset.ID,
				CocoID:    c.ID,
				Name:      c.Name,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if c.Supercategory != "" {
				super := c.Supercategory
				category.Supercategory = &super
			}
			if err := tx.Create(&category).Error; err != nil {
				return fmt.Errorf("failed to create category %q: %w", c.Name, err)
			}
			categoryIDs[c.ID] = category.ID
			result.CategoriesCreated++
		}

		imageIDs := make(map[int]uint, len(file.Images))
		for _, img := range file.Images {
			image := models.Image{
				DatasetID: dataset.ID,
				CocoID:    img.ID,
				FileName:  img.FileName,
				Width:     img.Width,
				Height:    img.Height,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&image).Error; err != nil {
				return fmt.Errorf("failed to create image %q: %w", img.FileName, err)
			}
			imageIDs[img.ID] = image.ID
			result.ImagesCreated++
		}

		var annotations []models.Annotation
		for _, ann := range file.Annotations {
			imageID, imgOK := imageIDs[ann.ImageID]
			categoryID, catOK := categoryIDs[ann.CategoryID]
			if !imgOK || !catOK {
				result.SkippedAnnotations = append(result.SkippedAnnotations,
					fmt.Sprintf("annotation %d references unknown image %d or category %d", ann.ID, ann.ImageID, ann.CategoryID))
				continue
			}
			area := ann.Area
			if area == 0 {
				area = ann.Bbox[2] * ann.Bbox[3]
			}
			annotations = append(annotations, models.Annotation{
				DatasetID:  dataset.ID,
				CocoID:     ann.ID,
				ImageID:    imageID,
				CategoryID: categoryID,
				BboxX:      ann.Bbox[0],
				BboxY:      ann.Bbox[1],
				BboxWidth:  ann.Bbox[2],
				BboxHeight: ann.Bbox[3],
				Area:       area,
				IsCrowd:    ann.IsCrowd != 0,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		if len(annotations) > 0 {
			if err := tx.CreateInBatches(&annotations, 200).Error; err != nil {
				return fmt.Errorf("failed to create annotations: %w", err)
			}
		}
		result.AnnotationsCreated = len(annotations)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("coco: imported dataset %q (%d images, %d categories, %d annotations, %d skipped)",
		name, result.ImagesCreated, result.CategoriesCreated, result.AnnotationsCreated, len(result.SkippedAnnotations))
	return result, nil
}

// ImportArchive imports a zip archive containing one COCO JSON document plus
// image binaries. The JSON is located by extension; binaries are matched to
// image records by base filename and stored in the object store.
func ImportArchive(db *gorm.DB, store media.Store, name, description string, zr *zip.Reader) (*ImportResult, error) {
	var jsonEntry *zip.File
	binaries := make(map[string]*zip.File)

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := path.Base(entry.Name)
		switch {
		case strings.EqualFold(path.Ext(base), ".json"):
			if jsonEntry == nil {
				jsonEntry = entry
			}
		case utils.IsRasterImage(base):
			binaries[base] = entry
		}
	}
	if jsonEntry == nil {
		return nil, fmt.Errorf("archive contains no COCO JSON document")
	}

	jsonReader, err := jsonEntry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in archive: %w", jsonEntry.Name, err)
	}
	file, err := Parse(jsonReader)
	jsonReader.Close()
	if err != nil {
		return nil, err
	}

	result, err := Import(db, name, description, file)
	if err != nil {
		return nil, err
	}

	// store binaries after the records committed; a failed asset leaves the
	// record's file_path NULL, same as a JSON-only upload
	images := repository.NewImageRepository(db)
	records, err := images.ListByDataset(result.Dataset.ID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		entry, ok := binaries[path.Base(records[i].FileName)]
		if !ok {
			continue
		}
		reader, openErr := entry.Open()
		if openErr != nil {
			log.Printf("coco: failed to open %s in archive: %v", entry.Name, openErr)
			continue
		}
		key := media.ImageKey(result.Dataset.ID, records[i].FileName)
		_, saveErr := store.Save(key, reader)
		reader.Close()
		if saveErr != nil {
			log.Printf("coco: failed to store asset %s: %v", key, saveErr)
			continue
		}
		if err := images.UpdateFilePath(records[i].ID, &key); err != nil {
			log.Printf("coco: failed to record asset key for image %d: %v", records[i].ID, err)
			continue
		}
		result.AssetsStored++
	}

	return result, nil
}
