package handlers

import (
	"archive/zip"
	"bytes"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/coco"
	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/repository"
	"github.com/jmestanza/tag-editor/workers"
)

const maxUploadBytes = 1 << 30 // 1 GiB

type UploadHandler struct {
	DB       *gorm.DB
	Store    media.Store
	Images   repository.ImageRepositoryInterface
	ThumbGen *workers.ThumbnailGenerator
}

// UploadDataset accepts a multipart form with a `file` part containing
// either a bare COCO JSON document or a zip archive holding the JSON plus
// image binaries. A `name` field names the new dataset.
func (uh *UploadHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid multipart form: " + err.Error()})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: name"})
		return
	}
	description := r.FormValue("description")

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required file part: file"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".json":
		parsed, err := coco.Parse(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		result, err := coco.Import(uh.DB, name, description, parsed)
		if err != nil {
			uh.writeImportError(w, name, err)
			return
		}
		writeJSON(w, http.StatusCreated, uh.importResponse(result))

	case ".zip":
		// zip.NewReader needs random access; buffer the upload
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read upload: " + err.Error()})
			return
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid zip archive: " + err.Error()})
			return
		}
		result, err := coco.ImportArchive(uh.DB, uh.Store, name, description, zr)
		if err != nil {
			uh.writeImportError(w, name, err)
			return
		}

		uh.queueThumbnails(result)
		writeJSON(w, http.StatusCreated, uh.importResponse(result))

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unsupported upload type: " + ext})
	}
}

func (uh *UploadHandler) writeImportError(w http.ResponseWriter, name string, err error) {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Dataset name already exists"})
		return
	}
	log.Printf("Error importing dataset '%s': %v", name, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to import dataset"})
}

func (uh *UploadHandler) importResponse(result *coco.ImportResult) map[string]interface{} {
	return map[string]interface{}{
		"dataset":             result.Dataset,
		"images_created":      result.ImagesCreated,
		"categories_created":  result.CategoriesCreated,
		"annotations_created": result.AnnotationsCreated,
		"assets_stored":       result.AssetsStored,
		"skipped_annotations": result.SkippedAnnotations,
	}
}

func (uh *UploadHandler) queueThumbnails(result *coco.ImportResult) {
	if uh.ThumbGen == nil {
		return
	}
	records, err := uh.Images.ListByDataset(result.Dataset.ID)
	if err != nil {
		log.Printf("Error listing images for thumbnail queue: %v", err)
		return
	}
	for _, img := range records {
		if img.FilePath == nil {
			continue
		}
		uh.ThumbGen.QueueThumbnail(workers.ThumbnailJob{
			ImageID:   img.ID,
			DatasetID: img.DatasetID,
			FileName:  img.FileName,
			AssetKey:  *img.FilePath,
		})
	}
}
