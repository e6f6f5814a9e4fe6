package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/coco"
	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/repository"
	"github.com/jmestanza/tag-editor/utils"
)

type ExportHandler struct {
	Datasets     repository.DatasetRepositoryInterface
	Store        media.Store
	ArchivesPath string
}

// ExportDataset returns the dataset's annotations as a COCO JSON document.
func (eh *ExportHandler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	file, err := coco.Export(eh.Datasets, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Dataset not found"})
		} else {
			log.Printf("Error exporting dataset %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to export dataset"})
		}
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"dataset_%d_annotations.json\"", id))
	writeJSON(w, http.StatusOK, file)
}

// ExportDatasetArchive returns a ZIP with annotations.json plus every stored
// image asset. Images whose binary was never uploaded are listed in the JSON
// but absent from the archive.
func (eh *ExportHandler) ExportDatasetArchive(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	file, err := coco.Export(eh.Datasets, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Dataset not found"})
		} else {
			log.Printf("Error exporting dataset %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to export dataset"})
		}
		return
	}

	annotationJSON, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		log.Printf("Error encoding annotations for dataset %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to encode annotations"})
		return
	}

	entries := []utils.ArchiveEntry{
		{
			Name: "annotations.json",
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(annotationJSON)), nil
			},
		},
	}

	dataset, err := eh.Datasets.GetWithContents(id)
	if err != nil {
		log.Printf("Error loading dataset %d contents: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load dataset contents"})
		return
	}
	for i := range dataset.Images {
		img := dataset.Images[i]
		if img.FilePath == nil {
			continue
		}
		key := *img.FilePath
		entries = append(entries, utils.ArchiveEntry{
			Name: path.Join("images", img.FileName),
			Open: func() (io.ReadCloser, error) {
				rc, _, err := eh.Store.Get(key)
				return rc, err
			},
		})
	}

	archivePath, size, err := utils.CreateDatasetArchive(eh.ArchivesPath, entries)
	if err != nil {
		log.Printf("Error building archive for dataset %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to build archive"})
		return
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil {
			log.Printf("Error removing archive %s: %v", archivePath, err)
		}
	}()

	archive, err := os.Open(archivePath)
	if err != nil {
		log.Printf("Error opening archive %s: %v", archivePath, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to open archive"})
		return
	}
	defer archive.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"dataset_%d.zip\"", id))
	if _, err := io.Copy(w, archive); err != nil {
		log.Printf("Error streaming archive for dataset %d: %v", id, err)
	}
}
