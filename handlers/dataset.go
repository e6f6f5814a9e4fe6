package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/facette/natsort"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/database"
	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

// parseUintParam extracts a numeric chi URL parameter
func parseUintParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

type DatasetHandler struct {
	DB         *gorm.DB
	Datasets   repository.DatasetRepositoryInterface
	Images     repository.ImageRepositoryInterface
	Categories repository.CategoryRepositoryInterface
	Store      media.Store
}

// datasetSummary is a dataset plus its aggregate record counts
type datasetSummary struct {
	models.Dataset
	Counts database.DatasetCounts `json:"counts"`
}

func (dh *DatasetHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: name"})
		return
	}

	dataset := &models.Dataset{Name: req.Name}
	if req.Description != "" {
		dataset.Description = &req.Description
	}

	if err := dh.Datasets.Create(dataset); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Dataset name already exists"})
		} else {
			log.Printf("Error creating dataset '%s': %v", req.Name, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create dataset"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, dataset)
}

func (dh *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := dh.Datasets.ListAll()
	if err != nil {
		log.Printf("Error listing datasets: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve datasets"})
		return
	}

	sqlDB, err := dh.DB.DB()
	if err != nil {
		log.Printf("Error getting sql.DB for dataset counts: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve datasets"})
		return
	}

	summaries := make([]datasetSummary, 0, len(datasets))
	for _, ds := range datasets {
		counts, err := database.GetDatasetCounts(sqlDB, ds.ID)
		if err != nil {
			log.Printf("Error counting records for dataset %d: %v", ds.ID, err)
		}
		summaries = append(summaries, datasetSummary{Dataset: ds, Counts: counts})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (dh *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	dataset, err := dh.Datasets.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Dataset not found"})
		} else {
			log.Printf("Error getting dataset %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve dataset"})
		}
		return
	}

	sqlDB, dbErr := dh.DB.DB()
	if dbErr != nil {
		writeJSON(w, http.StatusOK, dataset)
		return
	}
	counts, countErr := database.GetDatasetCounts(sqlDB, dataset.ID)
	if countErr != nil {
		log.Printf("Error counting records for dataset %d: %v", dataset.ID, countErr)
	}
	writeJSON(w, http.StatusOK, datasetSummary{Dataset: *dataset, Counts: counts})
}

func (dh *DatasetHandler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Name == nil && req.Description == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No fields provided for update"})
		return
	}

	if err := dh.Datasets.Update(id, req.Name, req.Description); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Dataset not found"})
		} else if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Dataset name already exists"})
		} else {
			log.Printf("Error updating dataset %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update dataset"})
		}
		return
	}

	updated, err := dh.Datasets.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Dataset updated successfully"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (dh *DatasetHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	if err := dh.Datasets.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Dataset not found"})
		} else {
			log.Printf("Error deleting dataset %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete dataset"})
		}
		return
	}

	// best-effort object-store cleanup; records are already gone
	keys, listErr := dh.Store.List(media.DatasetPrefix(id))
	if listErr != nil {
		log.Printf("Error listing assets of deleted dataset %d: %v", id, listErr)
	}
	for _, key := range keys {
		if delErr := dh.Store.Delete(key); delErr != nil {
			log.Printf("Error deleting asset %s: %v", key, delErr)
		}
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// ListImages returns all images of a dataset in natural filename order
func (dh *DatasetHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}
	if _, err := dh.Datasets.GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Dataset not found"})
			return
		}
		log.Printf("Error getting dataset %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve dataset"})
		return
	}

	images, err := dh.Images.ListByDataset(id)
	if err != nil {
		log.Printf("Error listing images for dataset %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list images"})
		return
	}

	names := make([]string, len(images))
	byName := make(map[string][]models.Image, len(images))
	for i, img := range images {
		names[i] = img.FileName
		byName[img.FileName] = append(byName[img.FileName], img)
	}
	natsort.Sort(names)

	sorted := make([]models.Image, 0, len(images))
	emitted := make(map[string]bool)
	for _, name := range names {
		if emitted[name] {
			continue
		}
		emitted[name] = true
		sorted = append(sorted, byName[name]...)
	}
	writeJSON(w, http.StatusOK, sorted)
}

// ListCategories returns all categories of a dataset
func (dh *DatasetHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	categories, err := dh.Categories.ListByDataset(id)
	if err != nil {
		log.Printf("Error listing categories for dataset %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list categories"})
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}
