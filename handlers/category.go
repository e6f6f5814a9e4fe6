package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
)

type CategoryHandler struct {
	Categories repository.CategoryRepositoryInterface
}

type categoryPayload struct {
	Name          string  `json:"name"`
	Supercategory *string `json:"supercategory"`
	CocoID        int     `json:"coco_id"`
}

func (ch *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	datasetID, err := parseUintParam(r, "dataset_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid dataset id"})
		return
	}

	var payload categoryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	if existing, err := ch.Categories.FindByDatasetAndName(datasetID, payload.Name); err == nil && existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Category name already exists in dataset"})
		return
	}

	category := models.Category{
		DatasetID:     datasetID,
		CocoID:        payload.CocoID,
		Name:          payload.Name,
		Supercategory: payload.Supercategory,
	}
	if err := ch.Categories.Create(&category); err != nil {
		log.Printf("Error creating category in dataset %d: %v", datasetID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create category"})
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (ch *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "category_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid category id"})
		return
	}

	category, err := ch.Categories.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Category not found"})
		} else {
			log.Printf("Error getting category %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve category"})
		}
		return
	}

	var payload categoryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	var newName *string
	if name := strings.TrimSpace(payload.Name); name != "" && name != category.Name {
		if existing, err := ch.Categories.FindByDatasetAndName(category.DatasetID, name); err == nil && existing != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Category name already exists in dataset"})
			return
		}
		newName = &name
		category.Name = name
	}
	if payload.Supercategory != nil {
		category.Supercategory = payload.Supercategory
	}

	if err := ch.Categories.Update(id, newName, payload.Supercategory); err != nil {
		log.Printf("Error updating category %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update category"})
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (ch *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "category_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid category id"})
		return
	}

	if err := ch.Categories.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Category not found"})
			return
		}
		if errors.Is(err, repository.ErrCategoryInUse) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Category still has annotations"})
			return
		}
		log.Printf("Error deleting category %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete category"})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
