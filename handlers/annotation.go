package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
)

type AnnotationHandler struct {
	Annotations repository.AnnotationRepositoryInterface
	Images      repository.ImageRepositoryInterface
}

type annotationPayload struct {
	CategoryID uint       `json:"category_id"`
	Bbox       [4]float64 `json:"bbox"`
	Area       float64    `json:"area"`
	IsCrowd    bool       `json:"is_crowd"`
}

func (ah *AnnotationHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	imageID, err := parseUintParam(r, "image_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image id"})
		return
	}

	annotations, err := ah.Annotations.ListByImage(imageID)
	if err != nil {
		log.Printf("Error listing annotations for image %d: %v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list annotations"})
		return
	}
	writeJSON(w, http.StatusOK, annotations)
}

func (ah *AnnotationHandler) CreateAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID, err := parseUintParam(r, "image_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image id"})
		return
	}

	var payload annotationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if payload.CategoryID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "category_id is required"})
		return
	}

	image, err := ah.Images.GetByID(imageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Image not found"})
		} else {
			log.Printf("Error getting image %d: %v", imageID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve image"})
		}
		return
	}

	annotation := models.Annotation{
		DatasetID:  image.DatasetID,
		ImageID:    image.ID,
		CategoryID: payload.CategoryID,
		Area:       payload.Area,
		IsCrowd:    payload.IsCrowd,
	}
	annotation.SetBbox(payload.Bbox)

	if err := ah.Annotations.Create(&annotation); err != nil {
		if errors.Is(err, repository.ErrCrossDatasetReference) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("Error creating annotation on image %d: %v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create annotation"})
		return
	}
	writeJSON(w, http.StatusCreated, annotation)
}

func (ah *AnnotationHandler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "annotation_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid annotation id"})
		return
	}

	var payload struct {
		CategoryID *uint       `json:"category_id"`
		Bbox       *[4]float64 `json:"bbox"`
		IsCrowd    *bool       `json:"is_crowd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if err := ah.Annotations.Update(id, payload.Bbox, payload.CategoryID, payload.IsCrowd); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Annotation not found"})
			return
		}
		if errors.Is(err, repository.ErrCrossDatasetReference) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("Error updating annotation %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update annotation"})
		return
	}

	annotation, err := ah.Annotations.GetByID(id)
	if err != nil {
		log.Printf("Error reloading annotation %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve annotation"})
		return
	}
	writeJSON(w, http.StatusOK, annotation)
}

func (ah *AnnotationHandler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "annotation_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid annotation id"})
		return
	}

	if err := ah.Annotations.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Annotation not found"})
			return
		}
		log.Printf("Error deleting annotation %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete annotation"})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
