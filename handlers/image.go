package handlers

import (
	"errors"
	"log"
	"net/http"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/repository"
	"github.com/jmestanza/tag-editor/utils"
	"github.com/jmestanza/tag-editor/workers"
)

type ImageHandler struct {
	Images   repository.ImageRepositoryInterface
	Store    media.Store
	ThumbGen *workers.ThumbnailGenerator
}

func (ih *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "image_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image id"})
		return
	}

	image, err := ih.Images.GetWithAnnotations(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Image not found"})
		} else {
			log.Printf("Error getting image %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve image"})
		}
		return
	}
	writeJSON(w, http.StatusOK, image)
}

// UploadImageFile attaches a binary asset to an existing image record. The
// record's file_path stays NULL until this succeeds.
func (ih *ImageHandler) UploadImageFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "image_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image id"})
		return
	}

	image, err := ih.Images.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Image not found"})
		} else {
			log.Printf("Error getting image %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve image"})
		}
		return
	}

	if !utils.IsRasterImage(image.FileName) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Image record has no raster filename"})
		return
	}

	key := media.ImageKey(image.DatasetID, image.FileName)
	if _, err := ih.Store.Save(key, r.Body); err != nil {
		log.Printf("Error storing asset for image %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to store image asset"})
		return
	}

	if err := ih.Images.UpdateFilePath(id, &key); err != nil {
		log.Printf("Error recording asset key for image %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update image record"})
		return
	}

	if ih.ThumbGen != nil {
		ih.ThumbGen.QueueThumbnail(workers.ThumbnailJob{
			ImageID:   image.ID,
			DatasetID: image.DatasetID,
			FileName:  image.FileName,
			AssetKey:  key,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"file_path": key})
}

func (ih *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(r, "image_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid image id"})
		return
	}

	image, err := ih.Images.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Image not found"})
		} else {
			log.Printf("Error getting image %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve image"})
		}
		return
	}

	if err := ih.Images.Delete(id); err != nil {
		log.Printf("Error deleting image %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete image"})
		return
	}

	for _, key := range []*string{image.FilePath, image.ThumbnailPath} {
		if key == nil {
			continue
		}
		if err := ih.Store.Delete(*key); err != nil {
			log.Printf("Error deleting asset %s: %v", *key, err)
		}
	}

	writeJSON(w, http.StatusNoContent, nil)
}
