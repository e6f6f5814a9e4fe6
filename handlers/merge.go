package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/database"
	"github.com/jmestanza/tag-editor/merge"
)

type MergeHandler struct {
	DB       *gorm.DB
	Merger   *merge.Merger
	Progress *merge.ProgressTracker
}

type analyzeRequest struct {
	SourceDatasetIDs []uint                      `json:"source_dataset_ids"`
	TargetDatasetID  *uint                       `json:"target_dataset_id,omitempty"`
	CategoryStrategy merge.CategoryMergeStrategy `json:"category_merge_strategy,omitempty"`
}

type analyzeDatasetSummary struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	Categories      int    `json:"categories"`
	Images          int    `json:"images"`
	AnnotationTotal int64  `json:"annotation_total"`
}

type analyzeResponse struct {
	Conflicts     []merge.Conflict        `json:"conflicts"`
	NameConflicts []merge.Conflict        `json:"name_conflicts"`
	Datasets      []analyzeDatasetSummary `json:"datasets"`
}

// AnalyzeMerge runs the pre-flight conflict analysis. The response's
// conflict order is the index space that mapping decisions refer back to.
func (mh *MergeHandler) AnalyzeMerge(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if len(req.SourceDatasetIDs) < 2 {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "at least 2 source datasets are required")
		return
	}

	analysis, sources, err := mh.Merger.Analyze(req.SourceDatasetIDs, req.TargetDatasetID, req.CategoryStrategy)
	if err != nil {
		log.Printf("Error analyzing merge: %v", err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeAPIError(w, http.StatusNotFound, "dataset_not_found", err.Error())
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "analysis_failed", err.Error())
		return
	}

	resp := analyzeResponse{
		Conflicts:     analysis.Conflicts,
		NameConflicts: analysis.NameConflicts,
		Datasets:      make([]analyzeDatasetSummary, 0, len(sources)),
	}

	totals := map[uint]int64{}
	if sqlDB, err := mh.DB.DB(); err == nil {
		if t, err := database.GetAnnotationTotalsByDataset(sqlDB, req.SourceDatasetIDs); err == nil {
			totals = t
		} else {
			log.Printf("Error aggregating annotation totals: %v", err)
		}
	}

	for _, src := range sources {
		total, ok := totals[src.Dataset.ID]
		if !ok {
			total = int64(src.AnnotationTotal)
		}
		resp.Datasets = append(resp.Datasets, analyzeDatasetSummary{
			ID:              src.Dataset.ID,
			Name:            src.Dataset.Name,
			Categories:      len(src.Categories),
			Images:          len(src.Images),
			AnnotationTotal: total,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// StartMerge validates the request, then kicks off the merge asynchronously
// and returns the run id. Clients follow the run through the progress
// endpoint or the websocket feed; the final Result rides on the terminal
// progress snapshot.
func (mh *MergeHandler) StartMerge(w http.ResponseWriter, r *http.Request) {
	var req merge.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	if err := mh.Merger.Validate(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	runID := uuid.New().String()
	// register before answering so a poll issued right after the 202 never
	// sees run_not_found while the sources are still loading
	mh.Progress.Start(runID, 1)
	go func() {
		if _, err := mh.Merger.Run(runID, req); err != nil {
			log.Printf("merge run %s failed: %v", runID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// GetMergeProgress reports the state of one merge run.
func (mh *MergeHandler) GetMergeProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if _, err := uuid.Parse(runID); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_run_id", "Run id must be a UUID")
		return
	}

	progress, ok := mh.Progress.Get(runID)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "run_not_found", "No merge run with that id")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
