package merge

import (
	"fmt"

	"github.com/jmestanza/tag-editor/models"
)

// CategoryMergeStrategy selects the default handling for source categories
// that have no explicit user decision.
type CategoryMergeStrategy string

const (
	// CategoryMergeByName reuses a target category whenever one with the
	// same name already exists
	CategoryMergeByName CategoryMergeStrategy = "merge_by_name"
	// CategoryKeepSeparate always creates `{datasetName}_{name}` targets
	CategoryKeepSeparate CategoryMergeStrategy = "keep_separate"
	// CategoryPrefixWithDataset always creates `[{datasetName}] {name}` targets
	CategoryPrefixWithDataset CategoryMergeStrategy = "prefix_with_dataset"
)

// ParseCategoryMergeStrategy validates a wire-level strategy value
func ParseCategoryMergeStrategy(s string) (CategoryMergeStrategy, error) {
	switch CategoryMergeStrategy(s) {
	case CategoryMergeByName, CategoryKeepSeparate, CategoryPrefixWithDataset:
		return CategoryMergeStrategy(s), nil
	}
	return "", fmt.Errorf("unknown category merge strategy %q", s)
}

// DuplicateImageStrategy selects how same-filename images across source
// datasets are reconciled.
type DuplicateImageStrategy string

const (
	// DuplicateSkip keeps the first image of each group and discards the rest
	DuplicateSkip DuplicateImageStrategy = "skip"
	// DuplicateRename keeps every image, disambiguating later filenames
	DuplicateRename DuplicateImageStrategy = "rename"
	// DuplicateOverwrite keeps only the last group member in source order
	DuplicateOverwrite DuplicateImageStrategy = "overwrite"
	// DuplicateKeepBestAnnotated keeps the member with the most annotations,
	// ties broken by the source dataset's total annotation count
	DuplicateKeepBestAnnotated DuplicateImageStrategy = "keep_best_annotated"
)

// ParseDuplicateImageStrategy validates a wire-level strategy value
func ParseDuplicateImageStrategy(s string) (DuplicateImageStrategy, error) {
	switch DuplicateImageStrategy(s) {
	case DuplicateSkip, DuplicateRename, DuplicateOverwrite, DuplicateKeepBestAnnotated:
		return DuplicateImageStrategy(s), nil
	}
	return "", fmt.Errorf("unknown duplicate image strategy %q", s)
}

// DecisionAction is the user-chosen resolution for one category conflict.
type DecisionAction string

const (
	ActionMerge        DecisionAction = "merge"
	ActionKeepSeparate DecisionAction = "keep_separate"
	ActionRename       DecisionAction = "rename"
)

// ParseDecisionAction validates a wire-level action value
func ParseDecisionAction(s string) (DecisionAction, error) {
	switch DecisionAction(s) {
	case ActionMerge, ActionKeepSeparate, ActionRename:
		return DecisionAction(s), nil
	}
	return "", fmt.Errorf("unknown decision action %q", s)
}

// MappingDecision is one user decision from a prior analyze round-trip.
// ConflictIndex references the analyze response's conflict list order.
type MappingDecision struct {
	ConflictIndex            int            `json:"conflict_index"`
	Action                   DecisionAction `json:"action"`
	TargetCategoryName       string         `json:"target_category_name,omitempty"`
	TargetCocoID             *int           `json:"target_coco_id,omitempty"`
	SelectedSourceCategoryID *uint          `json:"selected_source_category_id,omitempty"`
}

// Request describes one merge run.
type Request struct {
	SourceDatasetIDs  []uint                 `json:"source_dataset_ids"`
	TargetDatasetID   *uint                  `json:"target_dataset_id,omitempty"` // merge into existing
	NewDatasetName    string                 `json:"new_dataset_name,omitempty"`
	NewDescription    string                 `json:"new_dataset_description,omitempty"`
	CategoryStrategy  CategoryMergeStrategy  `json:"category_merge_strategy"`
	DuplicateStrategy DuplicateImageStrategy `json:"handle_duplicate_images"`
	Decisions         []MappingDecision      `json:"category_mapping_decisions,omitempty"`
}

// ConflictMember is one category participating in a conflict.
type ConflictMember struct {
	DatasetID       uint   `json:"dataset_id"`
	DatasetName     string `json:"dataset_name"`
	CategoryID      uint   `json:"category_id"`
	CategoryName    string `json:"category_name"`
	CocoID          int    `json:"coco_id"`
	AnnotationCount int64  `json:"annotation_count"`
}

// Conflict groups categories from different datasets that collide on
// (name, cocoID) — or, for name conflicts, on name alone across differing
// COCO ids. Conflicts exist only during analysis; they are never persisted.
type Conflict struct {
	Key             string           `json:"key"`
	Name            string           `json:"name"`
	CocoID          int              `json:"coco_id"`
	Members         []ConflictMember `json:"members"`
	SuggestedAction DecisionAction   `json:"suggested_action"`
}

// DuplicateWarning reports one filename group with more than one member,
// regardless of the strategy applied to it.
type DuplicateWarning struct {
	FileName        string   `json:"file_name"`
	Count           int      `json:"count"`
	SourceDatasets  []string `json:"source_datasets"`
	SelectedDataset string   `json:"selected_dataset,omitempty"`
	Reason          string   `json:"reason"`
}

// Statistics itemizes the outcome of a merge run.
type Statistics struct {
	CategoriesProcessed  int `json:"categories_processed"`
	CategoriesCreated    int `json:"categories_created"`
	ImagesProcessed      int `json:"images_processed"`
	ImagesCopied         int `json:"images_copied"`
	ImagesSkipped        int `json:"images_skipped"`
	ImageCopyFailures    int `json:"image_copy_failures"`
	AnnotationsProcessed int `json:"annotations_processed"`
	AnnotationsCopied    int `json:"annotations_copied"`
	AnnotationsSkipped   int `json:"annotations_skipped"`
	ThumbnailsCopied     int `json:"thumbnails_copied"`
	ThumbnailsFailed     int `json:"thumbnails_failed"`
	DuplicateImagesFound int `json:"duplicate_images_found"`
}

// Result is the final outcome of a merge run. It is returned through the
// progress channel once the run completes.
type Result struct {
	Success           bool               `json:"success"`
	DatasetID         uint               `json:"dataset_id"`
	Statistics        Statistics         `json:"statistics"`
	DuplicateWarnings []DuplicateWarning `json:"duplicate_warnings"`
	Errors            []string           `json:"errors"`
	CopyErrors        []string           `json:"copy_errors"`
	AnnotationErrors  []string           `json:"annotation_errors"`
}

// SourceDataset is one loaded, read-only source for a merge or analysis.
// Categories is a working list: the mapper appends orphan-repaired
// categories to it, but the underlying records are never mutated.
type SourceDataset struct {
	Dataset    models.Dataset
	Categories []models.Category
	Images     []models.Image // each with Annotations preloaded

	// AnnotationTotal is the dataset-wide annotation count, used as the
	// tie-breaker by the keep_best_annotated duplicate strategy
	AnnotationTotal int
}

// AnnotationCountByCategory tallies annotations per category id from the
// loaded images.
func (s *SourceDataset) AnnotationCountByCategory() map[uint]int64 {
	counts := make(map[uint]int64)
	for i := range s.Images {
		for j := range s.Images[i].Annotations {
			counts[s.Images[i].Annotations[j].CategoryID]++
		}
	}
	return counts
}
