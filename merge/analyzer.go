package merge

import (
	"fmt"
)

// AnalysisResult carries the conflicts detected across the requested
// datasets. The Conflicts order is the authoritative index space that
// MappingDecision.ConflictIndex refers to; callers must re-run the analysis
// rather than cache indices across dataset-set changes.
type AnalysisResult struct {
	Conflicts []Conflict `json:"conflicts"`
	// NameConflicts are categories sharing a name across more than one COCO
	// id. They are reported separately and always suggested keep_separate:
	// diverging numeric ids usually mean unrelated concepts sharing a label.
	NameConflicts []Conflict `json:"name_conflicts"`
}

// AnalyzeConflicts inspects the category sets of all sources (plus the
// target dataset when merging into an existing one) and groups them by
// (name, cocoID). Any group with more than one member is a conflict.
func AnalyzeConflicts(sources []*SourceDataset, target *SourceDataset, strategy CategoryMergeStrategy) *AnalysisResult {
	entries := collectMembers(sources, target)

	suggested := suggestedAction(strategy)
	result := &AnalysisResult{
		Conflicts:     []Conflict{},
		NameConflicts: []Conflict{},
	}

	// group by name|cocoID, preserving first-seen order for stable indices
	for _, group := range groupMembers(entries, func(m ConflictMember) string {
		return conflictKey(m.CategoryName, m.CocoID)
	}) {
		if len(group) < 2 {
			continue
		}
		result.Conflicts = append(result.Conflicts, Conflict{
			Key:             conflictKey(group[0].CategoryName, group[0].CocoID),
			Name:            group[0].CategoryName,
			CocoID:          group[0].CocoID,
			Members:         group,
			SuggestedAction: suggested,
		})
	}

	// group by name alone; a group spanning >1 distinct cocoID is a name
	// conflict, never auto-merged
	for _, group := range groupMembers(entries, func(m ConflictMember) string {
		return m.CategoryName
	}) {
		if len(group) < 2 {
			continue
		}
		distinct := make(map[int]struct{})
		for _, m := range group {
			distinct[m.CocoID] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}
		result.NameConflicts = append(result.NameConflicts, Conflict{
			Key:             group[0].CategoryName,
			Name:            group[0].CategoryName,
			CocoID:          group[0].CocoID,
			Members:         group,
			SuggestedAction: ActionKeepSeparate,
		})
	}

	return result
}

// suggestedAction maps the caller's default strategy onto a per-conflict
// suggestion
func suggestedAction(strategy CategoryMergeStrategy) DecisionAction {
	switch strategy {
	case CategoryMergeByName:
		return ActionMerge
	case CategoryKeepSeparate:
		return ActionKeepSeparate
	default:
		return ActionRename
	}
}

func conflictKey(name string, cocoID int) string {
	return fmt.Sprintf("%s|%d", name, cocoID)
}

// collectMembers flattens the category sets of the target (first, when
// present) and all sources into one ordered member list with per-category
// annotation counts.
func collectMembers(sources []*SourceDataset, target *SourceDataset) []ConflictMember {
	var entries []ConflictMember
	appendFrom := func(ds *SourceDataset) {
		counts := ds.AnnotationCountByCategory()
		for _, cat := range ds.Categories {
			entries = append(entries, ConflictMember{
				DatasetID:       ds.Dataset.ID,
				DatasetName:     ds.Dataset.Name,
				CategoryID:      cat.ID,
				CategoryName:    cat.Name,
				CocoID:          cat.CocoID,
				AnnotationCount: counts[cat.ID],
			})
		}
	}

	if target != nil {
		appendFrom(target)
	}
	for _, src := range sources {
		appendFrom(src)
	}
	return entries
}

// groupMembers buckets members by key, returning groups in first-seen order
func groupMembers(entries []ConflictMember, keyFn func(ConflictMember) string) [][]ConflictMember {
	index := make(map[string]int)
	var groups [][]ConflictMember
	for _, e := range entries {
		key := keyFn(e)
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], e)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []ConflictMember{e})
	}
	return groups
}
