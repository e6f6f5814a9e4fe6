package merge

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/jmestanza/tag-editor/models"
	"github.com/jmestanza/tag-editor/repository"
)

// catKey identifies one source category across all source datasets.
type catKey struct {
	DatasetID  uint
	CategoryID uint
}

// CategoryMapper computes a total mapping from every reachable source
// category — declared in a source's category list or merely referenced by
// one of its annotations — to exactly one category in the target dataset,
// creating target categories as needed.
//
// A conflict resolved with action merge maps all of its members to a single
// cached target: one target per conflict, never one per source category.
type CategoryMapper struct {
	categories repository.CategoryRepositoryInterface // transaction-bound
	targetID   uint
	strategy   CategoryMergeStrategy
	decisions  map[int]MappingDecision

	mapping         map[catKey]uint
	conflictTargets map[int]uint
	targetByName    map[string]uint
	usedCocoIDs     map[int]bool
	processed       int
	created         int
}

// NewCategoryMapper builds a mapper writing into targetDatasetID through the
// given transaction-bound category repository.
func NewCategoryMapper(categories repository.CategoryRepositoryInterface, targetDatasetID uint, strategy CategoryMergeStrategy, decisions []MappingDecision) *CategoryMapper {
	byIndex := make(map[int]MappingDecision, len(decisions))
	for _, d := range decisions {
		byIndex[d.ConflictIndex] = d
	}
	return &CategoryMapper{
		categories:      categories,
		targetID:        targetDatasetID,
		strategy:        strategy,
		decisions:       byIndex,
		mapping:         make(map[catKey]uint),
		conflictTargets: make(map[int]uint),
		targetByName:    make(map[string]uint),
		usedCocoIDs:     make(map[int]bool),
	}
}

// Build runs the full resolution: orphan repair, conflict detection, target
// creation for merge decisions, and per-category resolution. target is nil
// when merging into a freshly created dataset.
func (m *CategoryMapper) Build(sources []*SourceDataset, target *SourceDataset) error {
	if err := m.preloadTarget(); err != nil {
		return err
	}

	for _, src := range sources {
		if err := m.repairOrphans(src); err != nil {
			return err
		}
	}

	// Orphan repair only appends to the end of each working list, so the
	// first-seen grouping order of pre-existing conflicts — the index space
	// the caller's decisions reference — is unchanged; repaired categories
	// can only extend existing groups or add new conflicts at the tail.
	conflicts := AnalyzeConflicts(sources, target, m.strategy).Conflicts

	for idx := range m.decisions {
		if idx < 0 || idx >= len(conflicts) {
			return fmt.Errorf("decision references conflict index %d, but only %d conflict(s) exist", idx, len(conflicts))
		}
	}

	if err := m.createMergeTargets(conflicts, sources); err != nil {
		return err
	}

	return m.resolveAll(conflicts, sources)
}

// preloadTarget caches the output dataset's existing categories so repeated
// resolutions reuse them instead of creating duplicates.
func (m *CategoryMapper) preloadTarget() error {
	existing, err := m.categories.ListByDataset(m.targetID)
	if err != nil {
		return fmt.Errorf("failed to load target dataset %d categories: %w", m.targetID, err)
	}
	for _, cat := range existing {
		if _, ok := m.targetByName[cat.Name]; !ok {
			m.targetByName[cat.Name] = cat.ID
		}
		m.usedCocoIDs[cat.CocoID] = true
	}
	return nil
}

// repairOrphans appends to the source's working category list any category
// that its annotations reference but its loaded list omits, when the record
// actually exists and belongs to that dataset. Categories that cannot be
// found anywhere are true orphans, handled later by ResolveOrPlaceholder.
func (m *CategoryMapper) repairOrphans(src *SourceDataset) error {
	declared := make(map[uint]bool, len(src.Categories))
	for _, cat := range src.Categories {
		declared[cat.ID] = true
	}

	seen := make(map[uint]bool)
	for i := range src.Images {
		for j := range src.Images[i].Annotations {
			id := src.Images[i].Annotations[j].CategoryID
			if declared[id] || seen[id] {
				continue
			}
			seen[id] = true

			cat, err := m.categories.GetByID(id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("merge: dataset %d references missing category %d, deferring to placeholder", src.Dataset.ID, id)
					continue
				}
				return fmt.Errorf("failed to look up referenced category %d: %w", id, err)
			}
			if cat.DatasetID != src.Dataset.ID {
				log.Printf("merge: dataset %d references category %d owned by dataset %d, deferring to placeholder", src.Dataset.ID, id, cat.DatasetID)
				continue
			}
			src.Categories = append(src.Categories, *cat)
		}
	}
	return nil
}

// createMergeTargets resolves or creates exactly one target category per
// merge decision, keyed by conflict index.
func (m *CategoryMapper) createMergeTargets(conflicts []Conflict, sources []*SourceDataset) error {
	for idx, conflict := range conflicts {
		decision, ok := m.decisions[idx]
		if !ok || decision.Action != ActionMerge {
			continue
		}

		name := decision.TargetCategoryName
		if name == "" {
			name = conflict.Members[0].CategoryName
		}
		cocoID := conflict.Members[0].CocoID
		if decision.TargetCocoID != nil {
			cocoID = *decision.TargetCocoID
		}

		primary := conflict.Members[0].CategoryID
		if decision.SelectedSourceCategoryID != nil {
			primary = *decision.SelectedSourceCategoryID
		}
		supercategory := findSupercategory(sources, primary)

		targetID, err := m.findOrCreateTarget(name, cocoID, supercategory)
		if err != nil {
			return err
		}
		m.conflictTargets[idx] = targetID
	}
	return nil
}

// resolveAll maps every source category of every source dataset to its
// target category.
func (m *CategoryMapper) resolveAll(conflicts []Conflict, sources []*SourceDataset) error {
	indexByCat := make(map[catKey]int)
	for idx, conflict := range conflicts {
		for _, member := range conflict.Members {
			indexByCat[catKey{member.DatasetID, member.CategoryID}] = idx
		}
	}

	for _, src := range sources {
		for _, cat := range src.Categories {
			key := catKey{src.Dataset.ID, cat.ID}
			m.processed++

			var targetID uint
			var err error

			if idx, inConflict := indexByCat[key]; inConflict {
				if decision, hasDecision := m.decisions[idx]; hasDecision {
					targetID, err = m.applyDecision(idx, decision, src, cat)
					if err != nil {
						return err
					}
					m.mapping[key] = targetID
					continue
				}
			}

			targetID, err = m.applyDefaultStrategy(src, cat)
			if err != nil {
				return err
			}
			m.mapping[key] = targetID
		}
	}
	return nil
}

// applyDecision resolves one conflicted category per its user decision
func (m *CategoryMapper) applyDecision(idx int, decision MappingDecision, src *SourceDataset, cat models.Category) (uint, error) {
	switch decision.Action {
	case ActionMerge:
		targetID, ok := m.conflictTargets[idx]
		if !ok {
			return 0, fmt.Errorf("no merge target created for conflict %d", idx)
		}
		return targetID, nil
	case ActionRename:
		name := decision.TargetCategoryName
		if name == "" {
			name = fmt.Sprintf("%s_%s", src.Dataset.Name, cat.Name)
		}
		return m.findOrCreateTarget(name, m.derivedCocoID(src, cat), cat.Supercategory)
	case ActionKeepSeparate:
		name := fmt.Sprintf("%s_%s", src.Dataset.Name, cat.Name)
		return m.findOrCreateTarget(name, m.derivedCocoID(src, cat), cat.Supercategory)
	}
	return 0, fmt.Errorf("unknown decision action %q for conflict %d", decision.Action, idx)
}

// applyDefaultStrategy resolves a category with no applicable decision
func (m *CategoryMapper) applyDefaultStrategy(src *SourceDataset, cat models.Category) (uint, error) {
	switch m.strategy {
	case CategoryMergeByName:
		return m.findOrCreateTarget(cat.Name, cat.CocoID, cat.Supercategory)
	case CategoryPrefixWithDataset:
		name := fmt.Sprintf("[%s] %s", src.Dataset.Name, cat.Name)
		return m.findOrCreateTarget(name, m.derivedCocoID(src, cat), cat.Supercategory)
	case CategoryKeepSeparate:
		name := fmt.Sprintf("%s_%s", src.Dataset.Name, cat.Name)
		return m.findOrCreateTarget(name, m.derivedCocoID(src, cat), cat.Supercategory)
	}
	return 0, fmt.Errorf("unknown category merge strategy %q", m.strategy)
}

// Resolve returns the target category for one source category, when one was
// computed during Build.
func (m *CategoryMapper) Resolve(datasetID, categoryID uint) (uint, bool) {
	id, ok := m.mapping[catKey{datasetID, categoryID}]
	return id, ok
}

// ResolveOrPlaceholder returns the mapped target category, synthesizing a
// clearly marked placeholder for annotations whose category does not exist
// anywhere. Data preservation with a visible defect beats silent loss.
func (m *CategoryMapper) ResolveOrPlaceholder(src *SourceDataset, categoryID uint) (uint, error) {
	key := catKey{src.Dataset.ID, categoryID}
	if id, ok := m.mapping[key]; ok {
		return id, nil
	}

	name := fmt.Sprintf("[MISSING]_%s_CategoryID_%d", src.Dataset.Name, categoryID)
	cocoID := int(categoryID) + int(src.Dataset.ID)*10000
	targetID, err := m.findOrCreateTarget(name, cocoID, nil)
	if err != nil {
		return 0, err
	}
	log.Printf("merge: created placeholder category %q for unresolvable category %d of dataset %d", name, categoryID, src.Dataset.ID)
	m.mapping[key] = targetID
	return targetID, nil
}

// findOrCreateTarget reuses a target category by name or creates one. The
// preferred COCO id is kept when free; otherwise the next free id is taken
// so the (dataset_id, coco_id) uniqueness of the target always holds.
func (m *CategoryMapper) findOrCreateTarget(name string, preferredCocoID int, supercategory *string) (uint, error) {
	if id, ok := m.targetByName[name]; ok {
		return id, nil
	}

	cocoID := preferredCocoID
	for m.usedCocoIDs[cocoID] {
		cocoID++
	}

	category := &models.Category{
		DatasetID:     m.targetID,
		CocoID:        cocoID,
		Name:          name,
		Supercategory: supercategory,
	}
	if err := m.categories.Create(category); err != nil {
		return 0, fmt.Errorf("failed to create target category %q: %w", name, err)
	}

	m.targetByName[name] = category.ID
	m.usedCocoIDs[cocoID] = true
	m.created++
	return category.ID, nil
}

// derivedCocoID generates a COCO id for a renamed or separated category,
// keeping ids from different source datasets apart without a global counter.
func (m *CategoryMapper) derivedCocoID(src *SourceDataset, cat models.Category) int {
	return cat.CocoID + int(src.Dataset.ID)*10000
}

// Processed returns the number of source categories resolved during Build
func (m *CategoryMapper) Processed() int { return m.processed }

// Created returns the number of target categories created so far
func (m *CategoryMapper) Created() int { return m.created }

// findSupercategory looks up the supercategory of a source category by id
func findSupercategory(sources []*SourceDataset, categoryID uint) *string {
	for _, src := range sources {
		for _, cat := range src.Categories {
			if cat.ID == categoryID {
				return cat.Supercategory
			}
		}
	}
	return nil
}
