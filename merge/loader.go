package merge

import (
	"fmt"

	"github.com/jmestanza/tag-editor/repository"
)

// LoadSources loads every source dataset with its categories, images and
// annotations. Sources are read-only for the remainder of the run; the
// returned slice preserves the request order, which fixes the iteration
// order for conflict indexing and duplicate grouping.
func LoadSources(datasets repository.DatasetRepositoryInterface, ids []uint) ([]*SourceDataset, error) {
	sources := make([]*SourceDataset, 0, len(ids))
	for _, id := range ids {
		ds, err := datasets.GetWithContents(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load source dataset %d: %w", id, err)
		}

		src := &SourceDataset{
			Dataset:    *ds,
			Categories: ds.Categories,
			Images:     ds.Images,
		}
		for i := range src.Images {
			src.AnnotationTotal += len(src.Images[i].Annotations)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
