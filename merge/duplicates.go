package merge

import (
	"fmt"
	"path"
	"strings"
)

// imageEntry pairs one source image with the dataset it came from.
type imageEntry struct {
	Source *SourceDataset
	Index  int // index into Source.Images
}

// Survivor is one image that will be copied into the target dataset under
// FinalFileName.
type Survivor struct {
	Source        *SourceDataset
	ImageIndex    int
	FinalFileName string
}

// ResolveDuplicateImages groups every source image by filename and applies
// the strategy to each group with more than one member. Singleton groups
// bypass resolution and always survive. Iteration follows source order, so
// the outcome is deterministic for a given request.
func ResolveDuplicateImages(sources []*SourceDataset, strategy DuplicateImageStrategy) ([]Survivor, []DuplicateWarning, error) {
	groupIndex := make(map[string]int)
	var order []string
	groups := make(map[string][]imageEntry)

	for _, src := range sources {
		for i := range src.Images {
			name := src.Images[i].FileName
			if _, ok := groupIndex[name]; !ok {
				groupIndex[name] = len(order)
				order = append(order, name)
			}
			groups[name] = append(groups[name], imageEntry{Source: src, Index: i})
		}
	}

	var survivors []Survivor
	var warnings []DuplicateWarning

	for _, name := range order {
		group := groups[name]
		if len(group) == 1 {
			survivors = append(survivors, Survivor{
				Source:        group[0].Source,
				ImageIndex:    group[0].Index,
				FinalFileName: name,
			})
			continue
		}

		resolved, warning, err := resolveGroup(name, group, strategy)
		if err != nil {
			return nil, nil, err
		}
		survivors = append(survivors, resolved...)
		warnings = append(warnings, warning)
	}

	return survivors, warnings, nil
}

// resolveGroup applies one strategy to a filename group with >1 member
func resolveGroup(fileName string, group []imageEntry, strategy DuplicateImageStrategy) ([]Survivor, DuplicateWarning, error) {
	warning := DuplicateWarning{
		FileName: fileName,
		Count:    len(group),
	}
	for _, e := range group {
		warning.SourceDatasets = append(warning.SourceDatasets, e.Source.Dataset.Name)
	}

	switch strategy {
	case DuplicateSkip:
		chosen := group[0]
		warning.SelectedDataset = chosen.Source.Dataset.Name
		warning.Reason = fmt.Sprintf("kept first occurrence from %q, skipped %d duplicate(s)", chosen.Source.Dataset.Name, len(group)-1)
		return []Survivor{{Source: chosen.Source, ImageIndex: chosen.Index, FinalFileName: fileName}}, warning, nil

	case DuplicateRename:
		survivors := make([]Survivor, 0, len(group))
		for i, e := range group {
			finalName := fileName
			if i > 0 {
				finalName = disambiguateFileName(fileName, e.Source.Dataset.Name)
			}
			survivors = append(survivors, Survivor{Source: e.Source, ImageIndex: e.Index, FinalFileName: finalName})
		}
		warning.Reason = fmt.Sprintf("kept all %d occurrences, renamed %d", len(group), len(group)-1)
		return survivors, warning, nil

	case DuplicateOverwrite:
		// deterministic last-member choice in source iteration order, not a
		// runtime race: "overwrite" describes intent relative to an earlier
		// same-named image
		chosen := group[len(group)-1]
		warning.SelectedDataset = chosen.Source.Dataset.Name
		warning.Reason = fmt.Sprintf("kept last occurrence from %q, overwriting %d earlier one(s)", chosen.Source.Dataset.Name, len(group)-1)
		return []Survivor{{Source: chosen.Source, ImageIndex: chosen.Index, FinalFileName: fileName}}, warning, nil

	case DuplicateKeepBestAnnotated:
		chosen := group[0]
		for _, e := range group[1:] {
			if betterAnnotated(e, chosen) {
				chosen = e
			}
		}
		warning.SelectedDataset = chosen.Source.Dataset.Name
		warning.Reason = fmt.Sprintf("kept occurrence from %q with %d annotation(s)", chosen.Source.Dataset.Name, len(chosen.Source.Images[chosen.Index].Annotations))
		return []Survivor{{Source: chosen.Source, ImageIndex: chosen.Index, FinalFileName: fileName}}, warning, nil
	}

	return nil, DuplicateWarning{}, fmt.Errorf("unknown duplicate image strategy %q", strategy)
}

// betterAnnotated reports whether candidate beats current: more annotations
// on the image itself, ties broken by the whole source dataset's annotation
// total — a proxy for the more completely annotated source.
func betterAnnotated(candidate, current imageEntry) bool {
	cand := len(candidate.Source.Images[candidate.Index].Annotations)
	curr := len(current.Source.Images[current.Index].Annotations)
	if cand != curr {
		return cand > curr
	}
	return candidate.Source.AnnotationTotal > current.Source.AnnotationTotal
}

// disambiguateFileName appends the dataset name before the extension:
// img.jpg → img_datasetB.jpg
func disambiguateFileName(fileName, datasetName string) string {
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	safe := strings.ReplaceAll(datasetName, " ", "_")
	return fmt.Sprintf("%s_%s%s", base, safe, ext)
}
