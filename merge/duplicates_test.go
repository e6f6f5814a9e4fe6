package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmestanza/tag-editor/models"
)

func imageNamed(name string, annotationCount int) models.Image {
	img := models.Image{FileName: name}
	for i := 0; i < annotationCount; i++ {
		img.Annotations = append(img.Annotations, models.Annotation{})
	}
	return img
}

func TestResolveDuplicateImagesSingletonsSurvive(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("a.jpg", 0), imageNamed("b.jpg", 0)}
	b := sourceWith(2, "setB")
	b.Images = []models.Image{imageNamed("c.jpg", 0)}

	survivors, warnings, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateSkip)
	require.NoError(t, err)
	assert.Len(t, survivors, 3)
	assert.Empty(t, warnings)
}

func TestDuplicateSkipKeepsFirstOccurrence(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("shared.jpg", 0)}
	b := sourceWith(2, "setB")
	b.Images = []models.Image{imageNamed("shared.jpg", 0)}

	survivors, warnings, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateSkip)
	require.NoError(t, err)

	require.Len(t, survivors, 1)
	assert.Equal(t, uint(1), survivors[0].Source.Dataset.ID)
	assert.Equal(t, "shared.jpg", survivors[0].FinalFileName)

	require.Len(t, warnings, 1)
	assert.Equal(t, "shared.jpg", warnings[0].FileName)
	assert.Equal(t, 2, warnings[0].Count)
	assert.Equal(t, "setA", warnings[0].SelectedDataset)
	assert.Equal(t, []string{"setA", "setB"}, warnings[0].SourceDatasets)
}

func TestDuplicateRenameKeepsEveryOccurrence(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("shared.jpg", 0)}
	b := sourceWith(2, "set B")
	b.Images = []models.Image{imageNamed("shared.jpg", 0)}

	survivors, warnings, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateRename)
	require.NoError(t, err)

	require.Len(t, survivors, 2)
	assert.Equal(t, "shared.jpg", survivors[0].FinalFileName)
	assert.Equal(t, "shared_set_B.jpg", survivors[1].FinalFileName, "later occurrences get the dataset name, spaces replaced")
	require.Len(t, warnings, 1)
}

func TestDuplicateOverwriteKeepsLastOccurrence(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("shared.jpg", 5)}
	b := sourceWith(2, "setB")
	b.Images = []models.Image{imageNamed("shared.jpg", 0)}

	survivors, _, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateOverwrite)
	require.NoError(t, err)
	require.Len(t, survivors, 1)
	assert.Equal(t, uint(2), survivors[0].Source.Dataset.ID)
}

func TestDuplicateKeepBestAnnotatedPrefersMoreAnnotations(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("shared.jpg", 1)}
	b := sourceWith(2, "setB")
	b.Images = []models.Image{imageNamed("shared.jpg", 3)}

	survivors, warnings, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateKeepBestAnnotated)
	require.NoError(t, err)
	require.Len(t, survivors, 1)
	assert.Equal(t, uint(2), survivors[0].Source.Dataset.ID)
	require.Len(t, warnings, 1)
	assert.Equal(t, "setB", warnings[0].SelectedDataset)
}

func TestDuplicateKeepBestAnnotatedTieBreaksOnDatasetTotal(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("shared.jpg", 2)}
	a.AnnotationTotal = 10
	b := sourceWith(2, "setB")
	b.Images = []models.Image{imageNamed("shared.jpg", 2)}
	b.AnnotationTotal = 50

	survivors, _, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateKeepBestAnnotated)
	require.NoError(t, err)
	require.Len(t, survivors, 1)
	assert.Equal(t, uint(2), survivors[0].Source.Dataset.ID, "equal per-image counts fall back to the dataset total")
}

func TestResolveDuplicateImagesRejectsUnknownStrategy(t *testing.T) {
	a := sourceWith(1, "setA")
	a.Images = []models.Image{imageNamed("shared.jpg", 0)}
	b := sourceWith(2, "setB")
	b.Images = []models.Image{imageNamed("shared.jpg", 0)}

	_, _, err := ResolveDuplicateImages([]*SourceDataset{a, b}, DuplicateImageStrategy("bogus"))
	assert.Error(t, err)
}

func TestDisambiguateFileName(t *testing.T) {
	assert.Equal(t, "img_setB.jpg", disambiguateFileName("img.jpg", "setB"))
	assert.Equal(t, "img_my_set.png", disambiguateFileName("img.png", "my set"))
	assert.Equal(t, "noext_setB", disambiguateFileName("noext", "setB"))
}
