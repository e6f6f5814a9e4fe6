// media/types.go
package media

import (
	"fmt"
	"path"
	"strings"
)

// ImageProcessingOptions can hold parameters for transformations
type ImageProcessingOptions struct {
	MaxSize int
	Quality int
	Format  string // defaults to jpeg
}

// DatasetPrefix returns the object-store prefix under which all assets of a
// dataset live. Deleting a dataset removes everything below this prefix.
func DatasetPrefix(datasetID uint) string {
	return fmt.Sprintf("datasets/%d", datasetID)
}

// ImageKey returns the object-store key for an image's original binary.
func ImageKey(datasetID uint, fileName string) string {
	return fmt.Sprintf("datasets/%d/images/%s", datasetID, path.Base(fileName))
}

// ThumbnailKey returns the object-store key for an image's thumbnail. The
// key is derived from the image filename so a merge can transform source
// thumbnail keys into target keys deterministically.
func ThumbnailKey(datasetID uint, fileName string) string {
	base := path.Base(fileName)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return fmt.Sprintf("datasets/%d/thumbnails/%s.jpg", datasetID, base)
}
