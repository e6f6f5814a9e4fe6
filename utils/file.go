package utils

import (
	"path/filepath"
	"strings"
)

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// SanitizeFileName strips any directory components and rejects traversal
// tricks, returning just a safe base name.
func SanitizeFileName(name string) string {
	base := filepath.Base(filepath.ToSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return ""
	}
	return base
}
