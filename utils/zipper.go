package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ArchiveEntry describes one file placed into a dataset archive.
type ArchiveEntry struct {
	// Name is the path inside the zip (e.g. "images/img001.jpg")
	Name string
	// Open yields the entry's content; the zipper closes the reader
	Open func() (io.ReadCloser, error)
}

// CreateDatasetArchive builds a ZIP archive from the given entries and saves
// it under archiveSaveDir with a unique name.
// Returns: full path of the archive, size in bytes, error.
func CreateDatasetArchive(archiveSaveDir string, entries []ArchiveEntry) (string, int64, error) {
	if err := os.MkdirAll(archiveSaveDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create zip save directory %s: %w", archiveSaveDir, err)
	}

	timestamp := time.Now().Unix()
	archiveUUID, _ := uuid.NewRandom()
	zipFilename := fmt.Sprintf("dataset_%d_%s.zip", timestamp, archiveUUID.String()[:8])
	zipFilePath := filepath.Join(archiveSaveDir, zipFilename)

	zipFile, err := os.Create(zipFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create zip file %s: %w", zipFilePath, err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	foundFiles := false
	for _, entry := range entries {
		reader, err := entry.Open()
		if err != nil {
			log.Printf("zipper: Failed to open %s for zipping: %v. Skipping.", entry.Name, err)
			continue
		}

		writer, err := zipWriter.Create(entry.Name)
		if err != nil {
			reader.Close()
			log.Printf("zipper: Failed to create entry in zip for %s: %v. Skipping.", entry.Name, err)
			continue
		}

		_, err = io.Copy(writer, reader)
		reader.Close()
		if err != nil {
			log.Printf("zipper: Failed to write %s to zip: %v. Skipping.", entry.Name, err)
			continue
		}
		foundFiles = true
	}

	if !foundFiles {
		zipWriter.Close()
		zipFile.Close()
		os.Remove(zipFilePath)
		return "", 0, fmt.Errorf("no entries available to archive")
	}

	if err := zipWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize zip writer for %s: %w", zipFilePath, err)
	}

	zipInfo, err := os.Stat(zipFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat created zip file %s: %w", zipFilePath, err)
	}

	log.Printf("Successfully created dataset archive: %s (Size: %d bytes)", zipFilePath, zipInfo.Size())
	return zipFilePath, zipInfo.Size(), nil
}
