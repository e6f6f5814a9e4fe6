package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultArchivesSubDir = "dataset_archives"
)

const (
	defaultThumbnailQueueSize  = 200
	defaultNumThumbnailWorkers = 4
	defaultThumbnailMaxSize    = 300
	defaultMergeTxTimeoutMin   = 10
	defaultProgressTTLMin      = 30
)

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // root of the local object store (images, thumbnails)
	ArchivesPath     string // full-calculated path for export archives

	// thumbnail generation settings
	ThumbnailMaxSize int

	// worker settings
	ThumbnailQueueSize  int
	NumThumbnailWorkers int

	// merge settings
	MergeTxTimeout time.Duration // record-store transaction ceiling for one merge
	ProgressTTL    time.Duration // eviction delay for completed merge progress entries
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "datasets.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	archiveSubDir := getEnvOrDefault("ARCHIVES_SUBDIR", DefaultArchivesSubDir)
	absArchivesPath := filepath.Join(absMediaStorage, archiveSubDir)

	thumbMaxSize := getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize)

	queueSize := getEnvIntOrDefault("THUMBNAIL_QUEUE_SIZE", defaultThumbnailQueueSize)
	numWorkers := getEnvIntOrDefault("NUM_THUMBNAIL_WORKERS", defaultNumThumbnailWorkers)

	mergeTimeoutMin := getEnvIntOrDefault("MERGE_TX_TIMEOUT_MINUTES", defaultMergeTxTimeoutMin)
	progressTTLMin := getEnvIntOrDefault("MERGE_PROGRESS_TTL_MINUTES", defaultProgressTTLMin)

	cfg := Config{
		DatabasePath:        dbPath,
		MediaStoragePath:    absMediaStorage,
		ArchivesPath:        absArchivesPath,
		ThumbnailMaxSize:    thumbMaxSize,
		ThumbnailQueueSize:  queueSize,
		NumThumbnailWorkers: numWorkers,
		MergeTxTimeout:      time.Duration(mergeTimeoutMin) * time.Minute,
		ProgressTTL:         time.Duration(progressTTLMin) * time.Minute,
	}

	return cfg, nil
}
