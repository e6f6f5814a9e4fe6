package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Store defines the interface for saving, retrieving, copying, and deleting
// binary assets addressed by slash-separated keys
type Store interface {
	// Save stores data from reader under the given key and returns the key
	Save(key string, data io.Reader) (string, error)
	// Get retrieves a reader for an asset
	Get(key string) (io.ReadCloser, os.FileInfo, error)
	// Copy duplicates the object at srcKey to dstKey
	Copy(srcKey, dstKey string) error
	// Delete removes an asset; deleting a missing key is not an error
	Delete(key string) error
	// Exists reports whether an object is present under the key
	Exists(key string) (bool, error)
	// List returns all keys under the given prefix
	List(prefix string) ([]string, error)
	// GetFullPath returns the absolute filesystem path for a key
	GetFullPath(key string) (string, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath string // absolute path to the MEDIA_STORAGE_PATH
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	log.Printf("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{basePath: absBasePath}, nil
}

// Save data to the store under key, creating parent directories as needed
func (ls *LocalStorage) Save(key string, data io.Reader) (string, error) {
	fullSavePath, err := ls.GetFullPath(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullSavePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for '%s': %w", key, err)
	}

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, data)
	if err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}

	return key, nil
}

func (ls *LocalStorage) Get(key string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(key)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", key, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", key, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", key, err)
	}

	return file, info, nil
}

// Copy duplicates the object at srcKey to dstKey
func (ls *LocalStorage) Copy(srcKey, dstKey string) error {
	reader, _, err := ls.Get(srcKey)
	if err != nil {
		return fmt.Errorf("failed to open copy source '%s': %w", srcKey, err)
	}
	defer reader.Close()

	if _, err := ls.Save(dstKey, reader); err != nil {
		return fmt.Errorf("failed to copy '%s' to '%s': %w", srcKey, dstKey, err)
	}
	return nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(key string) error {
	fullPath, err := ls.GetFullPath(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // If GetFullPath determines it doesn't exist, treat as success
		}
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // Ignore "not exist" errors
		return fmt.Errorf("failed to delete asset '%s': %w", key, err)
	}
	if err == nil {
		log.Printf("media.store: Deleted asset %s", fullPath)
	}
	return nil
}

// Exists reports whether an object is present under the key
func (ls *LocalStorage) Exists(key string) (bool, error) {
	fullPath, err := ls.GetFullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat asset '%s': %w", key, err)
	}
	return true, nil
}

// List returns all keys under prefix, in slash form
func (ls *LocalStorage) List(prefix string) ([]string, error) {
	prefixPath, err := ls.GetFullPath(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(prefixPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(ls.basePath, path)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list assets under '%s': %w", prefix, err)
	}
	return keys, nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(key string) (string, error) {
	// clean the key first to prevent simple traversal tricks
	cleanKey := filepath.Clean(filepath.FromSlash(key))

	fullPath := filepath.Join(ls.basePath, cleanKey)

	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", key, err)
	}

	if !strings.HasPrefix(absFullPath, ls.basePath) {
		return "", fmt.Errorf("invalid key: access denied for '%s'", key)
	}

	return absFullPath, nil
}
