package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

// FileCache stores JSON entries, one file per key. Entries whose checksum
// does not match, or that are older than MaxAge, are misses.
type FileCache[T any] struct {
	cacheDir string
	// MaxAge of zero keeps entries forever.
	MaxAge time.Duration
}

func NewFileCache[T any](dir string) *FileCache[T] {
	return &FileCache[T]{cacheDir: dir}
}

func (fc *FileCache[T]) GenerateKey(params ...any) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

// KeyForFiles identifies a set of input files by path, size and
// modification time, so that rewriting an input invalidates the entry.
// Missing files contribute their path only.
func (fc *FileCache[T]) KeyForFiles(paths []string, params ...any) string {
	all := make([]any, 0, len(paths)+len(params))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			all = append(all, p)
			continue
		}
		all = append(all, fmt.Sprintf("%s:%d:%d", p, info.Size(), info.ModTime().UnixNano()))
	}
	return fc.GenerateKey(append(all, params...)...)
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var entry CacheEntry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if fc.MaxAge > 0 && time.Since(entry.CreatedAt) > fc.MaxAge {
		return zero, false
	}
	sum, err := fc.calculateChecksum(entry.Data)
	if err != nil || entry.Checksum != sum {
		return zero, false
	}
	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	sum, err := fc.calculateChecksum(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	entry := CacheEntry[T]{
		Data:      data,
		CreatedAt: time.Now(),
		Checksum:  sum,
	}
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheFile := fc.path(key)
	tmpFile := cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

// Delete removes the entry for key. A missing entry is not an error.
func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}

func (fc *FileCache[T]) calculateChecksum(data T) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	hash := md5.Sum(jsonData)
	return hex.EncodeToString(hash[:]), nil
}
