package io

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/decaygraph/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// IOSourceLoader loads files directly from the local filesystem with caching.
type IOSourceLoader struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIOSourceLoader creates a new filesystem-based file loader.
func NewIOSourceLoader() *IOSourceLoader {
	return &IOSourceLoader{
		cache: make(map[string][]byte),
	}
}

// GetFileBytes reads the file content from the filesystem. Results are cached.
func (l *IOSourceLoader) GetFileBytes(ctx context.Context, file loader.SourceFile) ([]byte, error) {
	key := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := os.ReadFile(file.FilePath)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Discover walks root recursively and returns every file with the given
// extension, sorted by ID. The ID is the path relative to root.
func (l *IOSourceLoader) Discover(root string, ext string) ([]loader.SourceFile, error) {
	var files []loader.SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, loader.NewSourceFile(loader.NewSourceFileParams{
			ID:       filepath.ToSlash(rel),
			FilePath: path,
			Loader:   l,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	loader.SortByID(files)
	return files, nil
}
