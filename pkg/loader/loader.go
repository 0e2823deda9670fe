package loader

import (
	"context"
	"sort"
)

// SourceFile is one columnar event file produced by the upstream
// reconstruction pipeline. The content is retrieved through Loader, so the
// same file description works for local disks and object storage.
type SourceFile struct {
	ID       string
	FilePath string
	Loader   SourceLoader
}

// NewSourceFileParams defines the input parameters for creating a new
// SourceFile.
type NewSourceFileParams struct {
	ID       string
	FilePath string
	Loader   SourceLoader
}

// NewSourceFile creates a SourceFile. When ID is empty the file path is used.
func NewSourceFile(params NewSourceFileParams) SourceFile {
	id := params.ID
	if id == "" {
		id = params.FilePath
	}
	return SourceFile{
		ID:       id,
		FilePath: params.FilePath,
		Loader:   params.Loader,
	}
}

// GetBytes retrieves the raw content of the file using its Loader.
//
// Example:
//
//	data, err := file.GetBytes(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
func (f *SourceFile) GetBytes(ctx context.Context) ([]byte, error) {
	return f.Loader.GetFileBytes(ctx, *f)
}

// SourceLoader defines the interface for loading the contents of a SourceFile.
// Implementations may load files from disk, cloud storage, or other sources.
type SourceLoader interface {
	GetFileBytes(ctx context.Context, file SourceFile) ([]byte, error)
}

// CacheKey identifies a file inside a loader cache.
func CacheKey(file SourceFile) string {
	return file.ID + ":" + file.FilePath
}

// SortByID orders files by ID so discovery order never depends on the
// listing order of the backend.
func SortByID(files []SourceFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ID < files[j].ID
	})
}
