package store

import (
	"fmt"
	"path"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	buildsDir    = "builds"
	currentName  = "current"
	manifestName = "manifest.json"
)

// NewBuildID returns a random identifier for a staging area.
func NewBuildID() (string, error) {
	id, err := gonanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 16)
	if err != nil {
		return "", fmt.Errorf("failed to generate build id: %w", err)
	}
	return id, nil
}

// GraphName is the object name of graph index inside a build.
func GraphName(index int) string {
	return fmt.Sprintf("graph_%d.json", index)
}

// BuildPrefix returns "<fingerprint>/builds/<buildID>".
func BuildPrefix(fingerprint, buildID string) string {
	return path.Join(BuildsPrefix(fingerprint), buildID)
}

// BuildsPrefix returns "<fingerprint>/builds".
func BuildsPrefix(fingerprint string) string {
	return path.Join(fingerprint, buildsDir)
}

// CurrentName returns "<fingerprint>/current", the pointer to the committed build.
func CurrentName(fingerprint string) string {
	return path.Join(fingerprint, currentName)
}

// ManifestName returns the manifest object name of a build.
func ManifestName(fingerprint, buildID string) string {
	return path.Join(BuildPrefix(fingerprint, buildID), manifestName)
}

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize elements.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// Tracker records which indices of a build have been put.
type Tracker struct {
	seen map[int]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[int]struct{})}
}

// Put records index. Negative indices are rejected.
func (t *Tracker) Put(index int) error {
	if index < 0 {
		return fmt.Errorf("negative graph index %d", index)
	}
	t.seen[index] = struct{}{}
	return nil
}

// Complete fails unless exactly the indices [0, count) have been put.
func (t *Tracker) Complete(count int) error {
	if len(t.seen) != count {
		return fmt.Errorf("%w: %d graphs put, manifest expects %d", ErrIncompleteBuild, len(t.seen), count)
	}
	for i := 0; i < count; i++ {
		if _, ok := t.seen[i]; !ok {
			return fmt.Errorf("%w: missing graph %d", ErrIncompleteBuild, i)
		}
	}
	return nil
}
