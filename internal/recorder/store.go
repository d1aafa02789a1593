package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/lexiqai/speech-segmenter/internal/segmenter"
)

// segmentStore writes segments to temporary WAV files and removes them on
// cleanup.
type segmentStore struct {
	dir string

	mu    sync.Mutex
	paths []string
}

func newSegmentStore(dir string) *segmentStore {
	return &segmentStore{dir: dir}
}

func (st *segmentStore) save(seg *segmenter.Segment) (string, error) {
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create segment directory: %w", err)
	}

	path := filepath.Join(st.dir, fmt.Sprintf("segment_%s.wav", uuid.NewString()))
	if err := os.WriteFile(path, seg.WAV(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write segment: %w", err)
	}

	st.mu.Lock()
	st.paths = append(st.paths, path)
	st.mu.Unlock()
	return path, nil
}

func (st *segmentStore) removeAll() error {
	st.mu.Lock()
	paths := st.paths
	st.paths = nil
	st.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
