package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

const ext = ".json"

// ResultStore implements ports.ResultStore using the local filesystem.
// Every run is one JSON file in BasePath, rewritten atomically on Save.
type ResultStore struct {
	BasePath string

	mu sync.Mutex
}

// NewResultStore creates a store rooted at basePath.
// If basePath is empty, it defaults to ".junit5/runs".
func NewResultStore(basePath string) *ResultStore {
	if basePath == "" {
		basePath = filepath.Join(".junit5", "runs")
	}
	return &ResultStore{BasePath: basePath}
}

type runFile struct {
	RunID   string               `json:"run_id"`
	Records []ports.ResultRecord `json:"records"`
}

func (s *ResultStore) path(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id cannot be empty")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.BasePath, runID+ext), nil
}

func (s *ResultStore) read(path string) (runFile, error) {
	var run runFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return run, domain.ErrRunNotFound
		}
		return run, fmt.Errorf("failed to read run file: %w", err)
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("failed to unmarshal run %s: %w", path, err)
	}
	return run, nil
}

// Save appends rec to the run file of runID.
func (s *ResultStore) Save(_ context.Context, runID string, rec ports.ResultRecord) error {
	destPath, err := s.path(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.read(destPath)
	if err != nil && !errors.Is(err, domain.ErrRunNotFound) {
		return err
	}
	run.RunID = runID
	run.Records = append(run.Records, rec)
	return s.write(destPath, run)
}

// write replaces destPath through a temporary file in the same directory,
// so readers never observe a partial run.
func (s *ResultStore) write(destPath string, run runFile) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure results directory: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+run.RunID+"-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// cannot rename an open file on Windows
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns the results of runID in the order they were saved.
func (s *ResultStore) List(_ context.Context, runID string) ([]ports.ResultRecord, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return run.Records, nil
}

// Runs returns the stored run IDs, most recently written first.
func (s *ResultStore) Runs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	type entry struct {
		id      string
		modTime time.Time
	}
	var runs []entry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ext || strings.HasPrefix(name, "tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, entry{id: strings.TrimSuffix(name, ext), modTime: info.ModTime()})
	}
	slices.SortStableFunc(runs, func(a, b entry) int {
		return b.modTime.Compare(a.modTime)
	})

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	return ids, nil
}

// Delete removes the run file. Deleting an unknown run is not an error.
func (s *ResultStore) Delete(_ context.Context, runID string) error {
	path, err := s.path(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete run file: %w", err)
	}
	return nil
}
