package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/intervox/pkg/types"
)

// Store persists interview reports. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveReport(ctx context.Context, r types.Report) error
}

// FileStore persists reports as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore that appends to path. The file and its
// parent directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// SaveReport appends r as one JSON line.
func (s *FileStore) SaveReport(ctx context.Context, r types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("feedback: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}

// Reports reads every report in the file in write order. A missing file
// yields an empty result.
func (s *FileStore) Reports() ([]types.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	var out []types.Report
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r types.Report
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("feedback: line %d: %w", line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("feedback: read file: %w", err)
	}
	return out, nil
}
