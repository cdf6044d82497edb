package logsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/remedystack/remedy-engine/internal/models"
)

// Writer appends log lines to the services log. Appends are serialized so
// concurrent producers never interleave partial lines.
type Writer struct {
	path string

	mu sync.Mutex
}

// NewWriter constructs a Writer for the log at path, creating the parent
// directory when needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Writer{path: path}, nil
}

// Append writes one line to the end of the log.
func (w *Writer) Append(line models.LogLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log for append: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(line) + "\n"); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}
