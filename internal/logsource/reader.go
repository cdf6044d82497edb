// Package logsource reads and maintains the pipe-delimited services log.
// Each line is "timestamp|service|category|severity|message"; malformed
// lines are skipped rather than failing a sweep.
package logsource

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/utils"
)

// Reader tails the services log. Only the newest window of lines is
// consulted per sweep; older lines are assumed to have been seen already.
type Reader struct {
	path   string
	window int
	logger *slog.Logger
}

// NewReader constructs a Reader over the log at path returning at most
// window lines per read.
func NewReader(logger *slog.Logger, path string, window int) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 50
	}
	return &Reader{path: path, window: window, logger: logger}
}

// ReadWindow returns the parsed tail of the log, oldest first. A missing
// log file is not an error: the producer may simply not have started yet.
func (r *Reader) ReadWindow() ([]models.LogLine, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("services log not found", slog.String("path", r.path))
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var raw []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw = append(raw, scanner.Text())
		if len(raw) > r.window {
			raw = raw[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	lines := make([]models.LogLine, 0, len(raw))
	for _, text := range raw {
		line, ok := ParseLine(text)
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ParseLine decodes one pipe-delimited log line. Lines with the wrong field
// count or an unparseable timestamp are rejected.
func ParseLine(text string) (models.LogLine, bool) {
	parts := strings.Split(strings.TrimSpace(text), "|")
	if len(parts) != 5 {
		return models.LogLine{}, false
	}
	ts, err := utils.ParseLogTime(parts[0])
	if err != nil {
		return models.LogLine{}, false
	}
	return models.LogLine{
		Timestamp: ts,
		Service:   parts[1],
		Category:  parts[2],
		Severity:  models.Severity(parts[3]),
		Message:   parts[4],
	}, true
}

// FormatLine encodes a log line in the pipe-delimited wire format.
func FormatLine(line models.LogLine) string {
	return strings.Join([]string{
		line.Timestamp.Format(utils.LogTimeLayout),
		line.Service,
		line.Category,
		string(line.Severity),
		line.Message,
	}, "|")
}
