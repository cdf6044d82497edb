package logsource

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archiver bundles rotated log files into timestamped tar.gz archives so
// the logs directory stays small. The live services log is never touched.
type Archiver struct {
	logsDir       string
	retentionDays int
	logger        *slog.Logger

	now func() time.Time
}

// NewArchiver constructs an Archiver over logsDir keeping files younger
// than retentionDays.
func NewArchiver(logger *slog.Logger, logsDir string, retentionDays int) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Archiver{
		logsDir:       logsDir,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Archive collects .log files older than the retention window into a
// single archive under <logsDir>/archive and removes the originals. It
// returns the number of files archived.
func (a *Archiver) Archive() (int, error) {
	cutoff := a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	var old []string
	err := filepath.Walk(a.logsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "archive" && path != a.logsDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := info.Name()
		if !strings.HasSuffix(name, ".log") || name == "services.log" {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan logs dir: %w", err)
	}

	if len(old) == 0 {
		a.logger.Debug("no logs to archive")
		return 0, nil
	}

	archiveDir := filepath.Join(a.logsDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	archivePath := filepath.Join(archiveDir,
		fmt.Sprintf("logs_archive_%s.tar.gz", a.now().Format("20060102150405")))
	if err := writeTarGz(archivePath, old); err != nil {
		return 0, err
	}

	for _, path := range old {
		if err := os.Remove(path); err != nil {
			a.logger.Warn("cannot remove archived log",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}

	a.logger.Info("archived old logs",
		slog.Int("files", len(old)),
		slog.String("archive", archivePath))
	return len(old), nil
}

func writeTarGz(dest string, files []string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range files {
		if err := addToTar(tw, path); err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}
	}
	return nil
}

func addToTar(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
