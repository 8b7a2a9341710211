package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Manager lays out downloaded page artifacts on disk under
// root/{lccn}/{year}/{month}/. Writes go through a temp file and an
// atomic rename, so a killed download never leaves a partial artifact
// under its final name.
type Manager struct {
	rootDir string
}

// NewManager creates a storage manager rooted at the given directory
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &Manager{rootDir: rootDir}, nil
}

// RootDir returns the download root
func (m *Manager) RootDir() string {
	return m.rootDir
}

// SanitizeItemID makes an item id safe for use as a filename
func SanitizeItemID(itemID string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return replacer.Replace(itemID)
}

// PageDir returns the directory for a page's artifacts. Dates too short
// to carry a year or month fall back to "unknown" segments.
func (m *Manager) PageDir(lccn, date string) string {
	year, month := "unknown", "unknown"
	if len(date) >= 4 {
		year = date[:4]
	}
	if len(date) >= 7 {
		month = date[5:7]
	}
	return filepath.Join(m.rootDir, lccn, year, month)
}

// ArtifactPath returns the full path for one artifact of a page, e.g.
// suffix ".pdf" or "_ocr.txt"
func (m *Manager) ArtifactPath(lccn, date, itemID, suffix string) string {
	return filepath.Join(m.PageDir(lccn, date), SanitizeItemID(itemID)+suffix)
}

// Exists reports whether a non-empty file is already present at path.
// Zero-byte files are leftovers from interrupted downloads and do not
// count.
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Save writes the reader to path via a temp file and atomic rename,
// returning the number of bytes written
func (m *Manager) Save(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tempPath := path + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	written, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempPath)
		return written, fmt.Errorf("failed to write artifact: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return written, fmt.Errorf("failed to close artifact file: %w", closeErr)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return written, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return written, nil
}

// Remove deletes an artifact, ignoring files that are already gone
func (m *Manager) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// DiskUsage walks the download tree and returns total bytes and file
// count
func (m *Manager) DiskUsage() (int64, int, error) {
	var bytes int64
	var files int
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			bytes += info.Size()
			files++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	return bytes, files, err
}

// CleanIncomplete removes zero-byte files and orphaned temp files left
// behind by interrupted downloads. Returns the number of files removed.
func (m *Manager) CleanIncomplete() (int, error) {
	removed := 0
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.Size() == 0 || strings.HasSuffix(path, ".tmp") {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return removed, nil
	}
	return removed, err
}
