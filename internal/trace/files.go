package trace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileExt is the extension of trace files.
const FileExt = ".jsonl"

const modifiedLayout = "2006-01-02 15:04:05"

var (
	// ErrInvalidFileName is returned for names that are not plain trace file names.
	ErrInvalidFileName = errors.New("invalid trace file name")
	// ErrOutsideDir is returned when a name resolves outside the trace directory.
	ErrOutsideDir = errors.New("trace file outside trace directory")
)

// FileInfo describes a trace file available for viewing.
type FileInfo struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	Modified string `json:"modified"`
	Path     string `json:"path"`

	SizeBytes  int64     `json:"-"`
	ModifiedAt time.Time `json:"-"`
}

// ListFiles returns the trace files in dir, newest name first. A missing
// directory yields an empty list.
func ListFiles(dir string) ([]FileInfo, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("list trace files: %w", err)
	}

	files := make([]FileInfo, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if !strings.HasSuffix(name, FileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat trace file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		modified := info.ModTime().UTC()
		files = append(files, FileInfo{
			Name:       name,
			Size:       FormatFileSize(info.Size()),
			Modified:   modified.Format(modifiedLayout),
			Path:       path,
			SizeBytes:  info.Size(),
			ModifiedAt: modified,
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// ResolveFile maps a trace file name to an existing file inside dir. It
// returns ErrInvalidFileName for names without the .jsonl extension,
// fs.ErrNotExist when no such file exists, and ErrOutsideDir when the name or
// a symlink it points through escapes dir.
func ResolveFile(dir, name string) (string, error) {
	if !strings.HasSuffix(name, FileExt) {
		return "", fmt.Errorf("%w: %q must end in %s", ErrInvalidFileName, name, FileExt)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve trace directory: %w", err)
	}
	path := filepath.Join(root, name)
	if !within(root, path) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("trace file %q: %w", name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("trace file %q: %w", name, fs.ErrNotExist)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve trace directory: %w", err)
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolve trace file %q: %w", name, err)
	}
	if !within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	return realPath, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with one decimal in base-1024 units.
func FormatFileSize(size int64) string {
	value := float64(size)
	for _, unit := range sizeUnits {
		if value < 1024.0 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f TB", value)
}
