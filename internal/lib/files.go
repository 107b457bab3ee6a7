package lib

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GetFileModTime returns a file's modification time, or the zero time if the
// file cannot be stat'ed
func GetFileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// CountFilesWithSuffix counts regular files in dir whose name carries the
// given suffix (case-insensitive). A missing directory counts as zero.
func CountFilesWithSuffix(dir string, suffix string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	count := 0
	suffix = strings.ToLower(suffix)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), suffix) {
			count++
		}
	}
	return count
}

// ListSubdirsSorted returns the names of immediate subdirectories of dir in
// lexical order. A missing directory yields an empty list.
func ListSubdirsSorted(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	// os.ReadDir already sorts by name
	return names
}

// FileExists reports whether path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// EnsureDir creates a directory and its parents
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Clean(path), 0755)
}
