// Package loader reads the plain-text document corpus from disk. Format
// parsing (PDF, Office) is out of scope; anything the loader picks up is
// treated as UTF-8 text with its relative path as the document id.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skryne/ragd/internal/domain"
)

// DefaultInclude selects the file types ingested when config names none.
func DefaultInclude() []string {
	return []string{"**/*.txt", "**/*.md"}
}

// Config holds the corpus location and glob filters. Globs match the path
// relative to Path, with doublestar `**` patterns.
type Config struct {
	Path    string
	Include []string
	Exclude []string
}

// Loader scans one directory tree for corpus documents.
type Loader struct {
	root     string
	includes []string
	excludes []string
}

// FileInfo describes one corpus file for listings.
type FileInfo struct {
	Name      string
	SizeBytes int64
	Modified  time.Time
}

// New validates the configuration and returns a loader. The directory itself
// is checked lazily at scan time, so the service can start before the first
// document lands.
func New(cfg Config) (*Loader, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("documents path is required: %w", domain.ErrInvalidConfig)
	}
	includes := cfg.Include
	if len(includes) == 0 {
		includes = DefaultInclude()
	}
	return &Loader{root: cfg.Path, includes: includes, excludes: cfg.Exclude}, nil
}

// Load reads every matching file and returns documents in deterministic
// (lexical path) order. Dotfiles and dot-directories are always skipped.
func (l *Loader) Load() ([]domain.Document, error) {
	var docs []domain.Document
	err := l.walk(func(path, rel string, _ fs.DirEntry) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		docs = append(docs, domain.Document{ID: rel, Text: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// List returns metadata for every matching file without reading contents.
func (l *Loader) List() ([]FileInfo, error) {
	var files []FileInfo
	err := l.walk(func(_, rel string, entry fs.DirEntry) error {
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		files = append(files, FileInfo{Name: rel, SizeBytes: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (l *Loader) walk(visit func(path, rel string, entry fs.DirEntry) error) error {
	err := filepath.WalkDir(l.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." && (strings.HasPrefix(entry.Name(), ".") || l.excluded(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		if !l.included(rel) || l.excluded(rel) {
			return nil
		}
		return visit(path, rel, entry)
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", l.root, err)
	}
	return nil
}

func (l *Loader) included(rel string) bool {
	for _, pattern := range l.includes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (l *Loader) excluded(rel string) bool {
	for _, pattern := range l.excludes {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
