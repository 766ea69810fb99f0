package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/skryne/ragd/internal/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoad_DefaultIncludesTextAndMarkdown(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "text notes")
	writeFile(t, root, "guide.md", "markdown guide")
	writeFile(t, root, "binary.pdf", "not picked up")

	l, err := New(Config{Path: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs, err := l.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].ID != "guide.md" || docs[1].ID != "notes.txt" {
		t.Errorf("expected lexical order, got %s, %s", docs[0].ID, docs[1].ID)
	}
	if docs[1].Text != "text notes" {
		t.Errorf("unexpected content: %q", docs[1].Text)
	}
}

func TestLoad_NestedFilesUseRelativePathIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/dir/deep.txt", "deep text")

	l, _ := New(Config{Path: root})
	docs, err := l.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "sub/dir/deep.txt" {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestLoad_SkipsDotfilesAndDotDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden.txt", "hidden")
	writeFile(t, root, ".git/config.txt", "git internals")
	writeFile(t, root, "visible.txt", "visible")

	l, _ := New(Config{Path: root})
	docs, err := l.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "visible.txt" {
		t.Errorf("dotfiles must be skipped, got %+v", docs)
	}
}

func TestLoad_ExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "keep")
	writeFile(t, root, "drafts/skip.txt", "skip")

	l, _ := New(Config{Path: root, Exclude: []string{"drafts/**"}})
	docs, err := l.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "keep.txt" {
		t.Errorf("excluded files must be skipped, got %+v", docs)
	}
}

func TestList_ReportsMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "12345")

	l, _ := New(Config{Path: root})
	files, err := l.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	f := files[0]
	if f.Name != "a.txt" || f.SizeBytes != 5 || f.Modified.IsZero() {
		t.Errorf("unexpected file info: %+v", f)
	}
}

func TestLoad_MissingDirectoryErrors(t *testing.T) {
	l, _ := New(Config{Path: filepath.Join(t.TempDir(), "nope")})
	if _, err := l.Load(); err == nil {
		t.Error("expected error for missing directory")
	}
}
