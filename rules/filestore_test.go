package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDoc(t *testing.T, dir, file, docName, version, ruleName string) {
	t.Helper()
	raw := fmt.Sprintf(`{
		"name": %q, "version": %q,
		"rules": {%q: {"type": "formula", "formula": "1"}}
	}`, docName, version, ruleName)
	if err := os.WriteFile(filepath.Join(dir, file), []byte(raw), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func TestFileStoreLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "scoring.json", "scoring", "1.0.0", "score")
	writeDoc(t, dir, "scoring_v2.json", "scoring", "2.0.0", "score")
	// Non-JSON files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewFileDocumentStore(dir)
	if err != nil {
		t.Fatalf("NewFileDocumentStore() failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Get("scoring", "1.0.0"); err != nil {
		t.Errorf("Get(1.0.0) failed: %v", err)
	}
	versions, err := store.ListVersions("score")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("ListVersions() = %v, want 2 versions", versions)
	}
}

func TestFileStoreRejectsInvalidDocumentAtStartup(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "good.json", "scoring", "1.0.0", "score")
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"name": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileDocumentStore(dir); err == nil {
		t.Fatal("NewFileDocumentStore() should refuse a directory with an invalid document")
	}
}

func TestFileStoreWatchPicksUpNewVersions(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "scoring.json", "scoring", "1.0.0", "score")

	store, err := NewFileDocumentStore(dir)
	if err != nil {
		t.Fatalf("NewFileDocumentStore() failed: %v", err)
	}
	defer store.Close()

	if err := store.Watch(); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	writeDoc(t, dir, "scoring_v2.json", "scoring", "2.0.0", "score")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := store.Get("scoring", "2.0.0"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("new document version never became visible")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// The original version is untouched.
	if _, err := store.Get("scoring", "1.0.0"); err != nil {
		t.Errorf("Get(1.0.0) after watch reload failed: %v", err)
	}
}

func TestFileStoreWatchNeverHotSwaps(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "scoring.json", "scoring", "1.0.0", "score")

	store, err := NewFileDocumentStore(dir)
	if err != nil {
		t.Fatalf("NewFileDocumentStore() failed: %v", err)
	}
	defer store.Close()

	if err := store.Watch(); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	original, err := store.Get("scoring", "1.0.0")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	// Rewriting the same (name, version) with a different definition
	// must be ignored: versions are immutable once loaded.
	raw := `{
		"name": "scoring", "version": "1.0.0",
		"rules": {"score": {"type": "formula", "formula": "2"}}
	}`
	if err := os.WriteFile(filepath.Join(dir, "scoring.json"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)

	current, err := store.Get("scoring", "1.0.0")
	if err != nil {
		t.Fatalf("Get() after rewrite failed: %v", err)
	}
	if current != original {
		t.Error("document version was hot-swapped; stored versions must be immutable")
	}
}
