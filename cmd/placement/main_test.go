package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/placement/internal/config"
	"github.com/pavelanni/placement/internal/store"
)

func TestLoadQuestions(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	write("a1.json", `[{"id": "A1-OR-001", "type": "open_response", "prompt": "Hi"}]`)
	write("broken.json", `{`)
	write("notes.txt", `ignored`)
	single := write("b1.extra", `[{"id": "B1-OR-001", "type": "open_response", "prompt": "Talk"}]`)

	files := questionFiles([]string{dir, single, filepath.Join(dir, "missing")})
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := loadQuestions(db, []string{dir, single}); err != nil {
		t.Fatalf("loadQuestions: %v", err)
	}
	bank, err := buildCorpus(db)
	if err != nil {
		t.Fatal(err)
	}
	if bank.Len() != 2 {
		t.Errorf("expected 2 questions, got %d", bank.Len())
	}

	cfg := config.Default()
	if !drawable(cfg, bank, "A1") {
		t.Error("A1 should be drawable")
	}
	if drawable(cfg, bank, "C2") {
		t.Error("C2 should not be drawable")
	}
}

func TestBuildCorpusFallback(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	bank, err := buildCorpus(db)
	if err != nil {
		t.Fatal(err)
	}
	if bank.Len() != 2 || !drawable(config.Minimal(), bank, "A1") {
		t.Errorf("expected the built-in fallback questions, got %d", bank.Len())
	}
}
