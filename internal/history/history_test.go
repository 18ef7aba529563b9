package history_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/axonops/protock/internal/history"
)

func commitFile(t *testing.T, wt *git.Worktree, dir, relPath, content, message string) {
	t.Helper()
	full := filepath.Join(dir, relPath)
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", relPath, err)
	}
	if _, err := wt.Add(relPath); err != nil {
		t.Fatalf("add %s: %v", relPath, err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestWalkReturnsRevisionsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	commitFile(t, wt, dir, "a.proto", "syntax = \"proto3\";\nmessage V1 {}\n", "add a.proto")
	commitFile(t, wt, dir, "a.proto", "syntax = \"proto3\";\nmessage V2 {}\n", "update a.proto")

	revisions, err := history.Walk(dir, "a.proto")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if string(revisions[0].Content) != "syntax = \"proto3\";\nmessage V2 {}\n" {
		t.Fatalf("expected newest revision first, got %q", revisions[0].Content)
	}
	if string(revisions[1].Content) != "syntax = \"proto3\";\nmessage V1 {}\n" {
		t.Fatalf("expected oldest revision last, got %q", revisions[1].Content)
	}
}

func TestWalkStopsAtFileCreation(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	commitFile(t, wt, dir, "unrelated.txt", "x", "unrelated commit")
	commitFile(t, wt, dir, "a.proto", "syntax = \"proto3\";\nmessage V1 {}\n", "add a.proto")

	revisions, err := history.Walk(dir, "a.proto")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(revisions) != 1 {
		t.Fatalf("expected exactly 1 revision (the file's creation commit), got %d", len(revisions))
	}
}

func TestWalkUnknownPathReturnsNoRevisions(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	commitFile(t, wt, dir, "a.proto", "syntax = \"proto3\";\n", "add a.proto")

	revisions, err := history.Walk(dir, "never-existed.proto")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(revisions) != 0 {
		t.Fatalf("expected no revisions, got %d", len(revisions))
	}
}
