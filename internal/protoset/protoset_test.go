package protoset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/axonops/protock/internal/protoset"
)

func TestCompileSimpleMessageFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.proto")
	content := `
syntax = "proto3";
package pkg;

message User {
  string name = 1;
  int32 age = 2;
}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	set, err := protoset.Compile(protoset.Source{Path: path}, []string{dir})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(set.File) != 1 {
		t.Fatalf("expected 1 file, got %d", len(set.File))
	}
	if set.File[0].GetPackage() != "pkg" {
		t.Fatalf("got package %q", set.File[0].GetPackage())
	}
}

func TestCompileResolvesWellKnownImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.proto")
	content := `
syntax = "proto3";
package pkg;

import "google/protobuf/timestamp.proto";

message Event {
  google.protobuf.Timestamp at = 1;
}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	set, err := protoset.Compile(protoset.Source{Path: path}, []string{dir})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(set.File) != 2 {
		t.Fatalf("expected main file plus timestamp.proto, got %d files", len(set.File))
	}
}

func TestCompileInMemoryContentOverridesDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.proto")
	if err := os.WriteFile(path, []byte("syntax = \"proto3\";\nmessage Old {}\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	set, err := protoset.Compile(protoset.Source{
		Path:    path,
		Content: []byte("syntax = \"proto3\";\nmessage New {}\n"),
	}, []string{dir})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(set.File) != 1 || len(set.File[0].GetMessageType()) != 1 || set.File[0].GetMessageType()[0].GetName() != "New" {
		t.Fatalf("expected the in-memory content (message New) to win over disk content, got %+v", set.File)
	}
}

func TestCompileMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := protoset.Compile(protoset.Source{Path: filepath.Join(dir, "missing.proto")}, []string{dir})
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
