// Package protoset compiles .proto sources into the compiled descriptor
// sets that internal/pbvisitor consumes. It wraps bufbuild/protocompile,
// resolving a schema's imports against a configured set of directories
// plus a built-in table of the google/protobuf well-known types, and
// flattens the resulting linked descriptors (including their transitive
// imports) into a single descriptorpb.FileDescriptorSet.
//
// The well-known imports are included in that flattened set like any other
// file rather than stripped out: a field typed e.g. google.protobuf.Timestamp
// still needs its package's scope built for the reference to resolve at
// ingestion time. They are still "passed through without analysis" in the
// spirit intended, though — every compiled schema embeds the same stub
// definition from wellKnownTypes, so comparing them structurally is a no-op
// that never produces a diagnostic, it just isn't special-cased out of the
// walk.
package protoset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Source is one .proto file to compile: either read from disk (Content nil)
// or supplied in memory, e.g. a blob fetched from a git revision by
// internal/history.
type Source struct {
	Path    string
	Content []byte // nil means read from disk under ImportPaths
}

// Compile compiles the given source plus every file it imports (resolved
// against importPaths, falling back to the well-known-types table for any
// google/protobuf/*.proto import) and returns them flattened into one
// FileDescriptorSet, main file last.
func Compile(src Source, importPaths []string) (*descriptorpb.FileDescriptorSet, error) {
	resolver := &diskResolver{
		importPaths: importPaths,
		overridden:  src.Content != nil,
		mainPath:    normalizeImportPath(src.Path, importPaths),
		mainContent: src.Content,
		wellKnown:   wellKnownTypes,
	}

	compiler := protocompile.Compiler{
		Resolver:       resolver,
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(context.Background(), resolver.mainPath)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", src.Path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("compiling %s: no files produced", src.Path)
	}

	// Well-known google/protobuf/*.proto imports are deliberately kept in the
	// set rather than dropped (see package doc): a field typed
	// google.protobuf.Timestamp still needs its package scope built so the
	// reference resolves at all. Both sides of a comparison always embed the
	// same stub definitions from wellKnownTypes below, so modeling them as
	// ordinary types never produces a spurious diagnostic in practice.
	set := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]bool)
	var collect func(fd protoreflect.FileDescriptor)
	collect = func(fd protoreflect.FileDescriptor) {
		if seen[fd.Path()] {
			return
		}
		seen[fd.Path()] = true
		for i := 0; i < fd.Imports().Len(); i++ {
			collect(fd.Imports().Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	collect(files[0])

	return set, nil
}

// normalizeImportPath rewrites an absolute or relative filesystem path into
// the import-path-relative form protocompile expects as a compile target,
// e.g. "/repo/proto/a.proto" with importPaths=["/repo/proto"] becomes
// "a.proto". Falls back to the given path unchanged if no importPaths
// directory is a prefix of it.
func normalizeImportPath(path string, importPaths []string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	for _, dir := range importPaths {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(absDir, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// diskResolver implements protocompile.Resolver: the main file (possibly
// supplied in memory) takes priority, then every configured import
// directory is tried in order.
type diskResolver struct {
	importPaths []string
	overridden  bool
	mainPath    string
	mainContent []byte
	wellKnown   map[string]string
}

func (r *diskResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	if r.overridden && path == r.mainPath {
		return protocompile.SearchResult{Source: strings.NewReader(string(r.mainContent))}, nil
	}

	for _, dir := range r.importPaths {
		full := filepath.Join(dir, filepath.FromSlash(path))
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		return protocompile.SearchResult{Source: strings.NewReader(string(data))}, nil
	}

	if content, ok := r.wellKnown[path]; ok {
		return protocompile.SearchResult{Source: strings.NewReader(content)}, nil
	}

	return protocompile.SearchResult{}, &fileNotFoundError{path: path}
}

type fileNotFoundError struct{ path string }

func (e *fileNotFoundError) Error() string { return "protoset: file not found: " + e.path }

// wellKnownTypes supplies the google/protobuf/*.proto imports a schema may
// reference without requiring the caller to vendor the real protobuf
// well-known-types tree alongside it.
var wellKnownTypes = map[string]string{
	"google/protobuf/any.proto": `
syntax = "proto3";
package google.protobuf;
message Any {
  string type_url = 1;
  bytes value = 2;
}`,
	"google/protobuf/timestamp.proto": `
syntax = "proto3";
package google.protobuf;
message Timestamp {
  int64 seconds = 1;
  int32 nanos = 2;
}`,
	"google/protobuf/duration.proto": `
syntax = "proto3";
package google.protobuf;
message Duration {
  int64 seconds = 1;
  int32 nanos = 2;
}`,
	"google/protobuf/empty.proto": `
syntax = "proto3";
package google.protobuf;
message Empty {}`,
	"google/protobuf/struct.proto": `
syntax = "proto3";
package google.protobuf;
message Struct {
  map<string, Value> fields = 1;
}
message Value {
  oneof kind {
    NullValue null_value = 1;
    double number_value = 2;
    string string_value = 3;
    bool bool_value = 4;
    Struct struct_value = 5;
    ListValue list_value = 6;
  }
}
message ListValue {
  repeated Value values = 1;
}
enum NullValue {
  NULL_VALUE = 0;
}`,
	"google/protobuf/wrappers.proto": `
syntax = "proto3";
package google.protobuf;
message DoubleValue { double value = 1; }
message FloatValue { float value = 1; }
message Int64Value { int64 value = 1; }
message UInt64Value { uint64 value = 1; }
message Int32Value { int32 value = 1; }
message UInt32Value { uint32 value = 1; }
message BoolValue { bool value = 1; }
message StringValue { string value = 1; }
message BytesValue { bytes value = 1; }`,
	"google/protobuf/field_mask.proto": `
syntax = "proto3";
package google.protobuf;
message FieldMask {
  repeated string paths = 1;
}`,
}
