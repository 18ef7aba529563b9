package pbschema_test

import (
	"testing"

	"github.com/axonops/protock/internal/pbschema"
	"github.com/axonops/protock/internal/qualname"
	"github.com/axonops/protock/internal/rangeset"
)

func TestNewRecordNamesInvariant(t *testing.T) {
	numbers := map[int32]pbschema.Field{
		1: {Name: "a", Kind: pbschema.FieldKind{Tag: pbschema.Singular}},
		2: {Name: "b", Kind: pbschema.FieldKind{Tag: pbschema.Singular}},
	}
	rec, err := pbschema.NewRecord(numbers, rangeset.Set{}, []string{"old_name"}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.Names) != 3 {
		t.Fatalf("expected 3 names (2 declared + 1 reserved), got %d", len(rec.Names))
	}
	if *rec.Names["a"] != 1 || *rec.Names["b"] != 2 {
		t.Fatalf("declared names should map to their numbers")
	}
	if rec.Names["old_name"] != nil {
		t.Fatalf("reserved name should map to nil")
	}
}

func TestNewRecordRejectsDuplicateNames(t *testing.T) {
	numbers := map[int32]pbschema.Field{
		1: {Name: "a"},
	}
	_, err := pbschema.NewRecord(numbers, rangeset.Set{}, []string{"a"}, false, nil)
	if err == nil {
		t.Fatal("expected error for duplicate name between declared and reserved")
	}
}

func TestVariantNamePretty(t *testing.T) {
	v := pbschema.Variant{Names_: []string{"A", "B"}}
	if got := v.NamePretty(true); got != "A|B" {
		t.Fatalf("compact NamePretty = %q, want A|B", got)
	}
	if got := v.NamePretty(false); got != "A, B" {
		t.Fatalf("NamePretty = %q, want \"A, B\"", got)
	}
}

func TestTypeIsInternal(t *testing.T) {
	rec, _ := pbschema.NewRecord(map[int32]pbschema.Field{}, rangeset.Set{}, nil, true, nil)
	ty := pbschema.Type{Kind: pbschema.KindMessage, Message: rec}
	if !ty.IsInternal() {
		t.Fatal("expected message marked internal to report IsInternal() == true")
	}
}

func TestSchemaInsertRejectsDuplicateKey(t *testing.T) {
	s := pbschema.New()
	pkg := "p"
	name := qualname.New(&pkg, "M")
	rec, _ := pbschema.NewRecord(map[int32]pbschema.Field{}, rangeset.Set{}, nil, false, nil)
	ty := pbschema.Type{Kind: pbschema.KindMessage, Message: rec}

	if !s.Insert(name, ty) {
		t.Fatal("first insert should succeed")
	}
	if s.Insert(name, ty) {
		t.Fatal("second insert of the same name should fail")
	}
}
