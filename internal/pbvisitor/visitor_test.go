package pbvisitor_test

import (
	"testing"

	"github.com/axonops/protock/internal/pbschema"
	"github.com/axonops/protock/internal/pbvisitor"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func baseFile(name string) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(name),
		Package: proto.String("pkg"),
		Syntax:  proto.String("proto3"),
	}
}

func TestVisitRejectsNonProto3Syntax(t *testing.T) {
	f := baseFile("a.proto")
	f.Syntax = proto.String("proto2")

	_, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err == nil {
		t.Fatal("expected malformed error for non-proto3 syntax")
	}
}

func TestVisitRejectsNonWellKnownDependency(t *testing.T) {
	f := baseFile("a.proto")
	f.Dependency = []string{"vendor/other.proto"}

	_, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err == nil {
		t.Fatal("expected malformed error for non-well-known dependency")
	}
}

func TestVisitBuildsSimpleMessage(t *testing.T) {
	f := baseFile("a.proto")
	f.MessageType = []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("M"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:   proto.String("id"),
					Number: proto.Int32(1),
					Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
				},
			},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schema.Types) != 1 {
		t.Fatalf("expected 1 type, got %d", len(schema.Types))
	}
	for _, entry := range schema.Types {
		if entry.Type.Kind != pbschema.KindMessage {
			t.Fatalf("expected message kind")
		}
		field, ok := entry.Type.Message.Numbers[1]
		if !ok {
			t.Fatal("expected field number 1")
		}
		if field.Name != "id" {
			t.Fatalf("got field name %q", field.Name)
		}
		if field.Kind.Tag != pbschema.Singular {
			t.Fatalf("expected singular field kind")
		}
	}
}

func TestVisitRejectsRequiredLabel(t *testing.T) {
	f := baseFile("a.proto")
	f.MessageType = []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("M"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:   proto.String("id"),
					Number: proto.Int32(1),
					Label:  descriptorpb.FieldDescriptorProto_LABEL_REQUIRED.Enum(),
					Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
				},
			},
		},
	}

	_, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err == nil {
		t.Fatal("expected malformed error for required label")
	}
}

func TestVisitProto3OptionalBecomesOptionalKind(t *testing.T) {
	f := baseFile("a.proto")
	f.MessageType = []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("M"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:           proto.String("id"),
					Number:         proto.Int32(1),
					Label:          descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:           descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
					Proto3Optional: proto.Bool(true),
					OneofIndex:     proto.Int32(0),
				},
			},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{
				{Name: proto.String("_id")},
			},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range schema.Types {
		field := entry.Type.Message.Numbers[1]
		if field.Kind.Tag != pbschema.Optional {
			t.Fatalf("expected optional field kind, got %v", field.Kind.Tag)
		}
	}
}

func TestVisitEnumReservedRangeEndIsInclusive(t *testing.T) {
	f := baseFile("a.proto")
	f.EnumType = []*descriptorpb.EnumDescriptorProto{
		{
			Name: proto.String("E"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("E_UNSPECIFIED"), Number: proto.Int32(0)},
			},
			ReservedRange: []*descriptorpb.EnumDescriptorProto_EnumReservedRange{
				{Start: proto.Int32(5), End: proto.Int32(5)},
			},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range schema.Types {
		if !entry.Type.Enum.Reserved.Contains(5) {
			t.Fatal("expected enum reserved range end to be inclusive of 5")
		}
		if entry.Type.Enum.Reserved.Contains(6) {
			t.Fatal("enum reserved range must not include 6")
		}
	}
}

func TestVisitMessageReservedRangeEndIsExclusive(t *testing.T) {
	f := baseFile("a.proto")
	f.MessageType = []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("M"),
			ReservedRange: []*descriptorpb.DescriptorProto_ReservedRange{
				{Start: proto.Int32(5), End: proto.Int32(6)},
			},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range schema.Types {
		if !entry.Type.Message.Reserved.Contains(5) {
			t.Fatal("expected message reserved range to contain 5")
		}
		if entry.Type.Message.Reserved.Contains(6) {
			t.Fatal("message reserved range end is exclusive, must not contain 6")
		}
	}
}

func TestVisitDeprecatedMessageReservesAllNumbers(t *testing.T) {
	f := baseFile("a.proto")
	f.MessageType = []*descriptorpb.DescriptorProto{
		{
			Name:    proto.String("M"),
			Options: &descriptorpb.MessageOptions{Deprecated: proto.Bool(true)},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range schema.Types {
		if !entry.Type.Message.Reserved.Contains(123456) {
			t.Fatal("deprecated message should reserve every field number")
		}
	}
}

func TestVisitServiceMethodResolvesRelativeTypeNames(t *testing.T) {
	f := baseFile("a.proto")
	f.MessageType = []*descriptorpb.DescriptorProto{
		{Name: proto.String("Req")},
		{Name: proto.String("Resp")},
	}
	f.Service = []*descriptorpb.ServiceDescriptorProto{
		{
			Name: proto.String("Svc"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("Do"),
					InputType:  proto.String("Req"),
					OutputType: proto.String(".pkg.Resp"),
				},
			},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var svc *pbschema.Service
	for _, entry := range schema.Types {
		if entry.Type.Kind == pbschema.KindService {
			svc = entry.Type.Service
		}
	}
	if svc == nil {
		t.Fatal("expected a service type in the schema")
	}
	method, ok := svc.Methods["Do"]
	if !ok {
		t.Fatal("expected method Do")
	}
	if method.InputType.String() != "'pkg'.Req" {
		t.Fatalf("got input type %q", method.InputType.String())
	}
	if method.OutputType.String() != "'pkg'.Resp" {
		t.Fatalf("got output type %q", method.OutputType.String())
	}
}

func TestVisitEnumAllowAliasMergesNames(t *testing.T) {
	f := baseFile("a.proto")
	f.EnumType = []*descriptorpb.EnumDescriptorProto{
		{
			Name:    proto.String("E"),
			Options: &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)},
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("A"), Number: proto.Int32(0)},
				{Name: proto.String("B"), Number: proto.Int32(0)},
			},
		},
	}

	schema, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range schema.Types {
		variant := entry.Type.Enum.Numbers[0]
		if len(variant.Names()) != 2 {
			t.Fatalf("expected 2 aliased names, got %d", len(variant.Names()))
		}
	}
}

func TestVisitRejectsDuplicateEnumValueWithoutAlias(t *testing.T) {
	f := baseFile("a.proto")
	f.EnumType = []*descriptorpb.EnumDescriptorProto{
		{
			Name: proto.String("E"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("A"), Number: proto.Int32(0)},
				{Name: proto.String("B"), Number: proto.Int32(0)},
			},
		},
	}

	_, err := pbvisitor.Visit(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{f}})
	if err == nil {
		t.Fatal("expected malformed error for duplicate enum value without allow_alias")
	}
}
