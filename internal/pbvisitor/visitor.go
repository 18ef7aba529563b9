// Package pbvisitor reads a compiled protobuf descriptor set into a
// pbschema.Schema. It rejects, with a MalformedError, the descriptor fields
// and options it explicitly checks for and does not support. Option fields
// it does not check are ignored; a newly added protobuf option causes no
// build-time or run-time failure here.
package pbvisitor

import (
	"fmt"
	"strings"

	"github.com/axonops/protock/internal/pbschema"
	"github.com/axonops/protock/internal/pbscope"
	"github.com/axonops/protock/internal/qualname"
	"github.com/axonops/protock/internal/rangeset"
	"github.com/axonops/protock/internal/wire"
	"google.golang.org/protobuf/types/descriptorpb"
)

// MalformedError reports a fatal descriptor-ingestion failure: a violation
// of the proto3 subset this tool supports. It is never entered into the
// diagnostic log — the caller aborts instead.
type MalformedError struct {
	Field   string
	Message string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed descriptor field %s: %s", e.Field, e.Message)
}

func malformed(field, format string, args ...any) error {
	return &MalformedError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Visit builds a Schema from a FileDescriptorSet, visiting every file,
// message, enum, and service in declaration order.
func Visit(set *descriptorpb.FileDescriptorSet) (*pbschema.Schema, error) {
	schema := pbschema.New()
	global := pbscope.Build(set.GetFile())

	for _, f := range set.GetFile() {
		if err := visitFile(schema, global, f); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func visitFile(schema *pbschema.Schema, global *pbscope.Global, f *descriptorpb.FileDescriptorProto) error {
	for _, dep := range f.GetDependency() {
		if !strings.HasPrefix(dep, "google/protobuf") {
			return malformed("dependency", "unresolved non-well-known dependency %q", dep)
		}
	}
	if len(f.GetPublicDependency()) != 0 {
		return malformed("public_dependency", "public imports are not supported")
	}
	if len(f.GetWeakDependency()) != 0 {
		return malformed("weak_dependency", "weak imports are not supported")
	}
	if len(f.GetExtension()) != 0 {
		return malformed("extension", "top-level extensions are not supported")
	}
	if f.SourceCodeInfo != nil {
		return malformed("source_code_info", "unexpected source code info")
	}
	if f.GetSyntax() != "proto3" {
		return malformed("syntax", "only proto3 is supported, got %q", f.GetSyntax())
	}
	if opts := f.GetOptions(); opts != nil {
		if len(opts.GetUninterpretedOption()) != 0 {
			return malformed("options.uninterpreted_option", "uninterpreted file options are not supported")
		}
	}

	scope, ok := global.Package(f.Package)
	if !ok {
		return malformed("package", "missing global scope for package %v", f.Package)
	}

	if err := descend(schema, scope, f.GetMessageType(), f.GetEnumType()); err != nil {
		return err
	}

	for _, s := range f.GetService() {
		child, ok := scope.Child(s.GetName())
		if !ok {
			return malformed("service.name", "missing scope for service %q", s.GetName())
		}
		if err := visitService(schema, child, s); err != nil {
			return err
		}
	}

	return nil
}

func descend(schema *pbschema.Schema, scope *pbscope.Ref, msgs []*descriptorpb.DescriptorProto, enums []*descriptorpb.EnumDescriptorProto) error {
	for _, m := range msgs {
		child, ok := scope.Child(m.GetName())
		if !ok {
			return malformed("message_type.name", "missing scope for message %q", m.GetName())
		}
		if err := visitMessage(schema, child, m); err != nil {
			return err
		}
	}
	for _, e := range enums {
		child, ok := scope.Child(e.GetName())
		if !ok {
			return malformed("enum_type.name", "missing scope for enum %q", e.GetName())
		}
		if err := visitEnum(schema, child, e); err != nil {
			return err
		}
	}
	return nil
}

func qualifyParent(scope *pbscope.Ref, name string) (qualname.QualName, error) {
	if scope.Parent() == nil {
		return qualname.QualName{}, malformed("name", "type %q has no enclosing scope", name)
	}
	return scope.Parent().Qualify([]string{name})
}

func visitService(schema *pbschema.Schema, scope *pbscope.Ref, desc *descriptorpb.ServiceDescriptorProto) error {
	qualName, err := qualifyParent(scope, desc.GetName())
	if err != nil {
		return err
	}

	var svcDeprecated bool
	if opts := desc.GetOptions(); opts != nil {
		if len(opts.GetUninterpretedOption()) != 0 {
			return malformed("service.options.uninterpreted_option", "uninterpreted service options are not supported")
		}
		svcDeprecated = opts.GetDeprecated()
	}

	methods := make(map[string]pbschema.Method, len(desc.GetMethod()))
	for _, m := range desc.GetMethod() {
		inQual, err := resolveTypeName(m.GetInputType(), scope)
		if err != nil {
			return err
		}
		outQual, err := resolveTypeName(m.GetOutputType(), scope)
		if err != nil {
			return err
		}

		deprecated := svcDeprecated
		idempotency := pbschema.IdempotencyUnknown
		if opts := m.GetOptions(); opts != nil {
			if len(opts.GetUninterpretedOption()) != 0 {
				return malformed("method.options.uninterpreted_option", "uninterpreted method options are not supported")
			}
			if opts.GetDeprecated() {
				deprecated = true
			}
			idempotency = idempotencyFromProto(opts.GetIdempotencyLevel())
		}

		if _, dup := methods[m.GetName()]; dup {
			return malformed("method.name", "duplicate method name %q", m.GetName())
		}
		methods[m.GetName()] = pbschema.Method{
			InputType:    inQual,
			OutputType:   outQual,
			InputStream:  m.GetClientStreaming(),
			OutputStream: m.GetServerStreaming(),
			Idempotency:  idempotency,
			Deprecated:   deprecated,
		}
	}

	ty := pbschema.Type{Kind: pbschema.KindService, Service: &pbschema.Service{Methods: methods}}
	if !schema.Insert(qualName, ty) {
		return malformed("service.name", "duplicate type name %s", qualName.String())
	}
	return nil
}

func idempotencyFromProto(l descriptorpb.MethodOptions_IdempotencyLevel) pbschema.IdempotencyLevel {
	switch l {
	case descriptorpb.MethodOptions_NO_SIDE_EFFECTS:
		return pbschema.NoSideEffects
	case descriptorpb.MethodOptions_IDEMPOTENT:
		return pbschema.Idempotent
	default:
		return pbschema.IdempotencyUnknown
	}
}

func visitMessage(schema *pbschema.Schema, scope *pbscope.Ref, desc *descriptorpb.DescriptorProto) error {
	qualName, err := qualifyParent(scope, desc.GetName())
	if err != nil {
		return err
	}
	if len(desc.GetExtension()) != 0 {
		return malformed("message.extension", "extensions are not supported")
	}
	if len(desc.GetExtensionRange()) != 0 {
		return malformed("message.extension_range", "extension ranges are not supported")
	}

	var deprecated, isForMap bool
	if opts := desc.GetOptions(); opts != nil {
		if opts.MessageSetWireFormat != nil {
			return malformed("message.options.message_set_wire_format", "message_set_wire_format is not supported")
		}
		if opts.NoStandardDescriptorAccessor != nil {
			return malformed("message.options.no_standard_descriptor_accessor", "no_standard_descriptor_accessor is not supported")
		}
		if len(opts.GetUninterpretedOption()) != 0 {
			return malformed("message.options.uninterpreted_option", "uninterpreted message options are not supported")
		}
		deprecated = opts.GetDeprecated()
		isForMap = opts.GetMapEntry()
	}

	numbers := make(map[int32]pbschema.Field, len(desc.GetField()))
	for _, f := range desc.GetField() {
		field, number, err := visitField(scope, f)
		if err != nil {
			return err
		}
		if _, dup := numbers[number]; dup {
			return malformed("field.number", "duplicate field number %d", number)
		}
		numbers[number] = field
	}

	oneofs := make([]pbschema.Oneof, 0, len(desc.GetOneofDecl()))
	for _, o := range desc.GetOneofDecl() {
		if o.Options != nil {
			return malformed("oneof.options", "oneof options are not supported")
		}
		oneofs = append(oneofs, pbschema.Oneof{Name: o.GetName()})
	}

	var reserved rangeset.Set
	if deprecated {
		reserved = rangeset.Full()
	} else {
		ranges := make([]rangeset.Range, 0, len(desc.GetReservedRange()))
		for _, r := range desc.GetReservedRange() {
			ranges = append(ranges, rangeset.Range{Start: int64(r.GetStart()), End: int64(r.GetEnd())})
		}
		reserved = rangeset.Build(ranges)
	}

	reservedNames, err := dedupNames(desc.GetReservedName())
	if err != nil {
		return err
	}

	rec, err := pbschema.NewRecord(numbers, reserved, reservedNames, isForMap, oneofs)
	if err != nil {
		return err
	}

	if !schema.Insert(qualName, pbschema.Type{Kind: pbschema.KindMessage, Message: rec}) {
		return malformed("message.name", "duplicate type name %s", qualName.String())
	}

	return descend(schema, scope, desc.GetNestedType(), desc.GetEnumType())
}

func visitField(scope *pbscope.Ref, f *descriptorpb.FieldDescriptorProto) (pbschema.Field, int32, error) {
	if f.Extendee != nil {
		return pbschema.Field{}, 0, malformed("field.extendee", "extensions are not supported")
	}

	var packed *bool
	if opts := f.GetOptions(); opts != nil {
		if opts.Ctype != nil {
			return pbschema.Field{}, 0, malformed("field.options.ctype", "ctype is not supported")
		}
		if opts.Jstype != nil {
			return pbschema.Field{}, 0, malformed("field.options.jstype", "jstype is not supported")
		}
		if opts.Lazy != nil {
			return pbschema.Field{}, 0, malformed("field.options.lazy", "lazy is not supported")
		}
		if opts.Deprecated != nil {
			return pbschema.Field{}, 0, malformed("field.options.deprecated", "per-field deprecation is not supported")
		}
		if opts.Weak != nil {
			return pbschema.Field{}, 0, malformed("field.options.weak", "weak fields are not supported")
		}
		if len(opts.GetUninterpretedOption()) != 0 {
			return pbschema.Field{}, 0, malformed("field.options.uninterpreted_option", "uninterpreted field options are not supported")
		}
		if opts.Packed != nil {
			p := opts.GetPacked()
			packed = &p
		}
	}

	var ft pbschema.FieldType
	if prim, ok := wire.NewPrimitiveType(f.GetType()); ok {
		if f.TypeName != nil {
			return pbschema.Field{}, 0, malformed("field.type_name", "type_name set on a primitive field")
		}
		ft = pbschema.FieldType{Primitive: &prim}
	} else {
		if f.TypeName == nil {
			return pbschema.Field{}, 0, malformed("field.type_name", "missing type_name on a message/enum field")
		}
		named, err := resolveTypeName(f.GetTypeName(), scope)
		if err != nil {
			return pbschema.Field{}, 0, err
		}
		ft = pbschema.FieldType{Named: &named}
	}

	kind, err := buildFieldKind(f.GetLabel(), packed, f.Proto3Optional)
	if err != nil {
		return pbschema.Field{}, 0, err
	}

	var oneofIdx *int32
	if f.OneofIndex != nil {
		i := f.GetOneofIndex()
		oneofIdx = &i
	}

	return pbschema.Field{
		Name:  f.GetName(),
		Type:  ft,
		Kind:  kind,
		Oneof: oneofIdx,
	}, f.GetNumber(), nil
}

func buildFieldKind(label descriptorpb.FieldDescriptorProto_Label, packed *bool, proto3Optional *bool) (pbschema.FieldKind, error) {
	if label != descriptorpb.FieldDescriptorProto_LABEL_REPEATED && packed != nil {
		return pbschema.FieldKind{}, malformed("field.options.packed", "packed set on a non-repeated field")
	}

	optional := proto3Optional != nil && *proto3Optional

	switch {
	case label == descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL && !optional:
		return pbschema.FieldKind{Tag: pbschema.Singular}, nil
	case label == descriptorpb.FieldDescriptorProto_LABEL_REQUIRED:
		return pbschema.FieldKind{}, malformed("field.label", "unsupported required label found")
	case label == descriptorpb.FieldDescriptorProto_LABEL_REPEATED:
		return pbschema.FieldKind{Tag: pbschema.Repeated, Packed: packed}, nil
	case label == descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL && optional:
		return pbschema.FieldKind{Tag: pbschema.Optional}, nil
	default:
		return pbschema.FieldKind{}, malformed("field.label", "unexpected field kind (%v, optional=%v)", label, proto3Optional)
	}
}

func resolveTypeName(name string, scope *pbscope.Ref) (qualname.QualName, error) {
	if rest, ok := strings.CutPrefix(name, "."); ok {
		q, err := scope.Global().ResolveAbsolute(rest)
		if err != nil {
			return qualname.QualName{}, err
		}
		return q, nil
	}
	q, err := scope.Search(name)
	if err != nil {
		return qualname.QualName{}, err
	}
	return q, nil
}

func visitEnum(schema *pbschema.Schema, scope *pbscope.Ref, desc *descriptorpb.EnumDescriptorProto) error {
	qualName, err := qualifyParent(scope, desc.GetName())
	if err != nil {
		return err
	}

	var aliasing, deprecated bool
	if opts := desc.GetOptions(); opts != nil {
		if len(opts.GetUninterpretedOption()) != 0 {
			return malformed("enum.options.uninterpreted_option", "uninterpreted enum options are not supported")
		}
		aliasing = opts.GetAllowAlias()
		deprecated = opts.GetDeprecated()
	}

	numbers := make(map[int32]pbschema.Variant)
	for _, v := range desc.GetValue() {
		if v.Options != nil {
			return malformed("enum_value.options", "enum value options are not supported")
		}
		number := v.GetNumber()
		name := v.GetName()

		if aliasing {
			existing, ok := numbers[number]
			if ok {
				if containsName(existing.Names_, name) {
					return malformed("enum_value.name", "duplicate alias %q for value %d", name, number)
				}
				existing.Names_ = insertSorted(existing.Names_, name)
				numbers[number] = existing
			} else {
				numbers[number] = pbschema.Variant{Names_: []string{name}}
			}
		} else {
			if _, dup := numbers[number]; dup {
				return malformed("enum_value.number", "duplicate enum value %d without allow_alias", number)
			}
			numbers[number] = pbschema.Variant{Names_: []string{name}}
		}
	}

	var reserved rangeset.Set
	if deprecated {
		reserved = rangeset.Full()
	} else {
		ranges := make([]rangeset.Range, 0, len(desc.GetReservedRange()))
		for _, r := range desc.GetReservedRange() {
			ranges = append(ranges, rangeset.Range{Start: int64(r.GetStart()), End: int64(r.GetEnd()) + 1})
		}
		reserved = rangeset.Build(ranges)
	}

	reservedNames, err := dedupNames(desc.GetReservedName())
	if err != nil {
		return err
	}

	rec, err := pbschema.NewRecord(numbers, reserved, reservedNames, false, nil)
	if err != nil {
		return err
	}

	if !schema.Insert(qualName, pbschema.Type{Kind: pbschema.KindEnum, Enum: rec}) {
		return malformed("enum.name", "duplicate type name %s", qualName.String())
	}
	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func insertSorted(names []string, name string) []string {
	i := 0
	for ; i < len(names); i++ {
		if names[i] > name {
			break
		}
	}
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	return names
}

func dedupNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, malformed("reserved_name", "duplicate reserved name %q", n)
		}
		seen[n] = struct{}{}
	}
	return names, nil
}
