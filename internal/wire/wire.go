// Package wire classifies declared protobuf field types into the coarse
// on-the-wire shapes that determine decode compatibility: varint, 32-bit
// fixed, 64-bit fixed, or length-delimited, each with a sub-mode that
// narrows how two differing declarations may still be wire-punnable.
package wire

import "google.golang.org/protobuf/types/descriptorpb"

// PrimitiveType enumerates the fifteen proto3 scalar field types.
type PrimitiveType int

const (
	F64    PrimitiveType = iota // double
	F32                         // float
	VarI64                      // int64
	VarU64                      // uint64
	VarI32                      // int32
	FixU64                      // fixed64
	FixU32                      // fixed32
	Bool                        // bool
	String                      // string
	Bytes                       // bytes
	VarU32                      // uint32
	FixI32                      // sfixed32
	FixI64                      // sfixed64
	VarZ32                      // sint32
	VarZ64                      // sint64
)

// NewPrimitiveType maps a descriptor field type to a PrimitiveType. ok is
// false for Group, Message, and Enum, which are not primitive.
func NewPrimitiveType(ty descriptorpb.FieldDescriptorProto_Type) (PrimitiveType, bool) {
	switch ty {
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return F64, true
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return F32, true
	case descriptorpb.FieldDescriptorProto_TYPE_INT64:
		return VarI64, true
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64:
		return VarU64, true
	case descriptorpb.FieldDescriptorProto_TYPE_INT32:
		return VarI32, true
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return FixU64, true
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return FixU32, true
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return Bool, true
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return String, true
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return Bytes, true
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32:
		return VarU32, true
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return FixI32, true
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return FixI64, true
	case descriptorpb.FieldDescriptorProto_TYPE_SINT32:
		return VarZ32, true
	case descriptorpb.FieldDescriptorProto_TYPE_SINT64:
		return VarZ64, true
	default: // Group, Message, Enum
		return 0, false
	}
}

func (p PrimitiveType) String() string {
	switch p {
	case F64:
		return "f64"
	case F32:
		return "f32"
	case VarI64:
		return "varI64"
	case VarU64:
		return "varU64"
	case VarI32:
		return "varI32"
	case FixU64:
		return "fixU64"
	case FixU32:
		return "fixU32"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case VarU32:
		return "varU32"
	case FixI32:
		return "fixI32"
	case FixI64:
		return "fixI64"
	case VarZ32:
		return "varZ32"
	case VarZ64:
		return "varZ64"
	default:
		return "?"
	}
}

// Kind is the coarse wire category.
type Kind int

const (
	KindVarInt Kind = iota
	KindFix32
	KindFix64
	KindBytes
)

// VarIntMode narrows a VarInt wire type.
type VarIntMode int

const (
	Signed VarIntMode = iota
	Unsigned
	ZigZag
	EnumMode
)

func (m VarIntMode) String() string {
	switch m {
	case Signed:
		return "Signed"
	case Unsigned:
		return "Unsigned"
	case ZigZag:
		return "ZigZag"
	case EnumMode:
		return "Enum"
	default:
		return "?"
	}
}

// FixIntMode narrows a Fix32/Fix64 wire type.
type FixIntMode int

const (
	FixSigned FixIntMode = iota
	FixUnsigned
	FixFloat
)

func (m FixIntMode) String() string {
	switch m {
	case FixSigned:
		return "Signed"
	case FixUnsigned:
		return "Unsigned"
	case FixFloat:
		return "Float"
	default:
		return "?"
	}
}

// BytesMode narrows a Bytes wire type.
type BytesMode int

const (
	BytesBytes BytesMode = iota
	BytesUtf8
	BytesMessage
	BytesPacked
)

func (m BytesMode) String() string {
	switch m {
	case BytesBytes:
		return "Bytes"
	case BytesUtf8:
		return "Utf8"
	case BytesMessage:
		return "Message"
	case BytesPacked:
		return "Packed"
	default:
		return "?"
	}
}

// Type is the wire-level classification of a field. PackedNumeric is set
// only when Kind == KindBytes && BytesMode == BytesPacked, and describes
// the numeric wire type being packed (itself never KindBytes).
type Type struct {
	Kind          Kind
	VarInt        VarIntMode
	Fix           FixIntMode
	Bytes         BytesMode
	PackedNumeric *Type
}

func (t Type) String() string {
	switch t.Kind {
	case KindVarInt:
		return "VarInt(" + t.VarInt.String() + ")"
	case KindFix32:
		return "Fix32(" + t.Fix.String() + ")"
	case KindFix64:
		return "Fix64(" + t.Fix.String() + ")"
	case KindBytes:
		if t.Bytes == BytesPacked && t.PackedNumeric != nil {
			return "Bytes(Packed(" + t.PackedNumeric.String() + "))"
		}
		return "Bytes(" + t.Bytes.String() + ")"
	default:
		return "?"
	}
}

func (t Type) isNumeric() bool {
	return t.Kind == KindVarInt || t.Kind == KindFix32 || t.Kind == KindFix64
}

// FieldKindTag is the field repetition discriminator.
type FieldKindTag int

const (
	Singular FieldKindTag = iota
	Optional
	Repeated
)

func (t FieldKindTag) String() string {
	switch t {
	case Singular:
		return "singular"
	case Optional:
		return "optional"
	case Repeated:
		return "repeated"
	default:
		return "?"
	}
}

// FieldKind is the field repetition shape. It is defined here, and
// pbschema.FieldKind is an alias of it, so that this package has no
// dependency on the schema model; Packed is only meaningful when
// Tag == Repeated.
type FieldKind struct {
	Tag    FieldKindTag
	Packed *bool // nil = unset
}

// AdjustForKind reinterprets a numeric wire type repeated with the
// (implicit or explicit) packed encoding as Bytes(Packed(numeric)).
func (t Type) AdjustForKind(kind FieldKind) Type {
	if !t.isNumeric() {
		return t
	}
	if kind.Tag != Repeated {
		return t
	}
	if kind.Packed != nil && !*kind.Packed {
		return t
	}
	numeric := t
	return Type{Kind: KindBytes, Bytes: BytesPacked, PackedNumeric: &numeric}
}

// WireFormat is the total function (PrimitiveType, FieldKind) -> Type.
func (p PrimitiveType) WireFormat(kind FieldKind) Type {
	var base Type
	switch p {
	case F64:
		base = Type{Kind: KindFix64, Fix: FixFloat}
	case F32:
		base = Type{Kind: KindFix32, Fix: FixFloat}
	case VarI64, VarI32:
		base = Type{Kind: KindVarInt, VarInt: Signed}
	case VarU64, VarU32, Bool:
		base = Type{Kind: KindVarInt, VarInt: Unsigned}
	case FixU64:
		base = Type{Kind: KindFix64, Fix: FixUnsigned}
	case FixU32:
		base = Type{Kind: KindFix32, Fix: FixUnsigned}
	case String:
		base = Type{Kind: KindBytes, Bytes: BytesUtf8}
	case Bytes:
		base = Type{Kind: KindBytes, Bytes: BytesBytes}
	case FixI32:
		base = Type{Kind: KindFix32, Fix: FixSigned}
	case FixI64:
		base = Type{Kind: KindFix64, Fix: FixSigned}
	case VarZ32, VarZ64:
		base = Type{Kind: KindVarInt, VarInt: ZigZag}
	}
	return base.AdjustForKind(kind)
}

// MessageWireFormat and EnumWireFormat give the base wire type for a Named
// field referring to a message or enum type, before kind adjustment.
func MessageWireFormat(kind FieldKind) Type {
	return Type{Kind: KindBytes, Bytes: BytesMessage}.AdjustForKind(kind)
}

func EnumWireFormat(kind FieldKind) Type {
	return Type{Kind: KindVarInt, VarInt: EnumMode}.AdjustForKind(kind)
}
