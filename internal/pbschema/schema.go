// Package pbschema is the language-neutral intermediate representation of a
// protobuf schema: messages, enums, and services stripped to what the wire
// format can observe. It is pure data, built once by internal/pbvisitor and
// read only by internal/compat.
package pbschema

import (
	"sort"

	"github.com/axonops/protock/internal/qualname"
	"github.com/axonops/protock/internal/rangeset"
	"github.com/axonops/protock/internal/wire"
)

// Schema is a flat namespace of every message, enum, and service type
// declared across a descriptor set, keyed by fully-qualified name.
type Schema struct {
	Types map[string]*TypeEntry
}

// TypeEntry pairs a type's qualified name with its declaration, since Go
// map keys here are the name's canonical string form rather than the
// structured QualName itself.
type TypeEntry struct {
	Name qualname.QualName
	Type Type
}

func New() *Schema {
	return &Schema{Types: make(map[string]*TypeEntry)}
}

func (s *Schema) Insert(name qualname.QualName, ty Type) bool {
	key := name.Key()
	if _, exists := s.Types[key]; exists {
		return false
	}
	s.Types[key] = &TypeEntry{Name: name, Type: ty}
	return true
}

func (s *Schema) Lookup(name qualname.QualName) (*TypeEntry, bool) {
	e, ok := s.Types[name.Key()]
	return e, ok
}

// TypeKind discriminates the three Type variants.
type TypeKind int

const (
	KindMessage TypeKind = iota
	KindEnum
	KindService
)

func (k TypeKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindEnum:
		return "enum"
	case KindService:
		return "service"
	default:
		return "?"
	}
}

// Type is a tagged variant over Message, Enum, and Service declarations.
// Exactly one of Message, Enum, Service is non-nil, matching Kind.
type Type struct {
	Kind    TypeKind
	Message *Record[Field]
	Enum    *Record[Variant]
	Service *Service
}

// IsInternal reports whether the declaration is synthetic (e.g. a map-entry
// message) and therefore tolerated when present only on the writer side.
// Services are never internal.
func (t Type) IsInternal() bool {
	switch t.Kind {
	case KindMessage:
		return t.Message != nil && t.Message.Internal
	case KindEnum:
		return t.Enum != nil && t.Enum.Internal
	default:
		return false
	}
}

// RecordValue is implemented by Field and Variant, the two things a Record
// can hold.
type RecordValue interface {
	Names() []string
}

// Record is the shared shape of a message's field table and an enum's
// value table: a number-keyed map of declarations, a name-keyed map back
// to numbers (nil value means the name is merely reserved), and a
// reserved-range set for numbers that were retired outright.
type Record[V RecordValue] struct {
	Numbers  map[int32]V
	Names    map[string]*int32
	Reserved rangeset.Set
	Internal bool
	Oneofs   []Oneof // messages only; nil for enums
}

// NewRecord builds a Record, deriving Names from each value's declared
// names plus the explicit reserved-name list, and asserting the invariant
// that no name is declared twice.
func NewRecord[V RecordValue](numbers map[int32]V, reserved rangeset.Set, reservedNames []string, internal bool, oneofs []Oneof) (*Record[V], error) {
	names := make(map[string]*int32, len(numbers)+len(reservedNames))

	nums := make([]int32, 0, len(numbers))
	for n := range numbers {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })

	for _, n := range nums {
		n := n
		for _, name := range numbers[n].Names() {
			if _, dup := names[name]; dup {
				return nil, &DuplicateNameError{Name: name}
			}
			id := n
			names[name] = &id
		}
	}
	for _, name := range reservedNames {
		if _, dup := names[name]; dup {
			return nil, &DuplicateNameError{Name: name}
		}
		names[name] = nil
	}

	return &Record[V]{
		Numbers:  numbers,
		Names:    names,
		Reserved: reserved,
		Internal: internal,
		Oneofs:   oneofs,
	}, nil
}

// DuplicateNameError signals a malformed descriptor: the same field or
// enum-value name was declared (or reserved) more than once.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return "duplicate name " + e.Name + " in record"
}

// Field is a message's declared field.
type Field struct {
	Name  string
	Type  FieldType
	Kind  FieldKind
	Oneof *int32 // index into the owning Record's Oneofs, if any
}

func (f Field) Names() []string { return []string{f.Name} }

// FieldType is Primitive(PrimitiveType) or Named(QualName); exactly one of
// the two fields is set.
type FieldType struct {
	Primitive *wire.PrimitiveType
	Named     *qualname.QualName
}

// FieldKindTag is an alias of wire.FieldKindTag, re-exported here so that
// schema consumers don't need to import internal/wire for field shapes
// that have nothing to do with wire classification directly, only for the
// few sites that do classify.
type FieldKindTag = wire.FieldKindTag

const (
	Singular = wire.Singular
	Optional = wire.Optional
	Repeated = wire.Repeated
)

// FieldKind is Singular, Optional, or Repeated{Packed}; an alias of
// wire.FieldKind.
type FieldKind = wire.FieldKind

// Oneof is a message-scoped union of fields where at most one may be set.
type Oneof struct {
	Name string
}

// Variant is an enum value: a non-empty set of alias names (proto3
// allow_alias), sorted ascending for deterministic formatting.
type Variant struct {
	Names_ []string
}

func (v Variant) Names() []string { return v.Names_ }

// NamePretty renders the variant's name(s); compact uses "|" as the
// separator (for qualified-name contexts), otherwise ", ".
func (v Variant) NamePretty(compact bool) string {
	sep := ", "
	if compact {
		sep = "|"
	}
	out := v.Names_[0]
	for _, n := range v.Names_[1:] {
		out += sep + n
	}
	return out
}

// IdempotencyLevel mirrors the protobuf MethodOptions idempotency level.
type IdempotencyLevel int

const (
	IdempotencyUnknown IdempotencyLevel = iota
	NoSideEffects
	Idempotent
)

func (l IdempotencyLevel) String() string {
	switch l {
	case NoSideEffects:
		return "no-side-effects"
	case Idempotent:
		return "idempotent"
	default:
		return "unknown"
	}
}

// Service is a collection of RPC methods.
type Service struct {
	Methods map[string]Method
}

// Method is one RPC method of a service.
type Method struct {
	InputType     qualname.QualName
	OutputType    qualname.QualName
	InputStream   bool
	OutputStream  bool
	Idempotency   IdempotencyLevel
	Deprecated    bool
}
