package wire_test

import (
	"testing"

	"github.com/axonops/protock/internal/wire"
)

func singular() wire.FieldKind { return wire.FieldKind{Tag: wire.Singular} }

func repeated(packed *bool) wire.FieldKind { return wire.FieldKind{Tag: wire.Repeated, Packed: packed} }

func TestWireFormatTotality(t *testing.T) {
	types := []wire.PrimitiveType{
		wire.F64, wire.F32, wire.VarI64, wire.VarU64, wire.VarI32, wire.FixU64,
		wire.FixU32, wire.Bool, wire.String, wire.Bytes, wire.VarU32, wire.FixI32,
		wire.FixI64, wire.VarZ32, wire.VarZ64,
	}
	kinds := []wire.FieldKind{singular(), repeated(nil), {Tag: wire.Optional}}

	for _, ty := range types {
		for _, k := range kinds {
			got := ty.WireFormat(k)
			again := ty.WireFormat(k)
			if got.String() != again.String() {
				t.Errorf("WireFormat(%v, %+v) not deterministic", ty, k)
			}
		}
	}
}

func TestRepeatedNumericDefaultsToPacked(t *testing.T) {
	got := wire.VarI32.WireFormat(repeated(nil))
	if got.Kind != wire.KindBytes || got.Bytes != wire.BytesPacked {
		t.Fatalf("expected packed bytes wire type, got %v", got)
	}
	if got.PackedNumeric == nil || got.PackedNumeric.Kind != wire.KindVarInt {
		t.Fatalf("expected packed numeric to be the unadjusted varint type, got %+v", got.PackedNumeric)
	}
}

func TestRepeatedNumericExplicitUnpacked(t *testing.T) {
	f := false
	got := wire.VarI32.WireFormat(repeated(&f))
	if got.Kind != wire.KindVarInt {
		t.Fatalf("expected unpacked varint, got %v", got)
	}
}

func TestRepeatedStringNeverPacked(t *testing.T) {
	got := wire.String.WireFormat(repeated(nil))
	if got.Kind != wire.KindBytes || got.Bytes != wire.BytesUtf8 {
		t.Fatalf("expected plain utf8 bytes, got %v", got)
	}
}

func TestSingularUnaffected(t *testing.T) {
	got := wire.VarI32.WireFormat(singular())
	if got.Kind != wire.KindVarInt || got.VarInt != wire.Signed {
		t.Fatalf("expected signed varint, got %v", got)
	}
}

func TestEnumWireFormatRepeatedIsPacked(t *testing.T) {
	got := wire.EnumWireFormat(repeated(nil))
	if got.Kind != wire.KindBytes || got.Bytes != wire.BytesPacked {
		t.Fatalf("expected packed enum repeated field, got %v", got)
	}
}

func TestMessageWireFormatNeverPacked(t *testing.T) {
	got := wire.MessageWireFormat(repeated(nil))
	if got.Kind != wire.KindBytes || got.Bytes != wire.BytesMessage {
		t.Fatalf("expected plain message bytes even when repeated, got %v", got)
	}
}
