// Package qualname implements protobuf qualified-name values: an optional
// package plus a dotted path of identifiers, used as the identity of every
// type, field, enum value, and method the schema model tracks.
package qualname

import (
	"strconv"
	"strings"
)

// QualName is a package-qualified path to a message, enum, or service.
// Package is nil when the declaration has no package clause at all; a
// pointer to an empty string denotes the anonymous package explicitly.
// Those two cases are distinct and must not compare equal.
type QualName struct {
	Package *string
	Path    []string
}

// New builds an owned QualName. pkg == nil means "no package"; pass a
// pointer to "" for the anonymous package.
func New(pkg *string, path ...string) QualName {
	p := make([]string, len(path))
	copy(p, path)
	return QualName{Package: pkg, Path: p}
}

// Clone returns an independent copy, safe to retain past the lifetime of
// any buffer the receiver's strings may reference.
func (q QualName) Clone() QualName {
	var pkg *string
	if q.Package != nil {
		v := *q.Package
		pkg = &v
	}
	path := make([]string, len(q.Path))
	copy(path, q.Path)
	return QualName{Package: pkg, Path: path}
}

// Append returns a new QualName with additional path segments.
func (q QualName) Append(segs ...string) QualName {
	path := make([]string, 0, len(q.Path)+len(segs))
	path = append(path, q.Path...)
	path = append(path, segs...)
	return QualName{Package: q.Package, Path: path}
}

// Member qualifies a field, enum variant, or method name under this type.
func (q QualName) Member(name string) MemberQualName {
	return MemberQualName{Type: q, Member: name}
}

// Key returns a canonical string safe to use as a map key; it distinguishes
// an absent package from the anonymous package and cannot collide across
// differing (package, path) pairs since path segments are length-prefixed.
func (q QualName) Key() string {
	var b strings.Builder
	if q.Package == nil {
		b.WriteString("\x00")
	} else {
		b.WriteString("\x01")
		writeSeg(&b, *q.Package)
	}
	for _, p := range q.Path {
		b.WriteByte('.')
		writeSeg(&b, p)
	}
	return b.String()
}

func writeSeg(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// String renders the debug form: 'package'.path.segments
func (q QualName) String() string {
	var b strings.Builder
	if q.Package != nil {
		b.WriteByte('\'')
		b.WriteString(*q.Package)
		b.WriteByte('\'')
	}
	for _, id := range q.Path {
		b.WriteByte('.')
		b.WriteString(id)
	}
	return b.String()
}

// MemberQualName names a field, enum variant, or RPC method within a
// containing type.
type MemberQualName struct {
	Type   QualName
	Member string
}

func (m MemberQualName) Clone() MemberQualName {
	return MemberQualName{Type: m.Type.Clone(), Member: m.Member}
}

func (m MemberQualName) Key() string {
	return m.Type.Key() + "::" + m.Member
}

func (m MemberQualName) String() string {
	return m.Type.String() + "::" + m.Member
}
