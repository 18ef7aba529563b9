// Package compat implements the directional schema compatibility engine: it
// walks a paired reader/writer Schema and appends severity-tagged
// diagnostics to a Log. A check fails if and only if the log gained an
// error-severity record.
package compat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/axonops/protock/internal/pbschema"
	"github.com/axonops/protock/internal/qualname"
	"github.com/axonops/protock/internal/unionfind"
	"github.com/axonops/protock/internal/wire"
)

// Severity classifies a diagnostic. Error-severity records cause the
// check to be reported as failed; warnings never do.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Diagnostic is one compatibility finding. ReaderContext and WriterContext
// are independently optional: some findings (e.g. a negative enum value)
// only make sense attributed to one side.
type Diagnostic struct {
	Severity      Severity
	ReaderContext *string
	WriterContext *string
	Message       string
}

func (d Diagnostic) String() string {
	switch {
	case d.ReaderContext != nil && d.WriterContext != nil:
		return fmt.Sprintf("(%s in reader, %s in writer) %s", *d.ReaderContext, *d.WriterContext, d.Message)
	case d.ReaderContext != nil:
		return fmt.Sprintf("(%s in reader) %s", *d.ReaderContext, d.Message)
	case d.WriterContext != nil:
		return fmt.Sprintf("(%s in writer) %s", *d.WriterContext, d.Message)
	default:
		return d.Message
	}
}

// Log accumulates diagnostics for a single check. Unlike the trait this is
// ported from, every rule always appends and continues rather than
// aborting the whole check on the first error: a caller wants every
// incompatibility in one pass, not just the first.
type Log struct {
	diagnostics []Diagnostic
}

// Records returns every diagnostic appended so far, in append order.
func (l *Log) Records() []Diagnostic { return l.diagnostics }

// Failed reports whether any error-severity diagnostic was appended.
func (l *Log) Failed() bool {
	for _, d := range l.diagnostics {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

func (l *Log) both(sev Severity, rd, wr, format string, args ...any) {
	r, w := rd, wr
	l.diagnostics = append(l.diagnostics, Diagnostic{Severity: sev, ReaderContext: &r, WriterContext: &w, Message: fmt.Sprintf(format, args...)})
}

func (l *Log) reader(sev Severity, rd, format string, args ...any) {
	r := rd
	l.diagnostics = append(l.diagnostics, Diagnostic{Severity: sev, ReaderContext: &r, Message: fmt.Sprintf(format, args...)})
}

func (l *Log) writer(sev Severity, wr, format string, args ...any) {
	w := wr
	l.diagnostics = append(l.diagnostics, Diagnostic{Severity: sev, WriterContext: &w, Message: fmt.Sprintf(format, args...)})
}

// Check runs one directional compatibility pass: can code built against
// reader still make sense of data produced by writer. readerName/writerName
// label the two schemas in diagnostics about types missing outright.
func Check(reader, writer *pbschema.Schema, readerName, writerName string, log *Log) {
	for key, rentry := range reader.Types {
		wentry, ok := writer.Types[key]
		if !ok {
			continue // reader may define more than writer produced; ignored.
		}
		checkType(rentry, wentry, reader, writer, rentry.Name.String(), wentry.Name.String(), true, log)
	}

	for key, wentry := range writer.Types {
		if _, ok := reader.Types[key]; ok {
			continue
		}
		if wentry.Type.IsInternal() {
			continue
		}
		log.both(Error, readerName, writerName, "Missing %s type %s present in writer", wentry.Type.Kind, wentry.Name.String())
	}
}

func checkType(rentry, wentry *pbschema.TypeEntry, reader, writer *pbschema.Schema, rdLabel, wrLabel string, byName bool, log *Log) {
	if rentry.Type.Kind != wentry.Type.Kind {
		log.both(Error, rdLabel, wrLabel, "Type mismatch: %s in reader, %s in writer", rentry.Type.Kind, wentry.Type.Kind)
		return
	}

	switch rentry.Type.Kind {
	case pbschema.KindMessage:
		checkMessageRecord(rentry.Type.Message, wentry.Type.Message, reader, writer, rdLabel, wrLabel, byName, log)
	case pbschema.KindEnum:
		checkEnumRecord(rentry.Type.Enum, wentry.Type.Enum, rentry.Name, wentry.Name, rdLabel, wrLabel, byName, log)
	case pbschema.KindService:
		checkService(rentry.Type.Service, rentry.Name, wentry.Name, log)
	}
}

// checkMessageRecord is the message rule: field-number/name symmetric check
// plus the oneof clash detector.
func checkMessageRecord(rd, wr *pbschema.Record[pbschema.Field], reader, writer *pbschema.Schema, rdLabel, wrLabel string, byName bool, log *Log) {
	for num, wf := range wr.Numbers {
		if _, ok := rd.Numbers[num]; ok {
			continue
		}
		if !rd.Reserved.Contains(int64(num)) {
			log.both(Warning, rdLabel, wrLabel, "Field %s (ID %d) missing and not reserved on reader", wf.Name, num)
		}
	}
	for num, rf := range rd.Numbers {
		if _, ok := wr.Numbers[num]; ok {
			continue
		}
		if !wr.Reserved.Contains(int64(num)) {
			log.both(Warning, rdLabel, wrLabel, "Field %s (ID %d) missing and not reserved on writer", rf.Name, num)
		}
	}

	for name, rdID := range rd.Names {
		wrID, ok := wr.Names[name]
		if !ok {
			if byName && rdID != nil {
				log.both(Warning, rdLabel, wrLabel, "Field name %s (ID %d) missing and not reserved on writer", name, *rdID)
			}
			continue
		}
		if rdID != nil && wrID != nil && *rdID != *wrID {
			log.both(Warning, rdLabel, wrLabel, "Field %s has id %d on reader and %d on writer", name, *rdID, *wrID)
		}
	}
	for name, wrID := range wr.Names {
		if _, ok := rd.Names[name]; ok {
			continue
		}
		if byName && wrID != nil {
			log.both(Warning, rdLabel, wrLabel, "Field name %s (ID %d) missing and not reserved on reader", name, *wrID)
		}
	}

	for num, rf := range rd.Numbers {
		wf, ok := wr.Numbers[num]
		if !ok {
			continue
		}
		checkField(num, rf, wf, reader, writer, rdLabel, wrLabel, log)
	}

	checkOneofClashes(rd, wr, rdLabel, wrLabel, log)
}

func checkField(id int32, rf, wf pbschema.Field, reader, writer *pbschema.Schema, rdTyLabel, wrTyLabel string, log *Log) {
	rdLabel := rdTyLabel + "::" + rf.Name
	wrLabel := wrTyLabel + "::" + wf.Name

	if rf.Name != wf.Name {
		log.both(Warning, rdLabel, wrLabel, "Field name mismatch for ID %d", id)
	}

	rdWire := fieldWireFormat(rf.Type, rf.Kind, reader)
	wrWire := fieldWireFormat(wf.Type, wf.Kind, writer)

	switch {
	case rdWire.Kind == wire.KindVarInt && wrWire.Kind == wire.KindVarInt:
		checkVarIntMode(rdWire.VarInt, wrWire.VarInt, rdLabel, wrLabel, log)
	case rdWire.Kind == wire.KindFix32 && wrWire.Kind == wire.KindFix32:
		checkFixIntMode(rdWire.Fix, wrWire.Fix, rdLabel, wrLabel, log)
	case rdWire.Kind == wire.KindFix64 && wrWire.Kind == wire.KindFix64:
		checkFixIntMode(rdWire.Fix, wrWire.Fix, rdLabel, wrLabel, log)
	case rdWire.Kind == wire.KindBytes && wrWire.Kind == wire.KindBytes:
		checkBytesMode(rdWire, wrWire, rdLabel, wrLabel, log)
	default:
		log.both(Error, rdLabel, wrLabel, "Fields have incompatible wire formats (%s for reader, %s for writer)", rdWire, wrWire)
	}

	checkFieldKind(rf.Kind, wf.Kind, rdLabel, wrLabel, log)

	if rf.Type.Named != nil && wf.Type.Named != nil {
		rdEntry, rdOK := reader.Lookup(*rf.Type.Named)
		wrEntry, wrOK := writer.Lookup(*wf.Type.Named)
		if rdOK && wrOK {
			fieldRdLabel := fmt.Sprintf("%s::<%s>", rdLabel, rf.Type.Named.String())
			fieldWrLabel := fmt.Sprintf("%s::<%s>", wrLabel, wf.Type.Named.String())
			checkType(rdEntry, wrEntry, reader, writer, fieldRdLabel, fieldWrLabel, false, log)
		}
	}
}

func fieldWireFormat(ft pbschema.FieldType, kind pbschema.FieldKind, schema *pbschema.Schema) wire.Type {
	if ft.Primitive != nil {
		return ft.Primitive.WireFormat(kind)
	}
	entry, ok := schema.Lookup(*ft.Named)
	if ok && entry.Type.Kind == pbschema.KindEnum {
		return wire.EnumWireFormat(kind)
	}
	return wire.MessageWireFormat(kind)
}

func isSignedOrUnsigned(m wire.VarIntMode) bool { return m == wire.Signed || m == wire.Unsigned }

func checkVarIntMode(rd, wr wire.VarIntMode, rdLabel, wrLabel string, log *Log) {
	switch {
	case rd == wr:
	case isSignedOrUnsigned(rd) && isSignedOrUnsigned(wr):
		log.both(Warning, rdLabel, wrLabel, "Varint sign difference (%s in reader, %s in writer)", rd, wr)
	case (isSignedOrUnsigned(rd) && wr == wire.EnumMode) || (rd == wire.EnumMode && isSignedOrUnsigned(wr)):
		log.both(Warning, rdLabel, wrLabel, "Enum type punning (%s in reader, %s in writer)", rd, wr)
	default:
		log.both(Error, rdLabel, wrLabel, "Incompatible varint formats (%s in reader, %s in writer)", rd, wr)
	}
}

func isFixSignedOrUnsigned(m wire.FixIntMode) bool { return m == wire.FixSigned || m == wire.FixUnsigned }

func checkFixIntMode(rd, wr wire.FixIntMode, rdLabel, wrLabel string, log *Log) {
	switch {
	case rd == wr:
	case isFixSignedOrUnsigned(rd) && isFixSignedOrUnsigned(wr):
		log.both(Warning, rdLabel, wrLabel, "Sign difference in fixint fields (%s in reader, %s in writer)", rd, wr)
	default:
		log.both(Error, rdLabel, wrLabel, "Incompatible fixint formats (%s in reader, %s in writer)", rd, wr)
	}
}

func isBytesOrUtf8(m wire.BytesMode) bool { return m == wire.BytesBytes || m == wire.BytesUtf8 }
func isBytesOrMessage(m wire.BytesMode) bool { return m == wire.BytesBytes || m == wire.BytesMessage }

func checkBytesMode(rd, wr wire.Type, rdLabel, wrLabel string, log *Log) {
	switch {
	case equalWireType(rd, wr):
	case isBytesOrUtf8(rd.Bytes) && isBytesOrUtf8(wr.Bytes):
		log.both(Warning, rdLabel, wrLabel, "UTF-8 type punning (%s in reader, %s in writer)", rd, wr)
	case isBytesOrMessage(rd.Bytes) && isBytesOrMessage(wr.Bytes):
		log.both(Warning, rdLabel, wrLabel, "Embedded message type punning (%s in reader, %s in writer)", rd, wr)
	default:
		log.both(Error, rdLabel, wrLabel, "Incompatible byte formats (%s in reader, %s in writer)", rd, wr)
	}
}

func equalWireType(a, b wire.Type) bool {
	if a.Kind != b.Kind || a.VarInt != b.VarInt || a.Fix != b.Fix || a.Bytes != b.Bytes {
		return false
	}
	if (a.PackedNumeric == nil) != (b.PackedNumeric == nil) {
		return false
	}
	if a.PackedNumeric == nil {
		return true
	}
	return equalWireType(*a.PackedNumeric, *b.PackedNumeric)
}

func isSingularOrOptional(t pbschema.FieldKindTag) bool {
	return t == pbschema.Singular || t == pbschema.Optional
}

func checkFieldKind(rd, wr pbschema.FieldKind, rdLabel, wrLabel string, log *Log) {
	if fieldKindEqual(rd, wr) {
		return
	}

	switch {
	case isSingularOrOptional(rd.Tag) && isSingularOrOptional(wr.Tag):
	case rd.Tag == pbschema.Repeated && isSingularOrOptional(wr.Tag):
	case isSingularOrOptional(rd.Tag) && wr.Tag == pbschema.Repeated:
		log.both(Warning, rdLabel, wrLabel, "Repeated/singular mismatch (%s on reader, repeated on writer)", rd.Tag)
	default:
		log.both(Error, rdLabel, wrLabel, "Incompatible field kinds (%s on reader, %s on writer)", rd.Tag, wr.Tag)
	}
}

func fieldKindEqual(a, b pbschema.FieldKind) bool {
	if a.Tag != b.Tag {
		return false
	}
	if a.Packed == nil || b.Packed == nil {
		return a.Packed == b.Packed
	}
	return *a.Packed == *b.Packed
}

// checkEnumRecord is the enum rule: same framework as messages, with
// variant-identity severities and the negative-value sweep.
func checkEnumRecord(rd, wr *pbschema.Record[pbschema.Variant], rdTy, wrTy qualname.QualName, rdLabel, wrLabel string, byName bool, log *Log) {
	for num, wv := range wr.Numbers {
		if _, ok := rd.Numbers[num]; ok {
			continue
		}
		if !rd.Reserved.Contains(int64(num)) {
			log.both(Warning, rdLabel, wrLabel, "Enum variant(s) %s (value %d) missing and not reserved on reader", wv.NamePretty(false), num)
		}
	}
	for num, rv := range rd.Numbers {
		if _, ok := wr.Numbers[num]; ok {
			continue
		}
		if !wr.Reserved.Contains(int64(num)) {
			log.both(Warning, rdLabel, wrLabel, "Enum variant(s) %s (value %d) missing and not reserved on writer", rv.NamePretty(false), num)
		}
	}

	for name, rdID := range rd.Names {
		wrID, ok := wr.Names[name]
		if !ok {
			if byName && rdID != nil {
				log.both(Warning, rdLabel, wrLabel, "Enum variant name %s (ID %d) missing and not reserved on writer", name, *rdID)
			}
			continue
		}
		if rdID != nil && wrID != nil && *rdID != *wrID {
			log.both(Error, rdLabel, wrLabel, "Enum variant %s has value %d on reader and %d on writer", name, *rdID, *wrID)
		}
	}
	for name, wrID := range wr.Names {
		if _, ok := rd.Names[name]; ok {
			continue
		}
		if byName && wrID != nil {
			log.both(Warning, rdLabel, wrLabel, "Enum variant name %s (ID %d) missing and not reserved on reader", name, *wrID)
		}
	}

	for num, rv := range rd.Numbers {
		wv, ok := wr.Numbers[num]
		if !ok {
			continue
		}
		checkVariant(num, rv, wv, rdTy, wrTy, log)
	}

	for val, v := range rd.Numbers {
		if val < 0 {
			log.reader(Warning, rdTy.Member(v.NamePretty(true)).String(), "Negative enum value %d", val)
		}
	}
	for val, v := range wr.Numbers {
		if val < 0 {
			log.writer(Warning, wrTy.Member(v.NamePretty(true)).String(), "Negative enum value %d", val)
		}
	}
}

func checkVariant(id int32, rv, wv pbschema.Variant, rdTy, wrTy qualname.QualName, log *Log) {
	if sameNames(rv.Names_, wv.Names_) {
		return
	}

	rdLabel := rdTy.Member(rv.NamePretty(true)).String()
	wrLabel := wrTy.Member(wv.NamePretty(true)).String()

	if len(rv.Names_) == 1 && len(wv.Names_) == 1 {
		log.both(Warning, rdLabel, wrLabel, "Enum variant name mismatch for value %d", id)
		return
	}

	rdOnly := diffNames(rv.Names_, wv.Names_)
	wrOnly := diffNames(wv.Names_, rv.Names_)
	if len(rdOnly) == 0 || len(wrOnly) == 0 {
		// one side's alias set is a pure superset of the other's: silent.
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Mismatched enum alias(es) for value %d", id)
	b.WriteString(": ")
	b.WriteString(strings.Join(rdOnly, ", "))
	b.WriteString(" for reader; ")
	b.WriteString(strings.Join(wrOnly, ", "))
	b.WriteString(" for writer")

	log.both(Warning, rdLabel, wrLabel, "%s", b.String())
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func diffNames(a, b []string) []string {
	bset := make(map[string]struct{}, len(b))
	for _, n := range b {
		bset[n] = struct{}{}
	}
	var out []string
	for _, n := range a {
		if _, ok := bset[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// checkOneofClashes partitions field numbers into equivalence classes by
// shared number and by shared oneof membership on the same side, then
// flags any class whose per-side field set disagrees about that
// partition: a oneof on one side spanning numbers that the other side does
// not group identically breaks wire semantics.
func checkOneofClashes(rd, wr *pbschema.Record[pbschema.Field], rdLabel, wrLabel string, log *Log) {
	type group struct {
		isOneof bool
		id      int32
	}
	type fieldInfo struct {
		name string
		grp  group
	}
	type sidedField struct {
		writer bool
		info   fieldInfo
	}
	type sidedGroup struct {
		writer bool
		grp    group
	}
	type sidedRoot struct {
		writer bool
		root   int
	}

	ufIDs := map[int32]int{}
	fieldsByUF := map[int]map[sidedField]struct{}{}
	groupReps := map[sidedGroup]int{}
	uf := &unionfind.UnionFind{}
	var nextUniq int32

	process := func(isWriter bool, numbers map[int32]pbschema.Field) {
		for num, f := range numbers {
			var g group
			if f.Oneof != nil {
				g = group{isOneof: true, id: *f.Oneof}
			} else {
				g = group{isOneof: false, id: nextUniq}
				nextUniq++
			}

			ufID, ok := ufIDs[num]
			if !ok {
				ufID = uf.Put()
				ufIDs[num] = ufID
			}

			sf := sidedField{writer: isWriter, info: fieldInfo{name: f.Name, grp: g}}
			if fieldsByUF[ufID] == nil {
				fieldsByUF[ufID] = map[sidedField]struct{}{}
			}
			fieldsByUF[ufID][sf] = struct{}{}

			gk := sidedGroup{writer: isWriter, grp: g}
			if prev, ok := groupReps[gk]; ok {
				uf.Union(prev, ufID)
			} else {
				groupReps[gk] = ufID
			}
		}
	}
	process(false, rd.Numbers)
	process(true, wr.Numbers)

	clashes := map[sidedRoot]map[int]struct{}{}
	groupsByRoot := map[sidedRoot]map[group]struct{}{}
	for _, ufID := range ufIDs {
		root, _ := uf.Find(ufID)
		for sf := range fieldsByUF[ufID] {
			key := sidedRoot{writer: sf.writer, root: root}
			if clashes[key] == nil {
				clashes[key] = map[int]struct{}{}
				groupsByRoot[key] = map[group]struct{}{}
			}
			clashes[key][ufID] = struct{}{}
			groupsByRoot[key][sf.info.grp] = struct{}{}
		}
	}

	type entry struct {
		key sidedRoot
		ids map[int]struct{}
	}
	entries := make([]entry, 0, len(clashes))
	for k, v := range clashes {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].key.writer != entries[j].key.writer {
			return !entries[i].key.writer
		}
		return entries[i].key.root < entries[j].key.root
	})

	seen := map[string]bool{}
	for _, e := range entries {
		// A side whose fields in this class all share one group agrees with
		// the class as a whole; only a side splitting it into several groups
		// disagrees with the other side's partition.
		if len(e.ids) < 2 || len(groupsByRoot[e.key]) < 2 {
			continue
		}
		idsSorted := make([]int, 0, len(e.ids))
		for id := range e.ids {
			idsSorted = append(idsSorted, id)
		}
		sort.Ints(idsSorted)
		parts := make([]string, len(idsSorted))
		for i, id := range idsSorted {
			parts[i] = strconv.Itoa(id)
		}
		setKey := strings.Join(parts, ",")
		if seen[setKey] {
			continue
		}
		seen[setKey] = true

		fieldSet := map[sidedField]struct{}{}
		for _, id := range idsSorted {
			for sf := range fieldsByUF[id] {
				fieldSet[sf] = struct{}{}
			}
		}
		fields := make([]sidedField, 0, len(fieldSet))
		for sf := range fieldSet {
			fields = append(fields, sf)
		}
		sort.Slice(fields, func(i, j int) bool {
			if fields[i].info.name != fields[j].info.name {
				return fields[i].info.name < fields[j].info.name
			}
			return !fields[i].writer && fields[j].writer
		})

		var b strings.Builder
		b.WriteString("Oneof group clash - fields involved: ")
		for i, f := range fields {
			if i != 0 {
				b.WriteString(", ")
			}
			side := "reader"
			if f.writer {
				side = "writer"
			}
			fmt.Fprintf(&b, "%s on %s", f.info.name, side)
		}

		log.both(Error, rdLabel, wrLabel, "%s", b.String())
	}
}

// checkService is the service rule: methods present on both sides must
// agree on input/output types, streaming mode, and idempotency; a missing
// method on either side is a warning, since a service may grow new RPCs.
func checkService(rd, wr *pbschema.Service, rdTy, wrTy qualname.QualName, log *Log) {
	for name, rm := range rd.Methods {
		wm, ok := wr.Methods[name]
		if !ok {
			log.both(Warning, rdTy.String(), wrTy.String(), "Method %s missing on writer", name)
			continue
		}
		checkMethod(name, rm, wm, rdTy, wrTy, log)
	}
	for name := range wr.Methods {
		if _, ok := rd.Methods[name]; !ok {
			log.both(Warning, rdTy.String(), wrTy.String(), "Method %s missing on reader", name)
		}
	}
}

func checkMethod(name string, rm, wm pbschema.Method, rdTy, wrTy qualname.QualName, log *Log) {
	rdLabel := rdTy.Member(name).String()
	wrLabel := wrTy.Member(name).String()

	if rm.InputType.Key() != wm.InputType.Key() {
		log.both(Error, rdLabel, wrLabel, "Method %s input type mismatch (%s on reader, %s on writer)", name, rm.InputType.String(), wm.InputType.String())
	}
	if rm.OutputType.Key() != wm.OutputType.Key() {
		log.both(Error, rdLabel, wrLabel, "Method %s output type mismatch (%s on reader, %s on writer)", name, rm.OutputType.String(), wm.OutputType.String())
	}
	if rm.InputStream != wm.InputStream || rm.OutputStream != wm.OutputStream {
		log.both(Warning, rdLabel, wrLabel, "Method %s streaming mode mismatch", name)
	}
	if rm.Idempotency != wm.Idempotency {
		log.both(Warning, rdLabel, wrLabel, "Method %s idempotency level mismatch (%s on reader, %s on writer)", name, rm.Idempotency, wm.Idempotency)
	}
}
