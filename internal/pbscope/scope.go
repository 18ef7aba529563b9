// Package pbscope resolves textual, partially-qualified protobuf type
// references (as they appear in a FieldDescriptorProto's type_name) into
// fully-qualified qualname.QualName values, by walking the package and
// nested-type structure of a descriptor set.
package pbscope

import (
	"fmt"
	"strings"

	"github.com/axonops/protock/internal/qualname"
	"google.golang.org/protobuf/types/descriptorpb"
)

// MalformedError reports a fatal scope-resolution failure: an unresolvable
// type reference or a package/anonymous-package name conflict. It aborts
// ingestion rather than entering the diagnostic log.
type MalformedError struct {
	Context string
}

func (e *MalformedError) Error() string { return "malformed descriptor: " + e.Context }

// items maps a type's (or package's) direct children by name.
type items map[string]*node

// node is either a package or a message, enum, or service type.
type node struct {
	isPackage bool
	pkgName   *string // set when isPackage; nil = anonymous package
	typeName  string  // set when !isPackage
	children  items
}

// Global is the top-level scope: every package (including the anonymous
// one) mapped to its own node.
type Global struct {
	packages map[string]*node // key: "" for anonymous/no-package marker handled via hasAnon
	anon     *node
	hasAnon  bool
}

// Build constructs the global scope from every file in a descriptor set.
// Files sharing a package contribute to the same package node, and each
// service gets a node beside the file's top-level messages and enums.
func Build(files []*descriptorpb.FileDescriptorProto) *Global {
	g := &Global{packages: make(map[string]*node)}

	for _, f := range files {
		var n *node
		if f.Package == nil {
			if !g.hasAnon {
				g.anon = &node{isPackage: true, children: items{}}
				g.hasAnon = true
			}
			n = g.anon
		} else {
			p := f.GetPackage()
			if n = g.packages[p]; n == nil {
				n = &node{isPackage: true, pkgName: &p, children: items{}}
				g.packages[p] = n
			}
		}
		for name, child := range buildItems(f.GetMessageType(), f.GetEnumType()) {
			n.children[name] = child
		}
		for _, s := range f.GetService() {
			n.children[s.GetName()] = &node{typeName: s.GetName(), children: items{}}
		}
	}

	return g
}

func buildItems(msgs []*descriptorpb.DescriptorProto, enums []*descriptorpb.EnumDescriptorProto) items {
	it := make(items, len(msgs)+len(enums))
	for _, m := range msgs {
		it[m.GetName()] = &node{typeName: m.GetName(), children: buildItems(m.GetNestedType(), m.GetEnumType())}
	}
	for _, e := range enums {
		it[e.GetName()] = &node{typeName: e.GetName(), children: items{}}
	}
	return it
}

// Package looks up a named package's scope ref (pkg == nil for anonymous).
func (g *Global) Package(pkg *string) (*Ref, bool) {
	var n *node
	if pkg == nil {
		if !g.hasAnon {
			return nil, false
		}
		n = g.anon
	} else {
		var ok bool
		n, ok = g.packages[*pkg]
		if !ok {
			return nil, false
		}
	}
	return &Ref{global: g, node: n}, true
}

// resolveOne finds the scope owning the first path segment: either a
// declared package of that name, or an anonymous-package top-level type.
// A name claimed by both is a malformed-descriptor conflict.
func (g *Global) resolveOne(name string) (*Ref, error) {
	pkg, pkgOK := g.packages[name]
	var anonChild *node
	if g.hasAnon {
		anonChild = g.anon.children[name]
	}

	switch {
	case pkgOK && anonChild != nil:
		return nil, &MalformedError{Context: fmt.Sprintf("conflict for %q between package and anonymous-package type", name)}
	case pkgOK:
		return &Ref{global: g, node: pkg}, nil
	case anonChild != nil:
		return &Ref{global: g, node: anonChild, parent: &Ref{global: g, node: g.anon}}, nil
	default:
		return nil, &MalformedError{Context: fmt.Sprintf("unresolvable name %q", name)}
	}
}

// ResolveAbsolute resolves a dot-separated absolute path (without its
// leading '.') into a fully-qualified QualName.
func (g *Global) ResolveAbsolute(path string) (qualname.QualName, error) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || segs[0] == "" {
		return qualname.QualName{}, &MalformedError{Context: "empty absolute type reference"}
	}

	// A package name may itself contain dots: the longest dotted prefix
	// naming a declared package wins over resolving the first segment alone.
	var ref *Ref
	rest := segs[1:]
	for i := len(segs) - 1; i >= 2; i-- {
		if n, ok := g.packages[strings.Join(segs[:i], ".")]; ok {
			ref, rest = &Ref{global: g, node: n}, segs[i:]
			break
		}
	}
	if ref == nil {
		var err error
		if ref, err = g.resolveOne(segs[0]); err != nil {
			return qualname.QualName{}, err
		}
	}

	var pkgName *string
	if ref.parent == nil && ref.node.isPackage {
		pkgName = ref.node.pkgName
	} else {
		// anonymous-package top-level type: package is the anonymous one.
		pkgName = nil
	}

	cur := ref.node
	out := make([]string, 0, len(segs))
	if !cur.isPackage {
		out = append(out, cur.typeName)
	}
	for _, seg := range rest {
		child, ok := cur.children[seg]
		if !ok {
			return qualname.QualName{}, &MalformedError{Context: fmt.Sprintf("couldn't resolve fully-qualified type name %q", path)}
		}
		out = append(out, child.typeName)
		cur = child
	}

	return qualname.QualName{Package: pkgName, Path: out}, nil
}

// Ref is a scope reference: a node plus its chain of parents, used to
// qualify and search relative type references.
type Ref struct {
	global *Global
	node   *node
	parent *Ref
}

// Global returns the global scope this ref was resolved within, for
// absolute (leading-dot) type_name resolution.
func (r *Ref) Global() *Global { return r.global }

// Parent returns the enclosing scope, or nil if r is a package scope.
func (r *Ref) Parent() *Ref { return r.parent }

// Child descends into a nested message, enum, or service type.
func (r *Ref) Child(name string) (*Ref, bool) {
	n, ok := r.node.children[name]
	if !ok {
		return nil, false
	}
	return &Ref{global: r.global, node: n, parent: r}, true
}

// Qualify expands this ref's parent chain plus an additional relative path
// into a fully-qualified QualName.
func (r *Ref) Qualify(path []string) (qualname.QualName, error) {
	var up []string
	var pkgName *string
	cur := r
	for cur != nil {
		if cur.node.isPackage {
			pkgName = cur.node.pkgName
			break
		}
		up = append([]string{cur.node.typeName}, up...)
		cur = cur.parent
	}

	down := make([]string, 0, len(path))
	curNode := r.node
	for _, seg := range path {
		child, ok := curNode.children[seg]
		if !ok {
			return qualname.QualName{}, &MalformedError{Context: fmt.Sprintf("invalid nested type reference %q", seg)}
		}
		down = append(down, child.typeName)
		curNode = child
	}

	return qualname.QualName{Package: pkgName, Path: append(up, down...)}, nil
}

// searchOne walks up the parent chain (and finally the global scope) to
// find the ref whose immediate children (or own package name) contain name.
func (r *Ref) searchOne(name string) (*Ref, error) {
	if child, ok := r.Child(name); ok {
		return child, nil
	}
	if r.parent != nil {
		return r.parent.searchOne(name)
	}
	if r.node.isPackage && r.node.pkgName != nil && *r.node.pkgName == name {
		return r, nil
	}
	return r.global.resolveOne(name)
}

// Search resolves a relative, dot-separated path: walk outward until a
// scope contains the first segment, then descend the remainder.
func (r *Ref) Search(path string) (qualname.QualName, error) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || segs[0] == "" {
		return qualname.QualName{}, &MalformedError{Context: "empty relative type reference"}
	}

	owner, err := r.searchOne(segs[0])
	if err != nil {
		return qualname.QualName{}, err
	}
	return owner.Qualify(segs[1:])
}
