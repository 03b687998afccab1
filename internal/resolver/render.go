package resolver

import (
	"fmt"
	"go/types"
	"path"
	"strconv"
	"strings"

	apextypes "github.com/conneroisu/apex/internal/types"
)

// renderer prints types as Go source text that compiles outside the
// endpoint's package.
//
// Exported named types of importable packages stay qualified and their
// import paths are recorded. Named types of endpoint units, unexported names
// and types of main packages cannot be referenced from a client package and
// are expanded to their structure; the files declaring them are recorded as
// references. A named type that refers back to itself renders as "any".
type renderer struct {
	r        *Resolver
	refs     map[string]bool
	imports  map[string]bool
	stack    map[*types.TypeName]bool
	warnings []string
}

func (r *Resolver) newRenderer(refs, imports map[string]bool) *renderer {
	return &renderer{
		r:       r,
		refs:    refs,
		imports: imports,
		stack:   make(map[*types.TypeName]bool),
	}
}

func (rr *renderer) warn(format string, args ...any) {
	rr.warnings = append(rr.warnings, fmt.Sprintf(format, args...))
}

// top renders a whole payload or response type. A named type declared in
// the project is flattened to its underlying structure.
func (rr *renderer) top(t types.Type) string {
	switch u := t.(type) {
	case nil:
		rr.warn("missing type")
		return apextypes.Unknown
	case *types.TypeParam:
		rr.warn("type parameter %s is not instantiated", u.Obj().Name())
		return apextypes.Unknown
	case *types.Basic:
		if u.Kind() == types.Invalid {
			rr.warn("type did not check")
			return apextypes.Unknown
		}
	case *types.Named:
		if obj := u.Obj(); obj.Pkg() != nil && rr.r.flattens(obj) {
			return rr.expand(u)
		}
	}
	return rr.render(t)
}

func (rr *renderer) render(t types.Type) string {
	var b strings.Builder
	rr.write(&b, t)
	return b.String()
}

func (rr *renderer) write(b *strings.Builder, t types.Type) {
	switch t := t.(type) {
	case nil:
		rr.warn("missing type")
		b.WriteString("any")

	case *types.Alias:
		rr.write(b, types.Unalias(t))

	case *types.Basic:
		switch t.Kind() {
		case types.Invalid:
			rr.warn("type did not check")
			b.WriteString("any")
		case types.UnsafePointer:
			rr.imports["unsafe"] = true
			b.WriteString("unsafe.Pointer")
		default:
			b.WriteString(t.Name())
		}

	case *types.Pointer:
		b.WriteByte('*')
		rr.write(b, t.Elem())

	case *types.Slice:
		b.WriteString("[]")
		rr.write(b, t.Elem())

	case *types.Array:
		fmt.Fprintf(b, "[%d]", t.Len())
		rr.write(b, t.Elem())

	case *types.Map:
		b.WriteString("map[")
		rr.write(b, t.Key())
		b.WriteByte(']')
		rr.write(b, t.Elem())

	case *types.Chan:
		rr.writeChan(b, t)

	case *types.Struct:
		rr.writeStruct(b, t)

	case *types.Interface:
		rr.writeInterface(b, t)

	case *types.Signature:
		b.WriteString("func")
		rr.writeSignature(b, t)

	case *types.Named:
		rr.writeNamed(b, t)

	case *types.TypeParam:
		rr.warn("type parameter %s is not instantiated", t.Obj().Name())
		b.WriteString("any")

	default:
		rr.warn("unsupported type %s", t)
		b.WriteString("any")
	}
}

func (rr *renderer) writeChan(b *strings.Builder, t *types.Chan) {
	parens := false
	switch t.Dir() {
	case types.SendRecv:
		b.WriteString("chan ")
		// chan (<-chan T) needs parentheses to keep its meaning
		if c, ok := t.Elem().(*types.Chan); ok && c.Dir() == types.RecvOnly {
			parens = true
		}
	case types.SendOnly:
		b.WriteString("chan<- ")
	case types.RecvOnly:
		b.WriteString("<-chan ")
	}
	if parens {
		b.WriteByte('(')
	}
	rr.write(b, t.Elem())
	if parens {
		b.WriteByte(')')
	}
}

func (rr *renderer) writeStruct(b *strings.Builder, t *types.Struct) {
	b.WriteString("struct{")
	for i := 0; i < t.NumFields(); i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		f := t.Field(i)
		if !f.Embedded() {
			b.WriteString(f.Name())
			b.WriteByte(' ')
		}
		rr.write(b, f.Type())
		if tag := t.Tag(i); tag != "" {
			b.WriteByte(' ')
			b.WriteString(quoteTag(tag))
		}
	}
	b.WriteByte('}')
}

func quoteTag(tag string) string {
	if strings.ContainsAny(tag, "`\n") {
		return strconv.Quote(tag)
	}
	return "`" + tag + "`"
}

func (rr *renderer) writeInterface(b *strings.Builder, t *types.Interface) {
	if t.Empty() {
		b.WriteString("any")
		return
	}
	b.WriteString("interface{")
	first := true
	sep := func() {
		if !first {
			b.WriteString("; ")
		}
		first = false
	}
	for i := 0; i < t.NumEmbeddeds(); i++ {
		sep()
		rr.write(b, t.EmbeddedType(i))
	}
	for i := 0; i < t.NumExplicitMethods(); i++ {
		sep()
		m := t.ExplicitMethod(i)
		b.WriteString(m.Name())
		rr.writeSignature(b, m.Type().(*types.Signature))
	}
	b.WriteByte('}')
}

func (rr *renderer) writeSignature(b *strings.Builder, sig *types.Signature) {
	b.WriteByte('(')
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		pt := params.At(i).Type()
		if sig.Variadic() && i == params.Len()-1 {
			b.WriteString("...")
			if s, ok := pt.(*types.Slice); ok {
				pt = s.Elem()
			}
		}
		rr.write(b, pt)
	}
	b.WriteByte(')')

	results := sig.Results()
	switch results.Len() {
	case 0:
	case 1:
		b.WriteByte(' ')
		rr.write(b, results.At(0).Type())
	default:
		b.WriteString(" (")
		for i := 0; i < results.Len(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			rr.write(b, results.At(i).Type())
		}
		b.WriteByte(')')
	}
}

func (rr *renderer) writeNamed(b *strings.Builder, t *types.Named) {
	obj := t.Obj()
	pkg := obj.Pkg()
	if pkg == nil {
		// error, comparable
		b.WriteString(obj.Name())
		return
	}
	if !rr.qualifies(obj) {
		b.WriteString(rr.expand(t))
		return
	}

	rr.imports[importSpec(pkg)] = true
	b.WriteString(pkg.Name())
	b.WriteByte('.')
	b.WriteString(obj.Name())
	if args := t.TypeArgs(); args != nil && args.Len() > 0 {
		b.WriteByte('[')
		for i := 0; i < args.Len(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			rr.write(b, args.At(i))
		}
		b.WriteByte(']')
	}
}

// importSpec returns the import path of pkg, prefixed with the package name
// when the name is not the last path element.
func importSpec(pkg *types.Package) string {
	if path.Base(pkg.Path()) == pkg.Name() {
		return pkg.Path()
	}
	return pkg.Name() + " " + pkg.Path()
}

// qualifies reports whether a named type can be referenced by name from the
// generated client package.
func (rr *renderer) qualifies(obj *types.TypeName) bool {
	pkg := obj.Pkg()
	return obj.Exported() && !rr.r.idx.IsUnitPackage(pkg) && pkg.Name() != "main"
}

// expand renders the underlying structure of a named type.
func (rr *renderer) expand(t *types.Named) string {
	obj := t.Obj()
	if rr.stack[obj] {
		rr.warn("cyclic type %s", obj.Name())
		return "any"
	}
	rr.stack[obj] = true
	defer delete(rr.stack, obj)

	if decl := rr.r.idx.File(obj.Pos()); decl != "" {
		rr.r.addRef(rr.refs, decl)
	}
	return rr.render(t.Underlying())
}
