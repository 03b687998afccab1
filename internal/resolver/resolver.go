// Package resolver infers the payload and response types of an endpoint's
// registration call and reduces them to structural Go type text.
package resolver

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"regexp"
	"sort"

	apexerrors "github.com/conneroisu/apex/internal/errors"
	"github.com/conneroisu/apex/internal/index"
	"github.com/conneroisu/apex/internal/logging"
	apextypes "github.com/conneroisu/apex/internal/types"
)

// DefaultHandler is the registration function name recognized by default.
const DefaultHandler = "Define"

// DefaultAsyncWrappers lists the generic types unwrapped from a response.
// "chan" stands for channel types.
var DefaultAsyncWrappers = []string{"Future", "Promise", "Task", "chan"}

// Options configures a Resolver.
type Options struct {
	// Handler is the registration function name, matched case-sensitively
	Handler string
	// AsyncWrappers names generic wrapper types whose first type argument
	// replaces the wrapper in a response
	AsyncWrappers []string
	// Strict turns unresolved types into ResolutionErrors
	Strict bool
	Logger logging.Logger
}

// Resolver resolves TypeDescriptors against a symbol index.
type Resolver struct {
	idx      *index.Index
	opts     Options
	callee   *regexp.Regexp
	wrappers map[string]bool
	logger   logging.Logger
}

// New creates a Resolver. Zero options fall back to the defaults.
func New(idx *index.Index, opts Options) *Resolver {
	if opts.Handler == "" {
		opts.Handler = DefaultHandler
	}
	if opts.AsyncWrappers == nil {
		opts.AsyncWrappers = DefaultAsyncWrappers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	wrappers := make(map[string]bool, len(opts.AsyncWrappers))
	for _, w := range opts.AsyncWrappers {
		wrappers[w] = true
	}

	return &Resolver{
		idx:      idx,
		opts:     opts,
		callee:   regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_]*\.)?` + regexp.QuoteMeta(opts.Handler) + `$`),
		wrappers: wrappers,
		logger:   logger.WithComponent("resolver"),
	}
}

// registration is the located handler-registration call.
type registration struct {
	call *ast.CallExpr
	decl *ast.GenDecl
	spec *ast.ValueSpec
}

// Resolve computes the TypeDescriptor of an endpoint file. Access to the
// index is serialized through Index.Do.
func (r *Resolver) Resolve(ctx context.Context, file string) (*apextypes.TypeDescriptor, error) {
	var td *apextypes.TypeDescriptor
	err := r.idx.Do(func() error {
		var err error
		td, err = r.resolve(ctx, file)
		return err
	})
	return td, err
}

func (r *Resolver) resolve(ctx context.Context, file string) (*apextypes.TypeDescriptor, error) {
	rel := r.idx.Rel(file)
	unit, f := r.idx.Lookup(file)
	if f == nil || unit.Info == nil {
		return nil, &apexerrors.StructuralError{File: rel, Reason: "file is not part of the symbol index"}
	}
	abs := r.idx.File(f.Package)

	reg, err := r.findRegistration(f, rel)
	if err != nil {
		return nil, err
	}

	td := &apextypes.TypeDescriptor{
		Alias: findAlias(f, reg.decl, reg.spec),
	}
	refs := make(map[string]bool)
	imports := make(map[string]bool)

	// Payload
	in := r.newRenderer(refs, imports)
	if t := r.payloadType(reg.call, unit.Info); t != nil {
		td.InputType, td.InputSource = r.resolveType(in, t, abs)
	} else {
		in.warn("no payload type argument on %s call", r.opts.Handler)
		td.InputType, td.InputSource = apextypes.Unknown, rel
	}
	if err := r.checkStrict(rel, "input", in); err != nil {
		return nil, err
	}

	// Response
	if len(reg.call.Args) == 0 {
		return nil, &apexerrors.StructuralError{File: rel, Reason: r.opts.Handler + " call has no handler argument"}
	}
	h, err := r.handlerOf(reg.call.Args[0], unit.Info, abs, rel)
	if err != nil {
		return nil, err
	}

	out := r.newRenderer(refs, imports)
	if h.sig.Results().Len() == 0 {
		out.warn("handler returns no values")
		td.OutputType = apextypes.Unknown
	} else {
		res := r.unwrap(h.sig.Results().At(0).Type())
		td.OutputType, _ = r.resolveType(out, res, abs)
	}

	td.OutputSource = r.idx.Rel(h.file)
	if h.body != nil {
		traced, chain := r.trace(h.body, h.info, h.file)
		td.OutputSource = r.idx.Rel(traced)
		for _, c := range chain {
			r.addRef(refs, c)
		}
	}
	if err := r.checkStrict(rel, "output", out); err != nil {
		return nil, err
	}

	if h.file != abs {
		r.addRef(refs, h.file)
	}
	delete(refs, rel)
	td.References = sortedKeys(refs)
	td.Imports = sortedKeys(imports)
	td.Warnings = append(in.warnings, out.warnings...)

	for _, w := range td.Warnings {
		r.logger.Warn(ctx, nil, "type resolution fell back to "+apextypes.Unknown, "file", rel, "reason", w)
	}
	if len(td.Warnings) > 0 && len(unit.Errors) > 0 {
		r.logger.Debug(ctx, "unit has type errors", "file", rel, "first", unit.Errors[0].Error())
	}
	return td, nil
}

func (r *Resolver) checkStrict(file, field string, rr *renderer) error {
	if !r.opts.Strict || len(rr.warnings) == 0 {
		return nil
	}
	return &apexerrors.ResolutionError{File: file, Field: field, Reason: rr.warnings[0]}
}

// findRegistration locates the single package-level var whose value calls
// the registration function.
func (r *Resolver) findRegistration(f *ast.File, rel string) (*registration, error) {
	var found []*registration
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, v := range vs.Values {
				call, ok := ast.Unparen(v).(*ast.CallExpr)
				if ok && r.callee.MatchString(calleeName(call.Fun)) {
					found = append(found, &registration{call: call, decl: gd, spec: vs})
				}
			}
		}
	}

	switch len(found) {
	case 0:
		return nil, &apexerrors.StructuralError{
			File:   rel,
			Reason: fmt.Sprintf("no top-level %s registration found", r.opts.Handler),
		}
	case 1:
		return found[0], nil
	default:
		return nil, &apexerrors.StructuralError{
			File:   rel,
			Reason: fmt.Sprintf("%d %s registrations found, expected one", len(found), r.opts.Handler),
		}
	}
}

// calleeName renders the callee of a registration call without type
// arguments: "Define" or "apex.Define".
func calleeName(fun ast.Expr) string {
	switch e := ast.Unparen(fun).(type) {
	case *ast.IndexExpr:
		return calleeName(e.X)
	case *ast.IndexListExpr:
		return calleeName(e.X)
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		if x, ok := e.X.(*ast.Ident); ok {
			return x.Name + "." + e.Sel.Name
		}
	}
	return ""
}

// payloadType returns the first explicit type argument of the call, or the
// first inferred one.
func (r *Resolver) payloadType(call *ast.CallExpr, info *types.Info) types.Type {
	var explicit ast.Expr
	switch e := ast.Unparen(call.Fun).(type) {
	case *ast.IndexExpr:
		explicit = e.Index
	case *ast.IndexListExpr:
		explicit = e.Indices[0]
	}
	if explicit != nil {
		if tv, ok := info.Types[explicit]; ok && tv.Type != nil {
			return tv.Type
		}
	}

	var ident *ast.Ident
	switch e := ast.Unparen(call.Fun).(type) {
	case *ast.Ident:
		ident = e
	case *ast.SelectorExpr:
		ident = e.Sel
	case *ast.IndexExpr:
		ident = identOf(e.X)
	case *ast.IndexListExpr:
		ident = identOf(e.X)
	}
	if ident == nil {
		return nil
	}
	if inst, ok := info.Instances[ident]; ok && inst.TypeArgs != nil && inst.TypeArgs.Len() > 0 {
		return inst.TypeArgs.At(0)
	}
	return nil
}

func identOf(e ast.Expr) *ast.Ident {
	switch e := e.(type) {
	case *ast.Ident:
		return e
	case *ast.SelectorExpr:
		return e.Sel
	}
	return nil
}

// handler describes the function passed to the registration call.
type handler struct {
	sig  *types.Signature
	body *ast.BlockStmt
	info *types.Info
	file string
}

func (r *Resolver) handlerOf(arg ast.Expr, info *types.Info, file, rel string) (*handler, error) {
	arg = ast.Unparen(arg)
	if lit, ok := arg.(*ast.FuncLit); ok {
		sig, _ := info.TypeOf(lit).(*types.Signature)
		if sig == nil {
			return nil, &apexerrors.StructuralError{File: rel, Reason: "handler literal did not type-check"}
		}
		return &handler{sig: sig, body: lit.Body, info: info, file: file}, nil
	}

	if id := identOf(arg); id != nil {
		if fn, ok := info.Uses[id].(*types.Func); ok {
			sig := fn.Type().(*types.Signature)
			h := &handler{sig: sig, file: file}
			if decl, dinfo, dfile := r.idx.DeclOf(fn); decl != nil && r.idx.InRoot(dfile) {
				h.body, h.info, h.file = decl.Body, dinfo, dfile
			}
			return h, nil
		}
	}

	// Function-typed values without a visible declaration
	if sig, ok := underlyingSignature(info.TypeOf(arg)); ok {
		return &handler{sig: sig, file: file}, nil
	}
	return nil, &apexerrors.StructuralError{File: rel, Reason: "handler argument is not a function"}
}

func underlyingSignature(t types.Type) (*types.Signature, bool) {
	if t == nil {
		return nil, false
	}
	sig, ok := t.Underlying().(*types.Signature)
	return sig, ok
}

// unwrap peels configured async wrappers off a response type.
func (r *Resolver) unwrap(t types.Type) types.Type {
	for range maxDepth {
		switch u := types.Unalias(stripPointers(t)).(type) {
		case *types.Named:
			if !r.wrappers[u.Obj().Name()] || u.TypeArgs().Len() == 0 {
				return t
			}
			t = u.TypeArgs().At(0)
		case *types.Chan:
			if !r.wrappers["chan"] {
				return t
			}
			t = u.Elem()
		default:
			return t
		}
	}
	return t
}

// resolveType flattens the top-level declaration of t and renders it. It
// returns the text and the declaring file relative to the root.
func (r *Resolver) resolveType(rr *renderer, t types.Type, file string) (string, string) {
	source := file

	var tn *types.TypeName
	for {
		t = stripPointers(t)
		a, ok := t.(*types.Alias)
		if !ok {
			break
		}
		tn = a.Obj()
		t = a.Rhs()
	}

	if named, ok := t.(*types.Named); ok {
		// An alias of a type declared outside the project is still
		// sourced from the alias declaration.
		if obj := named.Obj(); obj.Pkg() != nil && r.flattens(obj) {
			tn = obj
		}
	}

	if tn != nil {
		if decl := r.idx.File(tn.Pos()); decl != "" && r.idx.InRoot(decl) {
			source = decl
		}
	}

	text := rr.top(t)
	if text == "" {
		text = apextypes.Unknown
	}
	return text, r.idx.Rel(source)
}

// flattens reports whether a named type at the top level is replaced by its
// structure: every type declared inside the project root is.
func (r *Resolver) flattens(obj *types.TypeName) bool {
	if r.idx.IsUnitPackage(obj.Pkg()) {
		return true
	}
	decl := r.idx.File(obj.Pos())
	return decl != "" && r.idx.InRoot(decl)
}

func (r *Resolver) addRef(refs map[string]bool, file string) {
	if file != "" && r.idx.InRoot(file) {
		refs[r.idx.Rel(file)] = true
	}
}

func stripPointers(t types.Type) types.Type {
	for {
		p, ok := types.Unalias(t).(*types.Pointer)
		if !ok {
			return t
		}
		t = p.Elem()
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
