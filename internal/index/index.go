// Package index maintains the project-wide go/types view that type resolution
// runs against.
//
// Endpoint directories usually contain bracketed segments ("users/[id]") and
// are therefore not importable Go packages. Each such directory is parsed and
// type-checked on its own as a "unit"; the packages its files import are
// loaded once through go/packages and served to the checker by an importer,
// so every unit sees the same *types.Package for a given import path.
//
// The index is not safe for concurrent mutation. Callers serialize every
// access through Do.
package index

import (
	"context"
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"
)

// UnitPathPrefix prefixes the synthetic package path given to every unit.
const UnitPathPrefix = "apex.endpoint/"

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo

// Unit is one endpoint directory type-checked as a package.
type Unit struct {
	Dir    string
	Path   string
	Files  map[string]*ast.File
	Pkg    *types.Package
	Info   *types.Info
	Errors []error

	imports []string
}

// FileNames returns the unit's files in a stable order.
func (u *Unit) FileNames() []string {
	names := make([]string, 0, len(u.Files))
	for name := range u.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type syntaxFile struct {
	file *ast.File
	info *types.Info
}

// Index is the symbol index for one project root.
type Index struct {
	mu sync.Mutex

	root string
	fset *token.FileSet
	// base of fset after the last full build; incremental re-parses only
	// append to fset, so it is rebuilt once it doubles past this.
	baseline int

	units map[string]*Unit // by directory

	deps       map[string]*packages.Package // direct imports by package path
	depDirs    map[string]string            // directory -> package path
	depSyntax  map[string]syntaxFile        // file -> syntax of a direct import
	typesByPkg map[string]*types.Package    // every reachable package by path
	loaded     map[string]bool              // import paths requested from go/packages

	// LoadErrors holds errors reported by the last go/packages load.
	LoadErrors []error
}

// New creates an empty index rooted at root, the directory holding go.mod.
func New(root string) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Index{
		root:       abs,
		fset:       token.NewFileSet(),
		units:      make(map[string]*Unit),
		deps:       make(map[string]*packages.Package),
		depDirs:    make(map[string]string),
		depSyntax:  make(map[string]syntaxFile),
		typesByPkg: make(map[string]*types.Package),
		loaded:     make(map[string]bool),
	}, nil
}

// Do runs fn while holding the index lock.
func (x *Index) Do(fn func() error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return fn()
}

// Root returns the absolute project root.
func (x *Index) Root() string { return x.root }

// FileSet returns the file set shared by every file parsed or loaded since
// the last full build.
func (x *Index) FileSet() *token.FileSet { return x.fset }

// InRoot reports whether file lives under the project root.
func (x *Index) InRoot(file string) bool {
	rel, err := filepath.Rel(x.root, x.abs(file))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rel returns file relative to the project root with forward slashes.
// Files outside the root are returned unchanged.
func (x *Index) Rel(file string) string {
	if !x.InRoot(file) {
		return filepath.ToSlash(file)
	}
	rel, _ := filepath.Rel(x.root, x.abs(file))
	return filepath.ToSlash(rel)
}

// Refresh rebuilds the index from scratch for the directories containing
// files.
func (x *Index) Refresh(ctx context.Context, files []string) error {
	dirs := make([]string, 0, len(files))
	for _, f := range files {
		dirs = append(dirs, filepath.Dir(x.abs(f)))
	}
	return x.build(ctx, dirs)
}

// rebuild runs a full build over the units already indexed.
func (x *Index) rebuild(ctx context.Context) error {
	dirs := make([]string, 0, len(x.units))
	for dir := range x.units {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return x.build(ctx, dirs)
}

// build parses dirs and loads their imports into a fresh file set, dropping
// the positions of every earlier parse.
func (x *Index) build(ctx context.Context, dirs []string) error {
	x.fset = token.NewFileSet()
	x.units = make(map[string]*Unit)
	for _, dir := range dirs {
		if _, ok := x.units[dir]; ok {
			continue
		}
		u, err := x.parseUnit(dir)
		if err != nil {
			return err
		}
		if u != nil {
			x.units[dir] = u
		}
	}
	if err := x.loadDeps(ctx); err != nil {
		return err
	}
	x.checkAll()
	x.baseline = x.fset.Base()
	return nil
}

// Add makes sure the directory of file is indexed as a unit. Existing units
// are re-parsed.
func (x *Index) Add(ctx context.Context, file string) error {
	dir := filepath.Dir(x.abs(file))
	return x.refreshUnit(ctx, dir)
}

// Update applies an edit, creation or deletion of file. It reports whether
// the file was known to the index: as part of a unit or of a directly
// imported package.
func (x *Index) Update(ctx context.Context, file string) (bool, error) {
	abs := x.abs(file)
	dir := filepath.Dir(abs)

	if _, ok := x.depDirs[dir]; ok {
		// Dependency edits change shared *types.Package identities, so every
		// unit is checked again against the reloaded packages.
		return true, x.rebuild(ctx)
	}

	if _, ok := x.units[dir]; ok {
		return true, x.refreshUnit(ctx, dir)
	}
	return false, nil
}

// Lookup returns the unit and syntax of file.
func (x *Index) Lookup(file string) (*Unit, *ast.File) {
	abs := x.abs(file)
	u, ok := x.units[filepath.Dir(abs)]
	if !ok {
		return nil, nil
	}
	f, ok := u.Files[abs]
	if !ok {
		return u, nil
	}
	return u, f
}

// Units returns every indexed unit ordered by directory.
func (x *Index) Units() []*Unit {
	dirs := make([]string, 0, len(x.units))
	for dir := range x.units {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	units := make([]*Unit, len(dirs))
	for i, dir := range dirs {
		units[i] = x.units[dir]
	}
	return units
}

// IsUnitPackage reports whether pkg is a unit rather than an importable
// package.
func (x *Index) IsUnitPackage(pkg *types.Package) bool {
	return pkg != nil && strings.HasPrefix(pkg.Path(), UnitPathPrefix)
}

// File returns the name of the file containing pos, or "".
func (x *Index) File(pos token.Pos) string {
	if !pos.IsValid() {
		return ""
	}
	tf := x.fset.File(pos)
	if tf == nil {
		return ""
	}
	return tf.Name()
}

// DeclOf finds the declaration of fn. The returned file name is set whenever
// the position is known, even when no syntax is available (functions that
// come from export data or have no body).
func (x *Index) DeclOf(fn *types.Func) (*ast.FuncDecl, *types.Info, string) {
	if fn == nil {
		return nil, nil, ""
	}
	fn = fn.Origin()
	name := x.File(fn.Pos())
	if name == "" {
		return nil, nil, ""
	}

	sf, ok := x.syntaxOf(name)
	if !ok {
		return nil, nil, name
	}
	for _, decl := range sf.file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if ok && fd.Name.Pos() == fn.Pos() {
			return fd, sf.info, name
		}
	}
	return nil, nil, name
}

func (x *Index) syntaxOf(name string) (syntaxFile, bool) {
	if u, ok := x.units[filepath.Dir(name)]; ok {
		if f, ok := u.Files[name]; ok {
			return syntaxFile{file: f, info: u.Info}, true
		}
	}
	sf, ok := x.depSyntax[name]
	return sf, ok
}

func (x *Index) refreshUnit(ctx context.Context, dir string) error {
	u, err := x.parseUnit(dir)
	if err != nil {
		return err
	}
	if u == nil {
		delete(x.units, dir)
		return nil
	}
	x.units[dir] = u

	for _, imp := range u.imports {
		if !x.loaded[imp] {
			return x.rebuild(ctx)
		}
	}
	if x.fset.Base() > 2*x.baseline {
		return x.rebuild(ctx)
	}
	x.check(u)
	return nil
}

// parseUnit parses every buildable non-test Go file in dir. A directory
// without such files yields a nil unit.
func (x *Index) parseUnit(dir string) (*Unit, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	rel, err := filepath.Rel(x.root, dir)
	if err != nil {
		rel = dir
	}
	u := &Unit{
		Dir:   dir,
		Path:  UnitPathPrefix + filepath.ToSlash(rel),
		Files: make(map[string]*ast.File),
	}

	imports := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		if ok, err := build.Default.MatchFile(dir, name); err != nil || !ok {
			continue
		}
		path := filepath.Join(dir, name)
		f, err := parser.ParseFile(x.fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			u.Errors = append(u.Errors, err)
		}
		if f == nil {
			continue
		}
		u.Files[path] = f
		for _, spec := range f.Imports {
			if p, err := strconv.Unquote(spec.Path.Value); err == nil && p != "C" && p != "unsafe" {
				imports[p] = true
			}
		}
	}
	if len(u.Files) == 0 {
		return nil, nil
	}

	for p := range imports {
		u.imports = append(u.imports, p)
	}
	sort.Strings(u.imports)
	return u, nil
}

// loadDeps loads every package imported by any unit in a single go/packages
// call and rebuilds the path -> package table.
func (x *Index) loadDeps(ctx context.Context) error {
	wanted := make(map[string]bool)
	for _, u := range x.units {
		for _, imp := range u.imports {
			wanted[imp] = true
		}
	}

	x.deps = make(map[string]*packages.Package)
	x.depDirs = make(map[string]string)
	x.depSyntax = make(map[string]syntaxFile)
	x.typesByPkg = make(map[string]*types.Package)
	x.loaded = make(map[string]bool)
	x.LoadErrors = nil

	if len(wanted) == 0 {
		return nil
	}
	patterns := make([]string, 0, len(wanted))
	for p := range wanted {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     x.root,
		Fset:    x.fset,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return fmt.Errorf("loading imports: %w", err)
	}

	for _, p := range patterns {
		x.loaded[p] = true
	}
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			x.LoadErrors = append(x.LoadErrors, e)
		}
		x.deps[pkg.PkgPath] = pkg
		if pkg.Types != nil {
			x.typesByPkg[pkg.PkgPath] = pkg.Types
		}
		for _, f := range pkg.GoFiles {
			x.depDirs[filepath.Dir(f)] = pkg.PkgPath
		}
		for _, f := range pkg.Syntax {
			if name := x.File(f.Pos()); name != "" {
				x.depSyntax[name] = syntaxFile{file: f, info: pkg.TypesInfo}
			}
		}
	}

	// Packages only reachable through imports keep the identity the loader
	// gave them; the roots above take precedence.
	var walk func(*types.Package)
	walk = func(p *types.Package) {
		for _, imp := range p.Imports() {
			if _, ok := x.typesByPkg[imp.Path()]; ok {
				continue
			}
			x.typesByPkg[imp.Path()] = imp
			walk(imp)
		}
	}
	for _, pkg := range pkgs {
		if pkg.Types != nil {
			walk(pkg.Types)
		}
	}
	return nil
}

func (x *Index) checkAll() {
	for _, u := range x.units {
		x.check(u)
	}
}

func (x *Index) check(u *Unit) {
	// Parse errors survive; type errors are recomputed.
	var kept []error
	for _, err := range u.Errors {
		if _, ok := err.(types.Error); !ok {
			kept = append(kept, err)
		}
	}
	u.Errors = kept

	files := make([]*ast.File, 0, len(u.Files))
	for _, name := range u.FileNames() {
		files = append(files, u.Files[name])
	}

	u.Info = &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Instances:  make(map[*ast.Ident]types.Instance),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
	}
	conf := types.Config{
		Importer:    importerFunc(x.importPackage),
		FakeImportC: true,
		Error: func(err error) {
			u.Errors = append(u.Errors, err)
		},
	}
	// Errors were collected above; the package is usable even when partial.
	u.Pkg, _ = conf.Check(u.Path, x.fset, files, u.Info)
}

func (x *Index) importPackage(path string) (*types.Package, error) {
	if path == "unsafe" {
		return types.Unsafe, nil
	}
	if pkg, ok := x.typesByPkg[path]; ok {
		return pkg, nil
	}
	return nil, fmt.Errorf("package %q not loaded", path)
}

func (x *Index) abs(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(x.root, file)
}

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }
