package resolver

import (
	"go/ast"
	"go/types"
	"os"
	"path/filepath"
	"strings"
)

// maxDepth bounds wrapper unwrapping and delegation tracing.
const maxDepth = 32

// ambientSuffixes mark files that only declare functions implemented
// elsewhere ("users_stub.go" declares what "users.go" builds).
var ambientSuffixes = []string{".d", "_decl", "_stub"}

// trace follows delegated returns starting at body and returns the file that
// ultimately builds the response together with every file visited on the
// way.
func (r *Resolver) trace(body *ast.BlockStmt, info *types.Info, file string) (string, []string) {
	visited := make(map[*types.Func]bool)
	var chain []string

	for range maxDepth {
		callee := delegatedCall(body, info)
		if callee == nil {
			return file, chain
		}
		callee = callee.Origin()
		if visited[callee] {
			return file, chain
		}
		visited[callee] = true

		decl, dinfo, dfile := r.idx.DeclOf(callee)
		if dfile == "" || !r.idx.InRoot(dfile) {
			return file, chain
		}
		if decl == nil || decl.Body == nil || dinfo == nil {
			target := ambientTarget(dfile)
			chain = append(chain, dfile)
			if target != dfile {
				chain = append(chain, target)
			}
			return target, chain
		}

		file = dfile
		chain = append(chain, dfile)
		body, info = decl.Body, dinfo
	}
	return file, chain
}

// delegatedCall returns the function called directly by the first return
// statement of body whose first result is a call. Nested function literals
// are not searched.
func delegatedCall(body *ast.BlockStmt, info *types.Info) *types.Func {
	var callee *types.Func
	ast.Inspect(body, func(n ast.Node) bool {
		if callee != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			if len(n.Results) == 0 {
				return false
			}
			call, ok := ast.Unparen(n.Results[0]).(*ast.CallExpr)
			if !ok {
				return false
			}
			callee = funcOf(call.Fun, info)
			return false
		}
		return true
	})
	return callee
}

func funcOf(fun ast.Expr, info *types.Info) *types.Func {
	var id *ast.Ident
	switch e := ast.Unparen(fun).(type) {
	case *ast.Ident:
		id = e
	case *ast.SelectorExpr:
		id = e.Sel
	case *ast.IndexExpr:
		id = identOf(e.X)
	case *ast.IndexListExpr:
		id = identOf(e.X)
	}
	if id == nil {
		return nil
	}
	fn, _ := info.Uses[id].(*types.Func)
	return fn
}

// ambientTarget maps a declaration-only file to the file implementing it:
// "<specifier>.go", then "<specifier>/index.go", where the specifier is the
// file name without ".go" and an ambient suffix.
func ambientTarget(file string) string {
	specifier := strings.TrimSuffix(file, ".go")
	for _, suffix := range ambientSuffixes {
		if s, ok := strings.CutSuffix(specifier, suffix); ok {
			specifier = s
			break
		}
	}

	for _, candidate := range []string{specifier + ".go", filepath.Join(specifier, "index.go")} {
		if candidate == file {
			continue
		}
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate
		}
	}
	return file
}
