package resolver

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAlias(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "leading comment",
			src:  "// @alias ListUsers\npackage p\n\nvar _ = Define(0)\n",
			want: "ListUsers",
		},
		{
			name: "as form in block comment",
			src:  "/*\n as   FetchAll \n*/\npackage p\n\nvar _ = Define(0)\n",
			want: "FetchAll",
		},
		{
			name: "registration doc comment",
			src:  "package p\n\n// Lists users.\n// as ListUsers\nvar _ = Define(0)\n",
			want: "ListUsers",
		},
		{
			name: "first match wins",
			src:  "// @alias First\npackage p\n\n// @alias Second\nvar _ = Define(0)\n",
			want: "First",
		},
		{
			name: "prose does not match",
			src:  "// handled as part of the users API\npackage p\n\nvar _ = Define(0)\n",
			want: "",
		},
		{
			name: "comments after package clause are ignored",
			src:  "package p\n\n// @alias Ignored\n\nvar x = 1\n\nvar _ = Define(0)\n",
			want: "",
		},
		{
			name: "invalid identifier",
			src:  "// @alias 9lives\npackage p\n\nvar _ = Define(0)\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parser.ParseFile(token.NewFileSet(), "x.go", tt.src, parser.ParseComments)
			require.NoError(t, err)

			var decl *ast.GenDecl
			var spec *ast.ValueSpec
			for _, d := range f.Decls {
				gd, ok := d.(*ast.GenDecl)
				if !ok {
					continue
				}
				vs := gd.Specs[0].(*ast.ValueSpec)
				if _, ok := vs.Values[0].(*ast.CallExpr); ok {
					decl, spec = gd, vs
				}
			}
			require.NotNil(t, decl)

			assert.Equal(t, tt.want, findAlias(f, decl, spec))
		})
	}
}

func TestAmbientTarget(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) string {
		t.Helper()
		return writeTemp(t, dir, rel)
	}

	stub := write("users_stub.go")
	impl := write("users.go")
	assert.Equal(t, impl, ambientTarget(stub))

	decl := write("orders.d.go")
	index := write("orders/index.go")
	assert.Equal(t, index, ambientTarget(decl))

	lonely := write("lonely_decl.go")
	assert.Equal(t, lonely, ambientTarget(lonely))

	plain := write("plain.go")
	assert.Equal(t, plain, ambientTarget(plain))
}

func writeTemp(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0o644))
	return path
}
