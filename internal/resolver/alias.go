package resolver

import (
	"go/ast"
	"regexp"
	"strings"
)

var aliasPattern = regexp.MustCompile(`^\s*(?:@alias|as)\s+([A-Za-z_][A-Za-z0-9_]*)\s*$`)

// findAlias returns the first "@alias NAME" or "as NAME" line found in the
// comments above the package clause or in the registration's doc comment.
func findAlias(f *ast.File, decl *ast.GenDecl, spec *ast.ValueSpec) string {
	var groups []*ast.CommentGroup
	for _, cg := range f.Comments {
		if cg.End() < f.Package {
			groups = append(groups, cg)
		}
	}
	if decl != nil && decl.Doc != nil {
		groups = append(groups, decl.Doc)
	}
	if spec != nil && spec.Doc != nil {
		groups = append(groups, spec.Doc)
	}

	for _, cg := range groups {
		for _, line := range strings.Split(cg.Text(), "\n") {
			if m := aliasPattern.FindStringSubmatch(line); m != nil {
				return m[1]
			}
		}
	}
	return ""
}
