// Package testutils builds throwaway Go projects for tests that need real
// type information: a go.mod, a small registration runtime and endpoint
// files laid out under server/api.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/apex/internal/config"
)

// ModulePath is the module path of every temp project.
const ModulePath = "example.com/app"

// RuntimeSource is the registration runtime temp projects import as
// example.com/app/rt. It mirrors the shape of pkg/apex without depending on
// this module.
const RuntimeSource = `package rt

import "context"

type Handler struct{ fn any }

func Define[P, R any](fn func(context.Context, P) (R, error)) Handler {
	return Handler{fn: fn}
}

type Future[T any] struct{ value T }

type Promise[T any] struct{ value T }

type Box[T any] struct{ Value T }
`

// CreateTempProject creates a module with the rt runtime and an empty
// server/api directory. Loading packages from it requires GOWORK=off, which
// is set for the calling test.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	t.Setenv("GOWORK", "off")
	t.Setenv("GOFLAGS", "-mod=mod")

	root := t.TempDir()
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	WriteFile(t, root, "go.mod", "module "+ModulePath+"\n\ngo 1.22\n")
	WriteFile(t, root, "rt/rt.go", RuntimeSource)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "server", "api"), 0o755))
	return root
}

// WriteFile writes content to rel under root, creating directories, and
// returns the absolute path.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteEndpoint writes an endpoint file relative to server/api.
func WriteEndpoint(t *testing.T, root, rel, content string) string {
	t.Helper()
	return WriteFile(t, root, "server/api/"+rel, content)
}

// CreateTestConfig creates a configuration for a temp project.
func CreateTestConfig(projectDir string) *config.Config {
	cfg := config.Default()
	cfg.Root = projectDir
	cfg.OutputPackage = "apex"
	cfg.Concurrency = 4
	cfg.Watch.Debounce = 20 * time.Millisecond
	return cfg
}

// StandardEndpoints are endpoint sources keyed by their path under
// server/api. Together they exercise payload flattening, shared types,
// delegated responses, async wrappers and aliases.
var StandardEndpoints = map[string]string{
	"users/[id].get.go": `package users

import (
	"context"

	"example.com/app/rt"
	"example.com/app/server/shared"
)

type Query struct {
	ID     string ` + "`json:\"id\"`" + `
	Fields []string ` + "`json:\"fields,omitempty\"`" + `
}

var _ = rt.Define[Query](func(ctx context.Context, q Query) (shared.User, error) {
	return loadUser(q.ID), nil
})
`,
	"users/index.post.go": `// @alias CreateUser
package users

import (
	"context"

	"example.com/app/rt"
	"example.com/app/server/shared"
)

var _ = rt.Define[shared.NewUser](func(ctx context.Context, in shared.NewUser) (*rt.Future[shared.User], error) {
	return nil, nil
})
`,
	"health.get.go": `package api

import (
	"context"

	"example.com/app/rt"
)

var _ = rt.Define[struct{}](func(ctx context.Context, _ struct{}) (struct {
	OK bool ` + "`json:\"ok\"`" + `
}, error) {
	return struct {
		OK bool ` + "`json:\"ok\"`" + `
	}{OK: true}, nil
})
`,
}

// SharedTypes is the shared type package referenced by StandardEndpoints.
const SharedTypes = `package shared

import "time"

type User struct {
	ID      string    ` + "`json:\"id\"`" + `
	Name    string    ` + "`json:\"name\"`" + `
	Created time.Time ` + "`json:\"created\"`" + `
}

type NewUser struct {
	Name string ` + "`json:\"name\"`" + `
}
`

// UserHelpers provides loadUser for the users unit.
const UserHelpers = `package users

import "example.com/app/server/shared"

func loadUser(id string) shared.User {
	return shared.User{ID: id}
}
`

// CreateStandardProject writes StandardEndpoints, SharedTypes and
// UserHelpers into a fresh temp project.
func CreateStandardProject(t *testing.T) string {
	t.Helper()
	root := CreateTempProject(t)
	WriteFile(t, root, "server/shared/types.go", SharedTypes)
	for rel, content := range StandardEndpoints {
		WriteEndpoint(t, root, rel, content)
	}
	WriteEndpoint(t, root, "users/helpers.go", UserHelpers)
	return root
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
