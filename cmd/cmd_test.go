package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/apex/internal/config"
	"github.com/conneroisu/apex/internal/generator"
	"github.com/conneroisu/apex/internal/testutils"
	"github.com/conneroisu/apex/internal/version"
)

// executeCommand runs the root command with args and returns its stdout.
// Flag values are reset first since cobra keeps them between executions.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains string
		wantErr  bool
	}{
		{name: "default", args: []string{"version"}, contains: "apex " + version.GetShortVersion()},
		{name: "short", args: []string{"version", "--short"}, contains: version.GetShortVersion()},
		{name: "json", args: []string{"version", "-f", "json"}, contains: `"version"`},
		{name: "unsupported format", args: []string{"version", "-f", "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.contains)
		})
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := executeCommand(t, "init", dir, "--source", "api")
	require.NoError(t, err)
	assert.Contains(t, out, config.FileName)

	data, err := os.ReadFile(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "source_dir: api")
	assert.Contains(t, string(data), "prefix: Fetch")
	assert.Contains(t, string(data), "debounce: 100ms")
	assert.DirExists(t, filepath.Join(dir, "api"))

	_, err = executeCommand(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = executeCommand(t, "init", dir, "--force")
	assert.NoError(t, err)
}

func TestGenerateListClean(t *testing.T) {
	root := testutils.CreateStandardProject(t)

	out, err := executeCommand(t, "generate", "--root", root, "-f", "json", "-l", "error")
	require.NoError(t, err)

	var summary struct {
		Generated []string `json:"generated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Contains(t, summary.Generated, "client/apex/FetchUsersGetById.go")
	assert.FileExists(t, filepath.Join(root, "client", "apex", "apex_registry.go"))

	// A second run has nothing to do
	out, err = executeCommand(t, "generate", "--root", root, "-l", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Generated 0,"), out)

	out, err = executeCommand(t, "list", "--root", root, "-f", "json", "-l", "error")
	require.NoError(t, err)
	var endpoints []generator.Endpoint
	require.NoError(t, json.Unmarshal([]byte(out), &endpoints))
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		names = append(names, ep.Name)
	}
	assert.ElementsMatch(t, []string{"FetchHealthGet", "FetchUsersCreate", "FetchUsersGetById"}, names)

	out, err = executeCommand(t, "list", "--root", root, "-l", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "/api/users/${id}")

	out, err = executeCommand(t, "clean", "--root", root, "-l", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "removed client/apex/FetchUsersGetById.go")
	assert.NoFileExists(t, filepath.Join(root, "client", "apex", "apex_registry.go"))
}

func TestGenerateReportsFailures(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteEndpoint(t, root, "broken.get.go", "package api\n\nvar x = 1\n")

	out, err := executeCommand(t, "generate", "--root", root, "-l", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 endpoint(s) failed")
	assert.Contains(t, out, "server/api/broken.get.go")
}

func TestGenerateRejectsBadFlags(t *testing.T) {
	_, err := executeCommand(t, "generate", "-f", "yaml")
	assert.Error(t, err)

	_, err = executeCommand(t, "generate", "-q", "-v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot specify both")
}

func TestValidateFormat(t *testing.T) {
	allowed := []string{"table", "json", "yaml"}

	assert.NoError(t, ValidateFormat("JSON", allowed))

	err := ValidateFormat("js", allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "json"`)

	err = ValidateFormat("xml", allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of")
}
