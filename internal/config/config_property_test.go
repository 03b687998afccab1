//go:build property

package config

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestConfigurationProperties tests configuration validation properties
func TestConfigurationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Property: Concurrency validation accepts exactly positive values
	properties.Property("concurrency bounds", prop.ForAll(
		func(n int) bool {
			cfg := Default()
			cfg.OutputPackage = "apex"
			cfg.Concurrency = n
			err := validateConfig(cfg)
			return (n >= 1) == (err == nil)
		},
		gen.IntRange(-100, 500),
	))

	// Property: Paths that climb out of root are always rejected
	properties.Property("traversal rejected", prop.ForAll(
		func(tail string) bool {
			return validatePath("../"+tail) != nil
		},
		gen.RegexMatch(`^[a-z]{0,8}$`),
	))

	// Property: Derived package names are valid identifiers
	properties.Property("package names are identifiers", prop.ForAll(
		func(dir string) bool {
			name := packageName(dir)
			return isIdentifier(name) && strings.ToLower(name) == name
		},
		gen.RegexMatch(`^[a-zA-Z0-9_./-]{1,20}$`),
	))

	properties.TestingRun(t)
}
