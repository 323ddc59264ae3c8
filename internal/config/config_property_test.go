//go:build property

package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigurationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("destinations follow dist_root", prop.ForAll(
		func(dir string) bool {
			cfg := &Config{DistRoot: "./" + dir}
			applyDefaults(cfg)
			return cfg.Dist.CSSPath == filepath.Join(cfg.DistRoot, "css") &&
				cfg.Dist.JSPath == filepath.Join(cfg.DistRoot, "js") &&
				cfg.Dist.PHP[0] == "./"+dir+"/**/*.php"
		},
		gen.Identifier(),
	))

	properties.Property("defaults never override explicit values", prop.ForAll(
		func(css, touch string) bool {
			cfg := &Config{Dist: DistConfig{CSSPath: css}, Tools: ToolsConfig{Touch: touch}}
			applyDefaults(cfg)
			return cfg.Dist.CSSPath == css && cfg.Tools.Touch == touch
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("template extension always starts with a dot", prop.ForAll(
		func(ext string) bool {
			cfg := &Config{Templates: TemplatesConfig{Extension: ext}}
			applyDefaults(cfg)
			return strings.HasPrefix(cfg.Templates.Extension, ".") &&
				strings.TrimPrefix(cfg.Templates.Extension, ".") == strings.TrimPrefix(ext, ".")
		},
		gen.OneGenOf(gen.Identifier(), gen.Identifier().Map(func(s string) string { return "." + s })),
	))

	properties.Property("envtype is case insensitive", prop.ForAll(
		func(env string, upper bool) bool {
			if upper {
				env = strings.ToUpper(env)
			}
			cfg := Default()
			cfg.EnvType = Environment(env)
			applyDefaults(cfg)
			return validateConfig(cfg) == nil
		},
		gen.OneConstOf("development", "production"),
		gen.Bool(),
	))

	properties.Property("shell metacharacters are rejected", prop.ForAll(
		func(prefix, meta string) bool {
			return validatePath(prefix+meta) != nil
		},
		gen.Identifier(),
		gen.OneConstOf(";", "&", "|", "$", "`", "<", ">"),
	))

	properties.TestingRun(t)
}
