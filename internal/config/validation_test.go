package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHostname(t *testing.T) {
	tests := []struct {
		host    string
		wantErr bool
	}{
		{"localhost", false},
		{"127.0.0.1", false},
		{"::1", false},
		{"dev.example.com", false},
		{"", true},
		{"host;rm -rf", true},
		{"$(hostname)", true},
		{"-leading.dash", true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := validateHostname(tt.host)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfigWithDetails(t *testing.T) {
	project := func(t *testing.T) string {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "php"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "src", "php", "functions.php"), []byte("<?php\n"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "config", "locals.json"), []byte("{}"), 0o644))
		return root
	}

	tests := []struct {
		name         string
		mutate       func(*Config)
		empty        bool
		valid        bool
		errorField   string
		warningField string
	}{
		{name: "defaults", mutate: func(*Config) {}, valid: true},
		{
			name:         "missing sources warn",
			mutate:       func(*Config) {},
			empty:        true,
			valid:        true,
			warningField: "process_root",
		},
		{
			name:       "bad glob",
			mutate:     func(c *Config) { c.Watch.JS = []string{"./src/js/[.js"} },
			errorField: "watch.js",
		},
		{
			name:         "exclusion first",
			mutate:       func(c *Config) { c.Watch.Less = []string{"!./src/less/vendor/**"} },
			valid:        true,
			warningField: "watch.less",
		},
		{
			name:       "bad host",
			mutate:     func(c *Config) { c.LiveReload.Host = "a|b" },
			errorField: "livereload.host",
		},
		{
			name:         "tiny delay",
			mutate:       func(c *Config) { c.LiveReload.Delay = 10 * time.Millisecond },
			valid:        true,
			warningField: "livereload.delay",
		},
		{
			name:         "privileged port",
			mutate:       func(c *Config) { c.LiveReload.Port = 80 },
			valid:        true,
			warningField: "livereload.port",
		},
		{
			name:       "compiler with shell syntax",
			mutate:     func(c *Config) { c.Styles.Compiler = "lessc | tee" },
			errorField: "styles.compiler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if !tt.empty {
				root = project(t)
			}
			cfg := Default()
			tt.mutate(cfg)

			result := ValidateConfigWithDetails(cfg, root)
			assert.Equal(t, tt.valid, result.Valid, result.String())
			if tt.errorField != "" {
				assert.True(t, hasField(result.Errors, tt.errorField), result.String())
			}
			if tt.warningField != "" {
				assert.True(t, hasField(result.Warnings, tt.warningField), result.String())
			}
			if tt.valid && tt.warningField == "" {
				assert.False(t, result.HasWarnings(), result.String())
			}
		})
	}
}

func TestValidationResultString(t *testing.T) {
	result := &ValidationResult{
		Errors:   []ValidationError{{Field: "watch.js", Message: "bad pattern", Suggestions: []string{"fix it"}}},
		Warnings: []ValidationError{{Field: "locals", Message: "missing"}},
	}

	out := result.String()
	assert.Contains(t, out, "Errors:\n  • watch.js: bad pattern\n    - fix it\n")
	assert.Contains(t, out, "Warnings:\n  • locals: missing\n")
	assert.Equal(t, "validation error in locals: missing", result.Warnings[0].Error())
}

func hasField(issues []ValidationError, field string) bool {
	for _, issue := range issues {
		if issue.Field == field {
			return true
		}
	}
	return false
}
