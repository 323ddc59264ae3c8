package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/validation"
)

// ValidationError represents a configuration problem with suggestions.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted list of all validation issues.
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	write("Errors", vr.Errors)
	if vr.HasErrors() && vr.HasWarnings() {
		builder.WriteString("\n")
	}
	write("Warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) errorf(field string, value interface{}, suggestions []string, format string, args ...interface{}) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     fmt.Sprintf(format, args...),
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) warnf(field string, value interface{}, suggestions []string, format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, ValidationError{
		Field:       field,
		Value:       value,
		Message:     fmt.Sprintf(format, args...),
		Suggestions: suggestions,
	})
}

// ValidateConfigWithDetails checks config against the project at root.
// Malformed values are errors; sources that do not exist yet are warnings.
func ValidateConfigWithDetails(config *Config, root string) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	if err := validateConfig(config); err != nil {
		result.errorf("config", nil, nil, "%v", err)
	}

	validateLiveReloadDetails(&config.LiveReload, result)
	validateGlobDetails(config, root, result)
	validateSourceDetails(config, root, result)
	validateToolDetails(config, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateLiveReloadDetails(config *LiveReloadConfig, result *ValidationResult) {
	if err := validateHostname(config.Host); err != nil {
		result.errorf("livereload.host", config.Host, []string{"Use localhost or an IP address"}, "%v", err)
	}
	if config.Port > 0 && config.Port < 1024 {
		result.warnf("livereload.port", config.Port, []string{
			fmt.Sprintf("Browser extensions expect port %d", DefaultLiveReloadPort),
		}, "port %d is privileged", config.Port)
	}
	if config.Delay > 0 && config.Delay < 50*time.Millisecond {
		result.warnf("livereload.delay", config.Delay, []string{
			fmt.Sprintf("The default window is %s", DefaultReloadDelay),
		}, "a %s window rarely coalesces a burst of writes", config.Delay)
	}
}

func validateGlobDetails(config *Config, root string, result *ValidationResult) {
	sets := map[string][]string{
		"process.less_vendor": config.Process.LessVendor,
		"process.less":        config.Process.Less,
		"process.js":          config.Process.JS,
		"dist.php":            config.Dist.PHP,
		"dist.changed":        config.Dist.Changed,
		"watch.jade":          config.Watch.Jade,
		"watch.js":            config.Watch.JS,
		"watch.less":          config.Watch.Less,
		"watch.less_vendor":   config.Watch.LessVendor,
		"watch.php":           config.Watch.PHP,
		"watch.pp":            config.Watch.PP,
		"watch.all_php":       config.Watch.AllPHP,
		"templates.partials":  config.Templates.Partials,
	}
	for field, patterns := range sets {
		if _, err := glob.NewSet(root, patterns...); err != nil {
			result.errorf(field, patterns, []string{"Check for unbalanced brackets or braces"}, "%v", err)
		}
		if len(patterns) > 0 && strings.HasPrefix(patterns[0], "!") {
			result.warnf(field, patterns, []string{"Put an include pattern before the first exclusion"},
				"the set starts with an exclusion and matches nothing")
		}
	}
}

func validateSourceDetails(config *Config, root string, result *ValidationResult) {
	if !pathExists(resolve(root, config.ProcessRoot)) {
		result.warnf("process_root", config.ProcessRoot, []string{"Run 'themesmith init' to create the source layout"},
			"directory %s does not exist", config.ProcessRoot)
	}
	if !pathExists(resolve(root, config.Process.PHP)) {
		result.warnf("process.php", config.Process.PHP, nil, "file %s does not exist", config.Process.PHP)
	}
	if config.Locals != "" && !pathExists(resolve(root, config.Locals)) {
		result.warnf("locals", config.Locals, []string{"Templates render with no locals"},
			"file %s does not exist", config.Locals)
	}
}

func validateToolDetails(config *Config, result *ValidationResult) {
	if err := validation.ValidateCommand(config.Styles.Compiler); err != nil {
		result.errorf("styles.compiler", config.Styles.Compiler, nil, "%v", err)
	}
	if err := validation.ValidateCommand(config.Tools.Touch); err != nil {
		result.errorf("tools.touch", config.Tools.Touch, nil, "%v", err)
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func resolve(root, path string) string {
	if root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
