// Package config provides configuration management for themesmith using
// Viper for loading from files, environment variables, and command-line flags.
//
// The configuration is a static settings object read once at process start:
// source globs and destination directories per asset category, the
// environment flag that gates minification, the watch glob sets, and the
// LiveReload listener settings. It is never hot-reloaded.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment is the two-valued build mode.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// IsProduction reports whether minification and production renames apply.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// Valid reports whether e is one of the known environments.
func (e Environment) Valid() bool {
	return e == EnvDevelopment || e == EnvProduction
}

func (e Environment) String() string {
	return string(e)
}

type Config struct {
	EnvType     Environment      `mapstructure:"envtype" yaml:"envtype" json:"envtype"`
	ProcessRoot string           `mapstructure:"process_root" yaml:"process_root" json:"process_root"`
	DistRoot    string           `mapstructure:"dist_root" yaml:"dist_root" json:"dist_root"`
	Locals      string           `mapstructure:"locals" yaml:"locals" json:"locals"`
	Process     ProcessConfig    `mapstructure:"process" yaml:"process" json:"process"`
	Dist        DistConfig       `mapstructure:"dist" yaml:"dist" json:"dist"`
	Watch       WatchConfig      `mapstructure:"watch" yaml:"watch" json:"watch"`
	Templates   TemplatesConfig  `mapstructure:"templates" yaml:"templates" json:"templates"`
	Styles      StylesConfig     `mapstructure:"styles" yaml:"styles" json:"styles"`
	Preprocess  PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	LiveReload  LiveReloadConfig `mapstructure:"livereload" yaml:"livereload" json:"livereload"`
	Tools       ToolsConfig      `mapstructure:"tools" yaml:"tools" json:"tools"`
}

// ProcessConfig lists the sources each pipeline reads.
type ProcessConfig struct {
	LessVendor []string `mapstructure:"less_vendor" yaml:"less_vendor" json:"less_vendor"`
	Less       []string `mapstructure:"less" yaml:"less" json:"less"`
	JS         []string `mapstructure:"js" yaml:"js" json:"js"`
	PHP        string   `mapstructure:"php" yaml:"php" json:"php"`
	PPPath     string   `mapstructure:"pp_path" yaml:"pp_path" json:"pp_path"`
}

type DistConfig struct {
	CSSPath string   `mapstructure:"css_path" yaml:"css_path" json:"css_path"`
	JSPath  string   `mapstructure:"js_path" yaml:"js_path" json:"js_path"`
	PHP     []string `mapstructure:"php" yaml:"php" json:"php"`
	Changed []string `mapstructure:"changed" yaml:"changed" json:"changed"`
}

// WatchConfig holds one glob set per watched category.
type WatchConfig struct {
	Jade       []string `mapstructure:"jade" yaml:"jade" json:"jade"`
	JS         []string `mapstructure:"js" yaml:"js" json:"js"`
	Less       []string `mapstructure:"less" yaml:"less" json:"less"`
	LessVendor []string `mapstructure:"less_vendor" yaml:"less_vendor" json:"less_vendor"`
	PHP        []string `mapstructure:"php" yaml:"php" json:"php"`
	PP         []string `mapstructure:"pp" yaml:"pp" json:"pp"`
	AllPHP     []string `mapstructure:"all_php" yaml:"all_php" json:"all_php"`
}

type TemplatesConfig struct {
	Extension string   `mapstructure:"extension" yaml:"extension" json:"extension"`
	Base      string   `mapstructure:"base" yaml:"base" json:"base"`
	Partials  []string `mapstructure:"partials" yaml:"partials" json:"partials"`
	Pretty    bool     `mapstructure:"pretty" yaml:"pretty" json:"pretty"`
}

type StylesConfig struct {
	Compiler string   `mapstructure:"compiler" yaml:"compiler" json:"compiler"`
	Browsers []string `mapstructure:"browsers" yaml:"browsers" json:"browsers"`
}

type PreprocessConfig struct {
	Context map[string]string `mapstructure:"context" yaml:"context" json:"context"`
}

type LiveReloadConfig struct {
	Host  string        `mapstructure:"host" yaml:"host" json:"host"`
	Port  int           `mapstructure:"port" yaml:"port" json:"port"`
	Delay time.Duration `mapstructure:"delay" yaml:"delay" json:"delay"`
}

type ToolsConfig struct {
	Touch string `mapstructure:"touch" yaml:"touch" json:"touch"`
}

// DefaultReloadDelay is the window used to coalesce destination writes.
const DefaultReloadDelay = 200 * time.Millisecond

// DefaultLiveReloadPort is the port LiveReload browser extensions connect to.
const DefaultLiveReloadPort = 35729

// Load reads the configuration from the global viper instance, applies
// defaults and validates the result.
func Load() (*Config, error) {
	if err := bindEnvKeys("", reflect.TypeOf(Config{})); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	// Handle templates.pretty set via viper (workaround for viper bool handling)
	if viper.IsSet("templates.pretty") {
		config.Templates.Pretty = viper.GetBool("templates.pretty")
	} else {
		config.Templates.Pretty = true
	}

	// Override envtype if explicitly set via flag
	if env := viper.GetString("env"); env != "" {
		config.EnvType = Environment(strings.ToLower(env))
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// bindEnvKeys registers every leaf key so that Unmarshal sees values that
// only exist in the environment. Maps are left to the config file.
func bindEnvKeys(prefix string, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch field.Type.Kind() {
		case reflect.Struct:
			if err := bindEnvKeys(key, field.Type); err != nil {
				return err
			}
		case reflect.Map:
		default:
			if err := viper.BindEnv(key); err != nil {
				return fmt.Errorf("binding %s: %w", key, err)
			}
		}
	}
	return nil
}

// Default returns the configuration used when no file, flag or environment
// variable sets anything.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	config.Templates.Pretty = true
	return config
}

func applyDefaults(config *Config) {
	if config.EnvType == "" {
		config.EnvType = EnvDevelopment
	}
	config.EnvType = Environment(strings.ToLower(string(config.EnvType)))

	if config.ProcessRoot == "" {
		config.ProcessRoot = "./src"
	}
	if config.DistRoot == "" {
		config.DistRoot = "./dist"
	}
	if config.Locals == "" {
		config.Locals = "./config/locals.json"
	}

	if len(config.Process.LessVendor) == 0 {
		config.Process.LessVendor = []string{"./src/less/vendor.less"}
	}
	if len(config.Process.Less) == 0 {
		config.Process.Less = []string{"./src/less/main.less"}
	}
	if len(config.Process.JS) == 0 {
		config.Process.JS = []string{"./src/js/*.js"}
	}
	if config.Process.PHP == "" {
		config.Process.PHP = "./src/php/functions.php"
	}
	if config.Process.PPPath == "" {
		config.Process.PPPath = "./src/php/pp"
	}

	if config.Dist.CSSPath == "" {
		config.Dist.CSSPath = filepath.Join(config.DistRoot, "css")
	}
	if config.Dist.JSPath == "" {
		config.Dist.JSPath = filepath.Join(config.DistRoot, "js")
	}
	if len(config.Dist.PHP) == 0 {
		config.Dist.PHP = []string{filepath.ToSlash(config.DistRoot) + "/**/*.php"}
	}
	if len(config.Dist.Changed) == 0 {
		config.Dist.Changed = config.Dist.PHP
	}

	if len(config.Watch.Jade) == 0 {
		config.Watch.Jade = []string{"./src/views/**/*.tmpl"}
	}
	if len(config.Watch.JS) == 0 {
		config.Watch.JS = []string{"./src/js/**/*.js"}
	}
	if len(config.Watch.Less) == 0 {
		config.Watch.Less = []string{"./src/less/**/*.less", "!./src/less/vendor/**"}
	}
	if len(config.Watch.LessVendor) == 0 {
		config.Watch.LessVendor = []string{"./src/less/vendor/**/*.less", "./src/less/vendor.less"}
	}
	if len(config.Watch.PHP) == 0 {
		config.Watch.PHP = []string{"./src/php/functions.php", "./src/php/pp/**/*.pp"}
	}
	if len(config.Watch.PP) == 0 {
		config.Watch.PP = []string{"./src/php/functions/**/*.ppp"}
	}
	if len(config.Watch.AllPHP) == 0 {
		config.Watch.AllPHP = []string{"./src/templates/**/*.php"}
	}

	if config.Templates.Extension == "" {
		config.Templates.Extension = ".php"
	}
	if !strings.HasPrefix(config.Templates.Extension, ".") {
		config.Templates.Extension = "." + config.Templates.Extension
	}
	if config.Templates.Base == "" {
		config.Templates.Base = "."
	}
	if config.Templates.Partials == nil {
		config.Templates.Partials = []string{"./src/views/partials/**/*.tmpl"}
	}

	if config.Styles.Compiler == "" {
		config.Styles.Compiler = "lessc"
	}
	if len(config.Styles.Browsers) == 0 {
		config.Styles.Browsers = []string{"chrome58", "firefox57", "safari11", "edge16"}
	}

	if config.Preprocess.Context == nil {
		config.Preprocess.Context = make(map[string]string)
	}

	if config.LiveReload.Host == "" {
		config.LiveReload.Host = "localhost"
	}
	if config.LiveReload.Port == 0 {
		config.LiveReload.Port = DefaultLiveReloadPort
	}
	if config.LiveReload.Delay == 0 {
		config.LiveReload.Delay = DefaultReloadDelay
	}

	if config.Tools.Touch == "" {
		config.Tools.Touch = "touch"
	}
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if !config.EnvType.Valid() {
		return fmt.Errorf("envtype %q must be %q or %q", config.EnvType, EnvDevelopment, EnvProduction)
	}

	if config.LiveReload.Port < 0 || config.LiveReload.Port > 65535 {
		return fmt.Errorf("livereload port %d is not in valid range 0-65535", config.LiveReload.Port)
	}
	if config.LiveReload.Delay < 0 {
		return fmt.Errorf("livereload delay %s must not be negative", config.LiveReload.Delay)
	}

	required := map[string]string{
		"dist_root":       config.DistRoot,
		"process_root":    config.ProcessRoot,
		"process.php":     config.Process.PHP,
		"process.pp_path": config.Process.PPPath,
		"dist.css_path":   config.Dist.CSSPath,
		"dist.js_path":    config.Dist.JSPath,
		"templates.base":  config.Templates.Base,
		"styles.compiler": config.Styles.Compiler,
		"tools.touch":     config.Tools.Touch,
	}
	for key, path := range required {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	return nil
}

// validatePath rejects empty paths and shell metacharacters
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
