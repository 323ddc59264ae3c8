// Package cmd provides the command-line interface for themesmith.
//
// Configuration System:
//
//	Settings come from several sources, highest priority first:
//	1. Command-line flags (--config, --env, --log-level, --log-format)
//	2. THEMESMITH_CONFIG_FILE environment variable: custom config file path
//	3. Individual environment variables (THEMESMITH_ENVTYPE, THEMESMITH_LIVERELOAD_PORT, ...)
//	4. Configuration file (.themesmith.yml)
//	5. Built-in defaults
//
// Environment Variables:
//
//	THEMESMITH_CONFIG_FILE: Path to custom configuration file
//	THEMESMITH_ENVTYPE: development or production
//	THEMESMITH_DIST_ROOT: Override the destination root
//	And more following the THEMESMITH_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/themesmith/internal/config"
	"github.com/conneroisu/themesmith/internal/logging"
)

var cfgFile string

// rootCmd runs the watcher when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "themesmith",
	Short: "Asset build and live reload for PHP themes",
	Long: `themesmith compiles the stylesheets, templates, scripts and PHP function
fragments of a theme into its destination directory, then watches the sources
and reloads connected browsers when the output changes.

Quick Start:
  themesmith init                 Create .themesmith.yml and the source layout
  themesmith                      Watch and live reload (same as 'watch')
  themesmith build --env production
  themesmith run less js          Run single tasks once
  themesmith tasks                List the tasks

Documentation: https://github.com/conneroisu/themesmith`,
	SilenceUsage: true,
	RunE:         runWatch,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .themesmith.yml, can also use THEMESMITH_CONFIG_FILE env var)")
	flags.StringP("env", "e", "", "build environment (development, production); overrides envtype")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("env", flags.Lookup("env"))
	_ = viper.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log-format", flags.Lookup("log-format"))

	AddFlagValidation(rootCmd.PersistentFlags(), "config", ValidateFileExists)
	AddFlagValidation(rootCmd.PersistentFlags(), "env", ValidateEnvironment)
	AddFlagValidation(rootCmd.PersistentFlags(), "log-format", ValidateChoice("text", "json"))
}

// initConfig points viper at the configuration file.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. THEMESMITH_CONFIG_FILE environment variable
//  3. .themesmith.yml in the current directory
//
// A missing file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("THEMESMITH_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".themesmith")
	}

	viper.SetEnvPrefix("THEMESMITH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from --log-level and --log-format.
func newLogger(cmd *cobra.Command) (logging.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: viper.GetString("log-format"),
		Output: cmd.ErrOrStderr(),
	}), nil
}

// setup loads the configuration and the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
