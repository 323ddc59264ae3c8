package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/themesmith/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Create .themesmith.yml and the source layout",
	Long: `Write a .themesmith.yml with the default settings and create the source
directories with a starter file for every task. Existing files are kept
unless --force is given.

Examples:
  themesmith init                # Initialize the current directory
  themesmith init my-theme       # Initialize a new directory
  themesmith init --minimal      # Only write .themesmith.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initMinimal bool
	initForce   bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Only write the configuration file")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

// starterFiles seed each pipeline with one source.
var starterFiles = map[string]string{
	"src/less/main.less": `@import "variables.less";

body {
  color: @text;
  display: flex;
}
`,
	"src/less/variables.less": `@text: #333;
`,
	"src/less/vendor.less": `// Third-party styles are imported here.
`,
	"src/views/index.tmpl": `<!DOCTYPE html>
<html>
<head><title>{{.title}}</title><link rel="stylesheet" href="style.css"></head>
<body>{{template "header.tmpl" .}}<main>{{.title}}</main></body>
</html>
`,
	"src/views/partials/header.tmpl": `<header><h1>{{.title}}</h1></header>
`,
	"src/js/app.js": `// @if NODE_ENV == 'development'
console.log("development build");
// @endif
document.documentElement.className = "js";
`,
	"src/php/functions.php": `<?php
// @include pp/greeting.pp
`,
	"src/php/functions/greeting.ppp": `<?php
function theme_greeting() {
	return 'Hello';
}
?>
`,
	"src/php/pp/greeting.pp": `
function theme_greeting() {
	return 'Hello';
}

`,
	"config/locals.json": `{
  "title": "Theme"
}
`,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	out := cmd.OutOrStdout()

	cfgData, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := writeStarter(out, dir, ".themesmith.yml", cfgData); err != nil {
		return err
	}

	if !initMinimal {
		if err := os.MkdirAll(filepath.Join(dir, "dist"), 0o755); err != nil {
			return fmt.Errorf("failed to create dist: %w", err)
		}
		for _, name := range sortedKeys(starterFiles) {
			if err := writeStarter(out, dir, name, []byte(starterFiles[name])); err != nil {
				return err
			}
		}
	}

	color.New(color.FgGreen).Fprintln(out, "Initialized themesmith project in", dir)
	fmt.Fprintln(out, "Next: run 'themesmith build' once, then 'themesmith' to watch")
	return nil
}

func defaultConfigYAML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# themesmith configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config.Default()); err != nil {
		return nil, fmt.Errorf("encoding default configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeStarter(out io.Writer, dir, name string, data []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(name))
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(out, "  exists  %s\n", name)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(name), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	fmt.Fprintf(out, "  create  %s\n", name)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
