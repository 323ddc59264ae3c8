package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/themesmith/internal/tasks"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"list", "l"},
	Short:   "List the tasks and the globs that trigger them",
	Long: `List every task in registration order with the watch glob set bound to it.
Build tasks are the ones 'themesmith build' runs.

Examples:
  themesmith tasks             # Table
  themesmith tasks -o json     # JSON`,
	Args: cobra.NoArgs,
	RunE: runTasks,
}

var tasksFlags OutputFlags

func init() {
	rootCmd.AddCommand(tasksCmd)
	addOutputFlags(tasksCmd, &tasksFlags, "table")
}

// TaskInfo is one row of the task listing.
type TaskInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Build       bool     `json:"build" yaml:"build"`
	Watch       string   `json:"watch,omitempty" yaml:"watch,omitempty"`
	Patterns    []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	app, err := tasks.NewApp(cfg, tasks.Deps{Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	if tasksFlags.Quiet {
		return nil
	}
	return writeTasks(cmd.OutOrStdout(), listTasks(app), tasksFlags.Format)
}

func listTasks(app *tasks.App) []TaskInfo {
	bindings := make(map[string]tasks.Binding)
	for _, b := range app.Bindings() {
		bindings[b.Task] = b
	}

	var infos []TaskInfo
	for _, t := range app.Tasks.All() {
		info := TaskInfo{Name: t.Name, Description: t.Description, Build: t.Build}
		if b, ok := bindings[t.Name]; ok {
			info.Watch = b.Watch
			info.Patterns = b.Patterns
		}
		infos = append(infos, info)
	}
	return infos
}

func writeTasks(w io.Writer, infos []TaskInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		return yaml.NewEncoder(w).Encode(infos)
	case "table", "":
		return writeTaskTable(w, infos)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeTaskTable(w io.Writer, infos []TaskInfo) error {
	name := color.New(color.FgCyan, color.Bold)
	build := color.New(color.FgGreen)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tBUILD\tWATCH\tDESCRIPTION")
	for _, info := range infos {
		mark := "-"
		if info.Build {
			mark = build.Sprint("yes")
		}
		watch := info.Watch
		if watch == "" {
			watch = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name.Sprint(info.Name), mark, watch, info.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d tasks\n", len(infos))
	return nil
}
