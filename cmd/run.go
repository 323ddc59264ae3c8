package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/themesmith/internal/tasks"
)

var runCmd = &cobra.Command{
	Use:     "run <task>...",
	Aliases: []string{"r"},
	Short:   "Run named tasks once, in order",
	Long: `Run the named tasks once, one after another. The pp and all_php handlers
need the files to act on, given with --files.

Examples:
  themesmith run less
  themesmith run less_vendor less --env production
  themesmith run pp --files src/php/functions/helpers.ppp`,
	Args: cobra.MinimumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			tasks.TaskLessVendor, tasks.TaskLess, tasks.TaskJade, tasks.TaskJS,
			tasks.TaskFunctions, tasks.TaskRefresh, tasks.TaskPP, tasks.TaskAllPHP,
		}, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runRun,
}

var runFiles []string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&runFiles, "files", "f", nil, "Files passed to the tasks")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	app, err := tasks.NewApp(cfg, tasks.Deps{Logger: logger.WithComponent("tasks")})
	if err != nil {
		return err
	}
	defer app.Close()

	for _, name := range args {
		if _, ok := app.Tasks.Get(name); !ok {
			return fmt.Errorf("unknown task %q, see 'themesmith tasks'", name)
		}
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	events := app.Tasks.Watch()
	defer app.Tasks.UnWatch(events)

	for _, name := range args {
		err := app.Run(ctx, name, runFiles...)
		drain(out, events)
		if err != nil {
			return err
		}
	}
	return nil
}

// drain prints the events already published.
func drain(out io.Writer, events <-chan tasks.Event) {
	for {
		select {
		case ev := <-events:
			fmt.Fprintln(out, formatEvent(ev))
		default:
			return
		}
	}
}
