package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/tasks"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run every build task once",
	Long: `Run less_vendor, less, jade, js and functions concurrently and report every
failure. No LiveReload server is started.

Examples:
  themesmith build                    # Development build
  themesmith build --env production   # Minified build with source maps`,
	Args: cobra.NoArgs,
	RunE: runBuildCmd,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	app, err := tasks.NewApp(cfg, tasks.Deps{Logger: logger.WithComponent("tasks")})
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	events := app.Tasks.Watch()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fmt.Fprintln(out, formatEvent(ev))
		}
	}()

	failures := runBuild(commandContext(cmd), app)
	app.Tasks.UnWatch(events)
	<-done

	if failures.HasErrors() {
		return fmt.Errorf("build failed: %s: %w", failures.Summary(), failures.Err())
	}
	color.New(color.FgGreen).Fprintf(out, "Built %s (%s)\n", cfg.DistRoot, cfg.EnvType)
	return nil
}

// runBuild runs every build task concurrently. A failing task does not stop
// the others.
func runBuild(ctx context.Context, app *tasks.App) *errors.ErrorCollector {
	failures := errors.NewErrorCollector()

	var g errgroup.Group
	for _, task := range app.Tasks.All() {
		if !task.Build {
			continue
		}
		name := task.Name
		g.Go(func() error {
			failures.Add(name, app.Run(ctx, name))
			return nil
		})
	}
	_ = g.Wait()

	return failures
}
