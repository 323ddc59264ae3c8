package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/themesmith/internal/config"
	"github.com/conneroisu/themesmith/internal/livereload"
	"github.com/conneroisu/themesmith/internal/tasks"
	"github.com/conneroisu/themesmith/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Watch the sources and live reload browsers",
	Long: `Start the LiveReload server, watch every configured glob set and run the
bound task whenever a matching file changes. Runs until interrupted.

Bindings:
  watch.jade        -> jade
  watch.js          -> js
  watch.less        -> less
  watch.less_vendor -> less_vendor
  watch.php         -> functions
  dist.php          -> refresh
  watch.pp          -> pp
  watch.all_php     -> all_php

Examples:
  themesmith watch                    # Watch with the configured environment
  themesmith watch --build            # Build everything first
  themesmith watch --env production   # Minify while watching`,
	RunE: runWatch,
}

var watchBuild bool

func init() {
	rootCmd.AddCommand(watchCmd)

	for _, c := range []*cobra.Command{rootCmd, watchCmd} {
		c.Flags().BoolVarP(&watchBuild, "build", "b", false, "Run every build task before watching")
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := livereload.NewServer(cfg.LiveReload.Host, cfg.LiveReload.Port, logger.WithComponent("livereload"))

	app, err := tasks.NewApp(cfg, tasks.Deps{
		Logger:   logger.WithComponent("tasks"),
		Reloader: server,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	dispatcher, err := watcher.NewDispatcher(logger.WithComponent("watcher"))
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := app.Install(dispatcher); err != nil {
		_ = dispatcher.Close()
		return fmt.Errorf("failed to install watchers: %w", err)
	}

	out := cmd.OutOrStdout()
	events := app.Tasks.Watch()
	defer app.Tasks.UnWatch(events)

	printBanner(out, cfg, server.Addr(), dispatcher.Subscriptions())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		printEvents(gctx, out, events, server.Alert)
		return nil
	})

	if watchBuild {
		if failures := runBuild(gctx, app); failures.HasErrors() {
			color.New(color.FgRed).Fprintf(out, "Initial build failed: %s\n", failures.Summary())
		}
	}

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Warn(shutdownCtx, serr, "LiveReload shutdown")
	}

	fmt.Fprintln(out, "Stopped watching")
	return err
}

func printBanner(w io.Writer, cfg *config.Config, addr string, watching []string) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	bold.Fprintf(w, "themesmith watching (%s)\n", cfg.EnvType)
	fmt.Fprintf(w, "  LiveReload  %s\n", cyan.Sprintf("http://%s/livereload.js", addr))
	fmt.Fprintf(w, "  Destination %s\n", cyan.Sprint(cfg.DistRoot))
	for _, name := range watching {
		fmt.Fprintf(w, "  Watching    %s\n", name)
	}
	fmt.Fprintln(w, "Press Ctrl+C to stop")
}

// printEvents writes one console line per task event until ctx is done.
// Failures are also passed to alert, when set, so browsers show them.
func printEvents(ctx context.Context, w io.Writer, events <-chan tasks.Event, alert func(string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(w, formatEvent(ev))
			if ev.Type == tasks.EventTypeFailed && alert != nil {
				_ = alert(fmt.Sprintf("'%s' errored: %v", ev.Task, ev.Err))
			}
		}
	}
}

func formatEvent(ev tasks.Event) string {
	stamp := color.New(color.Faint).Sprintf("[%s]", ev.Timestamp.Format("15:04:05"))
	name := color.New(color.FgCyan).Sprintf("'%s'", ev.Task)

	switch ev.Type {
	case tasks.EventTypeStarted:
		return fmt.Sprintf("%s Starting %s...", stamp, name)
	case tasks.EventTypeFinished:
		return fmt.Sprintf("%s Finished %s after %s", stamp, name,
			color.New(color.FgMagenta).Sprint(formatDuration(ev.Duration)))
	default:
		return fmt.Sprintf("%s %s %s after %s: %v", stamp, name,
			color.New(color.FgRed).Sprint("errored"), formatDuration(ev.Duration), ev.Err)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
