package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/pybootstrap/internal/resolver"
	"github.com/conneroisu/pybootstrap/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile whenever a watched manifest changes",
	Long: `Reconcile once, then keep watching the project and reconcile again whenever
a watched manifest is created, modified or removed. Bursts of changes are
debounced (watch_debounce, 300ms by default). A change that arrives while a
reconcile is running is handled by one more reconcile right after it. Editing
the ignore file reloads it and reconciles as well.

Examples:
  pybootstrap watch
  BOOTSTRAP_WATCH="requirements*.txt,pyproject.toml" pybootstrap watch`,
	Aliases: []string{"w"},
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, engine, err := newEngine(cmd)
	if err != nil {
		return err
	}
	opts := engine.Options()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ignore, err := watcher.NewIgnoreList(resolver.IgnorePath(opts.Root, opts.IgnoreFile))
	if err != nil {
		return err
	}

	fileWatcher, err := watcher.NewFileWatcher(cfg.WatchDebounce, logger)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.NoDirFilter(opts.VenvDir))
	fileWatcher.AddFilter(watcher.NoGitFilter)
	fileWatcher.AddFilter(watcher.ManifestFilter(opts.Root, opts.Watch, ignore, opts.Requirements))

	trigger := watcher.NewTrigger(func(ctx context.Context) error {
		_, err := engine.Reconcile(ctx)
		return err
	})
	fileWatcher.AddHandler(ignore.Handler())
	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, event := range events {
			logger.Info(ctx, "manifest "+event.Type.String(), "path", event.Path)
		}
		return trigger.Handler()(ctx, events)
	})

	if err := fileWatcher.AddRecursive(opts.Root, opts.VenvDir, ".git"); err != nil {
		return err
	}

	// Changes made during the initial reconcile are picked up by one
	// follow-up run once it finishes.
	g, gctx := errgroup.WithContext(ctx)
	fileWatcher.Start(gctx)
	logger.Info(gctx, "watching for manifest changes", "root", opts.Root)

	g.Go(func() error {
		_, err := trigger.Fire(gctx)
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return fileWatcher.Stop()
	})

	return g.Wait()
}
