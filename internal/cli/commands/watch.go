package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is how long watch waits for changes to settle.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Input    string
	Tables   []string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [SQL]",
		Short: "Re-run a query whenever its inputs or functions change",
		Long: `Run a query, then watch the input files, the functions directory
and the query file (with --input) and run it again after every change.
Stop with Ctrl-C.`,
		Example: `  flowsql watch --input report.sql
  flowsql watch "SELECT SLUGIFY(name) FROM customers"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseTables(opts.Tables)
			if err != nil {
				return err
			}
			cc, cleanup, err := NewCommandContext(cmd, extra)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 0 && opts.Input == "" {
				return fmt.Errorf("watch needs a query argument or --input file")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runWatch(ctx, cmd, cc, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file, re-read on change")
	cmd.Flags().StringArrayVarP(&opts.Tables, "table", "t", nil, "Add a file input as name=path (repeatable)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", DefaultDebounce, "Wait this long for changes to settle")

	return cmd
}

// watchTargets decides which file events trigger a re-run.
type watchTargets struct {
	dirs         []string
	files        map[string]bool
	functionsDir string
}

func newWatchTargets(cc *CommandContext, queryFile string) (*watchTargets, error) {
	w := &watchTargets{files: make(map[string]bool)}
	dirs := make(map[string]bool)

	paths := cc.Inputs.WatchPaths()
	if queryFile != "" {
		paths = append(paths, queryFile)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	if info, err := os.Stat(cc.Cfg.FunctionsDir); err == nil && info.IsDir() {
		abs, err := filepath.Abs(cc.Cfg.FunctionsDir)
		if err != nil {
			return nil, err
		}
		w.functionsDir = abs
		dirs[abs] = true
	}

	for d := range dirs {
		w.dirs = append(w.dirs, d)
	}
	sort.Strings(w.dirs)
	return w, nil
}

// relevant reports whether ev should trigger a re-run.
func (w *watchTargets) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if w.files[name] {
		return true
	}
	return w.functionsDir != "" && filepath.Dir(name) == w.functionsDir && filepath.Ext(name) == ".star"
}

func (w *watchTargets) isFunctionFile(name string) bool {
	return w.functionsDir != "" && filepath.Dir(name) == w.functionsDir && filepath.Ext(name) == ".star"
}

func runWatch(ctx context.Context, cmd *cobra.Command, cc *CommandContext, args []string, opts *WatchOptions) error {
	targets, err := newWatchTargets(cc, opts.Input)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	for _, d := range targets.dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}
	cc.Logger.Debug("watching", slog.Any("dirs", targets.dirs))

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	runOnce := func() {
		sqlText, _, err := readSQL(cmd, args, opts.Input)
		if err == nil {
			err = executeAndRender(ctx, cc, sqlText)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			cc.Renderer.Error(err)
		}
		cc.Renderer.Muted(fmt.Sprintf("[%s] watching %d paths, Ctrl-C to stop", time.Now().Format(time.TimeOnly), len(targets.dirs)))
	}

	changes := make(chan []string)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return debounceEvents(ctx, watcher, targets, debounce, changes, cc.Logger)
	})

	g.Go(func() error {
		runOnce()
		for {
			select {
			case <-ctx.Done():
				return nil
			case changed := <-changes:
				for _, name := range changed {
					if targets.isFunctionFile(name) {
						cc.Functions.Invalidate(name)
					}
				}
				cc.Logger.Debug("change detected", slog.Any("files", changed))
				runOnce()
			}
		}
	})

	return g.Wait()
}

// debounceEvents collects relevant watcher events and sends the changed
// files once no event has arrived for the debounce interval.
func debounceEvents(ctx context.Context, watcher *fsnotify.Watcher, targets *watchTargets, debounce time.Duration,
	out chan<- []string, logger *slog.Logger) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets.relevant(ev) {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			select {
			case out <- changed:
			case <-ctx.Done():
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}
