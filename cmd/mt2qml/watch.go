package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/mtinv-quakeml/internal/pipeline"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir   string
		existing bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Convert reports as they are written to a directory",
		Long: `Watches a directory and converts every report file created or rewritten
in it, writing documents to --out-dir. Hidden files are ignored. Failed
conversions are logged and the watch continues until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := opts.converter(cmd)
			if err != nil {
				return err
			}
			dir := args[0]
			if err := checkWatchDirs(dir, outDir); err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			w := &watcher{conv: conv, outDir: outDir, logger: opts.logger(cmd)}
			if existing {
				w.convertExisting(dir)
			}
			return w.run(cmd.Context(), dir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "directory for converted documents (required)")
	cmd.Flags().BoolVar(&existing, "existing", false, "also convert reports already in the directory")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}

// checkWatchDirs rejects an output directory equal to the watched one, where
// every written document would trigger another conversion.
func checkWatchDirs(dir, outDir string) error {
	a, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	b, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}
	if a == b {
		return errors.New("--out-dir must differ from the watched directory")
	}
	return nil
}

type watcher struct {
	conv   *pipeline.Converter
	outDir string
	logger *slog.Logger
}

func (w *watcher) run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching for reports", "dir", dir, "out_dir", w.outDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *watcher) convertExisting(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("list directory failed", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		w.convertPath(filepath.Join(dir, e.Name()))
	}
}

// handleEvent converts the file behind a create or write event. It returns
// the written document path, or "" when the event was skipped or failed.
func (w *watcher) handleEvent(ev fsnotify.Event) string {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return ""
	}
	return w.convertPath(ev.Name)
}

func (w *watcher) convertPath(path string) string {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}

	res := convertOne(w.conv, input{name: path})
	if res.err != nil {
		// A report still being written fails here and converts on its next write event.
		w.logger.Warn("conversion failed", "file", path, "kind", pipeline.ErrorKind(res.err), "error", res.err)
		return ""
	}

	dest := filepath.Join(w.outDir, w.conv.DocumentName(res.report)+w.conv.Extension())
	if err := os.WriteFile(dest, res.out, 0o644); err != nil {
		w.logger.Error("write document failed", "file", path, "output", dest, "error", err)
		return ""
	}
	w.logger.Info("converted", "file", path, "output", dest, "event_id", res.report.EventID)
	return dest
}
