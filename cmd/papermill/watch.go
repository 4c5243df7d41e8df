package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/skewballfox/papermill"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/format"
	"github.com/skewballfox/papermill/ingestion"
	"github.com/skewballfox/papermill/storage"
	"github.com/urfave/cli/v2"
)

type changeKind int

const (
	changeNone changeKind = iota
	changeUpsert
	changeDelete
)

// watchTarget is the part of the engine the watcher drives.
type watchTarget interface {
	IngestFiles(ctx context.Context, paths ...string) (*ingestion.Report, error)
	RemoveDocument(ctx context.Context, id core.DocumentID) error
	Document(ctx context.Context, id core.DocumentID) (*core.Document, error)
}

var _ watchTarget = (*papermill.Engine)(nil)

type watcher struct {
	target   watchTarget
	exts     []string
	debounce time.Duration
	notify   *fsnotify.Watcher
	logger   *slog.Logger
}

func watchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one directory is required")
	}
	exts := loadedConfig(c).Ingest.Extensions

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer notify.Close()

	return withEngine(c, func(e *papermill.Engine) error {
		w := &watcher{
			target:   e,
			exts:     exts,
			debounce: c.Duration("debounce"),
			notify:   notify,
			logger:   slog.Default().With("component", "watch"),
		}
		initial := make(map[string]changeKind)
		for _, dir := range c.Args().Slice() {
			if err := w.addTree(dir, initial); err != nil {
				return err
			}
		}
		w.flush(c.Context, initial)
		fmt.Fprintf(c.App.Writer, "Watching %s (Ctrl-C to stop)\n", strings.Join(c.Args().Slice(), ", "))
		return w.run(c.Context)
	})
}

// addTree watches dir and every non-hidden directory below it, recording
// the matching files already present as upserts.
func (w *watcher) addTree(dir string, pending map[string]changeKind) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.notify.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if hasExtension(path, w.exts) {
			pending[path] = changeUpsert
		}
		return nil
	})
}

// run collects events until ctx is done. Changes are applied once no event
// has arrived for the debounce interval.
func (w *watcher) run(ctx context.Context) error {
	pending := make(map[string]changeKind)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background(), pending)
			return nil
		case ev, ok := <-w.notify.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !isHidden(ev.Name) {
					if err := w.addTree(ev.Name, pending); err != nil {
						w.logger.Warn("error watching new directory", "dir", ev.Name, "err", err)
					}
					timer.Reset(w.debounce)
					continue
				}
			}
			if kind := classify(ev, w.exts); kind != changeNone {
				pending[ev.Name] = kind
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.notify.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		case <-timer.C:
			w.flush(ctx, pending)
			clear(pending)
		}
	}
}

// classify maps a filesystem event to the change it implies.
func classify(ev fsnotify.Event, exts []string) changeKind {
	if isHidden(ev.Name) || !hasExtension(ev.Name, exts) {
		return changeNone
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return changeDelete
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return changeNone
		}
		return changeUpsert
	}
	return changeNone
}

// flush applies pending changes. Changed files replace their previous
// version; deleted files are removed from the engine.
func (w *watcher) flush(ctx context.Context, pending map[string]changeKind) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var upserts []string
	for _, path := range paths {
		id, _ := format.IDFor(path)
		if pending[path] == changeDelete {
			w.remove(ctx, path, id)
			continue
		}
		if _, err := w.target.Document(ctx, id); err == nil {
			w.remove(ctx, path, id)
		}
		upserts = append(upserts, path)
	}
	if len(upserts) == 0 {
		return
	}

	report, err := w.target.IngestFiles(ctx, upserts...)
	if err != nil {
		w.logger.Error("error ingesting changed files", "err", err)
	}
	if report != nil {
		w.logger.Info("ingested changed files", "files", len(upserts), "ingested", report.Ingested, "failed", len(report.Failed))
	}
}

func (w *watcher) remove(ctx context.Context, path string, id core.DocumentID) {
	err := w.target.RemoveDocument(ctx, id)
	switch {
	case err == nil:
		w.logger.Info("removed document", "path", path, "document", id)
	case errors.Is(err, storage.ErrNotFound):
	default:
		w.logger.Error("error removing document", "path", path, "document", id, "err", err)
	}
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
