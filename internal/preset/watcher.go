package preset

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports preset files created, written or removed in a directory.
type Watcher struct {
	w   *fsnotify.Watcher
	log zerolog.Logger
}

func NewWatcher(dir string, log zerolog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preset dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create preset watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{w: w, log: log}, nil
}

// Run calls fn with the preset name for every relevant change until ctx is
// done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(name string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if name, ok := NameFromPath(ev.Name); ok {
				w.log.Debug().Str("preset", name).Str("op", ev.Op.String()).Msg("Preset changed")
				fn(name)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Preset watcher error")
		}
	}
}

func (w *Watcher) Close() error {
	return w.w.Close()
}
