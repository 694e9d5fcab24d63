package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
)

const defaultDebounce = 500 * time.Millisecond

// Watch runs once, then again each time the prompt file is written, until ctx
// ends. Bursts of events within the debounce window trigger a single run.
// Run failures are logged and watching continues.
func (r *Runner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(r.cfg.PromptFile)

	// The first run may create the placeholder, which also creates the dir.
	r.runLogged(ctx)

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch prompt dir: %w", err)
	}
	r.logger.Info().Str("prompt_file", target).Msg("watching prompt file")

	debounce := r.cfg.WatchDebounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			r.logger.Debug().Str("op", event.Op.String()).Msg("prompt file changed")
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error().Err(err).Msg("file watcher error")
		case <-timer.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		var cfgErr *heavy.StartupConfigError
		if errors.As(err, &cfgErr) {
			r.logger.Warn().Err(err).Msg("prompt file not ready")
			return
		}
		r.logger.Error().Err(err).Msg("batch run failed")
	}
}
