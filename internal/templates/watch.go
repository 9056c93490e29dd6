package templates

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches rapid saves into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watch hot-reloads the catalog when the flat file or template directory
// changes, until the context is cancelled. Reload failures are logged and
// the previous catalog stays in service.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, path := range []string{r.flatPath, r.dirPath} {
		if path == "" {
			continue
		}
		if err := watcher.Add(path); err != nil {
			// The source may not exist yet; a later create of the parent
			// is invisible, so just note it and serve what we have.
			r.logger.Warn("template watch unavailable", "path", path, "error", err)
		}
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Name != r.flatPath && !templateFile(event.Name) {
				continue
			}
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("template watcher error", "error", err)
		case <-reload:
			if err := r.Load(); err != nil {
				r.logger.Error("template reload failed", "error", err)
			}
		}
	}
}
