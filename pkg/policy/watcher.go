package policy

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cadencehq/authcore/pkg/observability"
)

// debounce absorbs the bursts of events editors emit on save.
const debounce = 200 * time.Millisecond

// Watch reloads the provider whenever its policy file changes. Blocks
// until ctx is cancelled. The parent directory is watched rather than
// the file itself so atomic rename-style saves are caught too.
func (p *Provider) Watch(ctx context.Context, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-timerC:
			if err := p.Reload(); err != nil {
				logger.WithError(err).WithField("path", p.path).Error("policy reload failed, keeping previous policy")
			} else {
				logger.WithField("path", p.path).Info("policy reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("policy watcher error")
		}
	}
}
