package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"compass.education/internal/obs"
)

// Watch re-reads the config file whenever it changes and invokes onReload
// with the freshly validated configuration. Invalid rewrites are logged and
// skipped so a bad edit never takes down a running gateway. Watch blocks
// until ctx is canceled.
func Watch(ctx context.Context, path string, onReload func(Config)) error {
	if path == "" || onReload == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				obs.Logger().WithError(err).Warn("config reload rejected")
				continue
			}
			obs.Logger().WithField("path", path).Info("config reloaded")
			onReload(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			obs.Logger().WithError(err).Warn("config watcher error")
		}
	}
}
