package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"closebot/pkg/logx"
)

// Watch blocks until ctx is done, re-loading the config file whenever it
// changes on disk and handing each successfully validated snapshot to apply.
// Parse or validation failures keep the previous config in effect.
//
// The watch is on the parent directory, not the file: editors commonly
// replace the file via rename, which drops a direct file watch.
func Watch(ctx context.Context, path string, log logx.Logger, apply func(*Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	// Debounce reloads: editors fire several events per save and a reload
	// halfway through a write would see a truncated file.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload rejected", logx.String("path", path), logx.Err(err))
			return
		}
		log.Info("config reloaded", logx.String("path", path))
		apply(cfg)
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}
	}
}
