package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"nestling/internal/config"
	"nestling/internal/logging"
)

// watchConfig reloads logging settings when the config file changes on disk.
// Only logging settings apply at runtime; address and storage changes need a
// restart. Watches the parent directory because editors replace the file on
// save, which drops a watch placed on the file itself.
func (s *Server) watchConfig(ctx context.Context, configPath string) error {
	if configPath == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(configPath)
	base := filepath.Base(configPath)
	if err := watcher.Add(dir); err != nil {
		s.logger.Warn("config watch disabled", zap.String("dir", dir), zap.Error(err))
		<-ctx.Done()
		return nil
	}
	logging.Config("Watching config file: %s", configPath)

	// Debounce rapid saves
	var pending bool
	debounce := time.NewTicker(500 * time.Millisecond)
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", zap.Error(err))

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			s.reloadConfig(configPath)
		}
	}
}

func (s *Server) reloadConfig(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		s.logger.Warn("config reload failed", zap.Error(err))
		return
	}

	logging.Reconfigure(logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
	})
	s.logger.Info("config reloaded",
		zap.Bool("debug", cfg.Logging.DebugMode),
		zap.String("level", cfg.Logging.Level))
}
