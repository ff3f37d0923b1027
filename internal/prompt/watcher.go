package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"ansari/internal/logging"
)

// Watch reloads the store when template files change. Rapid successive
// saves are debounced so one editor write triggers one reload. Blocks until
// ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	log := logging.Get(logging.CategoryPrompt)
	log.Infof("watching %s for template changes", s.dir)

	const debounce = 500 * time.Millisecond
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".txt") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := s.Reload(); err != nil {
				log.Errorf("template reload failed: %v", err)
				continue
			}
			log.Infof("templates reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}
