// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package equeue

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/northbound-system/axon/internal/logger"
)

// Watch watches the queue directory for new job files and sends on wake
// whenever one appears, so BackgroundEmbedder can react immediately
// instead of waiting for its next poll tick. This is purely an
// optimization — the poll loop is the mechanism of record and keeps
// working even if the watcher fails to start, matching the teacher's
// drone/watcher fsnotify idiom of layering an accelerator over a
// guaranteed-correct poll.
func (q *Queue) Watch(ctx context.Context, log *logger.Logger, wake chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if log != nil {
			log.Printf("equeue: fsnotify unavailable, falling back to poll-only: %v", err)
		}
		return
	}
	defer watcher.Close()

	if err := watcher.Add(q.dir); err != nil {
		if log != nil {
			log.Printf("equeue: watch %s: %v", q.dir, err)
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if log != nil {
				log.Printf("equeue: watch error: %v", err)
			}
		}
	}
}
