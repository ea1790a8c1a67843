package watcher

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/clock"
	"go.lsp.dev/protocol"
)

type pendingChange struct {
	project entity.Project
	change  protocol.FileChangeType
	timer   clock.Timer
}

func changeType(event fsnotify.Event) (protocol.FileChangeType, bool) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return protocol.FileChangeTypeDeleted, true
	case event.Has(fsnotify.Create):
		return protocol.FileChangeTypeCreated, true
	case event.Has(fsnotify.Write):
		return protocol.FileChangeTypeChanged, true
	default:
		return 0, false
	}
}

// coalesce folds a new event into the one already pending for the path.
// A file created and then written within the window is still reported as created.
func coalesce(prev, next protocol.FileChangeType) protocol.FileChangeType {
	if prev == protocol.FileChangeTypeCreated && next == protocol.FileChangeTypeChanged {
		return prev
	}
	if prev == protocol.FileChangeTypeDeleted && next != protocol.FileChangeTypeDeleted {
		return protocol.FileChangeTypeChanged
	}
	return next
}

// debounce restarts the path's timer. The change is forwarded once the path stays quiet for the window.
func (c *controller) debounce(p entity.Project, path string, change protocol.FileChangeType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[path]; ok {
		prev.timer.Stop()
		change = coalesce(prev.change, change)
	}
	pc := &pendingChange{project: p, change: change}
	c.pending[path] = pc
	c.stats.Counter("events").Inc(1)
	pc.timer = c.clock.AfterFunc(c.cfg.Debounce, func() {
		c.fire(path, pc)
	})
}

func (c *controller) fire(path string, pc *pendingChange) {
	c.mu.Lock()
	if c.pending[path] != pc {
		c.mu.Unlock()
		return
	}
	delete(c.pending, path)
	c.mu.Unlock()

	c.stats.Counter("debounced").Inc(1)
	if err := c.documents.ApplyExternalChange(context.Background(), pc.project, path, pc.change); err != nil {
		c.logger.Warnw("failed to resynchronize changed file", "project", pc.project.Root, "path", path, "error", err)
	}
}
