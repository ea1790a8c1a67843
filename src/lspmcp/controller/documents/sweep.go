package documents

import "context"

func (c *controller) scheduleSweep() {
	if c.cfg.IdleTimeout <= 0 {
		return
	}
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.stopped {
		return
	}
	c.sweeper = c.clock.AfterFunc(c.cfg.SweepInterval, func() {
		c.sweep(context.Background())
		c.scheduleSweep()
	})
}

func (c *controller) stopSweep() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	c.stopped = true
	if c.sweeper != nil {
		c.sweeper.Stop()
	}
}

// sweep closes every document not used within the idle timeout.
func (c *controller) sweep(ctx context.Context) {
	now := c.clock.Now()

	c.mu.Lock()
	var candidates []*entry
	for _, entries := range c.documents {
		for _, e := range entries {
			candidates = append(candidates, e)
		}
	}
	c.mu.Unlock()

	var closed int
	for _, e := range candidates {
		e.mu.Lock()
		if e.doc != nil && now.Sub(e.doc.LastUsed) >= c.cfg.IdleTimeout {
			path := e.doc.Path
			if err := c.closeEntry(ctx, e.root, e); err != nil {
				c.logger.Warnw("failed to close idle document", "project", e.root, "path", path, "error", err)
			}
			closed++
		}
		c.release(e)
	}
	if closed > 0 {
		c.stats.Counter("idle_closes").Inc(int64(closed))
		c.logger.Debugw("closed idle documents", "count", closed)
	}
}
