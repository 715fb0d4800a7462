package gate

import (
	"context"
	"time"
)

// StartResync keeps the local lock copy aligned with the remote authority on
// a fixed interval. After a failed pass the loop goes quiet instead of
// hammering a broken remote; the next Focus call wakes it back up.
func (g *Gate) StartResync(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.resyncCancel = cancel
	g.resyncDone = make(chan struct{})

	go func() {
		defer close(g.resyncDone)

		deviceID, err := g.DeviceID()
		if err != nil {
			g.logger.Error("lock resync disabled, no device id", "error", err)
			return
		}

		ticker := time.NewTicker(resyncInterval)
		defer ticker.Stop()

		paused := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.focus:
				paused = false
			case <-ticker.C:
				if paused {
					continue
				}
			}
			if err := g.resyncLock(ctx, deviceID); err != nil {
				g.logger.Warn("lock resync failed, pausing until next focus", "error", err)
				paused = true
			}
		}
	}()

	g.logger.Info("lock resync started", "interval", resyncInterval)
}

// StopResync cancels the resync loop and waits for it to exit.
func (g *Gate) StopResync() {
	if g.resyncCancel != nil {
		g.resyncCancel()
		<-g.resyncDone
	}
}

// Focus signals that a client came back to the foreground, which triggers an
// immediate resync and lifts any error pause.
func (g *Gate) Focus() {
	select {
	case g.focus <- struct{}{}:
	default:
	}
}
