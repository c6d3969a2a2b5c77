package shellengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
)

// healthPollInterval is how often the monitor checks connection liveness
// (spec §4.1: "polls connection liveness every 5 s").
const healthPollInterval = 5 * time.Second

// StartHealthMonitor launches the background task that detects an
// unexpected SSH drop and drives the reconnect sequence (spec §4.1). It
// runs until ctx is cancelled or Close() is called on conn.
func (c *Connection) StartHealthMonitor(ctx context.Context) {
	monitorCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelMonitor = cancel
	c.mu.Unlock()

	go c.monitorLoop(monitorCtx)
}

func (c *Connection) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.probeDead() {
				c.handleDisconnect(ctx)
				return // reconnect owns the session's lifecycle from here
			}
		}
	}
}

// probeDead sends a keepalive request and reports whether the connection
// appears to be gone.
func (c *Connection) probeDead() bool {
	c.mu.Lock()
	client := c.client
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false // already torn down deliberately, not a surprise drop
	}
	if client == nil {
		return true
	}
	_, _, err := client.SendRequest("keepalive@sentryhound", true, nil)
	return err != nil
}

// handleDisconnect implements spec §4.1's reconnect sequence: emit
// ssh.disconnected, transition to DISCONNECTED, then up to 3 reconnect
// attempts with exponential backoff (base 2s), each emitting ssh.connecting
// and, on success, driving DISCONNECTED→CONNECTING→CONNECTED→RUNNING and
// emitting ssh.connected. Exhaustion transitions to FAILED.
func (c *Connection) handleDisconnect(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	creds := c.creds
	c.mu.Unlock()

	c.publish(ctx, events.EventSSHDisconnected, map[string]string{"reason": "connection lost"})
	c.transition(ctx, models.StateDisconnected, "ssh connection lost")

	for attempt := 1; attempt <= reconnectMaxAttempts; attempt++ {
		delay := reconnectBaseDelay * time.Duration(1<<(attempt-1))
		slog.Info("ssh reconnect attempt scheduled", "session_id", c.SessionID, "attempt", attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.publish(ctx, events.EventSSHConnecting, map[string]string{"target_host": c.Host})
		c.transition(ctx, models.StateConnecting, "reconnecting")

		var fingerprint string
		client, err := c.dialWithCreds(creds, &fingerprint)
		if err != nil {
			slog.Warn("ssh reconnect attempt failed", "session_id", c.SessionID, "attempt", attempt, "error", err)
			c.publish(ctx, events.EventSSHError, map[string]string{"error_code": "RECONNECT_FAILED", "message": err.Error()})
			continue
		}

		c.mu.Lock()
		c.client = client
		c.mu.Unlock()

		c.transition(ctx, models.StateConnected, "reconnected")
		c.publish(ctx, events.EventSSHConnected, map[string]string{"server_fingerprint": fingerprint})
		c.transition(ctx, models.StateRunning, "reconnected")
		slog.Info("ssh reconnected", "session_id", c.SessionID, "attempt", attempt)

		c.StartHealthMonitor(ctx)
		return
	}

	slog.Error("ssh reconnect exhausted", "session_id", c.SessionID, "attempts", reconnectMaxAttempts)
	c.transition(ctx, models.StateFailed, "reconnect attempts exhausted")
}
