package shellengine

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sentryhound/sentryhound/pkg/events"
)

// ptyMaxEventsPerSecond bounds how often coalesced PTY output is flushed as
// a terminal.data event, preventing a chatty remote shell from flooding the
// WebSocket fan-out (spec §4.2).
const ptyMaxEventsPerSecond = 60

// ptyCoalesceInterval is the minimum spacing between flushes (~16ms).
const ptyCoalesceInterval = time.Second / ptyMaxEventsPerSecond

// ptyMaxCoalesceBuffer forces an immediate flush once this many bytes have
// accumulated, regardless of the coalesce interval.
const ptyMaxCoalesceBuffer = 8192

// ptyCoalescer buffers rapid PTY output chunks and flushes at most
// ptyMaxEventsPerSecond times per second, base64-encoding each flush into a
// terminal.data event.
type ptyCoalescer struct {
	sessionID string
	bus       EventPublisher

	mu         sync.Mutex
	buf        []byte
	lastFlush  time.Time
	flushTimer *time.Timer
	closed     bool
}

func newPtyCoalescer(sessionID string, bus EventPublisher) *ptyCoalescer {
	// lastFlush starts at creation, so the first chunk is buffered with the
	// chunks that follow it instead of being flushed on its own.
	return &ptyCoalescer{sessionID: sessionID, bus: bus, lastFlush: time.Now()}
}

func (p *ptyCoalescer) write(ctx context.Context, chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.buf = append(p.buf, chunk...)

	elapsed := time.Since(p.lastFlush)
	if elapsed >= ptyCoalesceInterval || len(p.buf) >= ptyMaxCoalesceBuffer {
		p.flushLocked(ctx)
		return
	}
	if p.flushTimer == nil {
		p.flushTimer = time.AfterFunc(ptyCoalesceInterval-elapsed, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if len(p.buf) > 0 && !p.closed {
				p.flushLocked(ctx)
			}
			p.flushTimer = nil
		})
	}
}

// flushLocked must be called with p.mu held.
func (p *ptyCoalescer) flushLocked(ctx context.Context) {
	if len(p.buf) == 0 {
		return
	}
	data := p.buf
	p.buf = nil
	p.lastFlush = time.Now()

	encoded := base64.StdEncoding.EncodeToString(data)
	if p.bus != nil {
		p.bus.Publish(ctx, events.NewEvent(events.EventTerminalData, p.sessionID, map[string]string{"data": encoded}))
	}
}

func (p *ptyCoalescer) close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.flushTimer != nil {
		p.flushTimer.Stop()
	}
	p.flushLocked(ctx)
}

// ptySession is an open interactive PTY channel on a Connection's SSH
// client, grounded on the original's PtyRateLimiter/start_pty_session.
type ptySession struct {
	sess      *ssh.Session
	stdin     io.WriteCloser
	coalescer *ptyCoalescer
	done      chan struct{}
}

// OpenPTY requests a PTY and interactive shell on conn's SSH client and
// emits terminal.started. It does not change the session's mode; the session
// manager's SetMode calls it, under the mode mutex (spec §4.1), when it
// switches a session into interactive mode. Output is streamed as coalesced terminal.data
// events until the PTY closes or ClosePTY is called.
func (c *Connection) OpenPTY(ctx context.Context, cols, rows int) error {
	c.mu.Lock()
	client := c.client
	existing := c.pty
	c.mu.Unlock()
	if client == nil {
		return fmt.Errorf("ssh not connected")
	}
	if existing != nil {
		return fmt.Errorf("pty already open for session %s", c.SessionID)
	}

	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open ssh session for pty: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		sess.Close()
		return fmt.Errorf("request pty: %w", err)
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return fmt.Errorf("pty stdout pipe: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return fmt.Errorf("pty stdin pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		return fmt.Errorf("start pty shell: %w", err)
	}

	p := &ptySession{
		sess:      sess,
		stdin:     stdin,
		coalescer: newPtyCoalescer(c.SessionID, c.bus),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.pty = p
	c.mu.Unlock()

	slog.Info("pty session starting", "session_id", c.SessionID, "cols", cols, "rows", rows)
	c.publish(ctx, events.EventTerminalStarted, map[string]int{"cols": cols, "rows": rows})

	go p.pump(ctx, c, stdout)

	return nil
}

func (p *ptySession) pump(ctx context.Context, c *Connection, stdout io.Reader) {
	defer close(p.done)
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.coalescer.write(ctx, chunk)
		}
		if err != nil {
			break
		}
	}
	p.coalescer.close(ctx)

	c.mu.Lock()
	c.pty = nil
	c.mu.Unlock()

	c.publish(ctx, events.EventTerminalClosed, map[string]string{"reason": "pty closed"})
	slog.Info("pty session ended", "session_id", c.SessionID)
}

// WritePTY sends analyst keystrokes to the open PTY's stdin.
func (c *Connection) WritePTY(data []byte) error {
	c.mu.Lock()
	p := c.pty
	c.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no pty open for session %s", c.SessionID)
	}
	_, err := p.stdin.Write(data)
	return err
}

// ResizePTY changes the open PTY's window size.
func (c *Connection) ResizePTY(cols, rows int) error {
	c.mu.Lock()
	p := c.pty
	c.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no pty open for session %s", c.SessionID)
	}
	return p.sess.WindowChange(rows, cols)
}

// ClosePTY closes the interactive shell and its SSH session (spec §4.1:
// close_pty_session). Safe to call when no PTY is open.
func (c *Connection) ClosePTY(ctx context.Context, reason string) error {
	c.mu.Lock()
	p := c.pty
	c.mu.Unlock()
	if p == nil {
		return nil
	}

	err := p.sess.Close()
	<-p.done // wait for pump to finish flushing and emit terminal.closed itself

	if reason != "" && reason != "pty closed" {
		c.publish(ctx, events.EventTerminalClosed, map[string]string{"reason": reason})
	}
	return err
}

func (p *ptySession) close() {
	_ = p.sess.Close()
}
