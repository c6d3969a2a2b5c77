package shellengine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
)

const (
	connectTimeout       = 30 * time.Second
	reconnectMaxAttempts = 3
	reconnectBaseDelay   = 2 * time.Second
)

// SessionTransitioner is the subset of pkg/session.Manager the engine needs
// to drive FSM transitions without importing that package (which itself
// will own a shellengine.Connection per session).
type SessionTransitioner interface {
	Transition(ctx context.Context, id string, to models.SessionState, reason string) error
}

// EventPublisher is the subset of pkg/events.Bus the engine publishes
// ssh.*/terminal.* events through.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event)
}

type dialFunc func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// Connection wraps a single SSH connection owned by one session (spec §3:
// "no other session may call it"). Host-key verification is intentionally
// disabled — see DESIGN.md's Open Question decision.
type Connection struct {
	SessionID string
	AssetID   string
	Host      string
	Port      int

	session SessionTransitioner
	bus     EventPublisher
	dial    dialFunc

	mu      sync.Mutex
	client  *ssh.Client
	creds   models.CredentialBundle
	closed  bool
	cancelMonitor context.CancelFunc

	pty *ptySession
}

// NewConnection constructs a Connection. session/bus may be nil in tests
// that only exercise command execution against a real SSH server.
func NewConnection(sessionID, assetID, host string, port int, session SessionTransitioner, bus EventPublisher) *Connection {
	return &Connection{
		SessionID: sessionID,
		AssetID:   assetID,
		Host:      host,
		Port:      port,
		session:   session,
		bus:       bus,
		dial:      ssh.Dial,
	}
}

func authMethods(creds models.CredentialBundle) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if creds.SSHKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(creds.SSHKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.SSHPassword != "" {
		methods = append(methods, ssh.Password(creds.SSHPassword))
	}
	return methods, nil
}

// Connect dials the target host and transitions the session through
// CONNECTING→CONNECTED (spec §4.2). Host-key verification is disabled and a
// warning is logged at each connect attempt, per an explicit Open Question
// decision (DESIGN.md).
func (c *Connection) Connect(ctx context.Context, creds models.CredentialBundle) error {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()

	c.publish(ctx, events.EventSSHConnecting, map[string]string{"target_host": c.Host})
	c.transition(ctx, models.StateConnecting, "")

	var fingerprint string
	client, err := c.dialWithCreds(creds, &fingerprint)
	if err != nil {
		c.publish(ctx, events.EventSSHError, map[string]string{"error_code": "CONNECT_FAILED", "message": err.Error()})
		c.transition(ctx, models.StateFailed, err.Error())
		return fmt.Errorf("ssh connect to %s: %w", c.Host, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	slog.Info("ssh connected", "session_id", c.SessionID, "host", c.Host, "fingerprint", fingerprint)
	c.transition(ctx, models.StateConnected, "")
	c.publish(ctx, events.EventSSHConnected, map[string]string{"server_fingerprint": fingerprint})

	return nil
}

// dialWithCreds dials the target and records the server's host-key
// fingerprint into *fingerprint, even though the key itself is not verified
// (spec Non-goal) — the fingerprint is still surfaced on ssh.connected for
// an analyst to audit out of band.
func (c *Connection) dialWithCreds(creds models.CredentialBundle, fingerprint *string) (*ssh.Client, error) {
	methods, err := authMethods(creds)
	if err != nil {
		return nil, err
	}
	username := creds.Username
	if username == "" {
		username = "root"
	}

	slog.Warn("ssh host key verification is disabled", "session_id", c.SessionID, "host", c.Host)
	*fingerprint = "unknown"
	config := &ssh.ClientConfig{
		User: username,
		Auth: methods,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			*fingerprint = ssh.FingerprintSHA256(key)
			return nil // verification intentionally skipped — see DESIGN.md
		},
		Timeout: connectTimeout,
	}
	return c.dial("tcp", fmt.Sprintf("%s:%d", c.Host, c.Port), config)
}

// IsConnected reports whether the underlying SSH client is live.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && !c.closed
}

// Credentials returns the credential bundle the connection dialed with.
// Hunt orchestration (spec §4.4) snapshots this at hunt start so a mid-hunt
// reconnect with different credentials never races a running hunt.
func (c *Connection) Credentials() models.CredentialBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// Close tears down the connection and any active PTY, cancelling the health
// monitor. Safe to call multiple times.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cancelMonitor != nil {
		c.cancelMonitor()
	}
	if c.pty != nil {
		c.pty.close()
		c.pty = nil
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Connection) publish(ctx context.Context, t events.EventType, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, events.NewEvent(t, c.SessionID, payload))
}

func (c *Connection) transition(ctx context.Context, to models.SessionState, reason string) {
	if c.session == nil {
		return
	}
	if err := c.session.Transition(ctx, c.SessionID, to, reason); err != nil {
		slog.Warn("session transition failed during ssh lifecycle", "session_id", c.SessionID, "to", to, "error", err)
	}
}

// RunCommand executes command non-interactively with a wall-clock timeout
// (spec §4.1 §4.2). If sudoPassword is non-empty it is written to the
// command's stdin followed by a newline, and the sudo prompt line is
// scrubbed from the returned stderr.
func (c *Connection) RunCommand(ctx context.Context, command string, timeout time.Duration, sudoPassword string) (stdout, stderr string, exitCode int, err error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return "", "", -1, fmt.Errorf("ssh not connected")
	}

	sess, err := client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("open ssh session: %w", err)
	}
	defer sess.Close()

	var outBuf, errBuf bytes.Buffer
	sess.Stdout = &outBuf
	sess.Stderr = &errBuf
	if sudoPassword != "" {
		sess.Stdin = bytes.NewBufferString(sudoPassword + "\n")
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case runErr := <-done:
		code := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				code = exitErr.ExitStatus()
			} else {
				return outBuf.String(), errBuf.String(), -1, fmt.Errorf("run command: %w", runErr)
			}
		}
		out, errOut := outBuf.String(), errBuf.String()
		if sudoPassword != "" {
			errOut = scrubSudoPrompt(errOut)
		}
		return out, errOut, code, nil
	case <-time.After(timeout):
		_ = sess.Close()
		return "", fmt.Sprintf("command timed out after %ds", int(timeout.Seconds())), -1, nil
	case <-ctx.Done():
		_ = sess.Close()
		return "", "", -1, ctx.Err()
	}
}
