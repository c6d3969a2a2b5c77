package shellengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentryhound/sentryhound/pkg/events"
)

// ErrCommandBlocked is returned when the safety classifier rejects a command
// outright (spec §4.1: "BLOCKED").
var ErrCommandBlocked = errors.New("command blocked by safety classifier")

// ErrCommandSuspect is returned when a command needs analyst approval before
// it may run (spec §4.1: "SUSPECT").
var ErrCommandSuspect = errors.New("command requires analyst approval")

// Executor runs AI-mode commands against a Connection, gated by a
// Classifier and wrapped per a SudoPolicy.
type Executor struct {
	classifier *Classifier
}

// NewExecutor constructs an Executor sharing classifier across every
// session (the exact-string cache has no reason to be per-session).
func NewExecutor(classifier *Classifier) *Executor {
	return &Executor{classifier: classifier}
}

// Execute classifies command, optionally wraps it with sudo, runs it on
// conn, and emits the ssh.command_* events (spec §4.1, §4.2). allowSuspect
// lets a caller proceed past a SUSPECT classification once an analyst has
// approved it out of band. sudoPassword, if non-empty, is piped to the
// wrapped command's stdin.
func (e *Executor) Execute(ctx context.Context, conn *Connection, policy SudoPolicy, command string, timeout time.Duration, requiresSudo, allowSuspect bool, sudoPassword string) (stdout, stderr string, exitCode int, err error) {
	class, reason := e.classifier.Classify(command)

	switch class {
	case ClassBlocked:
		msg := fmt.Sprintf("command blocked by safety classifier: %s", reason)
		conn.publish(ctx, events.EventSSHError, map[string]string{"error_code": "COMMAND_BLOCKED", "message": msg})
		return "", "", -1, fmt.Errorf("%w: %s", ErrCommandBlocked, reason)
	case ClassSuspect:
		if !allowSuspect {
			return "", "", -1, fmt.Errorf("%w: %s", ErrCommandSuspect, reason)
		}
	}

	wrapped := policy.WrapCommand(command, requiresSudo)

	commandID := uuid.New().String()
	conn.publish(ctx, events.EventCommandStarted, map[string]string{"command_id": commandID, "command": command})

	started := time.Now()
	stdout, stderr, exitCode, err = conn.RunCommand(ctx, wrapped, timeout, sudoPassword)
	if err != nil {
		conn.publish(ctx, events.EventSSHError, map[string]string{"error_code": "SSH_ERROR", "message": err.Error()})
		return stdout, stderr, exitCode, err
	}
	duration := time.Since(started)

	emitOutputChunks(ctx, conn, commandID, stdout, "stdout")
	emitOutputChunks(ctx, conn, commandID, stderr, "stderr")

	conn.publish(ctx, events.EventCommandCompleted, map[string]any{
		"command_id": commandID, "exit_code": exitCode, "duration_ms": duration.Milliseconds(),
	})

	return stdout, stderr, exitCode, nil
}

const outputChunkSize = 4096

func emitOutputChunks(ctx context.Context, conn *Connection, commandID, text, stream string) {
	if text == "" {
		return
	}
	for i := 0; i < len(text); i += outputChunkSize {
		end := i + outputChunkSize
		if end > len(text) {
			end = len(text)
		}
		conn.publish(ctx, events.EventCommandOutput, map[string]string{
			"command_id": commandID, "chunk": text[i:end], "stream": stream,
		})
	}
}
