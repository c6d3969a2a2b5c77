package shellengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
)

func TestExecutor_BlockedCommandNeverReachesConnection(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	bus := &collectingPublisher{}
	conn := NewConnection("sess-exec-1", "asset-1", host, port, noopSessionTransitioner{}, bus)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))
	defer conn.Close()

	executor := NewExecutor(NewClassifier())
	policy := SudoPolicy{Method: models.SudoNone}

	_, _, exitCode, err := executor.Execute(context.Background(), conn, policy, "rm -rf /", 5*time.Second, false, false, "")
	require.ErrorIs(t, err, ErrCommandBlocked)
	assert.Equal(t, -1, exitCode)
}

func TestExecutor_SuspectCommandRejectedWithoutApproval(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	conn := NewConnection("sess-exec-2", "asset-1", host, port, noopSessionTransitioner{}, nil)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))
	defer conn.Close()

	executor := NewExecutor(NewClassifier())
	policy := SudoPolicy{Method: models.SudoNone}

	_, _, _, err := executor.Execute(context.Background(), conn, policy, "unknown-tool-xyz", 5*time.Second, false, false, "")
	require.ErrorIs(t, err, ErrCommandSuspect)
}

func TestExecutor_SuspectCommandAllowedWithApproval(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	bus := &collectingPublisher{}
	conn := NewConnection("sess-exec-3", "asset-1", host, port, noopSessionTransitioner{}, bus)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))
	defer conn.Close()

	executor := NewExecutor(NewClassifier())
	policy := SudoPolicy{Method: models.SudoNone}

	stdout, _, exitCode, err := executor.Execute(context.Background(), conn, policy, "unknown-tool-xyz", 5*time.Second, false, true, "")
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "ok\n", stdout)

	var sawStarted, sawCompleted bool
	for _, ev := range bus.events {
		switch ev.Type {
		case events.EventCommandStarted:
			sawStarted = true
		case events.EventCommandCompleted:
			sawCompleted = true
		}
	}
	assert.True(t, sawStarted)
	assert.True(t, sawCompleted)
}

func TestExecutor_SafeCommandWrappedWithSudo(t *testing.T) {
	srv := startTestSSHServer(t)
	defer srv.close()
	host, port := srv.hostPort(t)

	conn := NewConnection("sess-exec-4", "asset-1", host, port, noopSessionTransitioner{}, nil)
	require.NoError(t, conn.Connect(context.Background(), models.CredentialBundle{Username: "root"}))
	defer conn.Close()

	executor := NewExecutor(NewClassifier())
	policy := SudoPolicy{Method: models.SudoNopasswd}

	_, _, exitCode, err := executor.Execute(context.Background(), conn, policy, "cat /etc/shadow", 5*time.Second, true, false, "")
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
}

func TestEmitOutputChunks_SplitsLargeOutput(t *testing.T) {
	bus := &collectingPublisher{}
	conn := &Connection{SessionID: "sess-chunks", bus: bus}

	text := make([]byte, outputChunkSize*2+10)
	for i := range text {
		text[i] = 'a'
	}
	emitOutputChunks(context.Background(), conn, "cmd-1", string(text), "stdout")

	assert.Len(t, bus.events, 3)
}

func TestEmitOutputChunks_EmptyTextEmitsNothing(t *testing.T) {
	bus := &collectingPublisher{}
	conn := &Connection{SessionID: "sess-chunks-empty", bus: bus}
	emitOutputChunks(context.Background(), conn, "cmd-1", "", "stdout")
	assert.Empty(t, bus.events)
}
