package hunt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/models"
	"github.com/sentryhound/sentryhound/pkg/shellengine"
)

// Per-step truncation limits (spec §4.4).
const (
	maxStepStdout = 32 * 1024
	maxStepStderr = 8 * 1024
)

// CommandExecutor is the subset of shellengine.Executor a hunt needs —
// narrowed so tests can fake it without standing up a real Connection.
type CommandExecutor interface {
	Execute(ctx context.Context, conn *shellengine.Connection, policy shellengine.SudoPolicy, command string, timeout time.Duration, requiresSudo, allowSuspect bool, sudoPassword string) (stdout, stderr string, exitCode int, err error)
}

// Publisher is the subset of events.Bus hunt execution publishes through.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// executeStep runs one hunt step against conn, truncates its output, and
// emits the step.started/observation/step_completed event sequence (spec
// §4.4). allowSuspect is always true here — hunt-module steps are
// author-trusted, unlike ad-hoc AI-mode commands.
func executeStep(ctx context.Context, exec CommandExecutor, bus Publisher, conn *shellengine.Connection, policy shellengine.SudoPolicy, sessionID, huntID string, step models.HuntStep, creds models.CredentialBundle) models.Observation {
	publish(ctx, bus, events.EventHuntStepStarted, sessionID, map[string]string{
		"hunt_id": huntID, "step_id": step.ID, "description": step.Description,
	})

	obs := runStep(ctx, exec, conn, policy, step, creds)

	obsID := uuid.New().String()
	publish(ctx, bus, events.EventHuntObservation, sessionID, map[string]any{
		"hunt_id": huntID, "observation_id": obsID, "data": obs,
	})
	publish(ctx, bus, events.EventHuntStepCompleted, sessionID, map[string]any{
		"hunt_id": huntID, "step_id": step.ID, "observation": obs,
	})

	return obs
}

// runStep executes the step's command and applies the truncation rules.
// Only passes a sudo password when the step is actually wrapped with
// "sudo -S" — nopasswd and no-sudo commands never need one (spec §4.3).
func runStep(ctx context.Context, exec CommandExecutor, conn *shellengine.Connection, policy shellengine.SudoPolicy, step models.HuntStep, creds models.CredentialBundle) models.Observation {
	var sudoPassword string
	if step.RequiresSudo && (creds.SudoMethod == models.SudoSSHPassword || creds.SudoMethod == models.SudoCustomPassword) {
		sudoPassword = creds.SudoPassword
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	stdout, stderr, exitCode, err := exec.Execute(ctx, conn, policy, step.Command, timeout, step.RequiresSudo, true, sudoPassword)
	if err != nil {
		return models.Observation{
			StepID:   step.ID,
			Command:  step.Command,
			Stderr:   err.Error(),
			ExitCode: -1,
		}
	}

	truncated := len(stdout) > maxStepStdout || len(stderr) > maxStepStderr
	if len(stdout) > maxStepStdout {
		stdout = stdout[:maxStepStdout]
	}
	if len(stderr) > maxStepStderr {
		stderr = stderr[:maxStepStderr]
	}

	return models.Observation{
		StepID:    step.ID,
		Command:   step.Command,
		Stdout:    stdout,
		Stderr:    stderr,
		ExitCode:  exitCode,
		Truncated: truncated,
	}
}

func publish(ctx context.Context, bus Publisher, t events.EventType, sessionID string, payload any) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, events.NewEvent(t, sessionID, payload))
}
