package models

import "log/slog"

// OSType is the operating system family of an Asset.
type OSType string

const (
	OSLinux   OSType = "linux"
	OSWindows OSType = "windows"
	OSMacOS   OSType = "macos"
	OSUnknown OSType = "unknown"
)

// ParseOSType coerces a string into an OSType, defaulting to OSUnknown and
// logging a warning on anything unrecognised. Never panics — enum values
// coming from a remote OS fingerprint or the database must be tolerated.
func ParseOSType(s string) OSType {
	switch OSType(s) {
	case OSLinux, OSWindows, OSMacOS, OSUnknown:
		return OSType(s)
	default:
		if s != "" {
			slog.Warn("unrecognised os_type, defaulting to unknown", "value", s)
		}
		return OSUnknown
	}
}

// SudoMethod describes how privilege escalation is invoked for an Asset.
type SudoMethod string

const (
	SudoNone           SudoMethod = "none"
	SudoNopasswd       SudoMethod = "nopasswd"
	SudoSSHPassword    SudoMethod = "ssh_password"
	SudoCustomPassword SudoMethod = "custom_password"
)

// ParseSudoMethod coerces a string into a SudoMethod, defaulting to SudoNone.
func ParseSudoMethod(s string) SudoMethod {
	switch SudoMethod(s) {
	case SudoNone, SudoNopasswd, SudoSSHPassword, SudoCustomPassword:
		return SudoMethod(s)
	case "":
		return SudoNone
	default:
		slog.Warn("unrecognised sudo_method, defaulting to none", "value", s)
		return SudoNone
	}
}

// SessionState is a state in the session finite-state machine (spec §4.1).
type SessionState string

const (
	StateInitializing  SessionState = "INITIALIZING"
	StateConnecting    SessionState = "CONNECTING"
	StateConnected     SessionState = "CONNECTED"
	StateRunning       SessionState = "RUNNING"
	StatePaused        SessionState = "PAUSED"
	StateLocked        SessionState = "LOCKED"
	StateDisconnected  SessionState = "DISCONNECTED"
	StateFailed        SessionState = "FAILED"
	StateTerminated    SessionState = "TERMINATED"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateFailed || s == StateTerminated
}

// SessionMode is the session's current execution mode.
type SessionMode string

const (
	ModeAI          SessionMode = "ai"
	ModeInteractive SessionMode = "interactive"
)

// HuntState is the lifecycle state of a HuntExecution.
type HuntState string

const (
	HuntPending   HuntState = "PENDING"
	HuntRunning   HuntState = "RUNNING"
	HuntCompleted HuntState = "COMPLETED"
	HuntFailed    HuntState = "FAILED"
	HuntCancelled HuntState = "CANCELLED"
)

// Severity is a finding/hunt-step severity level.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity coerces a string into a Severity, defaulting to medium and
// logging a warning. Used for severity values extracted from LLM output,
// which must never be trusted to be well-formed.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s)
	default:
		if s != "" {
			slog.Warn("unrecognised severity, defaulting to medium", "value", s)
		}
		return SeverityMedium
	}
}

// FindingStatus is the analyst-facing triage state of a Finding.
type FindingStatus string

const (
	FindingOpen         FindingStatus = "open"
	FindingAcknowledged FindingStatus = "acknowledged"
	FindingResolved     FindingStatus = "resolved"
)

// UserRole is an analyst's authorization level.
type UserRole string

const (
	RoleAnalyst UserRole = "analyst"
	RoleAdmin   UserRole = "admin"
)
