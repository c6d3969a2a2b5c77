package models

import "time"

// HuntStep is one command probe within a HuntModule (spec §6 file format).
type HuntStep struct {
	ID             string
	Description    string
	Command        string
	TimeoutSeconds int
	RequiresSudo   bool
}

// HuntModule is a declarative probe template loaded from markdown on disk
// (spec §3, §6).
type HuntModule struct {
	ID           string
	Name         string
	Description  string
	OSTypes      []string
	Tags         []string
	SeverityHint Severity
	Steps        []HuntStep
}

// Observation is the recorded outcome of one executed step (spec GLOSSARY).
type Observation struct {
	StepID    string
	Command   string
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// HuntExecution is one run of a module on a session (spec §3).
type HuntExecution struct {
	ID            string
	SessionID     string
	ModuleID      string
	State         HuntState
	StartedAt     time.Time
	FinishedAt    *time.Time
	Observations  []Observation
	AIReportText  string
}
