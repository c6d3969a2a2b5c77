package api

import (
	"encoding/json"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TokenResponse is returned by POST /auth/login and /auth/refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         UserResponse `json:"user"`
}

// UserResponse is the analyst/admin account shape returned to clients —
// never PasswordHash.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Role: string(u.Role), Active: u.Active}
}

// AssetResponse is the API shape of a models.Asset. Credential ciphertext
// and plaintext never leave pkg/credentials and pkg/database — only whether
// credentials are configured is surfaced here.
type AssetResponse struct {
	ID                  string    `json:"id"`
	Hostname            string    `json:"hostname"`
	IP                  string    `json:"ip"`
	OSType              string    `json:"os_type"`
	Tags                []string  `json:"tags,omitempty"`
	SSHPort             int       `json:"ssh_port"`
	Username            string    `json:"username"`
	SudoMethod          string    `json:"sudo_method"`
	VaultPath           string    `json:"vault_path,omitempty"`
	HasSSHKey           bool      `json:"has_ssh_key"`
	HasSSHPassword      bool      `json:"has_ssh_password"`
	HasSudoPassword     bool      `json:"has_sudo_password"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func newAssetResponse(a *models.Asset) AssetResponse {
	return AssetResponse{
		ID:              a.ID,
		Hostname:        a.Hostname,
		IP:              a.IP,
		OSType:          string(a.OSType),
		Tags:            a.Tags,
		SSHPort:         a.SSHPort,
		Username:        a.Username,
		SudoMethod:      string(a.SudoMethod),
		VaultPath:       a.VaultPath,
		HasSSHKey:       len(a.SSHKeyEnc) > 0,
		HasSSHPassword:  len(a.SSHPasswordEnc) > 0,
		HasSudoPassword: len(a.SudoPasswordEnc) > 0,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// SessionResponse is the API shape of a models.Session.
type SessionResponse struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	AnalystID string    `json:"analyst_id"`
	State     string    `json:"state"`
	Mode      string    `json:"mode"`
	LockedBy  string    `json:"locked_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSessionResponse(s models.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		AssetID:   s.AssetID,
		AnalystID: s.AnalystID,
		State:     string(s.State),
		Mode:      string(s.Mode),
		LockedBy:  s.LockedBy,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// ObservationResponse is the API shape of a models.Observation.
type ObservationResponse struct {
	StepID    string `json:"step_id"`
	Command   string `json:"command"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
	Truncated bool   `json:"truncated"`
}

// HuntExecutionResponse is the API shape of a models.HuntExecution.
type HuntExecutionResponse struct {
	ID           string                 `json:"id"`
	SessionID    string                 `json:"session_id"`
	ModuleID     string                 `json:"module_id"`
	State        string                 `json:"state"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	Observations []ObservationResponse  `json:"observations"`
	AIReportText string                 `json:"ai_report_text,omitempty"`
}

func newHuntExecutionResponse(h *models.HuntExecution) HuntExecutionResponse {
	obs := make([]ObservationResponse, 0, len(h.Observations))
	for _, o := range h.Observations {
		obs = append(obs, ObservationResponse{
			StepID: o.StepID, Command: o.Command, Stdout: o.Stdout,
			Stderr: o.Stderr, ExitCode: o.ExitCode, Truncated: o.Truncated,
		})
	}
	resp := HuntExecutionResponse{
		ID: h.ID, SessionID: h.SessionID, ModuleID: h.ModuleID,
		State: string(h.State), Observations: obs, AIReportText: h.AIReportText,
	}
	if !h.StartedAt.IsZero() {
		resp.StartedAt = &h.StartedAt
	}
	resp.FinishedAt = h.FinishedAt
	return resp
}

// HuntModuleResponse is the API shape of a models.HuntModule.
type HuntModuleResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	OSTypes      []string `json:"os_types,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	SeverityHint string   `json:"severity_hint,omitempty"`
	StepCount    int      `json:"step_count"`
}

func newHuntModuleResponse(m models.HuntModule) HuntModuleResponse {
	return HuntModuleResponse{
		ID: m.ID, Name: m.Name, Description: m.Description,
		OSTypes: m.OSTypes, Tags: m.Tags, SeverityHint: string(m.SeverityHint),
		StepCount: len(m.Steps),
	}
}

// IndicatorResponse is the API shape of a models.Indicator.
type IndicatorResponse struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// FindingResponse is the API shape of a models.Finding.
type FindingResponse struct {
	ID            string              `json:"id"`
	SessionID     string              `json:"session_id,omitempty"`
	AssetID       string              `json:"asset_id"`
	HuntID        string              `json:"hunt_id,omitempty"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	Severity      string              `json:"severity"`
	Confidence    float64             `json:"confidence"`
	FirstSeen     time.Time           `json:"first_seen"`
	LastSeen      time.Time           `json:"last_seen"`
	SightingCount int                 `json:"sighting_count"`
	Status        string              `json:"status"`
	TechniqueIDs  []string            `json:"technique_ids,omitempty"`
	Indicators    []IndicatorResponse `json:"indicators,omitempty"`
	STIXBundle    json.RawMessage     `json:"stix_bundle,omitempty"`
	Remediation   json.RawMessage     `json:"remediation,omitempty"`
}

func newFindingResponse(f *models.Finding) FindingResponse {
	indicators := make([]IndicatorResponse, 0, len(f.Indicators))
	for _, i := range f.Indicators {
		indicators = append(indicators, IndicatorResponse{Type: string(i.Type), Value: i.Value})
	}
	return FindingResponse{
		ID: f.ID, SessionID: f.SessionID, AssetID: f.AssetID, HuntID: f.HuntID,
		Title: f.Title, Description: f.Description, Severity: string(f.Severity),
		Confidence: f.Confidence, FirstSeen: f.FirstSeen, LastSeen: f.LastSeen,
		SightingCount: f.SightingCount, Status: string(f.Status),
		TechniqueIDs: f.TechniqueIDs, Indicators: indicators,
		STIXBundle: f.STIXBundle, Remediation: f.Remediation,
	}
}

// TimelineEventResponse is the API shape of a models.TimelineEvent.
type TimelineEventResponse struct {
	ID        string          `json:"id"`
	AssetID   string          `json:"asset_id"`
	SessionID string          `json:"session_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	AnalystID string          `json:"analyst_id,omitempty"`
}

func newTimelineEventResponse(e *models.TimelineEvent) TimelineEventResponse {
	return TimelineEventResponse{
		ID: e.ID, AssetID: e.AssetID, SessionID: e.SessionID, Type: e.Type,
		Payload: e.Payload, Timestamp: e.Timestamp, AnalystID: e.AnalystID,
	}
}
