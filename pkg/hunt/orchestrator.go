package hunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sentryhound/sentryhound/pkg/ai"
	"github.com/sentryhound/sentryhound/pkg/enrichment"
	"github.com/sentryhound/sentryhound/pkg/events"
	"github.com/sentryhound/sentryhound/pkg/intel"
	"github.com/sentryhound/sentryhound/pkg/models"
	"github.com/sentryhound/sentryhound/pkg/session"
	"github.com/sentryhound/sentryhound/pkg/shellengine"
)

// SessionLookup is the subset of session.Manager the orchestrator needs.
type SessionLookup interface {
	Get(id string) (*session.Session, error)
}

// ExecutionRepository is the subset of pkg/database.HuntExecutionRepository
// the orchestrator writes through to.
type ExecutionRepository interface {
	Create(ctx context.Context, h *models.HuntExecution) error
	UpdateState(ctx context.Context, id string, state models.HuntState) error
	AppendObservation(ctx context.Context, id string, observations []models.Observation) error
	SetReportText(ctx context.Context, id, reportText string) error
}

// FindingRepository is the subset of pkg/database.FindingRepository the
// orchestrator needs to persist deduplicated findings.
type FindingRepository interface {
	Upsert(ctx context.Context, f *models.Finding) (*models.Finding, error)
}

// TimelineRecorder is the subset of pkg/database.TimelineRepository the
// orchestrator needs to append hunt lifecycle events to a per-asset
// timeline (spec §4.4).
type TimelineRecorder interface {
	Record(ctx context.Context, e *models.TimelineEvent) error
}

// Enricher is the subset of enrichment.Orchestrator the orchestrator needs
// to fire off fire-and-forget IOC lookups for a newly persisted finding.
type Enricher interface {
	EnrichIndicators(ctx context.Context, sessionID, findingID string, indicators []enrichment.IndicatorInput)
}

// Orchestrator drives hunt executions: PENDING -> RUNNING -> COMPLETED /
// FAILED / CANCELLED (spec §4.4). Each hunt runs on its own goroutine; a
// context.CancelFunc per in-flight hunt is the Go analogue of the teacher's
// asyncio-task cancellation, interrupting an in-flight command the moment
// Cancel is called rather than only at the next step boundary.
type Orchestrator struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc

	sessions SessionLookup
	modules  *Registry
	executor CommandExecutor
	hunts    ExecutionRepository
	findings FindingRepository
	timeline TimelineRecorder
	enricher Enricher
	provider ai.Provider
	bus      Publisher
}

// NewOrchestrator constructs an Orchestrator. provider, timeline, and
// enricher may be nil: AI analysis, timeline recording, and enrichment
// become no-ops respectively, matching the optional nature of those
// integrations in a minimal deployment.
func NewOrchestrator(
	sessions SessionLookup,
	modules *Registry,
	executor CommandExecutor,
	hunts ExecutionRepository,
	findings FindingRepository,
	timeline TimelineRecorder,
	enricher Enricher,
	provider ai.Provider,
	bus Publisher,
) *Orchestrator {
	return &Orchestrator{
		active:   make(map[string]context.CancelFunc),
		sessions: sessions,
		modules:  modules,
		executor: executor,
		hunts:    hunts,
		findings: findings,
		timeline: timeline,
		enricher: enricher,
		provider: provider,
		bus:      bus,
	}
}

// Start validates the session and module, persists the initial PENDING
// HuntExecution row, and launches the run in the background, returning the
// new hunt id immediately (spec §4.4).
func (o *Orchestrator) Start(ctx context.Context, sessionID, moduleID string, runAI bool) (string, error) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return "", fmt.Errorf("session %s not found: %w", sessionID, err)
	}

	module, ok := o.modules.Get(moduleID)
	if !ok {
		return "", fmt.Errorf("hunt module %q not found", moduleID)
	}

	huntID := uuid.New().String()
	execution := &models.HuntExecution{
		ID:           huntID,
		SessionID:    sessionID,
		ModuleID:     module.ID,
		State:        models.HuntPending,
		Observations: []models.Observation{},
	}
	if err := o.hunts.Create(ctx, execution); err != nil {
		return "", fmt.Errorf("create hunt execution: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.active[huntID] = cancel
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.active, huntID)
			o.mu.Unlock()
			cancel()
		}()
		o.runHunt(runCtx, sessionID, sess, module, huntID, runAI)
	}()

	return huntID, nil
}

// Cancel requests the hunt stop. The in-flight command (if any) is
// interrupted immediately via context cancellation; the run loop commits
// CANCELLED at the next step boundary (spec §4.4, §10 "scheduling model").
func (o *Orchestrator) Cancel(huntID string) {
	o.mu.Lock()
	cancel, ok := o.active[huntID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

func (o *Orchestrator) runHunt(runCtx context.Context, sessionID string, sess *session.Session, module models.HuntModule, huntID string, runAI bool) {
	bg := context.Background()
	snap := sess.Snapshot()
	assetID, analystID := snap.AssetID, snap.AnalystID

	publish(bg, o.bus, events.EventHuntStarted, sessionID, map[string]string{"hunt_id": huntID, "module_id": module.ID})
	o.recordTimeline(bg, assetID, sessionID, analystID, "hunt.started", map[string]any{
		"hunt_id": huntID, "module_id": module.ID, "module_name": module.Name,
	})

	if err := o.hunts.UpdateState(bg, huntID, models.HuntRunning); err != nil {
		slog.Warn("hunt state transition to RUNNING failed", "hunt_id", huntID, "error", err)
	}

	conn, creds, err := o.resolveConnection(sess)
	if err != nil {
		o.fail(bg, sessionID, assetID, analystID, huntID, module, err)
		return
	}
	policy := shellengine.SudoPolicy{Method: creds.SudoMethod}

	var observations []models.Observation
	for _, step := range module.Steps {
		select {
		case <-runCtx.Done():
			o.cancelHunt(bg, sessionID, huntID)
			return
		default:
		}

		obs := executeStep(runCtx, o.executor, o.bus, conn, policy, sessionID, huntID, step, creds)
		observations = append(observations, obs)
		if err := o.hunts.AppendObservation(bg, huntID, observations); err != nil {
			slog.Warn("hunt observation append failed", "hunt_id", huntID, "error", err)
		}

		if runCtx.Err() != nil {
			o.cancelHunt(bg, sessionID, huntID)
			return
		}
	}

	findingsCount := 0
	if runAI {
		findingsCount = o.runAIAnalysis(bg, sessionID, assetID, huntID, module, observations)
	}

	if err := o.hunts.UpdateState(bg, huntID, models.HuntCompleted); err != nil {
		slog.Warn("hunt state transition to COMPLETED failed", "hunt_id", huntID, "error", err)
	}
	publish(bg, o.bus, events.EventHuntCompleted, sessionID, map[string]any{"hunt_id": huntID, "findings_count": findingsCount})
	o.recordTimeline(bg, assetID, sessionID, analystID, "hunt.completed", map[string]any{
		"hunt_id": huntID, "module_id": module.ID, "findings_count": findingsCount,
	})
}

// resolveConnection snapshots the session's remote-shell connection and its
// credentials (spec §4.4 step 2), so a mid-hunt reconnect with different
// credentials never races this hunt's sudo decisions.
func (o *Orchestrator) resolveConnection(sess *session.Session) (*shellengine.Connection, models.CredentialBundle, error) {
	handle := sess.Shell()
	if handle == nil {
		return nil, models.CredentialBundle{}, errors.New("session has no active remote-shell connection")
	}
	conn, ok := handle.(*shellengine.Connection)
	if !ok {
		return nil, models.CredentialBundle{}, errors.New("session shell handle is not a remote-shell connection")
	}
	return conn, conn.Credentials(), nil
}

func (o *Orchestrator) fail(ctx context.Context, sessionID, assetID, analystID, huntID string, module models.HuntModule, cause error) {
	slog.Error("hunt failed", "hunt_id", huntID, "error", cause)
	if err := o.hunts.UpdateState(ctx, huntID, models.HuntFailed); err != nil {
		slog.Warn("hunt state transition to FAILED failed", "hunt_id", huntID, "error", err)
	}
	publish(ctx, o.bus, events.EventHuntFailed, sessionID, map[string]string{"hunt_id": huntID, "error": cause.Error()})
	o.recordTimeline(ctx, assetID, sessionID, analystID, "hunt.failed", map[string]any{
		"hunt_id": huntID, "module_id": module.ID, "error": cause.Error(),
	})
}

func (o *Orchestrator) cancelHunt(ctx context.Context, sessionID, huntID string) {
	if err := o.hunts.UpdateState(ctx, huntID, models.HuntCancelled); err != nil {
		slog.Warn("hunt state transition to CANCELLED failed", "hunt_id", huntID, "error", err)
	}
	publish(ctx, o.bus, events.EventHuntCancelled, sessionID, map[string]string{"hunt_id": huntID})
}

func (o *Orchestrator) recordTimeline(ctx context.Context, assetID, sessionID, analystID, eventType string, payload any) {
	if o.timeline == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("timeline payload marshal failed", "event_type", eventType, "error", err)
		return
	}
	err = o.timeline.Record(ctx, &models.TimelineEvent{
		ID:        uuid.New().String(),
		AssetID:   assetID,
		SessionID: sessionID,
		Type:      eventType,
		Payload:   data,
		AnalystID: analystID,
	})
	if err != nil {
		slog.Warn("timeline record failed", "event_type", eventType, "error", err)
	}
}

// runAIAnalysis streams the accumulated observations through the AI
// pipeline, persists every extracted finding, and fires enrichment for each
// one. AI failures are logged and never fail the hunt (spec §4.4 step 4).
func (o *Orchestrator) runAIAnalysis(ctx context.Context, sessionID, assetID, huntID string, module models.HuntModule, observations []models.Observation) int {
	if o.provider == nil {
		return 0
	}

	obsInputs := make([]ai.ObservationInput, 0, len(observations))
	for _, obs := range observations {
		input := ai.ObservationInput{StepID: obs.StepID, Command: obs.Command, ExitCode: obs.ExitCode}
		if obs.ExitCode == -1 {
			input.Error = obs.Stderr
		} else {
			input.Stdout, input.Stderr = obs.Stdout, obs.Stderr
		}
		obsInputs = append(obsInputs, input)
	}

	result, err := ai.Analyze(ctx, ai.AnalyzeParams{
		SessionID:    sessionID,
		HuntID:       huntID,
		ModuleName:   module.Name,
		Observations: obsInputs,
		Provider:     o.provider,
		Reports:      o.hunts,
		Bus:          o.bus,
	})
	if err != nil {
		slog.Error("AI analysis failed for hunt", "hunt_id", huntID, "error", err)
		return 0
	}

	count := 0
	for _, f := range result.Findings {
		finding := buildFinding(sessionID, assetID, huntID, f)
		persisted, err := o.findings.Upsert(ctx, &finding)
		if err != nil {
			slog.Error("finding persist failed", "hunt_id", huntID, "error", err)
			continue
		}
		count++

		publish(ctx, o.bus, events.EventFindingGenerated, sessionID, map[string]any{
			"finding_id": persisted.ID, "title": persisted.Title, "severity": persisted.Severity,
		})

		if o.enricher == nil || len(persisted.Indicators) == 0 {
			continue
		}
		inputs := make([]enrichment.IndicatorInput, 0, len(persisted.Indicators))
		for _, ind := range persisted.Indicators {
			inputs = append(inputs, enrichment.IndicatorInput{Type: string(ind.Type), Value: ind.Value})
		}
		go o.enricher.EnrichIndicators(context.Background(), sessionID, persisted.ID, inputs)
	}
	return count
}

// buildFinding converts the AI pipeline's raw schema into the persistence
// layer's Finding, attaching a STIX bundle and a structured remediation
// plan (spec §4.7, §4.9).
func buildFinding(sessionID, assetID, huntID string, f ai.Finding) models.Finding {
	stixBundle, err := json.Marshal(intel.BuildSTIXBundle(f))
	if err != nil {
		stixBundle = []byte("{}")
	}
	remediation, err := json.Marshal(intel.StructureRemediation(f))
	if err != nil {
		remediation = []byte("{}")
	}

	indicators := make([]models.Indicator, 0, len(f.Indicators))
	for _, ind := range f.Indicators {
		indicators = append(indicators, models.Indicator{Type: normalizeIndicatorType(ind.Type), Value: ind.Value})
	}

	return models.Finding{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		AssetID:      assetID,
		HuntID:       huntID,
		Title:        f.Title,
		Severity:     models.ParseSeverity(f.Severity),
		Confidence:   f.Confidence,
		ContentHash:  models.ContentHash(assetID, f.Title, f.TechniqueIDs),
		STIXBundle:   stixBundle,
		Remediation:  remediation,
		Status:       models.FindingOpen,
		TechniqueIDs: f.TechniqueIDs,
		Indicators:   indicators,
		Description:  f.Description,
		RawEvidence:  f.RawEvidence,
	}
}

// normalizeIndicatorType reconciles the AI schema's "file_path" literal
// with the persistence schema's "file" enum value — the one indicator type
// name that differs between the two.
func normalizeIndicatorType(t string) models.IndicatorType {
	if t == "file_path" {
		return models.IndicatorFile
	}
	return models.IndicatorType(t)
}
