package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/events"
)

type fakeProvider struct {
	chunks []string
	err    error
}

func (f *fakeProvider) StreamCompletion(_ context.Context, _, _ string, _ int, onChunk func(string) error) error {
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return f.err
}

type fakeReports struct {
	lastHuntID string
	lastText   string
}

func (f *fakeReports) SetReportText(_ context.Context, id, reportText string) error {
	f.lastHuntID = id
	f.lastText = reportText
	return nil
}

type collectingBus struct {
	events []events.Event
}

func (b *collectingBus) Publish(_ context.Context, ev events.Event) {
	b.events = append(b.events, ev)
}

func TestAnalyze_ParsesJSONFindingsAndAppliesConfidenceFloor(t *testing.T) {
	report := "# Executive Summary\nAll clear-ish.\n\n```json\n" +
		`{"summary":"one finding","overall_risk":"high","findings":[{"title":"Reverse shell","severity":"critical","confidence":0.2,"description":"nc listener","technique_ids":["T1059"],"indicators":[{"type":"ip","value":"10.0.0.5"}],"remediation_steps":["Kill the process"],"raw_evidence":"nc -lvp 4444"}]}` +
		"\n```"

	provider := &fakeProvider{chunks: []string{report}}
	reports := &fakeReports{}
	bus := &collectingBus{}

	result, err := Analyze(context.Background(), AnalyzeParams{
		SessionID:    "sess-1",
		HuntID:       "hunt-1",
		ModuleName:   "persistence-check",
		Observations: []ObservationInput{{StepID: "s1", Command: "crontab -l", ExitCode: 0, Stdout: "no output"}},
		Provider:     provider,
		Reports:      reports,
		Bus:          bus,
	})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Reverse shell", result.Findings[0].Title)
	// severity "critical" floors confidence at 0.80 even though the model said 0.2
	assert.Equal(t, 0.80, result.Findings[0].Confidence)
	assert.Equal(t, "hunt-1", reports.lastHuntID)
	assert.Contains(t, reports.lastText, "Reverse shell")
}

func TestAnalyze_FallsBackToMarkdownWhenNoJSONBlock(t *testing.T) {
	report := "# Executive Summary\nSomething odd.\n\n### Suspicious Binary\n- **Severity**: high\n- **Confidence**: 70%\n- **Description**: odd binary in /tmp\n"
	provider := &fakeProvider{chunks: []string{report}}

	result, err := Analyze(context.Background(), AnalyzeParams{
		SessionID:    "sess-2",
		HuntID:       "hunt-2",
		ModuleName:   "binary-check",
		Observations: nil,
		Provider:     provider,
	})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Suspicious Binary", result.Findings[0].Title)
}

func TestAnalyze_StreamErrorEmitsAIErrorAndReturnsError(t *testing.T) {
	provider := &fakeProvider{chunks: []string{"partial"}, err: errors.New("connection reset")}
	bus := &collectingBus{}

	_, err := Analyze(context.Background(), AnalyzeParams{
		SessionID: "sess-3",
		HuntID:    "hunt-3",
		Provider:  provider,
		Bus:       bus,
	})
	require.Error(t, err)

	var sawError bool
	for _, ev := range bus.events {
		if ev.Type == events.EventAIError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestAnalyze_NoFindingsReturnsInfoRisk(t *testing.T) {
	provider := &fakeProvider{chunks: []string{"Nothing suspicious found anywhere."}}

	result, err := Analyze(context.Background(), AnalyzeParams{
		SessionID: "sess-4",
		HuntID:    "hunt-4",
		Provider:  provider,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, "info", result.OverallRisk)
}

func TestBuildUserPrompt_IncludesStepCommandAndTruncatesStdout(t *testing.T) {
	longStdout := strings.Repeat("a", stdoutPerStepLimit+500)
	prompt := buildUserPrompt("module-x", []ObservationInput{
		{StepID: "step-1", Command: "ps aux", ExitCode: 0, Stdout: longStdout},
	})
	assert.Contains(t, prompt, "module-x")
	assert.Contains(t, prompt, "ps aux")
	assert.LessOrEqual(t, len(prompt), len(longStdout)) // truncated, not the full 500 extra bytes
}

func TestBuildUserPrompt_StepWithErrorSkipsOutputSections(t *testing.T) {
	prompt := buildUserPrompt("module-y", []ObservationInput{
		{StepID: "step-1", Command: "bad-cmd", Error: "command not found", Stdout: "should not appear"}},
	)
	assert.Contains(t, prompt, "command not found")
	assert.NotContains(t, prompt, "should not appear")
}
