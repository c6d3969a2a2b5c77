package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sentryhound/sentryhound/pkg/events"
)

// MaxTokens bounds the completion requested from the provider (spec §4.5).
const MaxTokens = 16384

// MaxResponseLength discards (truncates) any assembled response larger than
// this many bytes (spec §4.5: "Discards ... any assembled response larger
// than 64 KB").
const MaxResponseLength = 65536

// ChunkBatchInterval is the minimum spacing between ai.reasoning_chunk
// re-emissions (spec §4.5: "re-emits every ≥150 ms").
const ChunkBatchInterval = 150 * time.Millisecond

const (
	stdoutPerStepLimit = 3000
	stderrPerStepLimit = 500
)

// ReportPersister is the subset of database.HuntExecutionRepository the
// engine needs to write the assembled report text independently of the
// caller's own transaction (spec §4.5: "persisted ... regardless of whether
// structured extraction succeeds").
type ReportPersister interface {
	SetReportText(ctx context.Context, id, reportText string) error
}

// Publisher is the subset of events.Bus the engine needs.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// AnalyzeParams bundles everything Analyze needs for one hunt's analysis
// pass.
type AnalyzeParams struct {
	SessionID    string
	HuntID       string
	ModuleName   string
	Observations []ObservationInput
	Provider     Provider
	Reports      ReportPersister
	Bus          Publisher
}

// Analyze streams one AI analysis pass over a hunt's observations: builds
// the prompt, streams and batches reasoning chunks onto the event bus,
// persists the full report text independently of structured parsing, then
// extracts a structured AnalysisResult (JSON-first, Markdown fallback) with
// severity-floored confidence applied to every finding (spec §4.5).
func Analyze(ctx context.Context, p AnalyzeParams) (AnalysisResult, error) {
	assembler := NewAssembler()
	systemPrompt := buildSystemPrompt()
	userPrompt := buildUserPrompt(p.ModuleName, p.Observations)

	var fullText strings.Builder
	var chunkBuffer strings.Builder
	lastFlush := time.Now()
	currentState := StateAnalyzing

	flush := func() {
		if chunkBuffer.Len() == 0 {
			return
		}
		batched := chunkBuffer.String()
		chunkBuffer.Reset()
		lastFlush = time.Now()
		if p.Bus != nil {
			p.Bus.Publish(ctx, events.NewEvent(events.EventAIReasoningChunk, p.SessionID, map[string]any{
				"hunt_id": p.HuntID,
				"chunk":   batched,
				"state":   string(currentState),
			}))
		}
	}

	streamErr := p.Provider.StreamCompletion(ctx, systemPrompt, userPrompt, MaxTokens, func(chunk string) error {
		currentState = assembler.AddChunk(chunk)
		fullText.WriteString(chunk)
		chunkBuffer.WriteString(chunk)

		if time.Since(lastFlush) >= ChunkBatchInterval {
			flush()
		}
		return nil
	})

	flush() // residual buffer, even on error

	if streamErr != nil {
		if p.Bus != nil {
			p.Bus.Publish(ctx, events.NewEvent(events.EventAIError, p.SessionID, map[string]any{
				"hunt_id":   p.HuntID,
				"error":     streamErr.Error(),
				"retryable": IsRetryable(streamErr),
			}))
		}
		return AnalysisResult{}, fmt.Errorf("stream completion: %w", streamErr)
	}

	text := fullText.String()
	if len(text) > MaxResponseLength {
		slog.Warn("ai response exceeded max length, truncating", "hunt_id", p.HuntID, "bytes", len(text))
		text = text[:MaxResponseLength]
	}

	if p.Reports != nil {
		if err := p.Reports.SetReportText(ctx, p.HuntID, text); err != nil {
			slog.Warn("failed to persist ai report text", "hunt_id", p.HuntID, "error", err)
		}
	}

	result := extractStructuredResult(text, p.HuntID)
	for i := range result.Findings {
		result.Findings[i].Confidence = EffectiveConfidence(result.Findings[i].Confidence, result.Findings[i].Severity)
	}
	return result, nil
}

// extractStructuredResult tries the JSON block first, falling back to the
// Markdown-section parser when the JSON is absent, unparseable, or empty
// (spec §4.5).
func extractStructuredResult(text, huntID string) AnalysisResult {
	if block := ExtractJSONBlock(text); block != "" {
		var result AnalysisResult
		if err := json.Unmarshal([]byte(block), &result); err == nil {
			if len(result.Findings) > 0 {
				return result
			}
		} else {
			slog.Warn("failed to parse ai structured json", "hunt_id", huntID, "error", err)
		}
	}

	findings := ExtractFindingsFromMarkdown(text)
	if len(findings) == 0 {
		return AnalysisResult{OverallRisk: "info"}
	}

	overallRisk := findings[0].Severity
	return AnalysisResult{
		Summary:     summarize(text),
		Findings:    findings,
		OverallRisk: overallRisk,
	}
}

func summarize(text string) string {
	const maxLen = 500
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

func buildSystemPrompt() string {
	return `You are an expert threat hunter and incident responder analyzing SSH command output from a Linux host.

Your task:
1. Analyze the provided command outputs for signs of compromise, persistence, lateral movement, or other threats
2. Identify specific indicators of compromise (IoCs)
3. Produce a clear, readable Markdown executive report
4. Provide actionable remediation steps

FORMAT YOUR ENTIRE RESPONSE AS A MARKDOWN DOCUMENT with the following structure:

# Executive Summary
Brief overview of the analysis results, overall risk level, and key takeaways.

## Risk Assessment
State the overall risk level (Critical / High / Medium / Low / Info) and justify it.

## Key Findings
For EACH finding, create a subsection:

### [Finding Title]
- **Severity**: critical|high|medium|low|info
- **Confidence**: percentage
- **MITRE ATT&CK**: technique IDs (e.g. T1053.005)
- **Description**: Detailed description of the finding
- **Indicators**: List specific IoCs found (IPs, domains, hashes, file paths, users, processes)
- **Evidence**: Relevant output snippets in code blocks
- **Remediation**: Actionable steps to address the finding

## Remediation Summary
Prioritized list of actions to take.

---

After your Markdown report, append a structured JSON block for machine parsing. Wrap it in ` + "```json```" + ` fences:

` + "```json" + `
{
  "summary": "Brief executive summary",
  "overall_risk": "critical|high|medium|low|info",
  "findings": [
    {
      "title": "Short descriptive title",
      "severity": "critical|high|medium|low|info",
      "confidence": 0.0-1.0,
      "description": "Detailed description of the finding",
      "technique_ids": ["T1053.005"],
      "indicators": [
        {"type": "ip|domain|hash|file_path|user|process", "value": "...", "context": "..."}
      ],
      "remediation_steps": ["Step 1...", "Step 2..."],
      "raw_evidence": "Relevant output snippet"
    }
  ]
}
` + "```" + `

If nothing suspicious is found, state that clearly in the report and return an empty findings array with overall_risk "info".`
}

func buildUserPrompt(moduleName string, observations []ObservationInput) string {
	var b strings.Builder
	b.WriteString("# Hunt Module: ")
	b.WriteString(moduleName)
	b.WriteString("\n")

	for _, obs := range observations {
		b.WriteString("\n## Step: ")
		b.WriteString(obs.StepID)
		b.WriteString("\n**Command**: `")
		b.WriteString(obs.Command)
		b.WriteString("`\n**Exit Code**: ")
		b.WriteString(strconv.Itoa(obs.ExitCode))

		if obs.Error != "" {
			b.WriteString("\n**Error**: ")
			b.WriteString(obs.Error)
			continue
		}

		if obs.Stdout != "" {
			stdout := obs.Stdout
			if len(stdout) > stdoutPerStepLimit {
				stdout = stdout[:stdoutPerStepLimit]
			}
			b.WriteString("\n**stdout**:\n```\n")
			b.WriteString(stdout)
			b.WriteString("\n```")
		}

		if obs.Stderr != "" {
			stderr := obs.Stderr
			if len(stderr) > stderrPerStepLimit {
				stderr = stderr[:stderrPerStepLimit]
			}
			b.WriteString("\n**stderr**:\n```\n")
			b.WriteString(stderr)
			b.WriteString("\n```")
		}
	}

	return b.String()
}
