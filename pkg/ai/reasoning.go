package ai

import (
	"regexp"
	"strings"
)

// ReasoningState is the phase of an in-progress streamed analysis (spec
// §4.5), echoed on every ai.reasoning_chunk event.
type ReasoningState string

const (
	StateAnalyzing  ReasoningState = "analyzing"
	StateConcluding ReasoningState = "concluding"
	StateGenerating ReasoningState = "generating"
)

var concludingMarkers = []string{
	"## remediation", "remediation summary", "in conclusion", "to summarize",
	"based on the evidence", "findings:", "## findings", "the following indicators",
	"## key findings", "## risk assessment",
}

// Assembler accumulates streamed chunks and tracks the reasoning state
// transition (spec §4.5: analyzing → concluding → generating).
type Assembler struct {
	builder strings.Builder
	state   ReasoningState
}

// NewAssembler constructs an Assembler starting in the analyzing state.
func NewAssembler() *Assembler {
	return &Assembler{state: StateAnalyzing}
}

// AddChunk appends chunk to the assembled text and returns the (possibly
// newly transitioned) reasoning state.
func (a *Assembler) AddChunk(chunk string) ReasoningState {
	a.builder.WriteString(chunk)
	assembled := strings.ToLower(a.builder.String())

	switch a.state {
	case StateAnalyzing:
		for _, marker := range concludingMarkers {
			if strings.Contains(assembled, marker) {
				a.state = StateConcluding
				break
			}
		}
	case StateConcluding:
		if strings.Contains(a.builder.String(), "```json") || strings.Contains(a.builder.String(), `"findings"`) {
			a.state = StateGenerating
		}
	}
	return a.state
}

// AssembledText returns everything accumulated so far.
func (a *Assembler) AssembledText() string {
	return a.builder.String()
}

// State returns the current reasoning state.
func (a *Assembler) State() ReasoningState {
	return a.state
}

// Reset clears the assembler back to its initial state.
func (a *Assembler) Reset() {
	a.builder.Reset()
	a.state = StateAnalyzing
}

// ExtractJSONBlock locates the *last* ```json fence in the assembled text
// (so the report's own embedded examples don't get picked up), repairing
// truncated JSON if the fence was never closed (spec §4.5). With no fence it
// falls back to the span from the last `{"` (or `{` plus newline) to the last
// `}`; for a nested object that span starts at the last inner object, not at
// the outermost one.
func ExtractJSONBlock(text string) string {
	const fenceOpen = "```json"
	start := strings.LastIndex(text, fenceOpen)
	if start == -1 {
		return extractBareJSONObject(text)
	}

	start += len(fenceOpen)
	rest := text[start:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return repairTruncatedJSON(strings.TrimSpace(rest))
	}
	return strings.TrimSpace(rest[:end])
}

func extractBareJSONObject(text string) string {
	start := strings.LastIndex(text, `{"`)
	if start == -1 {
		start = strings.LastIndex(text, "{\n")
	}
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return ""
}

// repairTruncatedJSON applies the best-effort heuristic repair of a JSON
// blob cut off by a token limit: close any unterminated string, strip a
// trailing comma, and append the right number of closing brackets/braces.
func repairTruncatedJSON(raw string) string {
	if strings.Count(raw, `"`)%2 != 0 {
		raw += `"`
	}

	// closers holds the still-open brackets/braces, innermost first.
	closers := ""
	for _, c := range raw {
		switch c {
		case '{':
			closers = "}" + closers
		case '[':
			closers = "]" + closers
		case '}', ']':
			if closers != "" {
				closers = closers[1:]
			}
		}
	}

	raw = strings.TrimRight(raw, " \t\n\r")
	raw = strings.TrimSuffix(raw, ",")
	return raw + closers
}

var (
	sectionHeadingRe = regexp.MustCompile(`(?m)^###\s+`)
	fieldPattern     = func(label string) *regexp.Regexp {
		return regexp.MustCompile(`(?im)\*\*` + regexp.QuoteMeta(label) + `\*\*\s*:\s*(.+)`)
	}
	techniqueIDRe = regexp.MustCompile(`T\d{4}(?:\.\d{3})?`)
	// remediationBlockRe captures the Remediation field up to the next
	// labelled field, the next heading, or the end of the section, so a
	// multi-line step list is kept whole.
	remediationBlockRe = regexp.MustCompile(`(?is)\*\*Remediation\*\*\s*:\s*(.+?)(?:\n[ \t]*(?:[-*][ \t]*)?\*\*[^*\n]+\*\*\s*:|\n#|\z)`)
)

var skippedFindingTitles = map[string]bool{
	"remediation summary": true,
	"risk assessment":     true,
	"executive summary":   true,
}

var severityValues = map[string]bool{
	"critical": true, "high": true, "medium": true, "low": true, "info": true,
}

// ExtractFindingsFromMarkdown is the fallback parser used when the JSON
// block is missing, unparseable, or empty: it splits on "### " headings and
// pulls out the labelled fields (spec §4.5).
func ExtractFindingsFromMarkdown(text string) []Finding {
	sections := sectionHeadingRe.Split(text, -1)
	if len(sections) <= 1 {
		return nil
	}

	var findings []Finding
	for _, section := range sections[1:] {
		lines := strings.Split(strings.TrimSpace(section), "\n")
		if len(lines) == 0 {
			continue
		}

		title := strings.TrimSpace(strings.Trim(lines[0], "#"))
		if skippedFindingTitles[strings.ToLower(title)] {
			continue
		}

		body := strings.Join(lines[1:], "\n")

		severity := strings.ToLower(strings.TrimSpace(extractField(body, "Severity")))
		if !severityValues[severity] {
			severity = "medium"
		}

		confidence := ParseConfidence(extractField(body, "Confidence"))

		var techniqueIDs []string
		if mitre := extractField(body, "MITRE ATT&CK"); mitre != "" {
			techniqueIDs = techniqueIDRe.FindAllString(mitre, -1)
		}

		description := extractField(body, "Description")
		if description == "" {
			description = title
		}

		remediationRaw := ""
		if m := remediationBlockRe.FindStringSubmatch(body); len(m) > 1 {
			remediationRaw = strings.TrimSpace(m[1])
		}
		remediationSteps := splitRemediationSteps(remediationRaw)

		findings = append(findings, Finding{
			Title:            title,
			Severity:         severity,
			Confidence:       confidence,
			Description:      description,
			TechniqueIDs:     techniqueIDs,
			RemediationSteps: remediationSteps,
		})
	}
	return findings
}

func extractField(body, label string) string {
	m := fieldPattern(label).FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func splitRemediationSteps(raw string) []string {
	var steps []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		steps = append(steps, strings.TrimSpace(line))
	}
	if len(steps) == 0 && strings.TrimSpace(raw) != "" {
		steps = []string{strings.TrimSpace(raw)}
	}
	return steps
}
