package intel

import (
	"strings"

	"github.com/sentryhound/sentryhound/pkg/ai"
)

var immediateKeywords = []string{"remove", "delete", "kill", "disable", "revoke", "block", "stop"}
var longTermKeywords = []string{"implement", "deploy", "configure", "monitor", "review policy", "audit"}

// Remediation is the structured guidance derived from a finding's free-form
// remediation steps (spec §4.9).
type Remediation struct {
	ImmediateActions    []string `json:"immediate_actions"`
	ShortTermActions    []string `json:"short_term_actions"`
	LongTermActions     []string `json:"long_term_actions"`
	AllSteps            []string `json:"all_steps"`
	TechniqueReferences []string `json:"technique_references"`
	Severity            string   `json:"severity"`
}

// StructureRemediation classifies finding's remediation steps by keyword
// into immediate/short-term/long-term buckets (spec §4.9), grounded on the
// original's structure_remediation.
func StructureRemediation(finding ai.Finding) Remediation {
	steps := finding.RemediationSteps

	var immediate, shortTerm, longTerm []string
	for _, step := range steps {
		lower := strings.ToLower(step)
		switch {
		case containsAny(lower, immediateKeywords):
			immediate = append(immediate, step)
		case containsAny(lower, longTermKeywords):
			longTerm = append(longTerm, step)
		default:
			shortTerm = append(shortTerm, step)
		}
	}

	return Remediation{
		ImmediateActions:    immediate,
		ShortTermActions:    shortTerm,
		LongTermActions:     longTerm,
		AllSteps:            steps,
		TechniqueReferences: finding.TechniqueIDs,
		Severity:            finding.Severity,
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
