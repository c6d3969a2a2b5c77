package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentryhound/sentryhound/pkg/ai"
)

func TestStructureRemediation_ClassifiesStepsByKeyword(t *testing.T) {
	finding := ai.Finding{
		Severity:     "high",
		TechniqueIDs: []string{"T1053.005"},
		RemediationSteps: []string{
			"Kill the malicious process immediately",
			"Implement a monitoring alert for this cron pattern",
			"Notify the on-call analyst",
		},
	}

	r := StructureRemediation(finding)
	assert.Equal(t, []string{"Kill the malicious process immediately"}, r.ImmediateActions)
	assert.Equal(t, []string{"Implement a monitoring alert for this cron pattern"}, r.LongTermActions)
	assert.Equal(t, []string{"Notify the on-call analyst"}, r.ShortTermActions)
	assert.Equal(t, finding.RemediationSteps, r.AllSteps)
	assert.Equal(t, []string{"T1053.005"}, r.TechniqueReferences)
	assert.Equal(t, "high", r.Severity)
}

func TestStructureRemediation_EmptyStepsYieldsEmptyBuckets(t *testing.T) {
	r := StructureRemediation(ai.Finding{Severity: "info"})
	assert.Empty(t, r.ImmediateActions)
	assert.Empty(t, r.ShortTermActions)
	assert.Empty(t, r.LongTermActions)
	assert.Empty(t, r.AllSteps)
}
