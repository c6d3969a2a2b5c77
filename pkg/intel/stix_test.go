package intel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryhound/sentryhound/pkg/ai"
)

func TestBuildSTIXBundle_IncludesIndicatorAttackPatternsRelationshipsAndReport(t *testing.T) {
	finding := ai.Finding{
		Title:        "Reverse shell via nc",
		Description:  "Listener bound on 4444",
		Severity:     "critical",
		Confidence:   0.9,
		TechniqueIDs: []string{"T1059", "T1071.001"},
		Indicators: []ai.Indicator{
			{Type: "ip", Value: "10.0.0.5"},
			{Type: "hash", Value: strings.Repeat("a", 64)},
		},
	}

	bundle := BuildSTIXBundle(finding)

	assert.Equal(t, "bundle", bundle.Type)
	assert.True(t, strings.HasPrefix(bundle.ID, "bundle--"))

	var indicatorID string
	var attackPatternCount, relationshipCount, reportCount int
	for _, obj := range bundle.Objects {
		switch obj["type"] {
		case "indicator":
			indicatorID = obj["id"].(string)
			pattern := obj["pattern"].(string)
			assert.Contains(t, pattern, "ipv4-addr:value = '10.0.0.5'")
			assert.Contains(t, pattern, "file:hashes.SHA-256")
		case "attack-pattern":
			attackPatternCount++
		case "relationship":
			relationshipCount++
			assert.Equal(t, "indicates", obj["relationship_type"])
			assert.Equal(t, indicatorID, obj["source_ref"])
		case "report":
			reportCount++
			refs := obj["object_refs"].([]string)
			assert.GreaterOrEqual(t, len(refs), 5) // indicator + 2 attack-patterns + 2 relationships
		}
	}

	require.NotEmpty(t, indicatorID)
	assert.Equal(t, 2, attackPatternCount)
	assert.Equal(t, 2, relationshipCount)
	assert.Equal(t, 1, reportCount)
}

func TestBuildSTIXBundle_NoIndicatorsUsesPlaceholderPattern(t *testing.T) {
	finding := ai.Finding{Title: "Unknown anomaly", Severity: "low"}
	bundle := BuildSTIXBundle(finding)

	for _, obj := range bundle.Objects {
		if obj["type"] == "indicator" {
			assert.Equal(t, "[ipv4-addr:value = '0.0.0.0']", obj["pattern"])
			return
		}
	}
	t.Fatal("no indicator object found in bundle")
}

func TestBuildSTIXBundle_DomainAndFilePathPatterns(t *testing.T) {
	finding := ai.Finding{
		Indicators: []ai.Indicator{
			{Type: "domain", Value: "evil.example"},
			{Type: "file_path", Value: "/tmp/.hidden/backdoor"},
		},
	}
	bundle := BuildSTIXBundle(finding)
	for _, obj := range bundle.Objects {
		if obj["type"] == "indicator" {
			pattern := obj["pattern"].(string)
			assert.Contains(t, pattern, "domain-name:value = 'evil.example'")
			assert.Contains(t, pattern, "file:name = '/tmp/.hidden/backdoor'")
		}
	}
}
