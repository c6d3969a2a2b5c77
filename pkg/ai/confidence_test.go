package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeConfidenceString_KnownWords(t *testing.T) {
	assert.Equal(t, 0.80, NormalizeConfidenceString("high"))
	assert.Equal(t, 0.95, NormalizeConfidenceString("Critical"))
	assert.Equal(t, 0.35, NormalizeConfidenceString(" low "))
}

func TestNormalizeConfidenceString_UnknownDefaultsToHalf(t *testing.T) {
	assert.Equal(t, 0.50, NormalizeConfidenceString("unknowable"))
}

func TestNormalizeConfidenceValue_TreatsOverOneAsPercentage(t *testing.T) {
	assert.InDelta(t, 0.85, NormalizeConfidenceValue(85), 0.0001)
}

func TestNormalizeConfidenceValue_ClampsToUnitRange(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeConfidenceValue(-5))
	assert.Equal(t, 1.0, NormalizeConfidenceValue(250))
}

func TestParseConfidence_NumericString(t *testing.T) {
	assert.InDelta(t, 0.75, ParseConfidence("0.75"), 0.0001)
}

func TestParseConfidence_PercentString(t *testing.T) {
	assert.InDelta(t, 0.9, ParseConfidence("90%"), 0.0001)
}

func TestParseConfidence_WordFallback(t *testing.T) {
	assert.Equal(t, 0.80, ParseConfidence("high"))
}

func TestParseConfidence_EmptyDefaultsToHalf(t *testing.T) {
	assert.Equal(t, 0.5, ParseConfidence(""))
}

func TestSeverityConfidenceFloor_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, 0.80, SeverityConfidenceFloor("critical"))
	assert.Equal(t, 0.25, SeverityConfidenceFloor("nonsense"))
}

func TestEffectiveConfidence_FloorsLowConfidenceCritical(t *testing.T) {
	assert.Equal(t, 0.80, EffectiveConfidence(0.1, "critical"))
}

func TestEffectiveConfidence_KeepsHighConfidenceAboveFloor(t *testing.T) {
	assert.InDelta(t, 0.92, EffectiveConfidence(0.92, "low"), 0.0001)
}
