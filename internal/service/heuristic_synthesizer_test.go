package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreport-analyzer/internal/domain"
)

func TestSynthesize_CriticalGlucose(t *testing.T) {
	result := NewHeuristicSynthesizer().Synthesize("Glucose: 250 mg/dL")

	require.Len(t, result.Findings, 1)
	assert.Equal(t, domain.Finding{
		Label:  "glucose",
		Value:  "250 mg/dL",
		Status: domain.StatusCritical,
		Note:   "Reference: 70-99 mg/dL - Significantly abnormal",
	}, result.Findings[0])

	assert.Equal(t, "Your medical report contains 1 measurable values and references to: glucose. Some values require immediate attention. Please review the detailed analysis below and consult your healthcare provider.", result.Summary)
	assert.Equal(t, []string{"Increased thirst or frequent urination", "Fatigue or blurred vision"}, result.Symptoms)
	assert.Equal(t, criticalFollowUp, result.Recommendations[2])
	assert.True(t, result.HasCritical())
}

func TestSynthesize_NormalGlucose(t *testing.T) {
	result := NewHeuristicSynthesizer().Synthesize("Glucose: 92 mg/dL")

	require.Len(t, result.Findings, 1)
	assert.Equal(t, domain.StatusNormal, result.Findings[0].Status)
	assert.Equal(t, "Reference: 70-99 mg/dL", result.Findings[0].Note)
	assert.Contains(t, result.Summary, "Most values appear within normal ranges.")
	assert.Equal(t, defaultSymptoms, result.Symptoms)
	assert.Equal(t, routineFollowUp, result.Recommendations[2])
}

func TestSynthesize_AdditiveSymptoms(t *testing.T) {
	result := NewHeuristicSynthesizer().Synthesize("TSH 5.5, hemoglobin 10.5 g/dL, glucose 85")

	assert.Equal(t, []string{
		"Fatigue or weakness",
		"Shortness of breath",
		"Pale skin",
		"Unexplained weight changes",
		"Mood changes or fatigue",
		"Temperature sensitivity",
	}, result.Symptoms)
	assert.False(t, result.HasCritical())
}

func TestSynthesize_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   \n\t "} {
		result := NewHeuristicSynthesizer().Synthesize(text)

		assert.Equal(t, genericSummary, result.Summary)
		require.Len(t, result.Findings, 1)
		assert.Equal(t, GenericTerm, result.Findings[0].Label)
		assert.Equal(t, domain.StatusNormal, result.Findings[0].Status)
		assert.Equal(t, defaultSymptoms, result.Symptoms)
		assert.Len(t, result.Prevention, 7)
		assert.Len(t, result.FutureSuggestions, 5)
		assert.Len(t, result.Recommendations, 5)
		assert.Equal(t, Disclaimer, result.Disclaimer)
	}
}

func TestSynthesize_TermFindingsWithoutValues(t *testing.T) {
	text := "Lipid panel: cholesterol, LDL, HDL and triglycerides reviewed. Creatinine and eGFR pending. TSH ordered."
	result := NewHeuristicSynthesizer().Synthesize(text)

	require.Len(t, result.Findings, 6)
	assert.Equal(t, "cholesterol", result.Findings[0].Label)
	assert.Equal(t, domain.StatusAttention, result.Findings[1].Status)
	assert.Equal(t, genericSummary, result.Summary)
}

func TestSynthesize_DigitsWithoutValues(t *testing.T) {
	result := NewHeuristicSynthesizer().Synthesize("Visit on 12 March, ferritin discussed")

	assert.True(t, strings.HasPrefix(result.Summary, "Your medical report contains 0 measurable values and references to: ferritin."))
}

func TestSynthesize_SummaryListsAtMostFiveTerms(t *testing.T) {
	text := "glucose 92, cholesterol 180, LDL 90, HDL 50, triglycerides 120, hemoglobin 14"
	result := NewHeuristicSynthesizer().Synthesize(text)

	assert.Contains(t, result.Summary, "contains 6 measurable values")
	assert.Contains(t, result.Summary, "references to: glucose, cholesterol, LDL, HDL, triglycerides.")
}

func TestSynthesize_Idempotent(t *testing.T) {
	h := NewHeuristicSynthesizer()
	text := "Glucose: 250 mg/dL, TSH 0.1, WBC 7"

	assert.Equal(t, h.Synthesize(text), h.Synthesize(text))
}

func TestSynthesize_ThreeTierInvariant(t *testing.T) {
	texts := []string{
		"",
		"Glucose: 250 mg/dL",
		"platelet 90, RBC 4.8, diastolic 95",
		"creatinine reviewed",
	}
	for _, text := range texts {
		for _, f := range NewHeuristicSynthesizer().Synthesize(text).Findings {
			assert.True(t, f.Status.IsValid(), "%q produced status %q", text, f.Status)
		}
	}
}
