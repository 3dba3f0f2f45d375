package service

import (
	"fmt"
	"strings"

	"github.com/medreport-analyzer/internal/domain"
)

// Disclaimer accompanies every locally synthesized result.
const Disclaimer = "This AI-generated analysis is for informational purposes only and does not replace professional medical advice, diagnosis, or treatment. Always seek the advice of your physician or qualified healthcare provider with any questions about your medical condition or test results."

const (
	maxSummaryTerms = 5
	maxTermFindings = 6
)

const genericSummary = "We've processed your medical document. The analysis below provides a structured overview of the findings. For precise interpretation of values and clinical significance, please share with your healthcare provider."

// symptomRule fires when any non-normal finding carries the marker label.
type symptomRule struct {
	marker   string
	symptoms []string
}

var symptomRules = []symptomRule{
	{marker: "glucose", symptoms: []string{
		"Increased thirst or frequent urination",
		"Fatigue or blurred vision",
	}},
	{marker: "hemoglobin", symptoms: []string{
		"Fatigue or weakness",
		"Shortness of breath",
		"Pale skin",
	}},
	{marker: "TSH", symptoms: []string{
		"Unexplained weight changes",
		"Mood changes or fatigue",
		"Temperature sensitivity",
	}},
}

var defaultSymptoms = []string{
	"Monitor for any new or unusual symptoms",
	"Maintain regular health check-ups",
}

var preventionSteps = []string{
	"Maintain a balanced diet rich in fruits, vegetables, whole grains, and lean protein.",
	"Limit processed foods, added sugars, and saturated fats.",
	"Engage in at least 150 minutes of moderate physical activity per week.",
	"Stay hydrated with adequate water intake throughout the day.",
	"Ensure 7-9 hours of quality sleep per night.",
	"Avoid smoking and limit alcohol consumption.",
	"Manage stress through relaxation techniques or mindfulness practices.",
}

var futureSuggestions = []string{
	"Schedule follow-up tests as recommended by your healthcare provider.",
	"Keep a personal health log of lab results, medications, and symptoms.",
	"Share this report with all your healthcare providers for coordinated care.",
	"Consider discussing lifestyle modifications based on these results.",
	"Maintain regular health screenings even when feeling well.",
}

const (
	criticalFollowUp = "Schedule an appointment with your healthcare provider soon to discuss critical values."
	routineFollowUp  = "Follow up on any abnormal values as recommended by your doctor."
)

// HeuristicSynthesizer builds an analysis from local pattern matching alone.
// It holds no state and is safe for concurrent use.
type HeuristicSynthesizer struct{}

// NewHeuristicSynthesizer creates a heuristic synthesizer
func NewHeuristicSynthesizer() *HeuristicSynthesizer {
	return &HeuristicSynthesizer{}
}

// Synthesize produces a complete result for any input, including empty text.
func (h *HeuristicSynthesizer) Synthesize(text string) *domain.AnalysisResult {
	valueFindings := ClassifyAll(ExtractValues(text))
	terms := SpotTerms(text)

	critical := false
	for _, f := range valueFindings {
		if f.Status == domain.StatusCritical {
			critical = true
			break
		}
	}

	findings := valueFindings
	if len(findings) == 0 {
		findings = TermFindings(terms, maxTermFindings)
	}

	return &domain.AnalysisResult{
		Summary:           buildSummary(text, len(valueFindings), terms, critical),
		Findings:          findings,
		Symptoms:          matchSymptoms(valueFindings),
		Prevention:        append([]string(nil), preventionSteps...),
		FutureSuggestions: append([]string(nil), futureSuggestions...),
		Recommendations:   buildRecommendations(critical),
		Disclaimer:        Disclaimer,
	}
}

func buildSummary(text string, valueCount int, terms []string, critical bool) string {
	if !strings.ContainsAny(text, "0123456789") {
		return genericSummary
	}

	shown := terms
	if len(shown) > maxSummaryTerms {
		shown = shown[:maxSummaryTerms]
	}

	outlook := "Most values appear within normal ranges."
	if critical {
		outlook = "Some values require immediate attention."
	}

	return fmt.Sprintf("Your medical report contains %d measurable values and references to: %s. %s Please review the detailed analysis below and consult your healthcare provider.",
		valueCount, strings.Join(shown, ", "), outlook)
}

func matchSymptoms(findings []domain.Finding) []string {
	symptoms := []string{}
	for _, rule := range symptomRules {
		for _, f := range findings {
			if f.Label == rule.marker && f.Status != domain.StatusNormal {
				symptoms = append(symptoms, rule.symptoms...)
				break
			}
		}
	}
	if len(symptoms) == 0 {
		return append(symptoms, defaultSymptoms...)
	}
	return symptoms
}

func buildRecommendations(critical bool) []string {
	followUp := routineFollowUp
	if critical {
		followUp = criticalFollowUp
	}
	return []string{
		"Discuss these results with your healthcare provider for personalized interpretation.",
		"Keep a copy of this report for your personal health records.",
		followUp,
		"Inform your doctor of any new symptoms or health concerns.",
		"Consider bringing a list of questions to your next medical appointment.",
	}
}
