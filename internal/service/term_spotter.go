package service

import (
	"strings"

	"github.com/medreport-analyzer/internal/domain"
)

// GenericTerm stands in when no vocabulary term appears in the text.
const GenericTerm = "General health markers"

const termFindingNote = "Value and range should be verified with your doctor."

// medicalVocabulary is checked in order; the order drives output order.
var medicalVocabulary = []string{
	"glucose", "HbA1c", "cholesterol", "LDL", "HDL", "triglycerides",
	"creatinine", "eGFR", "hemoglobin", "RBC", "WBC", "platelet", "TSH", "T3", "T4",
	"blood pressure", "BMI", "bilirubin", "ALT", "AST", "ALP", "urea", "BUN",
	"sodium", "potassium", "calcium", "vitamin D", "vitamin B12", "ferritin",
	"ESR", "CRP", "Hb", "RBC count", "platelets", "hematocrit", "MCV", "MCH",
	"MCHC", "RDW", "neutrophils", "lymphocytes", "monocytes", "eosinophils",
	"basophils", "immature granulocytes", "absolute neutrophils", "uric acid",
	"phosphorus", "magnesium", "chloride", "total protein", "albumin", "globulin",
	"A/G ratio", "iron", "TIBC", "transferrin", "folate", "homocysteine",
	"lipase", "amylase", "CK", "LDH", "GGT", "urine specific gravity", "urine pH",
	"urine protein", "urine glucose", "urine ketones", "urine blood",
	"urine leukocytes", "urine nitrite", "urine bilirubin", "urine urobilinogen",
	"microalbumin", "creatinine clearance", "BUN/creatinine ratio",
}

var lowerVocabulary = func() []string {
	out := make([]string, len(medicalVocabulary))
	for i, term := range medicalVocabulary {
		out[i] = strings.ToLower(term)
	}
	return out
}()

// termStatusCycle is the placeholder status rotation for term findings.
var termStatusCycle = []domain.Status{
	domain.StatusNormal,
	domain.StatusAttention,
	domain.StatusNormal,
}

// SpotTerms returns the vocabulary terms mentioned in text, matched as
// case-insensitive substrings. Short terms can match inside longer words.
func SpotTerms(text string) []string {
	lower := strings.ToLower(text)

	terms := []string{}
	for i, term := range lowerVocabulary {
		if strings.Contains(lower, term) {
			terms = append(terms, medicalVocabulary[i])
		}
	}
	if len(terms) == 0 {
		return []string{GenericTerm}
	}
	return terms
}

// TermFindings builds placeholder findings for the first limit terms.
func TermFindings(terms []string, limit int) []domain.Finding {
	if limit > len(terms) {
		limit = len(terms)
	}
	if limit < 0 {
		limit = 0
	}

	findings := make([]domain.Finding, 0, limit)
	for i := 0; i < limit; i++ {
		findings = append(findings, domain.Finding{
			Label:  terms[i],
			Value:  "See report",
			Status: termStatusCycle[i%len(termStatusCycle)],
			Note:   termFindingNote,
		})
	}
	return findings
}
