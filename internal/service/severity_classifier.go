package service

import (
	"fmt"
	"strconv"

	"github.com/medreport-analyzer/internal/domain"
)

// Multipliers applied to the reference bounds to find the critical band.
const (
	lowCriticalFactor  = 0.8
	highCriticalFactor = 1.5
)

// Classify assigns a severity tier to an extracted value against its range.
// The bounds themselves are normal.
func Classify(v domain.ExtractedValue, r domain.ReferenceRange) domain.Finding {
	lowCritical := r.Min * lowCriticalFactor
	highCritical := r.Max * highCriticalFactor

	status := domain.StatusNormal
	switch {
	case v.Value < lowCritical || v.Value > highCritical:
		status = domain.StatusCritical
	case v.Value < r.Min || v.Value > r.Max:
		status = domain.StatusAttention
	}

	note := fmt.Sprintf("Reference: %s-%s %s", formatNumber(r.Min), formatNumber(r.Max), r.Unit)
	switch status {
	case domain.StatusCritical:
		note += " - Significantly abnormal"
	case domain.StatusAttention:
		note += " - Outside reference range"
	}

	return domain.Finding{
		Label:  v.Label,
		Value:  displayValue(v),
		Status: status,
		Note:   note,
	}
}

// ClassifyAll classifies each value that has a reference range, in order.
func ClassifyAll(values []domain.ExtractedValue) []domain.Finding {
	findings := make([]domain.Finding, 0, len(values))
	for _, v := range values {
		r, ok := RangeFor(v.Label)
		if !ok {
			continue
		}
		findings = append(findings, Classify(v, r))
	}
	return findings
}

func displayValue(v domain.ExtractedValue) string {
	if v.Unit == "" {
		return formatNumber(v.Value)
	}
	return formatNumber(v.Value) + " " + v.Unit
}

// formatNumber renders the shortest representation: 4, 5.6, 11.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
