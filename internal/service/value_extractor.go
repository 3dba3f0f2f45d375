package service

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/medreport-analyzer/internal/domain"
)

// valuePattern binds a marker to the regular expression that finds it.
type valuePattern struct {
	marker string
	re     *regexp.Regexp
}

// Each pattern captures the number in group 1 and an optional unit in group 2.
var valuePatterns = []valuePattern{
	{"glucose", regexp.MustCompile(`(?i)glucose\s*[:=]?\s*(\d+\.?\d*)\s*(mg/dl|mmol/L)?`)},
	{"HbA1c", regexp.MustCompile(`(?i)hba1c\s*[:=]?\s*(\d+\.?\d*)\s*(%)?`)},
	{"cholesterol", regexp.MustCompile(`(?i)cholesterol\s*[:=]?\s*(\d+\.?\d*)\s*(mg/dl|mmol/L)?`)},
	{"LDL", regexp.MustCompile(`(?i)ldl\s*[:=]?\s*(\d+\.?\d*)\s*(mg/dl|mmol/L)?`)},
	{"HDL", regexp.MustCompile(`(?i)hdl\s*[:=]?\s*(\d+\.?\d*)\s*(mg/dl|mmol/L)?`)},
	{"triglycerides", regexp.MustCompile(`(?i)triglycerides\s*[:=]?\s*(\d+\.?\d*)\s*(mg/dl|mmol/L)?`)},
	{"hemoglobin", regexp.MustCompile(`(?i)hemoglobin\s*[:=]?\s*(\d+\.?\d*)\s*(g/dl|g/L)?`)},
	{"RBC", regexp.MustCompile(`(?i)rbc\s*[:=]?\s*(\d+\.?\d*)\s*(M/µL|×10¹²/L)?`)},
	{"WBC", regexp.MustCompile(`(?i)wbc\s*[:=]?\s*(\d+\.?\d*)\s*(k/µl|×10⁹/L)?`)},
	{"platelet", regexp.MustCompile(`(?i)platelet\s*[:=]?\s*(\d+\.?\d*)\s*(k/µl|×10⁹/L)?`)},
	{"TSH", regexp.MustCompile(`(?i)tsh\s*[:=]?\s*(\d+\.?\d*)\s*(mIU/L|µIU/mL)?`)},
	{"systolic", regexp.MustCompile(`(?i)systolic\s*[:=]?\s*(\d+\.?\d*)\s*(mmHg)?`)},
	{"diastolic", regexp.MustCompile(`(?i)diastolic\s*[:=]?\s*(\d+\.?\d*)\s*(mmHg)?`)},
}

// ExtractValues finds every "<marker> [:=] <number> [unit]" occurrence in
// text. Results are ordered by position; repeated markers are all kept.
func ExtractValues(text string) []domain.ExtractedValue {
	values := []domain.ExtractedValue{}
	if text == "" {
		return values
	}

	for _, p := range valuePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			// digit runs past the float64 range parse as ±Inf with ErrRange
			// and are skipped
			n, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
			if err != nil {
				continue
			}
			unit := ""
			if m[4] >= 0 {
				unit = text[m[4]:m[5]]
			}
			values = append(values, domain.ExtractedValue{
				Label:  p.marker,
				Value:  n,
				Unit:   unit,
				Offset: m[0],
			})
		}
	}

	sort.SliceStable(values, func(i, j int) bool {
		return values[i].Offset < values[j].Offset
	})
	return values
}
