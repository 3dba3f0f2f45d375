package service

import (
	"github.com/medreport-analyzer/internal/domain"
)

// referenceTable holds the normal intervals in display order.
var referenceTable = []domain.ReferenceRange{
	{Marker: "glucose", Min: 70, Max: 99, Unit: "mg/dL"},
	{Marker: "HbA1c", Min: 4.0, Max: 5.6, Unit: "%"},
	{Marker: "cholesterol", Min: 0, Max: 200, Unit: "mg/dL"},
	{Marker: "LDL", Min: 0, Max: 100, Unit: "mg/dL"},
	{Marker: "HDL", Min: 40, Max: 60, Unit: "mg/dL"},
	{Marker: "triglycerides", Min: 0, Max: 150, Unit: "mg/dL"},
	{Marker: "hemoglobin", Min: 12, Max: 16, Unit: "g/dL"},
	{Marker: "RBC", Min: 4.2, Max: 5.4, Unit: "M/µL"},
	{Marker: "WBC", Min: 4.5, Max: 11.0, Unit: "K/µL"},
	{Marker: "platelet", Min: 150, Max: 450, Unit: "K/µL"},
	{Marker: "TSH", Min: 0.4, Max: 4.0, Unit: "mIU/L"},
	{Marker: "systolic", Min: 90, Max: 120, Unit: "mmHg"},
	{Marker: "diastolic", Min: 60, Max: 80, Unit: "mmHg"},
}

var referenceIndex = func() map[string]domain.ReferenceRange {
	idx := make(map[string]domain.ReferenceRange, len(referenceTable))
	for _, r := range referenceTable {
		idx[r.Marker] = r
	}
	return idx
}()

// RangeFor looks up the reference range for a marker. Keys are exact.
func RangeFor(marker string) (domain.ReferenceRange, bool) {
	r, ok := referenceIndex[marker]
	return r, ok
}

// ReferenceRanges returns a copy of the full table in display order.
func ReferenceRanges() []domain.ReferenceRange {
	out := make([]domain.ReferenceRange, len(referenceTable))
	copy(out, referenceTable)
	return out
}
