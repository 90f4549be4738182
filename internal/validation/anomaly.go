package validation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Threshold bounds one field's plausible values. Min/Max are absolute
// limits in the field's natural units. MaxDelta, when positive, bounds the
// absolute change between consecutive observations; zero disables the delta
// check.
type Threshold struct {
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
	MaxDelta float64 `yaml:"max_delta" json:"max_delta"`
}

// CheckAnomalies flags implausible observations per configured field: values
// outside [Min, Max], jumps beyond MaxDelta, and missing (NaN) values as a
// separate kind. Fields without a threshold are skipped and listed as
// unchecked; the report never claims they passed. Findings are advisory
// data, not errors, and the input is never modified. A threshold naming a
// column the series does not have is a configuration error.
func CheckAnomalies(s *domain.Series, thresholds map[string]Threshold) (*domain.AnomalyReport, error) {
	report := &domain.AnomalyReport{
		Series: s.Name,
		Stats:  make(map[string]domain.FieldStats),
	}

	for field := range thresholds {
		if !s.HasColumn(field) {
			return nil, errors.NewConfigError(
				fmt.Sprintf("series %s: threshold configured for unknown field %s", s.Name, field), nil)
		}
	}

	for _, col := range s.Columns {
		report.Stats[col.Name] = fieldStats(col.Values)

		th, ok := thresholds[col.Name]
		if !ok {
			report.Unchecked = append(report.Unchecked, col.Name)
			continue
		}
		report.Checked = append(report.Checked, col.Name)

		prev := domain.Missing()
		for i, v := range col.Values {
			if domain.IsMissing(v) {
				report.Anomalies = append(report.Anomalies, domain.Anomaly{
					Date:    s.Dates[i],
					Field:   col.Name,
					Value:   v,
					Kind:    domain.AnomalyMissingValue,
					Message: "value is missing",
				})
				continue
			}

			if v < th.Min || v > th.Max {
				report.Anomalies = append(report.Anomalies, domain.Anomaly{
					Date:  s.Dates[i],
					Field: col.Name,
					Value: v,
					Kind:  domain.AnomalyOutOfRange,
					Message: fmt.Sprintf("value %g outside plausible range [%g, %g]",
						v, th.Min, th.Max),
				})
			}

			if th.MaxDelta > 0 && !domain.IsMissing(prev) {
				if delta := math.Abs(v - prev); delta > th.MaxDelta {
					report.Anomalies = append(report.Anomalies, domain.Anomaly{
						Date:  s.Dates[i],
						Field: col.Name,
						Value: v,
						Kind:  domain.AnomalyExcessiveDelta,
						Message: fmt.Sprintf("change %g from previous observation exceeds %g",
							delta, th.MaxDelta),
					})
				}
			}
			prev = v
		}
	}

	sort.Strings(report.Checked)
	sort.Strings(report.Unchecked)
	return report, nil
}

// fieldStats summarizes the non-missing observations of one column.
func fieldStats(values []float64) domain.FieldStats {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !domain.IsMissing(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return domain.FieldStats{}
	}

	min, max := present[0], present[0]
	for _, v := range present[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	fs := domain.FieldStats{
		Count: len(present),
		Mean:  stat.Mean(present, nil),
		Min:   min,
		Max:   max,
	}
	if len(present) > 1 {
		fs.StdDev = stat.StdDev(present, nil)
	}
	return fs
}
