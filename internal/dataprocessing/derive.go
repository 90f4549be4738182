package dataprocessing

import (
	"fmt"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Derived macro series names, matching their FRED source conventions.
const (
	SeriesCreditSpread    = "credit_spread_baa_aaa"
	SeriesYieldCurveSpread = "yield_curve_10y_2y_spread"
)

// DeriveCreditSpread computes baa - aaa on their shared dates. The spread is
// undefined where either leg is absent, so the join is inner: no output row
// has a missing underlying.
func DeriveCreditSpread(baa, aaa *domain.Series) (*domain.Series, error) {
	return deriveSpread(SeriesCreditSpread, baa, aaa)
}

// DeriveYieldCurveSpread computes the 10-year minus 2-year yield on their
// shared dates, with the same inner-join rule as DeriveCreditSpread.
func DeriveYieldCurveSpread(y10, y2 *domain.Series) (*domain.Series, error) {
	return deriveSpread(SeriesYieldCurveSpread, y10, y2)
}

func deriveSpread(name string, a, b *domain.Series) (*domain.Series, error) {
	colA, err := valueColumn(a)
	if err != nil {
		return nil, err
	}
	colB, err := valueColumn(b)
	if err != nil {
		return nil, err
	}

	// Legs may arrive raw. Re-delivered dates are revisions, so collapse
	// them keep-last exactly as the clean flow does before joining.
	left, _ := DeduplicateDates(a)
	right, _ := DeduplicateDates(b)

	var dates []time.Time
	var values []float64
	for i, d := range left.Dates {
		j, ok := right.DateIndex(d)
		if !ok {
			continue
		}
		va := left.Columns[colA].Values[i]
		vb := right.Columns[colB].Values[j]
		if domain.IsMissing(va) || domain.IsMissing(vb) {
			continue
		}
		dates = append(dates, d)
		values = append(values, va-vb)
	}

	return &domain.Series{
		Name:  name,
		Dates: dates,
		Columns: []domain.Column{
			{Name: "value", Kind: a.Columns[colA].Kind, Values: values},
		},
	}, nil
}

// valueColumn resolves the single observation column of a macro series:
// either a column named "value" or the only column present.
func valueColumn(s *domain.Series) (int, error) {
	for i, col := range s.Columns {
		if col.Name == "value" {
			return i, nil
		}
	}
	if len(s.Columns) == 1 {
		return 0, nil
	}
	return -1, errors.NewConfigError(
		fmt.Sprintf("series %s: no value column among %v", s.Name, s.ColumnNames()), nil)
}
