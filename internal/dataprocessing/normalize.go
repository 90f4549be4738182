package dataprocessing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

var oneHundred = decimal.NewFromInt(100)

// PercentToDecimal divides each listed field by 100, rounding to 7 decimal
// places, and re-declares the column kind as decimal. Fields must exist and
// must hold percent- or decimal-kind values; price and volume columns are a
// unit mismatch and rejected.
//
// WARNING: this operation is not idempotent. Applying it to an already
// converted column silently divides by 100 again (5.0 becomes 0.05, then
// 0.0005). The caller owns normalization state; the pipeline makes the
// ordering explicit through stage preconditions.
func PercentToDecimal(s *domain.Series, fields []string) (*domain.Series, error) {
	out := s.Clone()
	for _, name := range fields {
		col, ok := out.Column(name)
		if !ok {
			return nil, errors.NewConfigError(
				fmt.Sprintf("series %s: cannot normalize unknown column %s", s.Name, name), nil)
		}
		switch col.Kind {
		case domain.KindPercent, domain.KindDecimal, domain.KindRate:
		default:
			return nil, errors.NewConfigError(
				fmt.Sprintf("series %s: column %s holds %s values, not a percentage",
					s.Name, name, col.Kind), nil)
		}

		for i, v := range col.Values {
			if domain.IsMissing(v) {
				continue
			}
			if math.IsInf(v, 0) {
				return nil, errors.NewParsingError(
					fmt.Sprintf("series %s: column %s row %d holds a non-finite value",
						s.Name, name, i), nil)
			}
			converted, _ := decimal.NewFromFloat(v).Div(oneHundred).Round(7).Float64()
			col.Values[i] = converted
		}
		col.Kind = domain.KindDecimal
	}
	return out, nil
}
