package stationarity

import (
	"context"
	"fmt"

	"cryptoSniper/internal/features"
	"cryptoSniper/internal/ports"
)

// ColumnSource provides feature columns by name; *features.Dataset satisfies it.
type ColumnSource interface {
	Column(name string) ([]float64, bool)
}

// FeatureCheck is the policy outcome for one feature.
type FeatureCheck struct {
	Name   string
	Kind   features.Kind
	Passed bool
	Result *Result // set for tested features only
}

// Gate enforces the stationarity policy on every feature before training.
// Bounded features pass, tested features must reject the unit root, raw levels always fail.
// The first failure is returned as a *ports.StationarityPolicyViolation.
func (v *Validator) Gate(ctx context.Context, set features.FeatureSet, columns ColumnSource) ([]FeatureCheck, error) {
	checks := make([]FeatureCheck, 0, set.Len())
	for _, spec := range set {
		check := FeatureCheck{Name: spec.Name, Kind: spec.Kind}
		switch spec.Kind {
		case features.KindBounded:
			check.Passed = true

		case features.KindTested:
			col, ok := columns.Column(spec.Name)
			if !ok {
				return checks, fmt.Errorf("%w: column %q missing", ports.ErrInvalidRequest, spec.Name)
			}
			res, err := v.Test(col)
			if err != nil {
				return checks, fmt.Errorf("testing feature %q: %w", spec.Name, err)
			}
			check.Result = &res
			check.Passed = res.IsStationary
			if !res.IsStationary {
				violation := &ports.StationarityPolicyViolation{
					Feature: spec.Name,
					Reason:  fmt.Sprintf("unit root not rejected at %.2f", v.cfg.Significance),
					PValue:  res.PValue,
				}
				v.logger.Error(ctx, violation, "Feature failed the stationarity policy", map[string]interface{}{
					"feature": spec.Name, "pValue": res.PValue, "statistic": res.Statistic, "lags": res.Lags,
				})
				return append(checks, check), violation
			}

		default:
			violation := &ports.StationarityPolicyViolation{
				Feature: spec.Name,
				Reason:  "raw price or volume levels are not admissible features",
				PValue:  1,
			}
			v.logger.Error(ctx, violation, "Feature failed the stationarity policy", map[string]interface{}{"feature": spec.Name})
			return append(checks, check), violation
		}
		checks = append(checks, check)
	}

	v.logger.Info(ctx, "Stationarity policy passed", map[string]interface{}{"features": len(checks)})
	return checks, nil
}
