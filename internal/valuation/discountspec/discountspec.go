// Package discountspec validates a security's discount specification.
// Storage is a thin CRUD layer (internal/data/postgres); this package
// owns only the validation rules.
package discountspec

import (
	"regexp"

	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

var tenorKeyPattern = regexp.MustCompile(`^(\d+)[DWMY]$`)

// Validate checks that a discount spec names a benchmark curve and that
// its manual spread map keys match ⟨integer⟩⟨D|W|M|Y⟩ or the literal
// "default".
func Validate(spec model.DiscountSpec) error {
	if spec.SecurityID == "" {
		return verrors.ValidationError("discount spec requires a security id")
	}
	if spec.BenchmarkCurveName == "" {
		return verrors.ValidationError("discount spec requires a benchmark curve name")
	}
	for key := range spec.ManualSpreads {
		if key == "default" {
			continue
		}
		if !tenorKeyPattern.MatchString(key) {
			return verrors.ValidationError("invalid manual spread tenor key %q", key)
		}
	}
	return nil
}
