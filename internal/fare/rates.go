package fare

import (
	"math"
	"strings"

	"github.com/example/trip-coordinator/internal/models"
)

// defaultRates is the rate card per vehicle class. minCharge is a minimum
// fare, there is no free-distance allowance.
var defaultRates = map[string]models.RateCard{
	models.ClassNormal:  {BaseFare: 0, PerKm: 7, MinCharge: 30},
	models.ClassComfort: {BaseFare: 0, PerKm: 8, MinCharge: 30},
	models.ClassLuxury:  {BaseFare: 0, PerKm: 12, MinCharge: 45},
	models.ClassXL:      {BaseFare: 0, PerKm: 10, MinCharge: 39},
}

// DefaultRate returns the rate card for a vehicle class, falling back to
// the normal class for unknown input.
func DefaultRate(class string) models.RateCard {
	if r, ok := defaultRates[strings.ToLower(class)]; ok {
		return r
	}
	return defaultRates[models.ClassNormal]
}

// ResolveRate merges a per-vehicle override with the class defaults,
// sanitizing each field. PerKm must be strictly positive in an override or
// long trips would collapse to the minimum charge.
func ResolveRate(class string, override *models.RateCard) models.RateCard {
	def := DefaultRate(class)
	if override == nil {
		return def
	}
	out := def
	if isFiniteNonNeg(override.BaseFare) {
		out.BaseFare = override.BaseFare
	}
	if isFinitePos(override.PerKm) {
		out.PerKm = override.PerKm
	}
	if isFiniteNonNeg(override.MinCharge) {
		out.MinCharge = override.MinCharge
	}
	if isFiniteNonNeg(override.PickupPerKm) {
		out.PickupPerKm = override.PickupPerKm
	}
	return out
}

func isFiniteNonNeg(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func isFinitePos(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
