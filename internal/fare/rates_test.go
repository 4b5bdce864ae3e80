package fare

import (
	"math"
	"testing"

	"github.com/example/trip-coordinator/internal/models"
)

func TestDefaultRate(t *testing.T) {
	if r := DefaultRate(models.ClassLuxury); r.PerKm != 12 || r.MinCharge != 45 {
		t.Fatalf("luxury rate = %+v", r)
	}
	if r := DefaultRate("hovercraft"); r != DefaultRate(models.ClassNormal) {
		t.Fatalf("unknown class should fall back to normal, got %+v", r)
	}
	if r := DefaultRate("XL"); r.PerKm != 10 {
		t.Fatalf("class lookup should be case-insensitive, got %+v", r)
	}
}

func TestResolveRate(t *testing.T) {
	got := ResolveRate(models.ClassNormal, &models.RateCard{PerKm: 9, MinCharge: 50})
	if got.PerKm != 9 || got.MinCharge != 50 {
		t.Fatalf("override not applied: %+v", got)
	}

	// zero and negative PerKm must not survive an override
	got = ResolveRate(models.ClassNormal, &models.RateCard{PerKm: 0, MinCharge: 50})
	if got.PerKm != 7 {
		t.Fatalf("zero PerKm accepted: %+v", got)
	}
	got = ResolveRate(models.ClassNormal, &models.RateCard{PerKm: -3})
	if got.PerKm != 7 {
		t.Fatalf("negative PerKm accepted: %+v", got)
	}

	got = ResolveRate(models.ClassNormal, &models.RateCard{PerKm: math.NaN(), MinCharge: math.Inf(1)})
	if got.PerKm != 7 || got.MinCharge != 30 {
		t.Fatalf("non-finite fields accepted: %+v", got)
	}

	if got := ResolveRate(models.ClassComfort, nil); got != DefaultRate(models.ClassComfort) {
		t.Fatalf("nil override should yield defaults: %+v", got)
	}
}
