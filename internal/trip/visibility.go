package trip

import (
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

// Expiry explains why a trip is no longer visible to tracking observers.
type Expiry struct {
	Expired   bool
	Reason    string
	ExpiresAt *time.Time
}

// Visibility gates read access to trip details: terminal trips, trips still
// awaiting payment, and trips older than the TTL are all hidden. A TTL of
// zero disables the time-based gate.
func Visibility(t *models.Trip, ttl time.Duration, now time.Time) Expiry {
	switch t.Status {
	case models.StatusCancelled, models.StatusCompleted, models.StatusPaymentPending:
		return Expiry{Expired: true, Reason: string(t.Status)}
	}
	if ttl > 0 {
		expiresAt := t.CreatedAt.Add(ttl)
		if now.After(expiresAt) {
			return Expiry{Expired: true, Reason: "ttl", ExpiresAt: &expiresAt}
		}
	}
	return Expiry{}
}
