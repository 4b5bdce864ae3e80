package trip

import (
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

func TestVisibility(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour

	cases := []struct {
		name    string
		status  models.Status
		now     time.Time
		expired bool
		reason  string
	}{
		{"active pending", models.StatusPending, created.Add(time.Hour), false, ""},
		{"active enroute", models.StatusEnroute, created.Add(time.Hour), false, ""},
		{"cancelled hidden", models.StatusCancelled, created.Add(time.Minute), true, "cancelled"},
		{"completed hidden", models.StatusCompleted, created.Add(time.Minute), true, "completed"},
		{"awaiting payment hidden", models.StatusPaymentPending, created.Add(time.Minute), true, "payment_pending"},
		{"aged out", models.StatusAccepted, created.Add(25 * time.Hour), true, "ttl"},
		{"just inside ttl", models.StatusAccepted, created.Add(ttl - time.Second), false, ""},
	}
	for _, c := range cases {
		tr := &models.Trip{ID: "t1", Status: c.status, CreatedAt: created}
		exp := Visibility(tr, ttl, c.now)
		if exp.Expired != c.expired || exp.Reason != c.reason {
			t.Errorf("%s: got %+v, want expired=%v reason=%q", c.name, exp, c.expired, c.reason)
		}
		if c.reason == "ttl" && (exp.ExpiresAt == nil || !exp.ExpiresAt.Equal(created.Add(ttl))) {
			t.Errorf("%s: ExpiresAt = %v", c.name, exp.ExpiresAt)
		}
	}
}

func TestVisibility_ZeroTTLDisablesAgeGate(t *testing.T) {
	tr := &models.Trip{
		ID: "t1", Status: models.StatusAccepted,
		CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if exp := Visibility(tr, 0, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)); exp.Expired {
		t.Fatalf("zero ttl should never age out: %+v", exp)
	}
}
