// Package trip owns the ride lifecycle: status transitions, the read-side
// visibility gate, and aggregation over completed trips.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/trip-coordinator/internal/bus"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/storage"
)

// ErrStateConflict is returned when a transition is attempted on a trip no
// longer in the expected state. No mutation is applied.
var ErrStateConflict = errors.New("trip not in expected state")

// Machine validates and applies status transitions through the store's
// conditional updates, then publishes the matching lifecycle event.
type Machine struct {
	Store storage.TripStore
	Bus   *bus.Bus
	Clock func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *Machine) publish(e bus.Event) {
	if m.Bus != nil {
		m.Bus.Publish(e)
	}
}

// ConfirmPayment moves payment_pending to pending when the external payment
// confirmation arrives. A trip in any other state is left untouched.
func (m *Machine) ConfirmPayment(ctx context.Context, id string) error {
	now := m.now()
	err := m.Store.SetStatusIf(ctx, id, models.StatusPaymentPending, models.StatusPending, now)
	if errors.Is(err, storage.ErrConflict) {
		// confirmation for an already-advanced trip is a no-op
		return nil
	}
	if err != nil {
		return err
	}
	t, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	t.PaymentStatus = models.PaymentPaid
	ts := now
	t.PaidAt = &ts
	return m.Store.Update(ctx, t)
}

// Accept moves pending to accepted and attaches the vehicle. The conditional
// update is what guards against a double-accept race: the second accept sees
// ErrStateConflict and nothing changes.
func (m *Machine) Accept(ctx context.Context, id, vehicleID string) error {
	if err := m.Store.SetStatusIf(ctx, id, models.StatusPending, models.StatusAccepted, m.now()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("accept %s: %w", id, ErrStateConflict)
		}
		return err
	}
	if err := m.Store.AttachVehicle(ctx, id, vehicleID); err != nil {
		return err
	}
	m.publish(bus.AcceptedEvent{TripID: id, VehicleID: vehicleID})
	return nil
}

// MarkEnroute handles both the "trip started" and "rider picked up" signals.
// It is idempotent once the trip is already enroute.
func (m *Machine) MarkEnroute(ctx context.Context, id, by string, picked bool) error {
	t, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("start %s: %w", id, ErrStateConflict)
	}
	now := m.now()
	if t.Status != models.StatusEnroute {
		if err := m.Store.SetStatusIf(ctx, id, t.Status, models.StatusEnroute, now); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return fmt.Errorf("start %s: %w", id, ErrStateConflict)
			}
			return err
		}
	}
	if picked {
		if t.PickedAt == nil {
			t, err = m.Store.Get(ctx, id)
			if err != nil {
				return err
			}
			ts := now
			t.PickedAt = &ts
			if err := m.Store.Update(ctx, t); err != nil {
				return err
			}
		}
		m.publish(bus.PickedEvent{TripID: id, By: by})
		return nil
	}
	m.publish(bus.StartedEvent{TripID: id, By: by})
	return nil
}

// MarkArrived stamps the pickup arrival time. Best-effort: the geofence
// event is already out when this runs.
func (m *Machine) MarkArrived(ctx context.Context, id string) error {
	t, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.ArrivedAt != nil || t.Status.Terminal() {
		return nil
	}
	ts := m.now()
	t.ArrivedAt = &ts
	return m.Store.Update(ctx, t)
}

// Complete finalizes the trip with its fare snapshot. Rejected on terminal
// trips; the snapshot is written exactly once.
func (m *Machine) Complete(ctx context.Context, id string, f models.FareSnapshot, method string) error {
	t, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("complete %s: %w", id, ErrStateConflict)
	}
	now := m.now()
	if err := m.Store.SetStatusIf(ctx, id, t.Status, models.StatusCompleted, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("complete %s: %w", id, ErrStateConflict)
		}
		return err
	}
	if err := m.Store.SetFinalFare(ctx, id, f); err != nil {
		return err
	}

	t, err = m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if method == models.PaymentCash {
		t.PaymentMethod = models.PaymentCash
		// cash is settled hand to hand at the kerb
		if t.PaymentStatus != models.PaymentPaid {
			t.PaymentStatus = models.PaymentPaid
			ts := now
			t.PaidAt = &ts
		}
	} else {
		t.PaymentMethod = models.PaymentGateway
	}
	if err := m.Store.Update(ctx, t); err != nil {
		return err
	}

	m.publish(bus.CompletedEvent{
		TripID:        id,
		Price:         f.Price,
		DistanceKm:    f.DistanceKm,
		PaymentMethod: t.PaymentMethod,
	})
	return nil
}

// Cancel terminates the trip from any non-terminal state, recording who
// cancelled and why.
func (m *Machine) Cancel(ctx context.Context, id, by, reason, note string) error {
	t, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("cancel %s: %w", id, ErrStateConflict)
	}
	if err := m.Store.SetStatusIf(ctx, id, t.Status, models.StatusCancelled, m.now()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("cancel %s: %w", id, ErrStateConflict)
		}
		return err
	}
	t, err = m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	t.CancelReason = reason
	t.CancelNote = note
	t.CancelledBy = by
	if err := m.Store.Update(ctx, t); err != nil {
		return err
	}
	m.publish(bus.CancelledEvent{TripID: id, By: by, Reason: reason, Note: note})
	return nil
}
