package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/trip-coordinator/internal/bus"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/storage"
)

// Gateway is the payment provider surface the bridge needs. Amounts are in
// minor currency units.
type Gateway interface {
	Hold(ctx context.Context, amount int64, customerID string) (string, error)
	Capture(ctx context.Context, ref string, finalAmount int64) error
	Cancel(ctx context.Context, ref string) error
}

// Bridge drives the gateway from trip lifecycle events: hold on accept,
// capture on completion, release on cancellation. Failures are logged, never
// propagated back into the lifecycle; payment recovery is an offline concern.
type Bridge struct {
	Gateway Gateway
	Store   storage.TripStore
	Logger  *slog.Logger
	Timeout time.Duration
}

// Attach subscribes the bridge to the lifecycle events it acts on.
func (b *Bridge) Attach(eb *bus.Bus) {
	eb.Subscribe(bus.TripAccepted, func(e bus.Event) { b.onAccepted(e.Trip()) })
	eb.Subscribe(bus.TripCompleted, func(e bus.Event) { b.onCompleted(e.Trip()) })
	eb.Subscribe(bus.TripCancelled, func(e bus.Event) { b.onCancelled(e.Trip()) })
}

func (b *Bridge) ctx() (context.Context, context.CancelFunc) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (b *Bridge) onAccepted(tripID string) {
	ctx, cancel := b.ctx()
	defer cancel()
	t, err := b.Store.Get(ctx, tripID)
	if err != nil {
		b.log().Warn("payment hold skipped", "trip", tripID, "error", err)
		return
	}
	if t.PaymentMethod != models.PaymentGateway || t.PaymentRef != "" || t.Estimate <= 0 {
		return
	}
	ref, err := b.Gateway.Hold(ctx, minorUnits(t.Estimate), t.RiderID)
	if err != nil {
		b.log().Error("payment hold failed", "trip", tripID, "error", err)
		return
	}
	t.PaymentRef = ref
	if err := b.Store.Update(ctx, t); err != nil {
		b.log().Error("payment ref not persisted", "trip", tripID, "ref", ref, "error", err)
		return
	}
	b.log().Info("payment held", "trip", tripID, "ref", ref, "amount", t.Estimate)
}

func (b *Bridge) onCompleted(tripID string) {
	ctx, cancel := b.ctx()
	defer cancel()
	t, err := b.Store.Get(ctx, tripID)
	if err != nil || t.PaymentRef == "" || t.PaymentMethod != models.PaymentGateway {
		return
	}
	amount := t.Estimate
	if t.Fare != nil {
		amount = t.Fare.Price
	}
	if err := b.Gateway.Capture(ctx, t.PaymentRef, minorUnits(amount)); err != nil {
		b.log().Error("payment capture failed", "trip", tripID, "ref", t.PaymentRef, "error", err)
		return
	}
	b.log().Info("payment captured", "trip", tripID, "ref", t.PaymentRef, "amount", amount)
}

func (b *Bridge) onCancelled(tripID string) {
	ctx, cancel := b.ctx()
	defer cancel()
	t, err := b.Store.Get(ctx, tripID)
	if err != nil || t.PaymentRef == "" {
		return
	}
	if err := b.Gateway.Cancel(ctx, t.PaymentRef); err != nil {
		b.log().Error("payment release failed", "trip", tripID, "ref", t.PaymentRef, "error", err)
		return
	}
	b.log().Info("payment hold released", "trip", tripID, "ref", t.PaymentRef)
}

func (b *Bridge) log() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// minorUnits converts a whole-unit price to the gateway's cent scale.
func minorUnits(price int) int64 { return int64(price) * 100 }
