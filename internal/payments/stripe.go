package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient wraps stripe-go for the gateway payment flow: a hold is
// placed when the trip is accepted, captured for the final fare at
// completion, and released on cancellation.
type StripeClient struct {
	Currency string
}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY
// env var.
func NewStripeClient(currency string) *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if currency == "" {
		currency = "zar"
	}
	return &StripeClient{Currency: currency}
}

// Hold creates a PaymentIntent with capture_method=manual for the trip
// estimate. Returns the PaymentIntent ID.
func (s *StripeClient) Hold(ctx context.Context, amount int64, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(s.Currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture settles a held PaymentIntent for the final fare, which may be
// less than the original hold.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string, finalAmount int64) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(finalAmount),
	}
	_, err := paymentintent.Capture(paymentIntentID, params)
	return err
}

// Cancel releases the hold when the trip is cancelled.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
