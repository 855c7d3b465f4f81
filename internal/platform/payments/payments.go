// Package payments processes fine payments. Stripe handles the charge
// when a key is configured; the dev implementation records payments
// directly so the flow works without a payment account.
package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"github.com/diagnosis/libris/pkg/logger"
)

// Payment is the outcome handed back to the fines endpoint.
type Payment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type Service interface {
	// CreateFinePayment charges amount (dollars) against the member's
	// fine balance and reports the provider's payment record.
	CreateFinePayment(ctx context.Context, userID string, amount decimal.Decimal) (*Payment, error)
}

type StripeService struct{}

// NewStripeService configures the stripe client with the secret key.
func NewStripeService(secretKey string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{}
}

func (s *StripeService) CreateFinePayment(ctx context.Context, userID string, amount decimal.Decimal) (*Payment, error) {
	// Stripe amounts are whole cents.
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("purpose", "library_fine")

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &Payment{
		ID:           pi.ID,
		Status:       string(pi.Status),
		AmountCents:  cents,
		ClientSecret: pi.ClientSecret,
	}, nil
}

var _ Service = (*StripeService)(nil)

// DevService accepts every payment without charging anyone.
type DevService struct{}

func NewDevService() *DevService { return &DevService{} }

func (d *DevService) CreateFinePayment(ctx context.Context, userID string, amount decimal.Decimal) (*Payment, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	logger.InfoContext(ctx, "[DEV PAYMENT] fine payment accepted",
		"user_id", userID, "amount", amount.StringFixed(2))
	return &Payment{ID: "dev-payment", Status: "succeeded", AmountCents: cents}, nil
}

var _ Service = (*DevService)(nil)
