package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

// Stripe creates payment intents. Confirmation arrives through the
// payment_intent.succeeded webhook.
type Stripe struct {
	api *stripecl.API
}

func NewStripe(api *stripecl.API) *Stripe {
	return &Stripe{api: api}
}

func (s *Stripe) Name() string { return ProviderStripe }

func (s *Stripe) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)
	params.AddMetadata("courseId", req.CourseID)
	params.AddMetadata("receipt", req.Receipt)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Order{}, fmt.Errorf("stripe create payment intent: %w", err)
	}

	return Order{
		ID:           pi.ID,
		Provider:     ProviderStripe,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      req.Receipt,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (s *Stripe) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(paymentID, params)
	if err != nil {
		return Payment{}, fmt.Errorf("stripe fetch payment intent[%s]: %w", paymentID, err)
	}

	return Payment{
		ID:       pi.ID,
		OrderID:  pi.ID,
		Amount:   pi.AmountReceived,
		Currency: strings.ToUpper(string(pi.Currency)),
		Status:   string(pi.Status),
	}, nil
}
