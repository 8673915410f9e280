package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/plutov/paypal/v4"
)

// Paypal creates checkout orders that the buyer approves on PayPal. The
// order id doubles as the payment id.
type Paypal struct {
	client *paypal.Client
}

func NewPaypal(client *paypal.Client) *Paypal {
	return &Paypal{client: client}
}

func (p *Paypal) Name() string { return ProviderPaypal }

func (p *Paypal) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.Receipt,
		CustomID:    req.UserID + ":" + req.CourseID,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    formatAmount(req.Amount),
		},
	}}

	ord, err := p.client.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{})
	if err != nil {
		return Order{}, fmt.Errorf("paypal create order: %w", err)
	}

	out := Order{
		ID:       ord.ID,
		Provider: ProviderPaypal,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Receipt:  req.Receipt,
		Status:   ord.Status,
	}
	for _, l := range ord.Links {
		if l.Rel == "approve" {
			out.ApproveURL = l.Href
		}
	}
	return out, nil
}

func (p *Paypal) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	ord, err := p.client.GetOrder(ctx, paymentID)
	if err != nil {
		return Payment{}, fmt.Errorf("paypal fetch order[%s]: %w", paymentID, err)
	}
	if len(ord.PurchaseUnits) == 0 || ord.PurchaseUnits[0].Amount == nil {
		return Payment{}, fmt.Errorf("paypal order[%s] has no amount", paymentID)
	}

	amt := ord.PurchaseUnits[0].Amount
	minor, err := parseAmount(amt.Value)
	if err != nil {
		return Payment{}, fmt.Errorf("paypal order[%s]: %w", paymentID, err)
	}

	return Payment{
		ID:       ord.ID,
		OrderID:  ord.ID,
		Amount:   minor,
		Currency: amt.Currency,
		Status:   ord.Status,
	}, nil
}

// Capture captures an approved order. Only a COMPLETED capture counts as
// paid.
func (p *Paypal) Capture(ctx context.Context, orderID string) error {
	resp, err := p.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return fmt.Errorf("capturing paypal order[%s]: %w", orderID, err)
	}

	if resp.Status != "COMPLETED" {
		return fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", orderID, resp.Status)
	}
	return nil
}

// parseAmount turns a decimal string such as "12.5" into minor units.
func parseAmount(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if w < 0 {
		return 0, errors.New("negative amount")
	}
	return w*100 + f, nil
}
