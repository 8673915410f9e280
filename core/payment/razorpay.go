package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	URL       string
	Timeout   time.Duration
}

// Razorpay talks to the Razorpay REST API.
type Razorpay struct {
	http *resty.Client
}

func NewRazorpay(cfg RazorpayConfig) *Razorpay {
	c := resty.New().
		SetBaseURL(cfg.URL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return &Razorpay{http: c}
}

func (rp *Razorpay) Name() string { return ProviderRazorpay }

type razorpayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayPayment struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (rp *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body := razorpayOrder{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes: map[string]string{
			"userId":   req.UserID,
			"courseId": req.CourseID,
		},
	}

	var out razorpayOrder
	var fail razorpayError
	resp, err := rp.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&fail).
		Post("/orders")
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	if resp.IsError() {
		return Order{}, fmt.Errorf("razorpay create order: status %d: %s", resp.StatusCode(), fail.Error.Description)
	}

	return Order{
		ID:       out.ID,
		Provider: ProviderRazorpay,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Status:   out.Status,
	}, nil
}

func (rp *Razorpay) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	var out razorpayPayment
	var fail razorpayError
	resp, err := rp.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&out).
		SetError(&fail).
		Get("/payments/{id}")
	if err != nil {
		return Payment{}, fmt.Errorf("razorpay fetch payment[%s]: %w", paymentID, err)
	}
	if resp.IsError() {
		return Payment{}, fmt.Errorf("razorpay fetch payment[%s]: status %d: %s", paymentID, resp.StatusCode(), fail.Error.Description)
	}

	return Payment{
		ID:       out.ID,
		OrderID:  out.OrderID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Status:   out.Status,
	}, nil
}

// razorpayEvent is the part of a Razorpay webhook body the service reads.
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}
