// Package payment confirms payments made through an external gateway and
// turns them into enrollments.
package payment

import (
	"context"

	"github.com/irsalhamdi/e-learning/core/enrollment"
)

// Gateway providers.
const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
	ProviderPaypal   = "paypal"
)

// Gateway is the part of a payment provider the service talks to. Amounts
// are in minor currency units.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	UserID   string
	CourseID string
}

// Order is a provider-side order the client completes the payment against.
type Order struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret,omitempty"`
	ApproveURL   string `json:"approveUrl,omitempty"`
}

type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type OrderNew struct {
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
	CourseID string `json:"courseId" validate:"omitempty,uuid"`
}

// Confirmation is what the client posts back after the gateway checkout.
type Confirmation struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
	CourseID  string `json:"courseId" validate:"omitempty,uuid"`
}

// Settlement is an authenticated payment ready to be recorded.
type Settlement struct {
	Method    string
	OrderID   string
	PaymentID string
	UserID    string
	CourseID  string

	// Amount is nil when it still has to be looked up at the gateway.
	Amount *int64
	// Gateway answers the amount lookup. Nil means the verifier's gateway.
	Gateway Gateway
}

// Result reports what a verification did. Notifications are sent after it
// is returned.
type Result struct {
	Amount            int64                  `json:"amount"`
	EnrollmentCreated bool                   `json:"enrollmentCreated"`
	Enrollment        *enrollment.Enrollment `json:"enrollment,omitempty"`
}
