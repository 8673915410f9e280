package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

const maxWebhookBytes = 65536

func HandleCreateOrder(v *Verifier) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		var in OrderNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		ord, err := v.CreateOrder(ctx, clm.UserID, in)
		if err != nil {
			return weberr.Classify(fmt.Errorf("creating order for user[%s]: %w", clm.UserID, err))
		}

		return web.Respond(ctx, w, web.OK("order created", "order", ord), http.StatusOK)
	}
}

func HandleVerify(v *Verifier) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		var in Confirmation
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		res, err := v.Verify(ctx, clm.UserID, in)
		if err != nil {
			return weberr.Classify(fmt.Errorf("verifying payment[%s]: %w", in.PaymentID, err))
		}

		return web.Respond(ctx, w, web.OK("Payment verified successfully",
			"amount", res.Amount,
			"enrollmentCreated", res.EnrollmentCreated,
			"enrollment", res.Enrollment,
		), http.StatusOK)
	}
}

// HandlePaypalCapture captures an order the buyer approved and settles it
// for the current user.
func HandlePaypalCapture(v *Verifier, pp *Paypal) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		var in struct {
			CourseID string `json:"courseId"`
		}
		if err := web.Decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		orderID := web.Param(r, "id")
		if err := pp.Capture(ctx, orderID); err != nil {
			return weberr.NewError(err, "payment capture failed", http.StatusBadGateway)
		}

		res, err := v.Settle(ctx, Settlement{
			Method:    ProviderPaypal,
			OrderID:   orderID,
			PaymentID: orderID,
			UserID:    clm.UserID,
			CourseID:  in.CourseID,
			Gateway:   pp,
		})
		if err != nil {
			return weberr.Classify(fmt.Errorf("the order[%s] was paid but settling it failed: %w", orderID, err))
		}

		return web.Respond(ctx, w, web.OK("Payment captured",
			"amount", res.Amount,
			"enrollmentCreated", res.EnrollmentCreated,
			"enrollment", res.Enrollment,
		), http.StatusOK)
	}
}

// HandleStripeWebhook settles succeeded payment intents. The user and course
// travel in the intent metadata set by CreateOrder.
func HandleStripeWebhook(v *Verifier, secret string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("reading webhook body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		event, err := webhook.ConstructEvent(b, sig, secret)
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("verifying webhook signature: %w", err))
		}

		if event.Type != "payment_intent.succeeded" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return weberr.BadRequest(fmt.Errorf("unmarshaling payment intent: %w", err))
		}

		userID := pi.Metadata["userId"]
		if userID == "" {
			v.log.WithField("payment_id", pi.ID).Warn("payment intent without user, ignored")
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		amount := pi.AmountReceived
		_, err = v.Settle(ctx, Settlement{
			Method:    ProviderStripe,
			OrderID:   pi.ID,
			PaymentID: pi.ID,
			UserID:    userID,
			CourseID:  pi.Metadata["courseId"],
			Amount:    &amount,
		})
		if err != nil {
			return weberr.Classify(fmt.Errorf("settling payment intent[%s]: %w", pi.ID, err))
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleRazorpayWebhook settles captured payments reported by Razorpay. The
// body is signed with the webhook secret.
func HandleRazorpayWebhook(v *Verifier, secret string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("reading webhook body: %w", err))
		}

		if !ValidWebhook(secret, b, r.Header.Get("X-Razorpay-Signature")) {
			v.deps.Metrics.Verification("rejected")
			return weberr.NotAuthorized(errors.New("invalid razorpay webhook signature"))
		}

		var evt razorpayEvent
		if err := json.Unmarshal(b, &evt); err != nil {
			return weberr.BadRequest(fmt.Errorf("unmarshaling webhook: %w", err))
		}

		if evt.Event != "payment.captured" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		p := evt.Payload.Payment.Entity
		userID := p.Notes["userId"]
		if userID == "" {
			v.log.WithField("payment_id", p.ID).Warn("captured payment without user, ignored")
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		amount := p.Amount
		_, err = v.Settle(ctx, Settlement{
			Method:    ProviderRazorpay,
			OrderID:   p.OrderID,
			PaymentID: p.ID,
			UserID:    userID,
			CourseID:  p.Notes["courseId"],
			Amount:    &amount,
		})
		if err != nil {
			return weberr.Classify(fmt.Errorf("settling payment[%s]: %w", p.ID, err))
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
