package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

const stripeSecret = "whsec_test"

func stripeEvent(t *testing.T, typ string, obj map[string]any) []byte {
	t.Helper()

	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}

	evt := map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        typ,
		"data":        map[string]any{"object": json.RawMessage(raw)},
	}
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func postStripe(t *testing.T, v *Verifier, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", bytes.NewReader(body))
	r.Header.Set("Stripe-Signature", header)
	w := httptest.NewRecorder()

	if err := HandleStripeWebhook(v, stripeSecret)(context.Background(), w, r); err != nil {
		t.Fatalf("webhook rejected: %v", err)
	}
	return w
}

func TestStripeWebhook(t *testing.T) {
	f := newFixture(t)

	b := stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":              "pi_1",
		"object":          "payment_intent",
		"amount_received": 29900,
		"metadata":        map[string]string{"userId": f.userID, "courseId": f.courseID},
	})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})

	w := postStripe(t, f.verifier, b, signed.Header)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	f.wait(t)

	if len(f.enroller.calls) != 1 {
		t.Fatalf("expected one enrollment, got %d", len(f.enroller.calls))
	}
	pay := f.enroller.calls[0]
	if pay.Method != ProviderStripe || pay.PaymentID != "pi_1" || *pay.Amount != 29900 {
		t.Fatalf("unexpected payment info: %+v", pay)
	}
	if f.gateway.fetched != 0 {
		t.Fatal("the amount comes with the event, no lookup expected")
	}
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)

	b := stripeEvent(t, "payment_intent.created", map[string]any{"id": "pi_1", "object": "payment_intent"})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: b, Secret: stripeSecret, Timestamp: time.Now()})

	w := postStripe(t, f.verifier, b, signed.Header)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(f.enroller.calls) != 0 {
		t.Fatal("no enrollment expected")
	}
}

func TestStripeWebhookBadSignature(t *testing.T) {
	f := newFixture(t)

	b := stripeEvent(t, "payment_intent.succeeded", map[string]any{"id": "pi_1"})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: b, Secret: "whsec_other", Timestamp: time.Now()})

	r := httptest.NewRequest(http.MethodPost, "/payments/stripe/webhook", bytes.NewReader(b))
	r.Header.Set("Stripe-Signature", signed.Header)

	err := HandleStripeWebhook(f.verifier, stripeSecret)(context.Background(), httptest.NewRecorder(), r)
	if err == nil {
		t.Fatal("expected the webhook to be rejected")
	}
	if len(f.enroller.calls) != 0 {
		t.Fatal("no enrollment expected")
	}
}

func TestRazorpayWebhook(t *testing.T) {
	f := newFixture(t)
	const secret = "rzp_whsec"

	var evt razorpayEvent
	evt.Event = "payment.captured"
	evt.Payload.Payment.Entity = razorpayPayment{
		ID:      "pay_7",
		OrderID: "order_7",
		Amount:  49900,
		Notes:   map[string]string{"userId": f.userID, "courseId": f.courseID},
	}
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	post := func(sig string) (*httptest.ResponseRecorder, error) {
		r := httptest.NewRequest(http.MethodPost, "/payments/razorpay/webhook", bytes.NewReader(b))
		r.Header.Set("X-Razorpay-Signature", sig)
		w := httptest.NewRecorder()
		return w, HandleRazorpayWebhook(f.verifier, secret)(context.Background(), w, r)
	}

	if _, err := post("deadbeef"); err == nil {
		t.Fatal("expected a forged webhook to be rejected")
	}
	if len(f.enroller.calls) != 0 {
		t.Fatal("no enrollment expected for a forged webhook")
	}

	w, err := post(signBytes(secret, b))
	if err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	f.wait(t)

	if len(f.enroller.calls) != 1 || f.enroller.calls[0].OrderID != "order_7" {
		t.Fatalf("unexpected enrollments: %+v", f.enroller.calls)
	}
}
