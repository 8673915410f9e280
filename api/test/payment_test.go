package test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/core/payment"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type mockRazorpay struct {
	mu       sync.Mutex
	payments map[string]int64
}

// pay records a captured payment the gateway will report on lookup.
func (m *mockRazorpay) pay(paymentID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[paymentID] = amount
}

func (m *mockRazorpay) handle() http.Handler {
	orders := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		in["id"] = fmt.Sprintf("order_%d", rand.Intn(100000))
		in["status"] = "created"
		web.Respond(context.Background(), w, in, 200)
	})

	payments := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		m.mu.Lock()
		amount, ok := m.payments[id]
		m.mu.Unlock()

		if !ok {
			web.Respond(context.Background(), w, map[string]any{"error": map[string]string{"description": "not found"}}, 400)
			return
		}
		web.Respond(context.Background(), w, map[string]any{"id": id, "amount": amount, "currency": "INR", "status": "captured"}, 200)
	})

	r := mux.NewRouter()
	r.Handle("/orders", orders).Methods("POST")
	r.Handle("/payments/{id}", payments).Methods("GET")
	return r
}

type mockPaypal struct {
	amount string
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.Respond(context.Background(), w, map[string]any{"access_token": "token", "token_type": "Bearer", "expires_in": 3600}, 200)
	})

	show := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ord := paypal.Order{
			ID:            mux.Vars(r)["id"],
			Status:        "COMPLETED",
			PurchaseUnits: []paypal.PurchaseUnit{{Amount: &paypal.PurchaseUnitAmount{Currency: "INR", Value: m.amount}}},
		}
		web.Respond(context.Background(), w, ord, 200)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ord := paypal.Order{ID: mux.Vars(r)["id"], Status: "COMPLETED"}
		web.Respond(context.Background(), w, ord, 201)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}", show).Methods("GET")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

type verifyReply struct {
	Success           bool                   `json:"success"`
	Amount            int64                  `json:"amount"`
	EnrollmentCreated bool                   `json:"enrollmentCreated"`
	Enrollment        *enrollment.Enrollment `json:"enrollment"`
}

func TestPayment(t *testing.T) {
	env, err := NewTestEnv(t, "payment_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	c1 := createCourseOK(t, env, 49900)
	c2 := createCourseOK(t, env, 29900)
	c3 := createCourseOK(t, env, 19900)
	c4 := createCourseOK(t, env, 9900)

	if err := Login(env.Server, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}

	t.Run("razorpay", func(t *testing.T) {
		var created struct {
			Order payment.Order `json:"order"`
		}
		code := env.do(t, http.MethodPost, "/payments/orders", payment.OrderNew{Amount: c1.Price, CourseID: c1.ID}, &created)
		if code != http.StatusOK {
			t.Fatalf("can't create razorpay order: status code %d", code)
		}
		if created.Order.Amount != c1.Price || created.Order.Currency != "INR" {
			t.Fatalf("unexpected order: %+v", created.Order)
		}

		const paymentID = "pay_e2e_1"
		env.Razorpay.pay(paymentID, c1.Price)

		conf := payment.Confirmation{
			OrderID:   created.Order.ID,
			PaymentID: paymentID,
			Signature: payment.Sign(signatureSecret, created.Order.ID, paymentID),
			CourseID:  c1.ID,
		}

		var first verifyReply
		if code := env.do(t, http.MethodPost, "/payments/verify", conf, &first); code != http.StatusOK {
			t.Fatalf("can't verify payment: status code %d", code)
		}
		if !first.EnrollmentCreated || first.Amount != c1.Price {
			t.Fatalf("unexpected verification: %+v", first)
		}
		if first.Enrollment.PaymentID != paymentID || first.Enrollment.AmountPaid != c1.Price {
			t.Fatalf("payment not recorded on the enrollment: %+v", first.Enrollment)
		}

		var again verifyReply
		if code := env.do(t, http.MethodPost, "/payments/verify", conf, &again); code != http.StatusOK {
			t.Fatalf("can't verify payment twice: status code %d", code)
		}
		if again.EnrollmentCreated || again.Enrollment.ID != first.Enrollment.ID {
			t.Fatalf("a repeated verification must return the same enrollment: %+v", again)
		}

		env.waitBackground(t)
		exp := []string{"Payment Successful", "Welcome to " + c1.Name}
		if diff := cmp.Diff(exp, env.Mail.subjects()); diff != "" {
			t.Fatalf("wrong notifications (-want +got):\n%s", diff)
		}

		conf.Signature = payment.Sign("wrong", created.Order.ID, paymentID)
		if code := env.do(t, http.MethodPost, "/payments/verify", conf, nil); code != http.StatusUnauthorized {
			t.Fatalf("expected a forged signature to be rejected, got %d", code)
		}
	})

	t.Run("paypal", func(t *testing.T) {
		env.Paypal.amount = "299.00"

		var rep verifyReply
		code := env.do(t, http.MethodPost, "/payments/paypal/PP-E2E/capture", map[string]string{"courseId": c2.ID}, &rep)
		if code != http.StatusOK {
			t.Fatalf("can't capture paypal order: status code %d", code)
		}
		if !rep.EnrollmentCreated || rep.Amount != c2.Price || rep.Enrollment.PaymentMethod != payment.ProviderPaypal {
			t.Fatalf("unexpected capture: %+v", rep)
		}
	})

	u := currentUserOK(t, env)

	t.Run("stripe webhook", func(t *testing.T) {
		obj, err := json.Marshal(map[string]any{
			"id":              "pi_e2e",
			"object":          "payment_intent",
			"amount_received": c3.Price,
			"metadata":        map[string]string{"userId": u.ID, "courseId": c3.ID},
		})
		if err != nil {
			t.Fatal(err)
		}

		b, err := json.Marshal(map[string]any{
			"id":          "evt_e2e",
			"object":      "event",
			"api_version": stripe.APIVersion,
			"type":        "payment_intent.succeeded",
			"data":        map[string]any{"object": json.RawMessage(obj)},
		})
		if err != nil {
			t.Fatal(err)
		}

		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   b,
			Secret:    stripeSecret,
			Timestamp: time.Now(),
		})

		r, err := http.NewRequest(http.MethodPost, env.URL+"/payments/stripe/webhook", bytes.NewBuffer(b))
		if err != nil {
			t.Fatal(err)
		}
		r.Header.Set("Stripe-Signature", signed.Header)

		w, err := env.Client().Do(r)
		if err != nil {
			t.Fatal(err)
		}
		defer w.Body.Close()

		if w.StatusCode != http.StatusNoContent {
			t.Fatalf("can't trigger stripe webhook: status code %s", w.Status)
		}
	})

	t.Run("razorpay webhook", func(t *testing.T) {
		b, err := json.Marshal(map[string]any{
			"event": "payment.captured",
			"payload": map[string]any{"payment": map[string]any{"entity": map[string]any{
				"id":       "pay_hook",
				"order_id": "order_hook",
				"amount":   c4.Price,
				"currency": "INR",
				"status":   "captured",
				"notes":    map[string]string{"userId": u.ID, "courseId": c4.ID},
			}}},
		})
		if err != nil {
			t.Fatal(err)
		}

		mac := hmac.New(sha256.New, []byte(razorpayHook))
		mac.Write(b)

		r, err := http.NewRequest(http.MethodPost, env.URL+"/payments/razorpay/webhook", bytes.NewBuffer(b))
		if err != nil {
			t.Fatal(err)
		}
		r.Header.Set("X-Razorpay-Signature", hex.EncodeToString(mac.Sum(nil)))

		w, err := env.Client().Do(r)
		if err != nil {
			t.Fatal(err)
		}
		defer w.Body.Close()

		if w.StatusCode != http.StatusNoContent {
			t.Fatalf("can't trigger razorpay webhook: status code %s", w.Status)
		}
	})

	owner := currentUserOK(t, env)
	for _, c := range []course.Course{c1, c2, c3, c4} {
		if !owner.HasCourse(c.ID) {
			t.Fatalf("course %s missing from the mirror %v", c.ID, owner.Courses)
		}
	}

	if err := Logout(env.Server); err != nil {
		t.Fatal(err)
	}
	if code := env.do(t, http.MethodPost, "/payments/verify", payment.Confirmation{}, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected verify without a session to be rejected, got %d", code)
	}
}

func createCourseOK(t *testing.T, env *TestEnv, price int64) course.Course {
	t.Helper()

	if err := Login(env.Server, env.AdminEmail, env.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(env.Server)

	in := course.CourseNew{
		Name:        fmt.Sprintf("Course %d", rand.Intn(100000)),
		Description: "A course",
		Price:       price,
		Units: course.Units{{UnitID: "u1", Title: "Start", Lessons: []course.Lesson{
			{LessonID: "L1", Title: "Hello", Duration: 10},
			{LessonID: "L2", Title: "World", Duration: 20},
		}}},
	}

	var out struct {
		Course course.Course `json:"course"`
	}
	if code := env.do(t, http.MethodPost, "/courses", in, &out); code != http.StatusCreated {
		t.Fatalf("can't create course: status code %d", code)
	}
	return out.Course
}

func currentUserOK(t *testing.T, env *TestEnv) user.User {
	t.Helper()

	var out struct {
		User user.User `json:"user"`
	}
	if code := env.do(t, http.MethodGet, "/users/current", nil, &out); code != http.StatusOK {
		t.Fatalf("can't fetch current user: status code %d", code)
	}
	return out.User
}
