package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/irsalhamdi/e-learning/api"
	"github.com/irsalhamdi/e-learning/api/background"
	"github.com/irsalhamdi/e-learning/core/auth"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/irsalhamdi/e-learning/core/payment"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/database/dbtest"
	"github.com/irsalhamdi/e-learning/kvstore"
	"github.com/irsalhamdi/e-learning/notify"
	"github.com/irsalhamdi/e-learning/rate"
	"github.com/irsalhamdi/e-learning/validate"
	"github.com/plutov/paypal/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	signatureSecret = "rzp_test_secret"
	stripeSecret    = "whsec_test"
	razorpayHook    = "rzp_webhook_secret"
)

type mailbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (m *mailbox) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *mailbox) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s []string
	for _, msg := range m.msgs {
		s = append(s, msg.Subject)
	}
	return s
}

type TestEnv struct {
	*httptest.Server
	URL string

	Razorpay *mockRazorpay
	Paypal   *mockPaypal
	Mail     *mailbox
	bg       *background.Background

	AdminEmail string
	AdminPass  string
	UserEmail  string
	UserPass   string
}

func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	db := dbtest.NewDB(t, name)
	kv := kvstore.New(dbtest.NewRedis(t), name+":")
	log := dbtest.Logger(t)

	env := &TestEnv{
		Razorpay:   &mockRazorpay{payments: map[string]int64{}},
		Paypal:     &mockPaypal{},
		Mail:       &mailbox{},
		AdminEmail: "admin@example.com",
		AdminPass:  "admin-secret",
		UserEmail:  "learner@example.com",
		UserPass:   "learner-secret",
	}

	rzp := httptest.NewServer(env.Razorpay.handle())
	t.Cleanup(rzp.Close)
	pps := httptest.NewServer(env.Paypal.handle())
	t.Cleanup(pps.Close)

	ppc, err := paypal.NewClient("client", "secret", pps.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}

	ctx := context.Background()
	users := user.NewStore(db)
	if err := createUser(ctx, users, "Admin", env.AdminEmail, env.AdminPass, claims.RoleAdmin); err != nil {
		return nil, err
	}
	if err := createUser(ctx, users, "Learner", env.UserEmail, env.UserPass, claims.RoleUser); err != nil {
		return nil, err
	}

	env.bg = background.New(log)
	lm := rate.NewLimiter(100, time.Minute, rate.Every(time.Millisecond))
	t.Cleanup(lm.Close)

	mux := api.APIMux(api.APIConfig{
		Log:        log,
		DB:         db,
		KV:         kv,
		Session:    auth.NewSessionManager(kv.Sessions(), time.Hour),
		Background: env.bg,

		Mailer:        env.Mail,
		MailTimeout:   time.Second,
		ActivationURL: "http://localhost:3000/activate",
		TokenTimeout:  time.Minute,

		Payment: payment.Config{
			Secret:       signatureSecret,
			Currency:     "INR",
			Timeout:      time.Second,
			NotifiedTTL:  time.Hour,
			DashboardURL: "http://localhost:3000/dashboard",
		},
		Gateway: payment.NewRazorpay(payment.RazorpayConfig{
			KeyID:     "rzp_key",
			KeySecret: signatureSecret,
			URL:       rzp.URL,
			Timeout:   time.Second,
		}),
		Paypal:                payment.NewPaypal(ppc),
		StripeWebhookSecret:   stripeSecret,
		RazorpayWebhookSecret: razorpayHook,

		Providers:      map[string]auth.Provider{},
		LoginLimiter:   lm,
		PaymentLimiter: lm,
	})

	env.Server = httptest.NewServer(mux)
	env.URL = env.Server.URL
	t.Cleanup(env.Server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	env.Server.Client().Jar = jar

	return env, nil
}

func createUser(ctx context.Context, users *user.Store, name, email, pass, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	u := user.User{
		ID:           validate.GenerateID(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		return fmt.Errorf("creating %s: %w", email, err)
	}
	return nil
}

// waitBackground blocks until every mail queued so far was handled.
func (env *TestEnv) waitBackground(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.bg.Shutdown(ctx); err != nil {
		t.Fatalf("background tasks: %v", err)
	}
}

func Login(server *httptest.Server, email, pass string) error {
	b, err := json.Marshal(map[string]string{"email": email, "password": pass})
	if err != nil {
		return err
	}

	w, err := server.Client().Post(server.URL+"/auth/login", "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("login of %s: status code %s", email, w.Status)
	}
	return nil
}

func Logout(server *httptest.Server) error {
	w, err := server.Client().Post(server.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		return fmt.Errorf("logout: status code %s", w.Status)
	}
	return nil
}

// do sends body as JSON and decodes the reply into out when it is not nil.
// It returns the status code.
func (env *TestEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, env.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if out != nil && w.StatusCode < 300 && w.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return w.StatusCode
}
