package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/notify"
)

type fakeGateway struct {
	mu        sync.Mutex
	amount    int64
	fetchErr  error
	createErr error
	fetched   int
	orders    []OrderRequest
}

func (g *fakeGateway) Name() string { return ProviderRazorpay }

func (g *fakeGateway) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return Order{}, g.createErr
	}
	g.orders = append(g.orders, req)
	return Order{ID: "order_1", Provider: ProviderRazorpay, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched++
	if g.fetchErr != nil {
		return Payment{}, g.fetchErr
	}
	return Payment{ID: paymentID, Amount: g.amount, Status: "captured"}, nil
}

type fakeUsers map[string]user.User

func (f fakeUsers) Fetch(ctx context.Context, id string) (user.User, error) {
	u, ok := f[id]
	if !ok {
		return user.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

type fakeCourses map[string]course.Course

func (f fakeCourses) Fetch(ctx context.Context, id string) (course.Course, error) {
	c, ok := f[id]
	if !ok {
		return course.Course{}, apperr.NotFound("course not found")
	}
	return c, nil
}

// fakeEnroller keeps one enrollment per pair, like the real manager.
type fakeEnroller struct {
	mu    sync.Mutex
	calls []enrollment.PaymentInfo
	rows  map[string]enrollment.Enrollment
}

func (f *fakeEnroller) Enroll(ctx context.Context, userID, courseID string, pay enrollment.PaymentInfo) (enrollment.Enrollment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pay)

	if f.rows == nil {
		f.rows = map[string]enrollment.Enrollment{}
	}
	key := userID + "/" + courseID
	if e, ok := f.rows[key]; ok {
		return e, false, nil
	}

	e := enrollment.Enrollment{
		ID:            "e-" + key,
		UserID:        userID,
		CourseID:      courseID,
		Status:        enrollment.StatusActive,
		PaymentMethod: pay.Method,
		PaymentID:     pay.PaymentID,
	}
	if pay.Amount != nil {
		e.AmountPaid = *pay.Amount
	}
	f.rows[key] = e
	return e, true, nil
}

type fakeClaims struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (f *fakeClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeClaims) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (f *fakeMailer) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMailer) Send(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s []string
	for _, m := range f.sent {
		s = append(s, m.Subject)
	}
	return s
}

var errDown = errors.New("connection refused")
