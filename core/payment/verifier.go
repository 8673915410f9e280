package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/api/background"
	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/metrics"
	"github.com/irsalhamdi/e-learning/notify"
	"github.com/irsalhamdi/e-learning/random"
	"github.com/irsalhamdi/e-learning/validate"
	"github.com/sirupsen/logrus"
)

type Users interface {
	Fetch(ctx context.Context, id string) (user.User, error)
}

type Courses interface {
	Fetch(ctx context.Context, id string) (course.Course, error)
}

type Enroller interface {
	Enroll(ctx context.Context, userID, courseID string, pay enrollment.PaymentInfo) (enrollment.Enrollment, bool, error)
}

// Claimer hands out one-time claims on keys that expire after ttl. Delete
// gives a claim back.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Secret       string
	Currency     string
	Timeout      time.Duration
	NotifiedTTL  time.Duration
	DashboardURL string
}

type Deps struct {
	Users       Users
	Courses     Courses
	Enrollments Enroller
	Claims      Claimer
	Mailer      notify.Dispatcher
	Background  *background.Background
	Metrics     *metrics.Metrics
}

// Verifier authenticates payment confirmations and records them. It never
// decides on its own whether a payment was already recorded; repeated
// confirmations rely on the idempotency of Enroll.
type Verifier struct {
	log     logrus.FieldLogger
	cfg     Config
	gateway Gateway
	deps    Deps
}

func NewVerifier(log logrus.FieldLogger, cfg Config, gw Gateway, deps Deps) *Verifier {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.NotifiedTTL <= 0 {
		cfg.NotifiedTTL = 24 * time.Hour
	}
	return &Verifier{log: log, cfg: cfg, gateway: gw, deps: deps}
}

// Gateway returns the gateway orders are created with.
func (v *Verifier) Gateway() Gateway {
	return v.gateway
}

// CreateOrder opens an order at the gateway for userID.
func (v *Verifier) CreateOrder(ctx context.Context, userID string, in OrderNew) (Order, error) {
	if err := validate.CheckID(userID); err != nil {
		return Order{}, err
	}
	if err := validate.Check(in); err != nil {
		return Order{}, err
	}

	currency := in.Currency
	if currency == "" {
		currency = v.cfg.Currency
	}

	suffix, err := random.String(14)
	if err != nil {
		return Order{}, fmt.Errorf("generating receipt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	ord, err := v.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   in.Amount,
		Currency: currency,
		Receipt:  "receipt_" + suffix,
		UserID:   userID,
		CourseID: in.CourseID,
	})
	if err != nil {
		return Order{}, apperr.Dependency(err, "payment gateway unavailable")
	}

	v.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"course_id": in.CourseID,
		"order_id":  ord.ID,
		"provider":  ord.Provider,
	}).Info("payment order created")
	return ord, nil
}

// Verify checks the signature of a checkout confirmation and settles it.
// A bad signature fails before anything is read or written.
func (v *Verifier) Verify(ctx context.Context, userID string, c Confirmation) (Result, error) {
	if err := validate.Check(c); err != nil {
		return Result{}, err
	}
	if err := validate.CheckID(userID); err != nil {
		return Result{}, err
	}

	if !ValidSignature(v.cfg.Secret, c.OrderID, c.PaymentID, c.Signature) {
		v.deps.Metrics.Verification("rejected")
		v.log.WithFields(logrus.Fields{
			"user_id":    userID,
			"order_id":   c.OrderID,
			"payment_id": c.PaymentID,
		}).Warn("payment signature mismatch")
		return Result{}, apperr.Authentication("Invalid signature. Payment verification failed")
	}

	return v.Settle(ctx, Settlement{
		Method:    v.gateway.Name(),
		OrderID:   c.OrderID,
		PaymentID: c.PaymentID,
		UserID:    userID,
		CourseID:  c.CourseID,
	})
}

// Settle records an already authenticated payment: it establishes the
// amount, enrolls the user when a course is given and queues the
// confirmation mails.
func (v *Verifier) Settle(ctx context.Context, s Settlement) (Result, error) {
	ids := map[string]string{"user id": s.UserID}
	if s.CourseID != "" {
		ids["course id"] = s.CourseID
	}
	if err := validate.CheckIDs(ids); err != nil {
		return Result{}, err
	}

	log := v.log.WithFields(logrus.Fields{
		"user_id":    s.UserID,
		"course_id":  s.CourseID,
		"payment_id": s.PaymentID,
		"provider":   s.Method,
	})

	var amount int64
	if s.Amount != nil {
		amount = *s.Amount
	} else {
		gw := s.Gateway
		if gw == nil {
			gw = v.gateway
		}
		amount = v.lookupAmount(ctx, log, gw, s.PaymentID)
	}

	u, err := v.deps.Users.Fetch(ctx, s.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("fetching user: %w", err)
	}

	res := Result{Amount: amount}

	var crs *course.Course
	if s.CourseID != "" {
		c, err := v.deps.Courses.Fetch(ctx, s.CourseID)
		if err != nil {
			return Result{}, fmt.Errorf("fetching course: %w", err)
		}
		crs = &c

		e, created, err := v.deps.Enrollments.Enroll(ctx, s.UserID, s.CourseID, enrollment.PaymentInfo{
			Method:    s.Method,
			PaymentID: s.PaymentID,
			OrderID:   s.OrderID,
			Amount:    &amount,
		})
		if err != nil {
			return Result{}, fmt.Errorf("enrolling: %w", err)
		}
		res.Enrollment = &e
		res.EnrollmentCreated = created
	}

	v.deps.Metrics.Verification("verified")
	log.WithField("amount", amount).Info("payment verified")

	v.deps.Background.Go(func() {
		v.notify(u, crs, s, amount)
	})

	return res, nil
}

// lookupAmount asks the gateway for the charged amount. A failed lookup is
// not fatal: the payment is recorded with amount 0.
func (v *Verifier) lookupAmount(ctx context.Context, log logrus.FieldLogger, gw Gateway, paymentID string) int64 {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	p, err := gw.FetchPayment(ctx, paymentID)
	if err != nil {
		v.deps.Metrics.Verification("amount_unavailable")
		log.WithError(err).Warn("could not fetch payment amount, recording 0")
		return 0
	}
	return p.Amount
}

func (v *Verifier) notify(u user.User, c *course.Course, s Settlement, amount int64) {
	ctx, cancel := context.WithTimeout(context.Background(), v.cfg.Timeout)
	defer cancel()

	log := v.log.WithFields(logrus.Fields{
		"user_id":    u.ID,
		"payment_id": s.PaymentID,
	})

	v.send(ctx, log, "payment-notified:"+s.PaymentID, receiptMessage(u, s, amount, v.cfg.DashboardURL))
	if c != nil {
		v.send(ctx, log, "payment-welcomed:"+s.PaymentID, welcomeMessage(u, *c))
	}
}

// send delivers msg once per claim key. A failed delivery gives the claim
// back so a later confirmation of the payment can retry it.
func (v *Verifier) send(ctx context.Context, log logrus.FieldLogger, key string, msg notify.Message) {
	log = log.WithField("subject", msg.Subject)

	first, err := v.deps.Claims.Claim(ctx, key, v.cfg.NotifiedTTL)
	switch {
	case err != nil:
		log.WithError(err).Warn("notification claim unavailable, sending anyway")
	case !first:
		log.Info("already notified")
		return
	}

	err = v.deps.Mailer.Send(ctx, msg)
	v.deps.Metrics.Notification(err)
	if err == nil {
		return
	}
	log.WithError(err).Error("sending notification")

	if first {
		if err := v.deps.Claims.Delete(ctx, key); err != nil {
			log.WithError(err).Warn("releasing notification claim")
		}
	}
}

func receiptMessage(u user.User, s Settlement, amount int64, dashboard string) notify.Message {
	body := fmt.Sprintf(
		"Hi %s,\n\nThank you for your payment. We have received your transaction.\n\n"+
			"Amount paid: %s\nPayment ID: %s\nOrder ID: %s\nDate: %s\n\nGo to your dashboard: %s\n",
		u.Name, formatAmount(amount), s.PaymentID, s.OrderID, time.Now().UTC().Format("02 Jan 2006"), dashboard,
	)
	return notify.Message{To: u.Email, Name: u.Name, Subject: "Payment Successful", Body: body}
}

func welcomeMessage(u user.User, c course.Course) notify.Message {
	body := fmt.Sprintf(
		"Hi %s,\n\nYou are now enrolled in %s.\n\nUnits: %d\nLessons: %d\n\nHappy learning!\n",
		u.Name, c.Name, len(c.Units), c.TotalLessons(),
	)
	return notify.Message{To: u.Email, Name: u.Name, Subject: "Welcome to " + c.Name, Body: body}
}

// formatAmount renders minor units as a decimal amount.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
