package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/metrics"
	"github.com/irsalhamdi/e-learning/validate"
	"github.com/sirupsen/logrus"
)

type Storer interface {
	Create(ctx context.Context, e Enrollment) error
	FetchByID(ctx context.Context, id string) (Enrollment, error)
	FetchByUserCourse(ctx context.Context, userID, courseID string) (Enrollment, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, statuses []Status) ([]Enrollment, error)
	CourseIDsByUser(ctx context.Context, userID string, statuses []Status) ([]string, error)
	CountByCourse(ctx context.Context, courseID string, statuses []Status) (int, error)
	UserIDs(ctx context.Context) ([]string, error)
	UpdateStatus(ctx context.Context, id string, from, to Status, now time.Time) (bool, error)
	SetCurrentLesson(ctx context.Context, id, lessonID string, now time.Time) (Enrollment, error)
}

type Courses interface {
	Fetch(ctx context.Context, id string) (course.Course, error)
	IDs(ctx context.Context) ([]string, error)
	AddEnrollments(ctx context.Context, id string, delta int) error
	SetEnrollments(ctx context.Context, id string, n int) error
}

// Users is the owner of the per-user course mirror.
type Users interface {
	FetchCourses(ctx context.Context, userID string) ([]string, error)
	AddCourse(ctx context.Context, userID, courseID string) error
	RemoveCourse(ctx context.Context, userID, courseID string) error
	SetCourses(ctx context.Context, userID string, courseIDs []string) error
	IDsWithCourses(ctx context.Context) ([]string, error)
}

// Manager owns the user-course binding. The enrollment row is the source of
// truth; the user mirror and the course counter are updated after it on a
// best-effort basis and can be rebuilt with the Reconcile methods.
type Manager struct {
	log     logrus.FieldLogger
	store   Storer
	courses Courses
	users   Users
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewManager(log logrus.FieldLogger, store Storer, courses Courses, users Users, m *metrics.Metrics) *Manager {
	return &Manager{
		log:     log,
		store:   store,
		courses: courses,
		users:   users,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enroll returns the enrollment of userID in courseID, creating it when
// absent. The boolean reports whether this call created it. Repeated and
// concurrent calls for one pair all return the same row.
func (m *Manager) Enroll(ctx context.Context, userID, courseID string, pay PaymentInfo) (Enrollment, bool, error) {
	if err := validate.CheckIDs(map[string]string{"user id": userID, "course id": courseID}); err != nil {
		return Enrollment{}, false, err
	}

	log := m.log.WithFields(logrus.Fields{"user_id": userID, "course_id": courseID})

	c, err := m.courses.Fetch(ctx, courseID)
	if err != nil {
		return Enrollment{}, false, fmt.Errorf("fetching course: %w", err)
	}

	existing, err := m.store.FetchByUserCourse(ctx, userID, courseID)
	switch {
	case err == nil:
		m.metrics.Enrollment("existing")
		m.healMirror(ctx, log, existing)
		return existing, false, nil
	case !apperr.Is(err, apperr.KindNotFound):
		return Enrollment{}, false, fmt.Errorf("looking up enrollment: %w", err)
	}

	now := m.now()
	e := Enrollment{
		ID:               validate.GenerateID(),
		UserID:           userID,
		CourseID:         courseID,
		Status:           StatusActive,
		PaymentStatus:    PaymentPaid,
		PaymentMethod:    pay.Method,
		PaymentID:        pay.PaymentID,
		OrderID:          pay.OrderID,
		AmountPaid:       c.Price,
		AccessLevel:      AccessFull,
		CompletedLessons: []string{},
		LastAccessed:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if pay.Amount != nil {
		e.AmountPaid = *pay.Amount
	}
	if e.PaymentMethod == "" {
		e.PaymentMethod = "razorpay"
	}
	if first, ok := c.FirstLesson(); ok {
		e.CurrentLesson = &first
	}

	if err := m.store.Create(ctx, e); err != nil {
		if !apperr.Is(err, apperr.KindConflict) {
			return Enrollment{}, false, fmt.Errorf("creating enrollment: %w", err)
		}

		// Another request inserted the pair first; its row is the result.
		winner, err := m.store.FetchByUserCourse(ctx, userID, courseID)
		if err != nil {
			return Enrollment{}, false, fmt.Errorf("reading concurrent enrollment: %w", err)
		}
		m.metrics.Enrollment("race")
		log.Info("concurrent enrollment resolved to existing row")
		m.healMirror(ctx, log, winner)
		return winner, false, nil
	}

	m.metrics.Enrollment("created")
	log = log.WithField("enrollment_id", e.ID)

	if err := m.users.AddCourse(ctx, userID, courseID); err != nil {
		m.secondaryFailed(log, metrics.TargetMirror, err)
	}
	if err := m.courses.AddEnrollments(ctx, courseID, 1); err != nil {
		m.secondaryFailed(log, metrics.TargetCounter, err)
	}

	log.Info("enrolled")
	return e, true, nil
}

// Unenroll deletes an enrollment owned by requesterID.
func (m *Manager) Unenroll(ctx context.Context, enrollmentID, requesterID string) error {
	if err := validate.CheckID(enrollmentID); err != nil {
		return err
	}

	e, err := m.owned(ctx, enrollmentID, requesterID)
	if err != nil {
		return err
	}

	if err := m.store.Delete(ctx, e.ID); err != nil {
		return fmt.Errorf("deleting enrollment: %w", err)
	}

	log := m.log.WithFields(logrus.Fields{"user_id": e.UserID, "course_id": e.CourseID, "enrollment_id": e.ID})

	if err := m.users.RemoveCourse(ctx, e.UserID, e.CourseID); err != nil {
		m.secondaryFailed(log, metrics.TargetMirror, err)
	}
	// Dropped and suspended rows were already taken out of the counter.
	if e.Status.IsLive() {
		if err := m.courses.AddEnrollments(ctx, e.CourseID, -1); err != nil {
			m.secondaryFailed(log, metrics.TargetCounter, err)
		}
	}

	log.Info("unenrolled")
	return nil
}

// Drop lets the owner leave a course while keeping the record.
func (m *Manager) Drop(ctx context.Context, enrollmentID, requesterID string) (Enrollment, error) {
	if err := validate.CheckID(enrollmentID); err != nil {
		return Enrollment{}, err
	}

	e, err := m.owned(ctx, enrollmentID, requesterID)
	if err != nil {
		return Enrollment{}, err
	}

	return m.transition(ctx, e, StatusDropped, false)
}

// SetCurrentLesson moves the owner's live enrollment to lessonID.
func (m *Manager) SetCurrentLesson(ctx context.Context, enrollmentID, requesterID string, up LessonUpdate) (Enrollment, error) {
	if err := validate.CheckID(enrollmentID); err != nil {
		return Enrollment{}, err
	}
	if err := validate.Check(up); err != nil {
		return Enrollment{}, err
	}

	e, err := m.owned(ctx, enrollmentID, requesterID)
	if err != nil {
		return Enrollment{}, err
	}
	if !e.Status.IsLive() {
		return Enrollment{}, apperr.Permission("Not enrolled in this course")
	}

	updated, err := m.store.SetCurrentLesson(ctx, e.ID, up.CurrentLesson, m.now())
	if err != nil {
		return Enrollment{}, fmt.Errorf("setting current lesson: %w", err)
	}
	return updated, nil
}

// Suspend blocks access to a course. Admin only.
func (m *Manager) Suspend(ctx context.Context, enrollmentID string) (Enrollment, error) {
	if err := validate.CheckID(enrollmentID); err != nil {
		return Enrollment{}, err
	}

	e, err := m.store.FetchByID(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("fetching enrollment: %w", err)
	}

	return m.transition(ctx, e, StatusSuspended, true)
}

// Restore reactivates a suspended enrollment. Admin only.
func (m *Manager) Restore(ctx context.Context, enrollmentID string) (Enrollment, error) {
	if err := validate.CheckID(enrollmentID); err != nil {
		return Enrollment{}, err
	}

	e, err := m.store.FetchByID(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("fetching enrollment: %w", err)
	}

	return m.transition(ctx, e, StatusActive, true)
}

func (m *Manager) transition(ctx context.Context, e Enrollment, to Status, admin bool) (Enrollment, error) {
	if err := Transition(e.Status, to, admin); err != nil {
		return Enrollment{}, err
	}

	ok, err := m.store.UpdateStatus(ctx, e.ID, e.Status, to, m.now())
	if err != nil {
		return Enrollment{}, fmt.Errorf("updating status: %w", err)
	}
	if !ok {
		return Enrollment{}, apperr.Conflict(nil, "enrollment changed concurrently, retry")
	}

	log := m.log.WithFields(logrus.Fields{
		"user_id":       e.UserID,
		"course_id":     e.CourseID,
		"enrollment_id": e.ID,
		"from":          e.Status,
		"to":            to,
	})

	switch {
	case e.Status.IsLive() && !to.IsLive():
		if err := m.users.RemoveCourse(ctx, e.UserID, e.CourseID); err != nil {
			m.secondaryFailed(log, metrics.TargetMirror, err)
		}
		if err := m.courses.AddEnrollments(ctx, e.CourseID, -1); err != nil {
			m.secondaryFailed(log, metrics.TargetCounter, err)
		}
	case !e.Status.IsLive() && to.IsLive():
		if err := m.users.AddCourse(ctx, e.UserID, e.CourseID); err != nil {
			m.secondaryFailed(log, metrics.TargetMirror, err)
		}
		if err := m.courses.AddEnrollments(ctx, e.CourseID, 1); err != nil {
			m.secondaryFailed(log, metrics.TargetCounter, err)
		}
	}

	log.Info("enrollment status changed")

	updated, err := m.store.FetchByID(ctx, e.ID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("reading updated enrollment: %w", err)
	}
	return updated, nil
}

// ListMine returns the live enrollments of userID with their courses. An
// enrollment whose course was deleted is listed without one.
func (m *Manager) ListMine(ctx context.Context, userID string) ([]Listed, error) {
	if err := validate.CheckID(userID); err != nil {
		return nil, err
	}

	es, err := m.store.ListByUser(ctx, userID, Live)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}

	summaries := make(map[string]*course.Summary)
	out := make([]Listed, 0, len(es))
	for _, e := range es {
		s, seen := summaries[e.CourseID]
		if !seen {
			c, err := m.courses.Fetch(ctx, e.CourseID)
			switch {
			case err == nil:
				cs := c.Summary()
				s = &cs
			case apperr.Is(err, apperr.KindNotFound):
				m.log.WithFields(logrus.Fields{"user_id": userID, "course_id": e.CourseID}).Info("enrolled course no longer exists")
			default:
				return nil, fmt.Errorf("fetching course[%s]: %w", e.CourseID, err)
			}
			summaries[e.CourseID] = s
		}
		out = append(out, Listed{Enrollment: e, Course: s})
	}
	return out, nil
}

// ReconcileUser rebuilds the mirror of userID from its live enrollments and
// reports whether it had drifted.
func (m *Manager) ReconcileUser(ctx context.Context, userID string) (bool, error) {
	if err := validate.CheckID(userID); err != nil {
		return false, err
	}

	want, err := m.store.CourseIDsByUser(ctx, userID, Live)
	if err != nil {
		return false, fmt.Errorf("listing enrolled courses: %w", err)
	}

	have, err := m.users.FetchCourses(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("fetching mirror: %w", err)
	}

	drifted := !sameSet(want, have)
	if drifted {
		if err := m.users.SetCourses(ctx, userID, want); err != nil {
			return false, fmt.Errorf("rewriting mirror: %w", err)
		}
		m.log.WithFields(logrus.Fields{"user_id": userID, "had": have, "want": want}).Info("user mirror repaired")
	}

	m.metrics.Reconciled(metrics.TargetMirror, drifted)
	return drifted, nil
}

// ReconcileCourse rebuilds the enrollment counter of courseID from a live
// count and reports whether it had drifted.
func (m *Manager) ReconcileCourse(ctx context.Context, courseID string) (bool, error) {
	if err := validate.CheckID(courseID); err != nil {
		return false, err
	}

	c, err := m.courses.Fetch(ctx, courseID)
	if err != nil {
		return false, fmt.Errorf("fetching course: %w", err)
	}

	n, err := m.store.CountByCourse(ctx, courseID, Live)
	if err != nil {
		return false, fmt.Errorf("counting enrollments: %w", err)
	}

	drifted := c.TotalEnrollments != n
	if drifted {
		if err := m.courses.SetEnrollments(ctx, courseID, n); err != nil {
			return false, fmt.Errorf("rewriting counter: %w", err)
		}
		m.log.WithFields(logrus.Fields{"course_id": courseID, "had": c.TotalEnrollments, "want": n}).Info("course counter repaired")
	}

	m.metrics.Reconciled(metrics.TargetCounter, drifted)
	return drifted, nil
}

type Report struct {
	Users          int `json:"users"`
	UsersDrifted   int `json:"usersDrifted"`
	Courses        int `json:"courses"`
	CoursesDrifted int `json:"coursesDrifted"`
	Failed         int `json:"failed"`
}

// ReconcileAll reconciles every user that holds an enrollment or a non-empty
// mirror, then every course. A failure on one entity does not stop the
// others; all failures are returned joined.
func (m *Manager) ReconcileAll(ctx context.Context) (Report, error) {
	var rep Report
	var errs []error

	enrolled, err := m.store.UserIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing enrolled users: %w", err)
	}
	mirrored, err := m.users.IDsWithCourses(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing mirrored users: %w", err)
	}

	for _, id := range union(enrolled, mirrored) {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Users++
		drifted, err := m.ReconcileUser(ctx, id)
		if err != nil {
			rep.Failed++
			errs = append(errs, fmt.Errorf("user[%s]: %w", id, err))
			continue
		}
		if drifted {
			rep.UsersDrifted++
		}
	}

	courseIDs, err := m.courses.IDs(ctx)
	if err != nil {
		return rep, errors.Join(append(errs, fmt.Errorf("listing courses: %w", err))...)
	}

	for _, id := range courseIDs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Courses++
		drifted, err := m.ReconcileCourse(ctx, id)
		if err != nil {
			rep.Failed++
			errs = append(errs, fmt.Errorf("course[%s]: %w", id, err))
			continue
		}
		if drifted {
			rep.CoursesDrifted++
		}
	}

	return rep, errors.Join(errs...)
}

func (m *Manager) owned(ctx context.Context, enrollmentID, requesterID string) (Enrollment, error) {
	e, err := m.store.FetchByID(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("fetching enrollment: %w", err)
	}
	if e.UserID != requesterID {
		return Enrollment{}, apperr.Permission("not authorized to change this enrollment")
	}
	return e, nil
}

// healMirror puts a live enrollment's course back into the user mirror. It
// never fails the caller.
func (m *Manager) healMirror(ctx context.Context, log logrus.FieldLogger, e Enrollment) {
	if !e.Status.IsLive() {
		return
	}
	if err := m.users.AddCourse(ctx, e.UserID, e.CourseID); err != nil {
		m.secondaryFailed(log, metrics.TargetMirror, err)
	}
}

func (m *Manager) secondaryFailed(log logrus.FieldLogger, target string, err error) {
	m.metrics.SecondaryFailure(target)
	log.WithField("target", target).WithError(err).Error("secondary write failed, left for reconciliation")
}

func sameSet(a, b []string) bool {
	x := union(a, nil)
	y := union(b, nil)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	// A mirror holding duplicates is drifted even if the sets agree.
	return len(b) == len(y)
}

// union returns the sorted distinct ids of a and b.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
