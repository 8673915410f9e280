package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/codeexec"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/metrics"
	"github.com/irsalhamdi/e-learning/validate"
	"github.com/jmoiron/sqlx/types"
	"github.com/sirupsen/logrus"
)

const recentActivity = 5

type Storer interface {
	FindOrCreate(ctx context.Context, p Progress) (Progress, error)
	Apply(ctx context.Context, id string, status Status, timeSpent int, now time.Time) (Progress, error)
	AppendEntry(ctx context.Context, e Entry) (Entry, error)
	RefreshScore(ctx context.Context, progressID string) (Progress, error)
	Entries(ctx context.Context, progressID string) ([]Entry, error)
	ListByUserCourse(ctx context.Context, userID, courseID string) ([]Progress, error)
}

type Enrollments interface {
	FetchByUserCourse(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error)
	ListByUser(ctx context.Context, userID string, statuses []enrollment.Status) ([]enrollment.Enrollment, error)
	AddCompletedLesson(ctx context.Context, id, lessonID string, totalLessons, timeSpent int, now time.Time) (enrollment.Enrollment, error)
	Complete(ctx context.Context, id string, now time.Time) (bool, error)
	SetCurrentLesson(ctx context.Context, id, lessonID string, now time.Time) (enrollment.Enrollment, error)
}

type Courses interface {
	Fetch(ctx context.Context, id string) (course.Course, error)
}

// Tracker records lesson events and keeps the enrollment aggregate in step
// with completed lessons.
type Tracker struct {
	log         logrus.FieldLogger
	store       Storer
	enrollments Enrollments
	courses     Courses
	runner      codeexec.Runner
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewTracker(log logrus.FieldLogger, store Storer, enrollments Enrollments, courses Courses, runner codeexec.Runner, m *metrics.Metrics) *Tracker {
	return &Tracker{
		log:         log,
		store:       store,
		enrollments: enrollments,
		courses:     courses,
		runner:      runner,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Recorded is the persisted outcome of one event.
type Recorded struct {
	Progress   Progress              `json:"progress"`
	Enrollment enrollment.Enrollment `json:"enrollment"`
	Submission *CodingSubmission     `json:"submission,omitempty"`
}

// Record applies ev to the user's lesson. The lesson id is not checked
// against the course structure.
func (t *Tracker) Record(ctx context.Context, userID, lessonID string, ev Event) (Recorded, error) {
	if err := validate.Check(ev); err != nil {
		return Recorded{}, err
	}
	if err := validate.CheckIDs(map[string]string{"user id": userID, "course id": ev.CourseID}); err != nil {
		return Recorded{}, err
	}
	if lessonID == "" {
		return Recorded{}, apperr.Validation("lesson id is required")
	}

	e, err := t.enrolled(ctx, userID, ev.CourseID)
	if err != nil {
		return Recorded{}, err
	}

	status := ev.Status
	if status == "" {
		status = StatusCompleted
	}

	now := t.now()

	// The submission runs before anything is written, so a failing
	// executor leaves no trace.
	var sub *CodingSubmission
	if ev.CodingSubmission != nil {
		sub, err = t.runCoding(ctx, *ev.CodingSubmission, now)
		if err != nil {
			return Recorded{}, err
		}
		status = StatusInProgress
		if sub.Percentage == 100 {
			status = StatusCompleted
		}
	}

	p, err := t.store.FindOrCreate(ctx, Progress{
		ID:             validate.GenerateID(),
		UserID:         userID,
		CourseID:       ev.CourseID,
		LessonID:       lessonID,
		Status:         StatusNotStarted,
		StartedAt:      now,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Recorded{}, fmt.Errorf("finding progress: %w", err)
	}
	wasCompleted := p.Status == StatusCompleted

	if p, err = t.store.Apply(ctx, p.ID, status, ev.TimeSpent, now); err != nil {
		return Recorded{}, fmt.Errorf("applying event: %w", err)
	}

	appended := false
	if ev.answered() {
		if err := t.appendQuiz(ctx, p.ID, ev, now); err != nil {
			return Recorded{}, err
		}
		appended = true
	}
	if sub != nil {
		if err := t.append(ctx, p.ID, KindCoding, sub.Percentage, 100, sub, now); err != nil {
			return Recorded{}, err
		}
		appended = true
	}
	if appended {
		if p, err = t.store.RefreshScore(ctx, p.ID); err != nil {
			return Recorded{}, fmt.Errorf("refreshing score: %w", err)
		}
	}

	entries, err := t.store.Entries(ctx, p.ID)
	if err != nil {
		return Recorded{}, fmt.Errorf("reading history: %w", err)
	}
	if err := attach(&p, entries); err != nil {
		return Recorded{}, err
	}

	log := t.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"course_id":     ev.CourseID,
		"lesson_id":     lessonID,
		"enrollment_id": e.ID,
		"status":        p.Status,
	})

	if cur, err := t.enrollments.SetCurrentLesson(ctx, e.ID, lessonID, now); err != nil {
		t.metrics.SecondaryFailure(metrics.TargetSummary)
		log.WithError(err).Error("current lesson not updated")
	} else {
		e = cur
	}

	if p.Status == StatusCompleted {
		if !wasCompleted {
			t.metrics.LessonCompleted()
		}
		e = t.propagate(ctx, log, e, lessonID, ev.TimeSpent, now)
	}

	log.Info("lesson progress recorded")
	return Recorded{Progress: p, Enrollment: e, Submission: sub}, nil
}

// propagate folds a completed lesson into the enrollment aggregate. Its
// failures are logged and leave the saved lesson progress untouched; the
// last persisted enrollment is returned.
func (t *Tracker) propagate(ctx context.Context, log logrus.FieldLogger, e enrollment.Enrollment, lessonID string, timeSpent int, now time.Time) enrollment.Enrollment {
	c, err := t.courses.Fetch(ctx, e.CourseID)
	if err != nil {
		t.metrics.SecondaryFailure(metrics.TargetSummary)
		log.WithError(err).Error("course unavailable, enrollment summary not updated")
		return e
	}

	updated, err := t.enrollments.AddCompletedLesson(ctx, e.ID, lessonID, c.TotalLessons(), timeSpent, now)
	if err != nil {
		t.metrics.SecondaryFailure(metrics.TargetSummary)
		log.WithError(err).Error("enrollment summary not updated")
		return e
	}

	if updated.TotalProgress >= 100 && updated.Status == enrollment.StatusActive {
		ok, err := t.enrollments.Complete(ctx, updated.ID, now)
		if err != nil {
			t.metrics.SecondaryFailure(metrics.TargetSummary)
			log.WithError(err).Error("enrollment not marked completed")
			return updated
		}
		if ok {
			updated.Status = enrollment.StatusCompleted
			if updated.CompletedAt == nil {
				updated.CompletedAt = &now
			}
			log.Info("course completed")
		}
	}
	return updated
}

func (t *Tracker) runCoding(ctx context.Context, ce CodingEvent, now time.Time) (*CodingSubmission, error) {
	start := time.Now()
	results, err := t.runner.Run(ctx, ce.Code, ce.Language, ce.TestCases)
	if err != nil {
		return nil, fmt.Errorf("running submission: %w", err)
	}

	passed, total, pct := codeexec.Summary(results)
	status := "failed"
	if pct == 100 {
		status = "passed"
	}

	return &CodingSubmission{
		SubmissionID:  validate.GenerateID(),
		ProblemID:     ce.ProblemID,
		Code:          ce.Code,
		Language:      ce.Language,
		Status:        status,
		TestsPassed:   passed,
		TotalTests:    total,
		Percentage:    pct,
		ExecutionTime: time.Since(start).Milliseconds(),
		TestResults:   results,
		SubmittedAt:   now,
	}, nil
}

func (t *Tracker) appendQuiz(ctx context.Context, progressID string, ev Event, now time.Time) error {
	score, maxScore := 0, 100
	if ev.Score != nil {
		score = *ev.Score
	}
	if ev.MaxScore != nil {
		maxScore = *ev.MaxScore
	}

	a := QuizAttempt{
		AttemptID:   validate.GenerateID(),
		Answers:     ev.QuizAnswers,
		Score:       score,
		MaxScore:    maxScore,
		Percentage:  enrollment.Percent(score, maxScore),
		SubmittedAt: now,
		TimeSpent:   ev.TimeSpent,
	}
	return t.append(ctx, progressID, KindQuiz, score, maxScore, a, now)
}

func (t *Tracker) append(ctx context.Context, progressID string, kind EntryKind, score, maxScore int, payload any, now time.Time) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s entry: %w", kind, err)
	}

	_, err = t.store.AppendEntry(ctx, Entry{
		ID:          validate.GenerateID(),
		ProgressID:  progressID,
		Kind:        kind,
		Score:       score,
		MaxScore:    maxScore,
		Payload:     types.JSONText(b),
		SubmittedAt: now,
	})
	if err != nil {
		return fmt.Errorf("appending %s entry: %w", kind, err)
	}
	return nil
}

// CourseProgress reports the user's progress through a course they are
// enrolled in. Percentages use the course's current lesson count.
func (t *Tracker) CourseProgress(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	if err := validate.CheckIDs(map[string]string{"user id": userID, "course id": courseID}); err != nil {
		return CourseProgress{}, err
	}

	e, err := t.enrolled(ctx, userID, courseID)
	if err != nil {
		return CourseProgress{}, err
	}

	c, err := t.courses.Fetch(ctx, courseID)
	if err != nil {
		return CourseProgress{}, fmt.Errorf("fetching course: %w", err)
	}

	rows, err := t.store.ListByUserCourse(ctx, userID, courseID)
	if err != nil {
		return CourseProgress{}, fmt.Errorf("listing lesson progress: %w", err)
	}

	seconds := 0
	for _, p := range rows {
		seconds += p.TimeSpent
	}
	minutes := (seconds + 30) / 60

	remaining := c.TotalDuration() - minutes
	if remaining < 0 {
		remaining = 0
	}

	current := e.CurrentLesson
	if current == nil {
		if first, ok := c.FirstLesson(); ok {
			current = &first
		}
	}

	total := c.TotalLessons()
	done := len(e.CompletedLessons)

	return CourseProgress{
		CourseID:               courseID,
		CourseName:             c.Name,
		TotalLessons:           total,
		CompletedLessons:       done,
		OverallPercentage:      enrollment.Percent(done, total),
		TotalTimeSpent:         minutes,
		EstimatedTimeRemaining: remaining,
		CurrentLesson:          current,
		LastAccessed:           e.LastAccessed,
		Status:                 string(e.Status),
		DetailedProgress:       rows,
	}, nil
}

// Dashboard aggregates the user's live enrollments.
func (t *Tracker) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	if err := validate.CheckID(userID); err != nil {
		return Dashboard{}, err
	}

	es, err := t.enrollments.ListByUser(ctx, userID, enrollment.Live)
	if err != nil {
		return Dashboard{}, fmt.Errorf("listing enrollments: %w", err)
	}

	d := Dashboard{TotalCourses: len(es), RecentActivity: []Activity{}}
	sum := 0
	for _, e := range es {
		switch e.Status {
		case enrollment.StatusCompleted:
			d.CompletedCourses++
		case enrollment.StatusActive:
			d.ActiveCourses++
		}
		d.TotalTimeSpent += e.TimeSpent
		sum += e.TotalProgress
	}
	if n := len(es); n > 0 {
		d.AverageProgress = (2*sum + n) / (2 * n)
	}

	sort.SliceStable(es, func(i, j int) bool { return es[i].LastAccessed.After(es[j].LastAccessed) })
	if len(es) > recentActivity {
		es = es[:recentActivity]
	}

	for _, e := range es {
		a := Activity{CourseID: e.CourseID, Progress: e.TotalProgress, LastAccessed: e.LastAccessed}
		c, err := t.courses.Fetch(ctx, e.CourseID)
		switch {
		case err == nil:
			a.CourseName = c.Name
			a.ImageURL = c.ImageURL
		case !apperr.Is(err, apperr.KindNotFound):
			return Dashboard{}, fmt.Errorf("fetching course[%s]: %w", e.CourseID, err)
		}
		d.RecentActivity = append(d.RecentActivity, a)
	}
	return d, nil
}

// enrolled returns the user's live enrollment in the course.
func (t *Tracker) enrolled(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	e, err := t.enrollments.FetchByUserCourse(ctx, userID, courseID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return enrollment.Enrollment{}, apperr.Permission("Not enrolled in this course")
		}
		return enrollment.Enrollment{}, fmt.Errorf("checking enrollment: %w", err)
	}
	if !e.Status.IsLive() {
		return enrollment.Enrollment{}, apperr.Permission("Not enrolled in this course")
	}
	return e, nil
}
