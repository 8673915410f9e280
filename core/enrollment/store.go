package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store persists enrollments. The (user_id, course_id) unique constraint is
// what keeps concurrent enrollments of one pair down to a single row.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const enrollmentColumns = `enrollment_id, user_id, course_id, status, payment_status, payment_method, payment_id, order_id,
	amount_paid, access_level, completed_lessons, current_lesson, total_progress, time_spent, last_accessed,
	completed_at, created_at, updated_at`

func statusArray(statuses []Status) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}

// Create inserts e. A row for the same user and course turns into a
// conflict error.
func (s *Store) Create(ctx context.Context, e Enrollment) error {
	const q = `
	INSERT INTO enrollments (` + enrollmentColumns + `)
	VALUES (:enrollment_id, :user_id, :course_id, :status, :payment_status, :payment_method, :payment_id, :order_id,
		:amount_paid, :access_level, :completed_lessons, :current_lesson, :total_progress, :time_spent, :last_accessed,
		:completed_at, :created_at, :updated_at)`

	if e.CompletedLessons == nil {
		e.CompletedLessons = pq.StringArray{}
	}
	if _, err := sqlx.NamedExecContext(ctx, s.db, q, e); err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict(err, "already enrolled")
		}
		return fmt.Errorf("inserting enrollment: %w", err)
	}
	return nil
}

func (s *Store) FetchByID(ctx context.Context, id string) (Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE enrollment_id = $1`

	var e Enrollment
	if err := sqlx.GetContext(ctx, s.db, &e, q, id); err != nil {
		if database.IsNotFound(err) {
			return Enrollment{}, apperr.NotFound("enrollment not found")
		}
		return Enrollment{}, fmt.Errorf("selecting enrollment[%s]: %w", id, err)
	}
	return e, nil
}

func (s *Store) FetchByUserCourse(ctx context.Context, userID, courseID string) (Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`

	var e Enrollment
	if err := sqlx.GetContext(ctx, s.db, &e, q, userID, courseID); err != nil {
		if database.IsNotFound(err) {
			return Enrollment{}, apperr.NotFound("enrollment not found")
		}
		return Enrollment{}, fmt.Errorf("selecting enrollment of user[%s] course[%s]: %w", userID, courseID, err)
	}
	return e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM enrollments WHERE enrollment_id = $1`

	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("deleting enrollment[%s]: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("enrollment not found")
	}
	return nil
}

// ListByUser returns the user's enrollments in the given statuses, most
// recently accessed first.
func (s *Store) ListByUser(ctx context.Context, userID string, statuses []Status) ([]Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments
	WHERE user_id = $1 AND status = ANY($2)
	ORDER BY last_accessed DESC`

	es := []Enrollment{}
	if err := sqlx.SelectContext(ctx, s.db, &es, q, userID, statusArray(statuses)); err != nil {
		return nil, fmt.Errorf("selecting enrollments of user[%s]: %w", userID, err)
	}
	return es, nil
}

func (s *Store) CourseIDsByUser(ctx context.Context, userID string, statuses []Status) ([]string, error) {
	const q = `SELECT course_id FROM enrollments WHERE user_id = $1 AND status = ANY($2) ORDER BY created_at`

	ids := []string{}
	if err := sqlx.SelectContext(ctx, s.db, &ids, q, userID, statusArray(statuses)); err != nil {
		return nil, fmt.Errorf("selecting course ids of user[%s]: %w", userID, err)
	}
	return ids, nil
}

func (s *Store) CountByCourse(ctx context.Context, courseID string, statuses []Status) (int, error) {
	const q = `SELECT count(*) FROM enrollments WHERE course_id = $1 AND status = ANY($2)`

	var n int
	if err := s.db.QueryRowContext(ctx, q, courseID, statusArray(statuses)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting enrollments of course[%s]: %w", courseID, err)
	}
	return n, nil
}

// UserIDs lists every user holding at least one enrollment row.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT user_id FROM enrollments`

	var ids []string
	if err := sqlx.SelectContext(ctx, s.db, &ids, q); err != nil {
		return nil, fmt.Errorf("selecting enrolled user ids: %w", err)
	}
	return ids, nil
}

// UpdateStatus moves the enrollment from one status to another. It reports
// false when the row was no longer in from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status, now time.Time) (bool, error) {
	const q = `
	UPDATE enrollments
	SET status = $3,
		completed_at = CASE WHEN $3 = 'completed' THEN COALESCE(completed_at, $4) ELSE completed_at END,
		updated_at = $4
	WHERE enrollment_id = $1 AND status = $2`

	res, err := s.db.ExecContext(ctx, q, id, string(from), string(to), now)
	if err != nil {
		return false, fmt.Errorf("updating status of enrollment[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// SetCurrentLesson records lessonID as the lesson the learner is on.
func (s *Store) SetCurrentLesson(ctx context.Context, id, lessonID string, now time.Time) (Enrollment, error) {
	q := `
	UPDATE enrollments
	SET current_lesson = $2, last_accessed = $3, updated_at = $3
	WHERE enrollment_id = $1
	RETURNING ` + enrollmentColumns

	var e Enrollment
	if err := sqlx.GetContext(ctx, s.db, &e, q, id, lessonID, now); err != nil {
		if database.IsNotFound(err) {
			return Enrollment{}, apperr.NotFound("enrollment not found")
		}
		return Enrollment{}, fmt.Errorf("setting current lesson of enrollment[%s]: %w", id, err)
	}
	return e, nil
}

// AddCompletedLesson adds lessonID to the completed set and recomputes the
// total against totalLessons in one statement. Repeating it for the same
// lesson leaves the set unchanged. Ids of lessons since removed from the
// course still count, so the total can exceed 100.
func (s *Store) AddCompletedLesson(ctx context.Context, id, lessonID string, totalLessons, timeSpent int, now time.Time) (Enrollment, error) {
	q := `
	UPDATE enrollments
	SET completed_lessons = CASE
			WHEN $2::text = ANY(completed_lessons) THEN completed_lessons
			ELSE array_append(completed_lessons, $2::text)
		END,
		total_progress = CASE
			WHEN $3::int > 0 THEN
				(200 * (cardinality(completed_lessons) + CASE WHEN $2::text = ANY(completed_lessons) THEN 0 ELSE 1 END) + $3::int) / (2 * $3::int)
			ELSE 0
		END,
		time_spent = time_spent + $4,
		last_accessed = $5,
		updated_at = $5
	WHERE enrollment_id = $1
	RETURNING ` + enrollmentColumns

	var e Enrollment
	if err := sqlx.GetContext(ctx, s.db, &e, q, id, lessonID, totalLessons, timeSpent, now); err != nil {
		if database.IsNotFound(err) {
			return Enrollment{}, apperr.NotFound("enrollment not found")
		}
		return Enrollment{}, fmt.Errorf("adding completed lesson to enrollment[%s]: %w", id, err)
	}
	return e, nil
}

// Complete moves an active enrollment whose total reached 100 to completed.
// A completed enrollment is never moved back.
func (s *Store) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `
	UPDATE enrollments
	SET status = 'completed', completed_at = COALESCE(completed_at, $2), updated_at = $2
	WHERE enrollment_id = $1 AND status = 'active' AND total_progress >= 100`

	res, err := s.db.ExecContext(ctx, q, id, now)
	if err != nil {
		return false, fmt.Errorf("completing enrollment[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
