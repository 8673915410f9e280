package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store persists lesson progress. Rows of progress_entries are only ever
// inserted.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const progressColumns = `progress_id, user_id, course_id, lesson_id, status, time_spent, started_at, completed_at,
	last_accessed_at, score, max_score, created_at, updated_at`

const entryColumns = `entry_id, progress_id, seq, kind, score, max_score, payload, submitted_at`

// FindOrCreate returns the row for p's user, course and lesson, inserting p
// when there is none.
func (s *Store) FindOrCreate(ctx context.Context, p Progress) (Progress, error) {
	const ins = `
	INSERT INTO progress (` + progressColumns + `)
	VALUES (:progress_id, :user_id, :course_id, :lesson_id, :status, :time_spent, :started_at, :completed_at,
		:last_accessed_at, :score, :max_score, :created_at, :updated_at)
	ON CONFLICT (user_id, course_id, lesson_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, s.db, ins, p); err != nil {
		return Progress{}, fmt.Errorf("inserting progress: %w", err)
	}

	q := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = $1 AND course_id = $2 AND lesson_id = $3`

	var out Progress
	if err := sqlx.GetContext(ctx, s.db, &out, q, p.UserID, p.CourseID, p.LessonID); err != nil {
		return Progress{}, fmt.Errorf("selecting progress of lesson[%s]: %w", p.LessonID, err)
	}
	return out, nil
}

// Apply sets the status, adds timeSpent and stamps the completion time the
// first time the lesson is completed.
func (s *Store) Apply(ctx context.Context, id string, status Status, timeSpent int, now time.Time) (Progress, error) {
	q := `
	UPDATE progress
	SET status = $2,
		time_spent = time_spent + $3,
		last_accessed_at = $4,
		completed_at = CASE WHEN $2 = 'completed' THEN COALESCE(completed_at, $4) ELSE completed_at END,
		updated_at = $4
	WHERE progress_id = $1
	RETURNING ` + progressColumns

	var p Progress
	if err := sqlx.GetContext(ctx, s.db, &p, q, id, string(status), timeSpent, now); err != nil {
		if database.IsNotFound(err) {
			return Progress{}, apperr.NotFound("progress not found")
		}
		return Progress{}, fmt.Errorf("updating progress[%s]: %w", id, err)
	}
	return p, nil
}

// AppendEntry inserts e and returns it with its sequence number.
func (s *Store) AppendEntry(ctx context.Context, e Entry) (Entry, error) {
	const q = `
	INSERT INTO progress_entries (entry_id, progress_id, kind, score, max_score, payload, submitted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING seq`

	if err := s.db.QueryRowContext(ctx, q, e.ID, e.ProgressID, string(e.Kind), e.Score, e.MaxScore, e.Payload, e.SubmittedAt).Scan(&e.Seq); err != nil {
		return Entry{}, fmt.Errorf("appending %s entry to progress[%s]: %w", e.Kind, e.ProgressID, err)
	}
	return e, nil
}

// RefreshScore copies the score of the highest sequence entry onto the
// progress row.
func (s *Store) RefreshScore(ctx context.Context, progressID string) (Progress, error) {
	q := `
	UPDATE progress p
	SET score = latest.score, max_score = latest.max_score
	FROM (
		SELECT score, max_score FROM progress_entries
		WHERE progress_id = $1
		ORDER BY seq DESC
		LIMIT 1
	) latest
	WHERE p.progress_id = $1
	RETURNING ` + prefixed("p.", progressColumns)

	var p Progress
	if err := sqlx.GetContext(ctx, s.db, &p, q, progressID); err != nil {
		if database.IsNotFound(err) {
			return Progress{}, apperr.NotFound("progress has no history")
		}
		return Progress{}, fmt.Errorf("refreshing score of progress[%s]: %w", progressID, err)
	}
	return p, nil
}

// Entries returns the history of progressID in append order.
func (s *Store) Entries(ctx context.Context, progressID string) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM progress_entries WHERE progress_id = $1 ORDER BY seq`

	entries := []Entry{}
	if err := sqlx.SelectContext(ctx, s.db, &entries, q, progressID); err != nil {
		return nil, fmt.Errorf("selecting entries of progress[%s]: %w", progressID, err)
	}
	return entries, nil
}

// ListByUserCourse returns every lesson row of the user in the course with
// its history attached.
func (s *Store) ListByUserCourse(ctx context.Context, userID, courseID string) ([]Progress, error) {
	q := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = $1 AND course_id = $2 ORDER BY started_at`

	rows := []Progress{}
	if err := sqlx.SelectContext(ctx, s.db, &rows, q, userID, courseID); err != nil {
		return nil, fmt.Errorf("selecting progress of user[%s] course[%s]: %w", userID, courseID, err)
	}
	if len(rows) == 0 {
		return rows, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	eq := `SELECT ` + entryColumns + ` FROM progress_entries WHERE progress_id = ANY($1::uuid[]) ORDER BY seq`

	var entries []Entry
	if err := sqlx.SelectContext(ctx, s.db, &entries, eq, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("selecting entries of user[%s] course[%s]: %w", userID, courseID, err)
	}

	byProgress := make(map[string][]Entry, len(rows))
	for _, e := range entries {
		byProgress[e.ProgressID] = append(byProgress[e.ProgressID], e)
	}
	for i := range rows {
		if err := attach(&rows[i], byProgress[rows[i].ID]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// prefixed qualifies every column of a comma separated list with prefix.
func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
