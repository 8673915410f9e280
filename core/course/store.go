package course

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/jmoiron/sqlx"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const courseColumns = `course_id, name, description, image_url, price, currency, units, total_enrollments, created_at, updated_at, version`

func (s *Store) Create(ctx context.Context, c Course) error {
	const q = `
	INSERT INTO courses (course_id, name, description, image_url, price, currency, units, total_enrollments, created_at, updated_at, version)
	VALUES (:course_id, :name, :description, :image_url, :price, :currency, :units, :total_enrollments, :created_at, :updated_at, :version)`

	if _, err := sqlx.NamedExecContext(ctx, s.db, q, c); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, id string) (Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses WHERE course_id = $1`

	var c Course
	if err := sqlx.GetContext(ctx, s.db, &c, q, id); err != nil {
		if database.IsNotFound(err) {
			return Course{}, apperr.NotFound("course not found")
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}
	return c, nil
}

func (s *Store) List(ctx context.Context) ([]Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses ORDER BY created_at DESC`

	courses := []Course{}
	if err := sqlx.SelectContext(ctx, s.db, &courses, q); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}
	return courses, nil
}

// IDs lists every course id.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	const q = `SELECT course_id FROM courses`

	var ids []string
	if err := sqlx.SelectContext(ctx, s.db, &ids, q); err != nil {
		return nil, fmt.Errorf("selecting course ids: %w", err)
	}
	return ids, nil
}

// UpdateUnits replaces the structure. Lesson totals follow automatically.
func (s *Store) UpdateUnits(ctx context.Context, id string, units Units) error {
	const q = `UPDATE courses SET units = $2, updated_at = $3, version = version + 1 WHERE course_id = $1`

	res, err := s.db.ExecContext(ctx, q, id, units, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating units of course[%s]: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("course not found")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM courses WHERE course_id = $1`

	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("deleting course[%s]: %w", id, err)
	}
	return nil
}

// AddEnrollments atomically moves the counter by delta, never below zero.
func (s *Store) AddEnrollments(ctx context.Context, id string, delta int) error {
	const q = `
	UPDATE courses
	SET total_enrollments = GREATEST(total_enrollments + $2, 0)
	WHERE course_id = $1`

	if _, err := s.db.ExecContext(ctx, q, id, delta); err != nil {
		return fmt.Errorf("moving enrollment counter of course[%s] by %d: %w", id, delta, err)
	}
	return nil
}

// SetEnrollments overwrites the counter with a recomputed value.
func (s *Store) SetEnrollments(ctx context.Context, id string, n int) error {
	const q = `UPDATE courses SET total_enrollments = $2 WHERE course_id = $1`

	if _, err := s.db.ExecContext(ctx, q, id, n); err != nil {
		return fmt.Errorf("setting enrollment counter of course[%s]: %w", id, err)
	}
	return nil
}
