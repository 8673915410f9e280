package user

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store persists users. The courses column is the denormalized mirror of
// the user's enrollments; it is only changed through set operations.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const userColumns = `user_id, name, email, role, password_hash, active, courses, created_at, updated_at`

func (s *Store) Create(ctx context.Context, u User) error {
	const q = `
	INSERT INTO users (user_id, name, email, role, password_hash, active, courses, created_at, updated_at)
	VALUES (:user_id, :name, :email, :role, :password_hash, :active, :courses, :created_at, :updated_at)`

	if u.Courses == nil {
		u.Courses = pq.StringArray{}
	}
	if _, err := sqlx.NamedExecContext(ctx, s.db, q, u); err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict(err, "email already in use")
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, id string) (User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	var u User
	if err := sqlx.GetContext(ctx, s.db, &u, q, id); err != nil {
		if database.IsNotFound(err) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, fmt.Errorf("selecting user[%s]: %w", id, err)
	}
	return u, nil
}

func (s *Store) FetchByEmail(ctx context.Context, email string) (User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var u User
	if err := sqlx.GetContext(ctx, s.db, &u, q, email); err != nil {
		if database.IsNotFound(err) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return u, nil
}

// Activate marks the account verified.
func (s *Store) Activate(ctx context.Context, id string) error {
	const q = `UPDATE users SET active = TRUE, updated_at = $2 WHERE user_id = $1`

	res, err := s.db.ExecContext(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activating user[%s]: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// AddCourse adds courseID to the mirror. Adding a present id is a no-op.
func (s *Store) AddCourse(ctx context.Context, userID, courseID string) error {
	const q = `
	UPDATE users
	SET courses = array_append(courses, $2::text), updated_at = $3
	WHERE user_id = $1 AND NOT ($2::text = ANY(courses))`

	if _, err := s.db.ExecContext(ctx, q, userID, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("adding course[%s] to user[%s]: %w", courseID, userID, err)
	}
	return nil
}

// RemoveCourse removes every occurrence of courseID from the mirror.
func (s *Store) RemoveCourse(ctx context.Context, userID, courseID string) error {
	const q = `
	UPDATE users
	SET courses = array_remove(courses, $2::text), updated_at = $3
	WHERE user_id = $1`

	if _, err := s.db.ExecContext(ctx, q, userID, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("removing course[%s] from user[%s]: %w", courseID, userID, err)
	}
	return nil
}

// SetCourses overwrites the mirror with the recomputed set.
func (s *Store) SetCourses(ctx context.Context, userID string, courseIDs []string) error {
	const q = `UPDATE users SET courses = $2, updated_at = $3 WHERE user_id = $1`

	if courseIDs == nil {
		courseIDs = []string{}
	}
	if _, err := s.db.ExecContext(ctx, q, userID, pq.StringArray(courseIDs), time.Now().UTC()); err != nil {
		return fmt.Errorf("setting courses of user[%s]: %w", userID, err)
	}
	return nil
}

// FetchCourses returns the mirror of userID.
func (s *Store) FetchCourses(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT courses FROM users WHERE user_id = $1`

	var courses pq.StringArray
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(&courses); err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("selecting courses of user[%s]: %w", userID, err)
	}
	return courses, nil
}

// IDsWithCourses lists users whose mirror is not empty.
func (s *Store) IDsWithCourses(ctx context.Context) ([]string, error) {
	const q = `SELECT user_id FROM users WHERE cardinality(courses) > 0`

	var ids []string
	if err := sqlx.SelectContext(ctx, s.db, &ids, q); err != nil {
		return nil, fmt.Errorf("selecting users with courses: %w", err)
	}
	return ids, nil
}
