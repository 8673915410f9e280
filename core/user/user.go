package user

import (
	"time"

	"github.com/lib/pq"
)

type User struct {
	ID           string         `json:"id" db:"user_id"`
	Name         string         `json:"name" db:"name"`
	Email        string         `json:"email" db:"email"`
	Role         string         `json:"role" db:"role"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Active       bool           `json:"active" db:"active"`
	Courses      pq.StringArray `json:"enrolledCourses" db:"courses"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

type UserSignup struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" validate:"eqfield=Password"`
}

type UserNew struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required,oneof=ADMIN USER"`
	Password string `json:"password" validate:"required,min=6"`
}

// HasCourse reports whether the mirror lists courseID.
func (u User) HasCourse(courseID string) bool {
	for _, c := range u.Courses {
		if c == courseID {
			return true
		}
	}
	return false
}
