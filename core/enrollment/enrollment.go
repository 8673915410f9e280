package enrollment

import (
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/lib/pq"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDropped   Status = "dropped"
	StatusSuspended Status = "suspended"
)

// Live are the statuses that count as being enrolled.
var Live = []Status{StatusActive, StatusCompleted}

func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusCompleted
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type AccessLevel string

const (
	AccessPreview AccessLevel = "preview"
	AccessFull    AccessLevel = "full"
	AccessExpired AccessLevel = "expired"
)

type Enrollment struct {
	ID               string         `json:"id" db:"enrollment_id"`
	UserID           string         `json:"userId" db:"user_id"`
	CourseID         string         `json:"courseId" db:"course_id"`
	Status           Status         `json:"status" db:"status"`
	PaymentStatus    PaymentStatus  `json:"paymentStatus" db:"payment_status"`
	PaymentMethod    string         `json:"paymentMethod" db:"payment_method"`
	PaymentID        string         `json:"paymentId,omitempty" db:"payment_id"`
	OrderID          string         `json:"orderId,omitempty" db:"order_id"`
	AmountPaid       int64          `json:"amountPaid" db:"amount_paid"`
	AccessLevel      AccessLevel    `json:"accessLevel" db:"access_level"`
	CompletedLessons pq.StringArray `json:"completedLessons" db:"completed_lessons"`
	CurrentLesson    *string        `json:"currentLesson" db:"current_lesson"`
	TotalProgress    int            `json:"totalProgress" db:"total_progress"`
	TimeSpent        int            `json:"timeSpent" db:"time_spent"`
	LastAccessed     time.Time      `json:"lastAccessed" db:"last_accessed"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time      `json:"updatedAt" db:"updated_at"`
}

// HasCompleted reports whether lessonID is in the completed set.
func (e Enrollment) HasCompleted(lessonID string) bool {
	for _, l := range e.CompletedLessons {
		if l == lessonID {
			return true
		}
	}
	return false
}

// PaymentInfo describes the payment an enrollment is created from. A nil
// Amount means the course price is recorded.
type PaymentInfo struct {
	Method    string
	PaymentID string
	OrderID   string
	Amount    *int64
}

// Listed is an enrollment together with its course. Course is nil when the
// course no longer exists.
type Listed struct {
	Enrollment
	Course *course.Summary `json:"course,omitempty"`
}

type EnrollRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	AmountPaid    *int64 `json:"amountPaid" validate:"omitempty,gte=0"`
	OrderID       string `json:"orderId"`
	PaymentID     string `json:"paymentId"`
}

// LessonUpdate moves the learner to another lesson. The completion total is
// derived from recorded progress and cannot be set here.
type LessonUpdate struct {
	CurrentLesson string `json:"currentLesson" validate:"required"`
}

// Transition checks a status change. Completion is automatic, dropping is
// done by the owner and is terminal, suspend and restore are admin only.
func Transition(from, to Status, admin bool) error {
	switch to {
	case StatusCompleted:
		if from == StatusActive {
			return nil
		}
	case StatusDropped:
		if from == StatusActive || from == StatusCompleted {
			return nil
		}
	case StatusSuspended:
		if !admin {
			return apperr.Permission("only an admin can suspend an enrollment")
		}
		if from != StatusSuspended {
			return nil
		}
	case StatusActive:
		if !admin {
			return apperr.Permission("only an admin can restore an enrollment")
		}
		if from == StatusSuspended {
			return nil
		}
	}
	return apperr.Validation("cannot move enrollment from %s to %s", from, to)
}

// Percent is round(100*n/d), rounding halves up. It is 0 when d is not
// positive. It is not capped at 100.
func Percent(n, d int) int {
	if d <= 0 {
		return 0
	}
	return (200*n + d) / (2 * d)
}
