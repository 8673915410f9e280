package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/codeexec"
	"github.com/jmoiron/sqlx/types"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

// Progress is one user's state on one lesson. Score and MaxScore are taken
// from the most recently appended history entry.
type Progress struct {
	ID             string     `json:"id" db:"progress_id"`
	UserID         string     `json:"userId" db:"user_id"`
	CourseID       string     `json:"courseId" db:"course_id"`
	LessonID       string     `json:"lessonId" db:"lesson_id"`
	Status         Status     `json:"status" db:"status"`
	TimeSpent      int        `json:"timeSpent" db:"time_spent"`
	StartedAt      time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt    *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	LastAccessedAt time.Time  `json:"lastAccessedAt" db:"last_accessed_at"`
	Score          int        `json:"score" db:"score"`
	MaxScore       int        `json:"maxScore" db:"max_score"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`

	QuizAttempts      []QuizAttempt      `json:"quizAttempts" db:"-"`
	CodingSubmissions []CodingSubmission `json:"codingSubmissions" db:"-"`
}

type EntryKind string

const (
	KindQuiz   EntryKind = "quiz"
	KindCoding EntryKind = "coding"
)

// Entry is one immutable history record. Seq is assigned by the database
// and orders entries of a lesson.
type Entry struct {
	ID          string         `db:"entry_id"`
	ProgressID  string         `db:"progress_id"`
	Seq         int64          `db:"seq"`
	Kind        EntryKind      `db:"kind"`
	Score       int            `db:"score"`
	MaxScore    int            `db:"max_score"`
	Payload     types.JSONText `db:"payload"`
	SubmittedAt time.Time      `db:"submitted_at"`
}

type QuizAttempt struct {
	AttemptID   string          `json:"attemptId"`
	Answers     json.RawMessage `json:"answers"`
	Score       int             `json:"score"`
	MaxScore    int             `json:"maxScore"`
	Percentage  int             `json:"percentage"`
	SubmittedAt time.Time       `json:"submittedAt"`
	TimeSpent   int             `json:"timeSpent"`
}

type CodingSubmission struct {
	SubmissionID  string            `json:"submissionId"`
	ProblemID     string            `json:"problemId"`
	Code          string            `json:"code"`
	Language      string            `json:"language"`
	Status        string            `json:"status"`
	TestsPassed   int               `json:"testsPassed"`
	TotalTests    int               `json:"totalTests"`
	Percentage    int               `json:"percentage"`
	ExecutionTime int64             `json:"executionTime"`
	TestResults   []codeexec.Result `json:"testResults"`
	SubmittedAt   time.Time         `json:"submittedAt"`
}

// Event is a lesson interaction. A missing status means completed. A coding
// submission decides the status itself.
type Event struct {
	CourseID         string          `json:"courseId" validate:"required"`
	Status           Status          `json:"status" validate:"omitempty,oneof=not_started in_progress completed skipped"`
	TimeSpent        int             `json:"timeSpent" validate:"gte=0"`
	Score            *int            `json:"score" validate:"omitempty,gte=0"`
	MaxScore         *int            `json:"maxScore" validate:"omitempty,gt=0"`
	QuizAnswers      json.RawMessage `json:"quizAnswers"`
	CodingSubmission *CodingEvent    `json:"codingSubmission"`
}

// answered reports whether ev carries quiz answers. A JSON null counts as
// none.
func (ev Event) answered() bool {
	raw := bytes.TrimSpace(ev.QuizAnswers)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

type CodingEvent struct {
	ProblemID string              `json:"problemId" validate:"required"`
	Code      string              `json:"code" validate:"required"`
	Language  string              `json:"language" validate:"required"`
	TestCases []codeexec.TestCase `json:"testCases" validate:"required,min=1"`
}

// attach decodes entries, already in seq order, into the history of p.
func attach(p *Progress, entries []Entry) error {
	p.QuizAttempts = []QuizAttempt{}
	p.CodingSubmissions = []CodingSubmission{}

	for _, e := range entries {
		switch e.Kind {
		case KindQuiz:
			var a QuizAttempt
			if err := e.Payload.Unmarshal(&a); err != nil {
				return fmt.Errorf("decoding quiz attempt[%s]: %w", e.ID, err)
			}
			p.QuizAttempts = append(p.QuizAttempts, a)
		case KindCoding:
			var s CodingSubmission
			if err := e.Payload.Unmarshal(&s); err != nil {
				return fmt.Errorf("decoding coding submission[%s]: %w", e.ID, err)
			}
			p.CodingSubmissions = append(p.CodingSubmissions, s)
		}
	}
	return nil
}

// CourseProgress is the aggregate view of one enrollment.
type CourseProgress struct {
	CourseID               string     `json:"courseId"`
	CourseName             string     `json:"courseName"`
	TotalLessons           int        `json:"totalLessons"`
	CompletedLessons       int        `json:"completedLessons"`
	OverallPercentage      int        `json:"overallPercentage"`
	TotalTimeSpent         int        `json:"totalTimeSpent"`
	EstimatedTimeRemaining int        `json:"estimatedTimeRemaining"`
	CurrentLesson          *string    `json:"currentLesson"`
	LastAccessed           time.Time  `json:"lastAccessed"`
	Status                 string     `json:"status"`
	DetailedProgress       []Progress `json:"detailedProgress"`
}

type Activity struct {
	CourseID     string    `json:"courseId"`
	CourseName   string    `json:"courseName,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Progress     int       `json:"progress"`
	LastAccessed time.Time `json:"lastAccessed"`
}

type Dashboard struct {
	TotalCourses     int        `json:"totalCourses"`
	CompletedCourses int        `json:"completedCourses"`
	ActiveCourses    int        `json:"activeCourses"`
	TotalTimeSpent   int        `json:"totalTimeSpent"`
	AverageProgress  int        `json:"averageProgress"`
	RecentActivity   []Activity `json:"recentActivity"`
}
