package course

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

type Course struct {
	ID               string    `json:"id" db:"course_id"`
	Name             string    `json:"name" db:"name"`
	Description      string    `json:"description" db:"description"`
	ImageURL         string    `json:"imageUrl" db:"image_url"`
	Price            int64     `json:"price" db:"price"`
	Currency         string    `json:"currency" db:"currency"`
	Units            Units     `json:"units" db:"units"`
	TotalEnrollments int       `json:"totalEnrollments" db:"total_enrollments"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
	Version          int       `json:"-" db:"version"`
}

type Unit struct {
	UnitID      string   `json:"unitId" validate:"required"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Order       int      `json:"order"`
	Lessons     []Lesson `json:"lessons" validate:"dive"`
}

type Lesson struct {
	LessonID  string `json:"lessonId" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Type      string `json:"type" validate:"omitempty,oneof=video text quiz coding assignment explanation examples"`
	Duration  int    `json:"duration" validate:"gte=0"`
	Order     int    `json:"order"`
	IsPreview bool   `json:"isPreview"`
}

// Units is the course structure, stored as a JSON document.
type Units []Unit

func (u Units) Value() (driver.Value, error) {
	if u == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(u)
}

func (u *Units) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*u = Units{}
		return nil
	default:
		return errors.New("units: unsupported source type")
	}
	return json.Unmarshal(b, u)
}

// TotalLessons is derived from the current structure, so editing a course
// changes it for every existing enrollment.
func (c Course) TotalLessons() int {
	n := 0
	for _, u := range c.Units {
		n += len(u.Lessons)
	}
	return n
}

// TotalDuration sums lesson durations, in minutes.
func (c Course) TotalDuration() int {
	d := 0
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			d += l.Duration
		}
	}
	return d
}

// FirstLesson returns the first lesson by unit order then lesson order.
func (c Course) FirstLesson() (string, bool) {
	units := make([]Unit, len(c.Units))
	copy(units, c.Units)
	sort.SliceStable(units, func(i, j int) bool { return units[i].Order < units[j].Order })

	for _, u := range units {
		if len(u.Lessons) == 0 {
			continue
		}
		lessons := make([]Lesson, len(u.Lessons))
		copy(lessons, u.Lessons)
		sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
		return lessons[0].LessonID, true
	}
	return "", false
}

// Summary is the slice of a course shown next to an enrollment.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Price       int64  `json:"price"`
}

func (c Course) Summary() Summary {
	return Summary{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		Price:       c.Price,
	}
}

type CourseNew struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Price       int64  `json:"price" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	ImageURL    string `json:"imageUrl"`
	Units       Units  `json:"units" validate:"dive"`
}
