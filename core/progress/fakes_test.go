package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/codeexec"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
)

type memStore struct {
	mu      sync.Mutex
	rows    map[string]Progress
	entries []Entry
	seq     int64
	writes  int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]Progress)}
}

func (s *memStore) FindOrCreate(ctx context.Context, p Progress) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.UserID == p.UserID && r.CourseID == p.CourseID && r.LessonID == p.LessonID {
			return r, nil
		}
	}
	s.rows[p.ID] = p
	s.writes++
	return p, nil
}

func (s *memStore) Apply(ctx context.Context, id string, status Status, timeSpent int, now time.Time) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[id]
	if !ok {
		return Progress{}, apperr.NotFound("progress not found")
	}
	p.Status = status
	p.TimeSpent += timeSpent
	p.LastAccessedAt = now
	if status == StatusCompleted && p.CompletedAt == nil {
		at := now
		p.CompletedAt = &at
	}
	p.UpdatedAt = now
	s.rows[id] = p
	s.writes++
	return p, nil
}

func (s *memStore) AppendEntry(ctx context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e.Seq = s.seq
	s.entries = append(s.entries, e)
	s.writes++
	return e, nil
}

func (s *memStore) RefreshScore(ctx context.Context, progressID string) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Entry
	for i := range s.entries {
		e := &s.entries[i]
		if e.ProgressID == progressID && (latest == nil || e.Seq > latest.Seq) {
			latest = e
		}
	}
	if latest == nil {
		return Progress{}, apperr.NotFound("progress has no history")
	}

	p := s.rows[progressID]
	p.Score = latest.Score
	p.MaxScore = latest.MaxScore
	s.rows[progressID] = p
	return p, nil
}

func (s *memStore) Entries(ctx context.Context, progressID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Entry{}
	for _, e := range s.entries {
		if e.ProgressID == progressID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *memStore) ListByUserCourse(ctx context.Context, userID, courseID string) ([]Progress, error) {
	s.mu.Lock()
	var rows []Progress
	for _, r := range s.rows {
		if r.UserID == userID && r.CourseID == courseID {
			rows = append(rows, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].LessonID < rows[j].LessonID })
	for i := range rows {
		entries, _ := s.Entries(ctx, rows[i].ID)
		if err := attach(&rows[i], entries); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (s *memStore) byLesson(lessonID string) (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.LessonID == lessonID {
			return r, true
		}
	}
	return Progress{}, false
}

type memEnrollments struct {
	mu   sync.Mutex
	rows map[string]enrollment.Enrollment
}

func newMemEnrollments(es ...enrollment.Enrollment) *memEnrollments {
	m := &memEnrollments{rows: make(map[string]enrollment.Enrollment)}
	for _, e := range es {
		m.rows[e.ID] = e
	}
	return m
}

func (m *memEnrollments) FetchByUserCourse(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.rows {
		if e.UserID == userID && e.CourseID == courseID {
			return e, nil
		}
	}
	return enrollment.Enrollment{}, apperr.NotFound("enrollment not found")
}

func (m *memEnrollments) ListByUser(ctx context.Context, userID string, statuses []enrollment.Status) ([]enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []enrollment.Enrollment
	for _, e := range m.rows {
		if e.UserID != userID {
			continue
		}
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *memEnrollments) AddCompletedLesson(ctx context.Context, id, lessonID string, totalLessons, timeSpent int, now time.Time) (enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rows[id]
	if !ok {
		return enrollment.Enrollment{}, apperr.NotFound("enrollment not found")
	}
	if !e.HasCompleted(lessonID) {
		e.CompletedLessons = append(e.CompletedLessons, lessonID)
	}
	e.TotalProgress = enrollment.Percent(len(e.CompletedLessons), totalLessons)
	e.TimeSpent += timeSpent
	e.LastAccessed = now
	m.rows[id] = e
	return e, nil
}

func (m *memEnrollments) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.rows[id]
	if e.Status != enrollment.StatusActive || e.TotalProgress < 100 {
		return false, nil
	}
	e.Status = enrollment.StatusCompleted
	e.CompletedAt = &now
	m.rows[id] = e
	return true, nil
}

func (m *memEnrollments) SetCurrentLesson(ctx context.Context, id, lessonID string, now time.Time) (enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rows[id]
	if !ok {
		return enrollment.Enrollment{}, apperr.NotFound("enrollment not found")
	}
	e.CurrentLesson = &lessonID
	e.LastAccessed = now
	m.rows[id] = e
	return e, nil
}

func (m *memEnrollments) get(id string) enrollment.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type memCourses struct {
	mu      sync.Mutex
	courses map[string]course.Course
}

func (m *memCourses) Fetch(ctx context.Context, id string) (course.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok {
		return course.Course{}, apperr.NotFound("course not found")
	}
	return c, nil
}

func (m *memCourses) addLesson(courseID, lessonID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.courses[courseID]
	units := append(course.Units(nil), c.Units...)
	units[0].Lessons = append(append([]course.Lesson(nil), units[0].Lessons...), course.Lesson{LessonID: lessonID, Order: 99})
	c.Units = units
	m.courses[courseID] = c
}

// fakeRunner passes the first pass[code] test cases of a submission.
type fakeRunner struct {
	pass map[string]int
	err  error
}

func (f fakeRunner) Run(ctx context.Context, code, language string, cases []codeexec.TestCase) ([]codeexec.Result, error) {
	if f.err != nil {
		return nil, f.err
	}

	results := make([]codeexec.Result, len(cases))
	for i, tc := range cases {
		passed := i < f.pass[code]
		out := tc.ExpectedOutput
		if !passed {
			out += " (wrong)"
		}
		results[i] = codeexec.Result{
			TestCase:       i + 1,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   out,
			Passed:         passed,
			Points:         1,
		}
	}
	return results, nil
}
