package enrollment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/course"
)

type memStore struct {
	mu        sync.Mutex
	rows      map[string]Enrollment
	mutations int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]Enrollment)}
}

func (s *memStore) Create(ctx context.Context, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.UserID == e.UserID && r.CourseID == e.CourseID {
			return apperr.Conflict(errors.New("duplicate key"), "already enrolled")
		}
	}
	s.rows[e.ID] = e
	s.mutations++
	return nil
}

func (s *memStore) FetchByID(ctx context.Context, id string) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rows[id]
	if !ok {
		return Enrollment{}, apperr.NotFound("enrollment not found")
	}
	return e, nil
}

func (s *memStore) FetchByUserCourse(ctx context.Context, userID, courseID string) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.rows {
		if e.UserID == userID && e.CourseID == courseID {
			return e, nil
		}
	}
	return Enrollment{}, apperr.NotFound("enrollment not found")
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return apperr.NotFound("enrollment not found")
	}
	delete(s.rows, id)
	s.mutations++
	return nil
}

func in(s Status, statuses []Status) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

func (s *memStore) ListByUser(ctx context.Context, userID string, statuses []Status) ([]Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Enrollment{}
	for _, e := range s.rows {
		if e.UserID == userID && in(e.Status, statuses) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessed.After(out[j].LastAccessed) })
	return out, nil
}

func (s *memStore) CourseIDsByUser(ctx context.Context, userID string, statuses []Status) ([]string, error) {
	es, _ := s.ListByUser(ctx, userID, statuses)
	ids := make([]string, 0, len(es))
	for _, e := range es {
		ids = append(ids, e.CourseID)
	}
	return ids, nil
}

func (s *memStore) CountByCourse(ctx context.Context, courseID string, statuses []Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.rows {
		if e.CourseID == courseID && in(e.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UserIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var ids []string
	for _, e := range s.rows {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	return ids, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, from, to Status, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rows[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	if to == StatusCompleted && e.CompletedAt == nil {
		e.CompletedAt = &now
	}
	e.UpdatedAt = now
	s.rows[id] = e
	s.mutations++
	return true, nil
}

func (s *memStore) SetCurrentLesson(ctx context.Context, id, lessonID string, now time.Time) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rows[id]
	if !ok {
		return Enrollment{}, apperr.NotFound("enrollment not found")
	}
	e.CurrentLesson = &lessonID
	e.LastAccessed = now
	e.UpdatedAt = now
	s.rows[id] = e
	s.mutations++
	return e, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memCourses struct {
	mu        sync.Mutex
	courses   map[string]course.Course
	mutations int
}

func newMemCourses(cs ...course.Course) *memCourses {
	m := &memCourses{courses: make(map[string]course.Course)}
	for _, c := range cs {
		m.courses[c.ID] = c
	}
	return m
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

func (m *memCourses) IDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.courses))
	for id := range m.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memCourses) AddEnrollments(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok {
		return nil
	}
	c.TotalEnrollments += delta
	if c.TotalEnrollments < 0 {
		c.TotalEnrollments = 0
	}
	m.courses[id] = c
	m.mutations++
	return nil
}

func (m *memCourses) SetEnrollments(ctx context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.courses[id]
	c.TotalEnrollments = n
	m.courses[id] = c
	m.mutations++
	return nil
}

func (m *memCourses) total(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[id].TotalEnrollments
}

type memUsers struct {
	mu        sync.Mutex
	mirrors   map[string][]string
	failAdd   bool
	mutations int
}

func newMemUsers(ids ...string) *memUsers {
	u := &memUsers{mirrors: make(map[string][]string)}
	for _, id := range ids {
		u.mirrors[id] = []string{}
	}
	return u
}

func (u *memUsers) FetchCourses(ctx context.Context, userID string) ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	m, ok := u.mirrors[userID]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return append([]string(nil), m...), nil
}

func (u *memUsers) AddCourse(ctx context.Context, userID, courseID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.failAdd {
		return errors.New("mirror unavailable")
	}
	for _, c := range u.mirrors[userID] {
		if c == courseID {
			return nil
		}
	}
	u.mirrors[userID] = append(u.mirrors[userID], courseID)
	u.mutations++
	return nil
}

func (u *memUsers) RemoveCourse(ctx context.Context, userID, courseID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := []string{}
	for _, c := range u.mirrors[userID] {
		if c != courseID {
			out = append(out, c)
		}
	}
	u.mirrors[userID] = out
	u.mutations++
	return nil
}

func (u *memUsers) SetCourses(ctx context.Context, userID string, courseIDs []string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.mirrors[userID] = append([]string{}, courseIDs...)
	u.mutations++
	return nil
}

func (u *memUsers) IDsWithCourses(ctx context.Context) ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var ids []string
	for id, m := range u.mirrors {
		if len(m) > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (u *memUsers) mirror(userID string) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.mirrors[userID]...)
}
