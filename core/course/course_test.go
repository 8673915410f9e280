package course

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDerivedTotals(t *testing.T) {
	c := Course{Units: Units{
		{UnitID: "u2", Order: 2, Lessons: []Lesson{{LessonID: "l3", Duration: 15}}},
		{UnitID: "u1", Order: 1, Lessons: []Lesson{
			{LessonID: "l2", Order: 2, Duration: 20},
			{LessonID: "l1", Order: 1, Duration: 10},
		}},
		{UnitID: "empty", Order: 0},
	}}

	if got := c.TotalLessons(); got != 3 {
		t.Fatalf("expected 3 lessons, got %d", got)
	}
	if got := c.TotalDuration(); got != 45 {
		t.Fatalf("expected 45 minutes, got %d", got)
	}

	first, ok := c.FirstLesson()
	if !ok || first != "l1" {
		t.Fatalf("expected first lesson l1, got %q (%v)", first, ok)
	}
}

func TestFirstLessonEmptyCourse(t *testing.T) {
	c := Course{Units: Units{{UnitID: "u1"}}}
	if _, ok := c.FirstLesson(); ok {
		t.Fatal("a course without lessons has no first lesson")
	}
}

func TestUnitsScan(t *testing.T) {
	in := Units{{UnitID: "u1", Title: "Intro", Lessons: []Lesson{{LessonID: "l1", Title: "Hello", Type: "quiz"}}}}

	v, err := in.Value()
	if err != nil {
		t.Fatal(err)
	}

	var out Units
	if err := out.Scan(v); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("structure changed (-want +got):\n%s", diff)
	}
}
