package web

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOK(t *testing.T) {
	got := OK("enrolled", "enrollment", 1, "dangling")
	want := Envelope{"success": true, "message": "enrolled", "enrollment": 1}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("envelope mismatch (-want +got):\n%s", diff)
	}
}
