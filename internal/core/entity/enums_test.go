package entity

import "testing"

func TestGradeOriginLocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		origin GradeOrigin
		locks  bool
	}{
		{OriginAI, false},
		{OriginManual, true},
		{OriginSystem, false},
	}
	for _, tc := range tests {
		if got := tc.origin.Locks(); got != tc.locks {
			t.Fatalf("Locks(%q) = %v, want %v", tc.origin, got, tc.locks)
		}
	}
}

func TestGradeOriginValid(t *testing.T) {
	t.Parallel()

	for _, o := range []GradeOrigin{OriginAI, OriginManual, OriginSystem} {
		if !o.Valid() {
			t.Fatalf("expected %q to be valid", o)
		}
	}
	for _, o := range []GradeOrigin{"", "teacher", "AI", "robot"} {
		if o.Valid() {
			t.Fatalf("expected %q to be invalid", o)
		}
	}
}

func TestSubmissionStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []SubmissionStatus{
		SubmissionDraft, SubmissionSubmitted, SubmissionGrading, SubmissionGraded, SubmissionReturned,
	} {
		if !s.Valid() {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if SubmissionStatus("turned_in").Valid() {
		t.Fatalf("unexpected valid status")
	}
}

func TestEnvelopeArchived(t *testing.T) {
	t.Parallel()

	var e Envelope
	if e.Archived() {
		t.Fatalf("zero envelope should not be archived")
	}
}
