package ident

import (
	"strings"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Derive(KindClassroom, "660123")
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	b, err := Derive(KindClassroom, "660123")
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical ids, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "classroom:") {
		t.Fatalf("expected kind prefix, got %q", a)
	}
}

func TestDeriveInjective(t *testing.T) {
	t.Parallel()

	// a:b + c must not collide with a + b:c once parts are escaped
	x, err := Derive(KindAssignment, "a:b", "c")
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	y, err := Derive(KindAssignment, "a", "b:c")
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if x == y {
		t.Fatalf("distinct part tuples collided: %q", x)
	}
}

func TestDeriveRejectsEmptyParts(t *testing.T) {
	t.Parallel()

	if _, err := Derive(KindClassroom, ""); err == nil {
		t.Fatalf("expected error for empty part")
	}
	if _, err := Derive(KindClassroom, "  "); err == nil {
		t.Fatalf("expected error for whitespace part")
	}
	if _, err := Derive("", "x"); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := Derive(KindClassroom); err == nil {
		t.Fatalf("expected error for missing parts")
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		out  string
	}{
		{"lowercase passthrough", "alice@example.com", "alice@example.com"},
		{"case folded", "Alice.Anderson@Example.COM", "alice.anderson@example.com"},
		{"surrounding space trimmed", "  bob@example.com \n", "bob@example.com"},
		{"interior space dropped", "b ob@example.com", "bob@example.com"},
		{"fullwidth digits folded", "１２３@example.com", "123@example.com"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeEmail(tc.in)
			if err != nil {
				t.Fatalf("NormalizeEmail(%q): %v", tc.in, err)
			}
			if got != tc.out {
				t.Fatalf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.out)
			}
		})
	}

	if _, err := NormalizeEmail("not-an-email"); err == nil {
		t.Fatalf("expected error for address without @")
	}
	if _, err := NormalizeEmail(""); err == nil {
		t.Fatalf("expected error for empty email")
	}
}

func TestEnrollmentIDCaseInsensitive(t *testing.T) {
	t.Parallel()

	cls, err := Classroom("660123")
	if err != nil {
		t.Fatalf("Classroom: %v", err)
	}
	a, err := Enrollment(cls, "Student@School.Org")
	if err != nil {
		t.Fatalf("Enrollment: %v", err)
	}
	b, err := Enrollment(cls, "student@school.org")
	if err != nil {
		t.Fatalf("Enrollment: %v", err)
	}
	if a != b {
		t.Fatalf("email case should not change the id: %q vs %q", a, b)
	}
}

func TestSubmissionVersionIDs(t *testing.T) {
	t.Parallel()

	lineage, err := Submission("assignment:c1:w1", "s1")
	if err != nil {
		t.Fatalf("Submission: %v", err)
	}
	v1, err := SubmissionVersion(lineage, 1)
	if err != nil {
		t.Fatalf("SubmissionVersion: %v", err)
	}
	if v1 != lineage {
		t.Fatalf("version 1 must keep the lineage id: %q vs %q", v1, lineage)
	}
	v2, err := SubmissionVersion(lineage, 2)
	if err != nil {
		t.Fatalf("SubmissionVersion: %v", err)
	}
	if v2 == lineage {
		t.Fatalf("version 2 must get its own row id")
	}
	if _, err := SubmissionVersion(lineage, 0); err == nil {
		t.Fatalf("expected error for version 0")
	}
}

func TestGradeVersionIDs(t *testing.T) {
	t.Parallel()

	sub, err := Submission("assignment:classroom%3A660123:w1", "s1")
	if err != nil {
		t.Fatalf("Submission: %v", err)
	}
	g1, err := Grade(sub, 1)
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	g2, err := Grade(sub, 2)
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if g1 == g2 {
		t.Fatalf("versions must derive distinct ids")
	}
	if _, err := Grade(sub, 0); err == nil {
		t.Fatalf("expected error for version 0")
	}
}
