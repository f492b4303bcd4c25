// Package snapshot models the raw classroom export and flattens it into
// normalized, reference-linked entities. The exporter's nested tree shape
// never travels past this package
package snapshot

import (
	"strings"
	"time"

	perr "markbook/internal/platform/errors"
)

// Raw is the wholesale export of one teacher's classroom data as produced by
// the external collector. Field presence varies across exporter versions, so
// everything below the top level is optional and defaulted during Normalize
type Raw struct {
	Teacher     RawTeacher     `json:"teacher"`
	Classrooms  []RawClassroom `json:"classrooms"`
	GlobalStats RawGlobalStats `json:"globalStats,omitempty"`
	Metadata    RawMetadata    `json:"snapshotMetadata,omitempty"`
}

// RawTeacher is the exporting teacher's profile
type RawTeacher struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	SchoolEmail string `json:"schoolEmail,omitempty"`
}

// RawClassroom is one course with its nested collections
type RawClassroom struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Section     string          `json:"section,omitempty"`
	CourseState string          `json:"courseState,omitempty"`
	Students    []RawStudent    `json:"students,omitempty"`
	Assignments []RawAssignment `json:"assignments,omitempty"`
	Submissions []RawSubmission `json:"submissions,omitempty"`
}

// RawStudent is one roster entry
type RawStudent struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// RawAssignment is one piece of coursework
type RawAssignment struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	MaxScore *float64       `json:"maxScore,omitempty"`
	Type     string         `json:"type,omitempty"`
	DueDate  string         `json:"dueDate,omitempty"`
	QuizData map[string]any `json:"quizData,omitempty"`
}

// RawSubmission is one student's work on one assignment
type RawSubmission struct {
	ID               string    `json:"id,omitempty"`
	StudentID        string    `json:"studentId"`
	StudentEmail     string    `json:"studentEmail"`
	StudentName      string    `json:"studentName,omitempty"`
	AssignmentID     string    `json:"assignmentId"`
	Content          string    `json:"content,omitempty"`
	ExtractedContent string    `json:"extractedContent,omitempty"`
	Status           string    `json:"status,omitempty"`
	Late             bool      `json:"late,omitempty"`
	SubmittedAt      string    `json:"submittedAt,omitempty"`
	UpdatedAt        string    `json:"updatedAt,omitempty"`
	Grade            *RawGrade `json:"grade,omitempty"`
}

// RawGrade is a grade recorded in the external system
type RawGrade struct {
	Score     float64  `json:"score"`
	MaxPoints *float64 `json:"maxPoints,omitempty"`
	Feedback  string   `json:"feedback,omitempty"`
	GradedBy  string   `json:"gradedBy,omitempty"`
	GradedAt  string   `json:"gradedAt,omitempty"`
}

// RawGlobalStats are exporter-computed aggregates, informational only
type RawGlobalStats struct {
	TotalClassrooms int `json:"totalClassrooms,omitempty"`
	TotalStudents   int `json:"totalStudents,omitempty"`
}

// RawMetadata describes the export itself. FetchedAt and ExpiresAt change on
// every export regardless of real content change
type RawMetadata struct {
	FetchedAt string `json:"fetchedAt,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Source    string `json:"source,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Validate checks the top-level shape. A malformed top level is a fatal
// validation error reported before any processing begins; per-classroom
// problems are handled leniently inside Normalize instead
func (s *Raw) Validate() error {
	if s == nil {
		return perr.New(perr.ErrorCodeValidation, "snapshot: nil snapshot")
	}
	if strings.TrimSpace(s.Teacher.Email) == "" {
		return perr.New(perr.ErrorCodeValidation, "snapshot: teacher.email is required")
	}
	if s.Classrooms == nil {
		return perr.New(perr.ErrorCodeValidation, "snapshot: classrooms array is missing")
	}
	return nil
}

// ForComparison returns a deep copy with volatile fields stripped: export and
// expiry timestamps, and any per-submission updatedAt that the external
// system touches without a real content edit
func (s Raw) ForComparison() Raw {
	out := s
	out.Metadata.FetchedAt = ""
	out.Metadata.ExpiresAt = ""

	out.Classrooms = make([]RawClassroom, len(s.Classrooms))
	for i, c := range s.Classrooms {
		cc := c
		cc.Students = append([]RawStudent(nil), c.Students...)
		cc.Assignments = append([]RawAssignment(nil), c.Assignments...)
		cc.Submissions = make([]RawSubmission, len(c.Submissions))
		for j, sub := range c.Submissions {
			sub.UpdatedAt = ""
			cc.Submissions[j] = sub
		}
		out.Classrooms[i] = cc
	}
	return out
}

// parseTime parses an exporter timestamp leniently; the zero time stands in
// for missing or unparseable values
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
