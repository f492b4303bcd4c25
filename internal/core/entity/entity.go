// Package entity defines the normalized, versioned classroom entities shared
// by the snapshot pipeline and the grade versioning service.
// Entities here are pure data; behavior lives in core/diffmerge and core/grading
package entity

import "time"

// Envelope is the versioning envelope shared by all entities.
// Exactly one version in a lineage carries IsLatest=true; PreviousVersionID
// is a weak back reference and never implies deletion of the prior version
type Envelope struct {
	ID                string     `json:"id"`
	Version           int        `json:"version"`
	IsLatest          bool       `json:"is_latest"`
	PreviousVersionID string     `json:"previous_version_id,omitempty"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Archived reports whether the entity has been soft deleted
func (e Envelope) Archived() bool { return e.ArchivedAt != nil }

// Teacher is the owner of classrooms. Email is the natural key and immutable.
// ClassroomIDs and the totals are denormalized caches recomputed on each sync
// pass; they are never authoritative between passes
type Teacher struct {
	Envelope
	Email           string   `json:"email"`
	Name            string   `json:"name,omitempty"`
	SchoolEmail     string   `json:"school_email,omitempty"`
	ClassroomIDs    []string `json:"classroom_ids,omitempty"`
	TotalClassrooms int      `json:"total_classrooms"`
	TotalStudents   int      `json:"total_students"`
}

// Classroom mirrors one external course. The three counts are caches
// recomputed during processing; the enrollment and submission collections
// remain the source of truth
type Classroom struct {
	Envelope
	ExternalID          string      `json:"external_id"`
	TeacherID           string      `json:"teacher_id"`
	Name                string      `json:"name"`
	Section             string      `json:"section,omitempty"`
	CourseState         CourseState `json:"course_state"`
	StudentCount        int         `json:"student_count"`
	AssignmentCount     int         `json:"assignment_count"`
	UngradedSubmissions int         `json:"ungraded_submissions"`
}

// Assignment is one piece of coursework in a classroom
type Assignment struct {
	Envelope
	ExternalID  string         `json:"external_id"`
	ClassroomID string         `json:"classroom_id"`
	Title       string         `json:"title"`
	MaxScore    float64        `json:"max_score"`
	Type        AssignmentType `json:"type"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
}

// Enrollment links a student to a classroom. Status flips to archived when a
// previously enrolled student is absent from a later full snapshot
type Enrollment struct {
	Envelope
	ClassroomID     string           `json:"classroom_id"`
	StudentID       string           `json:"student_id"`
	StudentEmail    string           `json:"student_email"`
	StudentName     string           `json:"student_name,omitempty"`
	Status          EnrollmentStatus `json:"status"`
	SubmissionCount int              `json:"submission_count"`
	AverageGrade    float64          `json:"average_grade"`
}

// Submission is one student's work on one assignment.
// A new version is forked only when Content differs from the latest version;
// metadata-only changes (status churn, late flags) update in place
type Submission struct {
	Envelope
	AssignmentID string           `json:"assignment_id"`
	StudentID    string           `json:"student_id"`
	StudentEmail string           `json:"student_email"`
	StudentName  string           `json:"student_name,omitempty"`
	Content      string           `json:"content,omitempty"`
	Status       SubmissionStatus `json:"status"`
}

// Grade is one version in a submission's grade lineage.
// IsLocked is set whenever GradedBy is manual; a locked grade is never
// superseded by an automatically resolved write
type Grade struct {
	Envelope
	SubmissionID string      `json:"submission_id"`
	Score        float64     `json:"score"`
	MaxPoints    float64     `json:"max_points"`
	Feedback     string      `json:"feedback,omitempty"`
	GradedBy     GradeOrigin `json:"graded_by"`
	IsLocked     bool        `json:"is_locked"`
	GradedAt     time.Time   `json:"graded_at"`
}
