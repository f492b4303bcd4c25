package entity

// GradeOrigin records who produced a grade
type GradeOrigin string

const (
	// OriginAI marks grades produced by the automated grader
	OriginAI GradeOrigin = "ai"

	// OriginManual marks grades entered by a teacher
	OriginManual GradeOrigin = "manual"

	// OriginSystem marks grades imported from the external system without attribution
	OriginSystem GradeOrigin = "system"
)

// Valid reports whether o is a member of the closed enumeration
func (o GradeOrigin) Valid() bool {
	switch o {
	case OriginAI, OriginManual, OriginSystem:
		return true
	}
	return false
}

// Locks reports whether a grade of this origin locks its lineage against
// automatic supersession. This is a total function over the enumeration so
// the locking rule lives in exactly one place
func (o GradeOrigin) Locks() bool { return o == OriginManual }

// CourseState is the external lifecycle state of a classroom
type CourseState string

const (
	// CourseActive is a live classroom
	CourseActive CourseState = "ACTIVE"

	// CourseArchived is a classroom that has been closed or removed upstream
	CourseArchived CourseState = "ARCHIVED"
)

// EnrollmentStatus tracks whether a student is still present in snapshots
type EnrollmentStatus string

const (
	// EnrollmentActive means the student appeared in the latest full snapshot
	EnrollmentActive EnrollmentStatus = "active"

	// EnrollmentArchived means the student was absent from a later full snapshot
	EnrollmentArchived EnrollmentStatus = "archived"
)

// SubmissionStatus is the workflow state of a submission
type SubmissionStatus string

const (
	// SubmissionDraft is unsubmitted work
	SubmissionDraft SubmissionStatus = "draft"

	// SubmissionSubmitted is turned-in work awaiting grading
	SubmissionSubmitted SubmissionStatus = "submitted"

	// SubmissionGrading is work currently being graded
	SubmissionGrading SubmissionStatus = "grading"

	// SubmissionGraded is work with at least one grade version
	SubmissionGraded SubmissionStatus = "graded"

	// SubmissionReturned is graded work handed back to the student
	SubmissionReturned SubmissionStatus = "returned"
)

// Valid reports whether s is a known workflow state
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionDraft, SubmissionSubmitted, SubmissionGrading, SubmissionGraded, SubmissionReturned:
		return true
	}
	return false
}

// AssignmentType classifies coursework. Inferred from the source work type
// and may be overridden by later content based classification
type AssignmentType string

const (
	// TypeAssignment is regular written coursework
	TypeAssignment AssignmentType = "assignment"

	// TypeQuiz is form backed quiz coursework
	TypeQuiz AssignmentType = "quiz"

	// TypeCoding is programming coursework
	TypeCoding AssignmentType = "coding"
)
