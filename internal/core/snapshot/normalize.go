package snapshot

import (
	"fmt"
	"strings"
	"time"

	"markbook/internal/core/entity"
	"markbook/internal/core/ident"
	tim "markbook/internal/platform/time"
)

// Documented defaults substituted for missing optional exporter fields
const (
	// DefaultMaxScore matches the exporter's quiz default total
	DefaultMaxScore = 100.0
)

// Bundle is the flat, reference-linked output of Normalize. Every entity
// carries only stable-ID references to its parents; all nesting is gone
type Bundle struct {
	Teacher     entity.Teacher
	Classrooms  []entity.Classroom
	Assignments []entity.Assignment
	Enrollments []entity.Enrollment
	Submissions []entity.Submission
	Grades      []GradeCandidate
	Warnings    []Warning
}

// RekeyTeacher points the bundle at an already persisted teacher identity.
// A snapshot exported under the institutional account derives a different
// teacher ID from its login email, and that must not split one teacher's
// history across two rows
func (b *Bundle) RekeyTeacher(id string) {
	b.Teacher.ID = id
	for i := range b.Classrooms {
		b.Classrooms[i].TeacherID = id
	}
}

// GradeCandidate is a grade observed in the snapshot, destined for the grade
// versioning service rather than the generic diff path
type GradeCandidate struct {
	SubmissionID string
	Score        float64
	MaxPoints    float64
	Feedback     string
	GradedBy     entity.GradeOrigin
	GradedAt     time.Time
}

// Warning records a non-fatal problem with one source record
type Warning struct {
	EntityID string `json:"entity_id,omitempty"`
	Message  string `json:"message"`
}

// Normalize flattens a validated raw snapshot into Bundle collections keyed
// by stable ID. Malformed classrooms (missing id or name) are skipped with a
// recorded warning; one bad classroom never blocks the rest
func Normalize(raw Raw, now time.Time) (Bundle, error) {
	if err := raw.Validate(); err != nil {
		return Bundle{}, err
	}
	now = now.UTC()

	var b Bundle
	warn := func(id, format string, args ...any) {
		b.Warnings = append(b.Warnings, Warning{EntityID: id, Message: fmt.Sprintf(format, args...)})
	}

	teacherID, err := ident.Teacher(raw.Teacher.Email)
	if err != nil {
		return Bundle{}, err
	}

	seenStudents := map[string]struct{}{}
	for _, rc := range raw.Classrooms {
		if strings.TrimSpace(rc.ID) == "" || strings.TrimSpace(rc.Name) == "" {
			warn(rc.ID, "classroom skipped: missing id or name")
			continue
		}
		classID, err := ident.Classroom(rc.ID)
		if err != nil {
			warn(rc.ID, "classroom skipped: %v", err)
			continue
		}

		cls := entity.Classroom{
			Envelope:    baseEnvelope(classID, now),
			ExternalID:  rc.ID,
			TeacherID:   teacherID,
			Name:        rc.Name,
			Section:     rc.Section,
			CourseState: courseState(rc.CourseState),
		}

		assignmentIDs := normalizeAssignments(&b, rc, classID, now, warn)
		normalizeRoster(&b, rc, classID, now, seenStudents, warn)
		normalizeSubmissions(&b, rc, classID, assignmentIDs, now, warn)

		// denormalized caches; the processor recomputes these again from the
		// authoritative collections at the end of its pass
		cls.StudentCount = len(rc.Students)
		cls.AssignmentCount = len(assignmentIDs)
		cls.UngradedSubmissions = countUngraded(rc.Submissions)

		b.Classrooms = append(b.Classrooms, cls)
		b.Teacher.ClassroomIDs = append(b.Teacher.ClassroomIDs, classID)
	}

	b.Teacher.Envelope = baseEnvelope(teacherID, now)
	b.Teacher.Email = strings.TrimSpace(strings.ToLower(raw.Teacher.Email))
	b.Teacher.Name = raw.Teacher.Name
	b.Teacher.SchoolEmail = strings.TrimSpace(strings.ToLower(raw.Teacher.SchoolEmail))
	b.Teacher.ClassroomIDs = append([]string(nil), b.Teacher.ClassroomIDs...)
	b.Teacher.TotalClassrooms = len(b.Classrooms)
	b.Teacher.TotalStudents = len(seenStudents)

	return b, nil
}

// normalizeAssignments flattens one classroom's coursework and returns the
// set of stable assignment IDs for submission reference checks
func normalizeAssignments(
	b *Bundle, rc RawClassroom, classID string, now time.Time,
	warn func(string, string, ...any),
) map[string]string {
	ids := make(map[string]string, len(rc.Assignments))
	for _, ra := range rc.Assignments {
		if strings.TrimSpace(ra.ID) == "" || strings.TrimSpace(ra.Title) == "" {
			warn(ra.ID, "assignment skipped in classroom %s: missing id or title", rc.ID)
			continue
		}
		id, err := ident.Assignment(classID, ra.ID)
		if err != nil {
			warn(ra.ID, "assignment skipped: %v", err)
			continue
		}
		a := entity.Assignment{
			Envelope:    baseEnvelope(id, now),
			ExternalID:  ra.ID,
			ClassroomID: classID,
			Title:       ra.Title,
			MaxScore:    DefaultMaxScore,
			Type:        assignmentType(ra),
		}
		if ra.MaxScore != nil && *ra.MaxScore > 0 {
			a.MaxScore = *ra.MaxScore
		}
		a.DueDate = tim.Ptr(parseTime(ra.DueDate))
		b.Assignments = append(b.Assignments, a)
		ids[ra.ID] = id
	}
	return ids
}

// normalizeRoster flattens one classroom's students into enrollments
func normalizeRoster(
	b *Bundle, rc RawClassroom, classID string, now time.Time,
	seenStudents map[string]struct{},
	warn func(string, string, ...any),
) {
	for _, rs := range rc.Students {
		email, err := ident.NormalizeEmail(rs.Email)
		if err != nil {
			warn(rs.ID, "student skipped in classroom %s: %v", rc.ID, err)
			continue
		}
		id, err := ident.Enrollment(classID, email)
		if err != nil {
			warn(rs.ID, "student skipped: %v", err)
			continue
		}
		studentID := strings.TrimSpace(rs.ID)
		if studentID == "" {
			// some exporter versions omit the numeric id; the mailbox is
			// just as stable a key
			studentID = email
		}
		b.Enrollments = append(b.Enrollments, entity.Enrollment{
			Envelope:     baseEnvelope(id, now),
			ClassroomID:  classID,
			StudentID:    studentID,
			StudentEmail: email,
			StudentName:  rs.Name,
			Status:       entity.EnrollmentActive,
		})
		seenStudents[email] = struct{}{}
	}
}

// normalizeSubmissions flattens one classroom's submissions and splits off
// grade candidates for the versioning service
func normalizeSubmissions(
	b *Bundle, rc RawClassroom, classID string, assignmentIDs map[string]string,
	now time.Time, warn func(string, string, ...any),
) {
	for _, rs := range rc.Submissions {
		assignmentID, ok := assignmentIDs[rs.AssignmentID]
		if !ok {
			warn(rs.ID, "submission skipped in classroom %s: unknown assignment %q", rc.ID, rs.AssignmentID)
			continue
		}
		studentKey := strings.TrimSpace(rs.StudentID)
		if studentKey == "" {
			e, err := ident.NormalizeEmail(rs.StudentEmail)
			if err != nil {
				warn(rs.ID, "submission skipped in classroom %s: no student id or email", rc.ID)
				continue
			}
			studentKey = e
		}
		id, err := ident.Submission(assignmentID, studentKey)
		if err != nil {
			warn(rs.ID, "submission skipped: %v", err)
			continue
		}

		content := rs.Content
		if content == "" {
			content = rs.ExtractedContent
		}
		email := ""
		if e, err := ident.NormalizeEmail(rs.StudentEmail); err == nil {
			email = e
		}

		b.Submissions = append(b.Submissions, entity.Submission{
			Envelope:     baseEnvelope(id, now),
			AssignmentID: assignmentID,
			StudentID:    studentKey,
			StudentEmail: email,
			StudentName:  rs.StudentName,
			Content:      content,
			Status:       submissionStatus(rs, content),
		})

		if rs.Grade != nil {
			maxPoints := DefaultMaxScore
			if rs.Grade.MaxPoints != nil && *rs.Grade.MaxPoints > 0 {
				maxPoints = *rs.Grade.MaxPoints
			}
			gradedAt := parseTime(rs.Grade.GradedAt)
			if gradedAt.IsZero() {
				gradedAt = now
			}
			b.Grades = append(b.Grades, GradeCandidate{
				SubmissionID: id,
				Score:        rs.Grade.Score,
				MaxPoints:    maxPoints,
				Feedback:     rs.Grade.Feedback,
				GradedBy:     gradeOrigin(rs.Grade.GradedBy),
				GradedAt:     gradedAt,
			})
		}
	}
}

func baseEnvelope(id string, now time.Time) entity.Envelope {
	return entity.Envelope{
		ID:        id,
		Version:   1,
		IsLatest:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func courseState(s string) entity.CourseState {
	if strings.EqualFold(strings.TrimSpace(s), string(entity.CourseArchived)) {
		return entity.CourseArchived
	}
	return entity.CourseActive
}

func assignmentType(ra RawAssignment) entity.AssignmentType {
	switch strings.ToLower(strings.TrimSpace(ra.Type)) {
	case "quiz":
		return entity.TypeQuiz
	case "coding":
		return entity.TypeCoding
	case "assignment", "":
		if len(ra.QuizData) > 0 {
			return entity.TypeQuiz
		}
		return entity.TypeAssignment
	default:
		return entity.TypeAssignment
	}
}

// submissionStatus defaults a missing status from what we can observe:
// graded work is graded, work with content was submitted, the rest is draft
func submissionStatus(rs RawSubmission, content string) entity.SubmissionStatus {
	if s := entity.SubmissionStatus(strings.ToLower(strings.TrimSpace(rs.Status))); s.Valid() {
		return s
	}
	if rs.Grade != nil {
		return entity.SubmissionGraded
	}
	if content != "" {
		return entity.SubmissionSubmitted
	}
	return entity.SubmissionDraft
}

// gradeOrigin maps the exporter's loose gradedBy strings onto the closed
// enumeration. "teacher" is what older collector versions emitted for manual
func gradeOrigin(s string) entity.GradeOrigin {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual", "teacher":
		return entity.OriginManual
	case "ai":
		return entity.OriginAI
	default:
		return entity.OriginSystem
	}
}

func countUngraded(subs []RawSubmission) int {
	n := 0
	for _, s := range subs {
		if s.Grade == nil {
			n++
		}
	}
	return n
}
