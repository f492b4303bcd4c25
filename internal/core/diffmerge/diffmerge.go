// Package diffmerge reconciles normalized incoming entities against the
// persisted state, producing create, update and archive sets per entity type.
// Comparison is restricted to content fields; denormalized counts and the
// versioning envelope never influence the outcome
package diffmerge

import (
	"time"

	"markbook/internal/core/canon"
	"markbook/internal/core/entity"
)

// Pair couples an incoming entity with its persisted counterpart for updates
type Pair[T any] struct {
	Incoming  T
	Persisted T
}

// Changes is the per-type reconciliation outcome.
// Archive entries are persisted entities absent from the incoming set; they
// are only produced when the snapshot is a full export (see Diff's full flag)
type Changes[T any] struct {
	Create  []T
	Update  []Pair[T]
	Archive []T
}

// Empty reports whether the diff found nothing to do
func (c Changes[T]) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.Archive) == 0
}

// Diff indexes both collections by key and computes the three sets.
// full marks the incoming set as a wholesale export: only then is absence an
// authoritative deletion signal. A partial or filtered snapshot must never
// archive by absence
func Diff[T any](
	incoming, persisted []T,
	key func(T) string,
	equal func(a, b T) (bool, error),
	archived func(T) bool,
	full bool,
) (Changes[T], error) {
	var out Changes[T]

	persistedByKey := make(map[string]T, len(persisted))
	for _, p := range persisted {
		persistedByKey[key(p)] = p
	}
	incomingKeys := make(map[string]struct{}, len(incoming))

	for _, in := range incoming {
		k := key(in)
		incomingKeys[k] = struct{}{}
		p, ok := persistedByKey[k]
		if !ok {
			out.Create = append(out.Create, in)
			continue
		}
		same, err := equal(in, p)
		if err != nil {
			return Changes[T]{}, err
		}
		if same && !archived(p) {
			continue
		}
		// changed content, or a previously archived entity reappearing
		out.Update = append(out.Update, Pair[T]{Incoming: in, Persisted: p})
	}

	if full {
		for _, p := range persisted {
			if _, ok := incomingKeys[key(p)]; ok {
				continue
			}
			if archived(p) {
				continue
			}
			out.Archive = append(out.Archive, p)
		}
	}
	return out, nil
}

// CarryEnvelope keeps the persisted identity and history for an update in
// place: same ID, same version, fresh UpdatedAt. In-place updates never bump
// the version
func CarryEnvelope(persisted entity.Envelope, now time.Time) entity.Envelope {
	e := persisted
	e.UpdatedAt = now.UTC()
	e.ArchivedAt = nil
	return e
}

// content views: only the fields that constitute real content per type

type classroomContent struct {
	TeacherID   string             `json:"teacher_id"`
	Name        string             `json:"name"`
	Section     string             `json:"section"`
	CourseState entity.CourseState `json:"course_state"`
}

type assignmentContent struct {
	ClassroomID string                `json:"classroom_id"`
	Title       string                `json:"title"`
	MaxScore    float64               `json:"max_score"`
	Type        entity.AssignmentType `json:"type"`
	DueDate     *time.Time            `json:"due_date"`
}

type enrollmentContent struct {
	ClassroomID  string `json:"classroom_id"`
	StudentID    string `json:"student_id"`
	StudentEmail string `json:"student_email"`
	StudentName  string `json:"student_name"`
}

// ClassroomsEqual compares classroom content, ignoring counts and envelope
func ClassroomsEqual(a, b entity.Classroom) (bool, error) {
	return canon.Equal(
		classroomContent{a.TeacherID, a.Name, a.Section, a.CourseState},
		classroomContent{b.TeacherID, b.Name, b.Section, b.CourseState},
	)
}

// AssignmentsEqual compares assignment content
func AssignmentsEqual(a, b entity.Assignment) (bool, error) {
	return canon.Equal(
		assignmentContent{a.ClassroomID, a.Title, a.MaxScore, a.Type, a.DueDate},
		assignmentContent{b.ClassroomID, b.Title, b.MaxScore, b.Type, b.DueDate},
	)
}

// EnrollmentsEqual compares roster content; Status is lifecycle, not content,
// but a reappearing archived enrollment is caught by the archived check
func EnrollmentsEqual(a, b entity.Enrollment) (bool, error) {
	return canon.Equal(
		enrollmentContent{a.ClassroomID, a.StudentID, a.StudentEmail, a.StudentName},
		enrollmentContent{b.ClassroomID, b.StudentID, b.StudentEmail, b.StudentName},
	)
}

// Classrooms diffs classrooms by stable ID
func Classrooms(incoming, persisted []entity.Classroom, full bool) (Changes[entity.Classroom], error) {
	return Diff(incoming, persisted,
		func(c entity.Classroom) string { return c.ID },
		ClassroomsEqual,
		func(c entity.Classroom) bool { return c.CourseState == entity.CourseArchived },
		full,
	)
}

// Assignments diffs assignments by stable ID
func Assignments(incoming, persisted []entity.Assignment, full bool) (Changes[entity.Assignment], error) {
	return Diff(incoming, persisted,
		func(a entity.Assignment) string { return a.ID },
		AssignmentsEqual,
		func(a entity.Assignment) bool { return a.Archived() },
		full,
	)
}

// Enrollments diffs roster entries by stable ID
func Enrollments(incoming, persisted []entity.Enrollment, full bool) (Changes[entity.Enrollment], error) {
	return Diff(incoming, persisted,
		func(e entity.Enrollment) string { return e.ID },
		EnrollmentsEqual,
		func(e entity.Enrollment) bool { return e.Status == entity.EnrollmentArchived },
		full,
	)
}
