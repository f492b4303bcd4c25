// Package repo provides postgres access for the snapshot pipeline
package repo

import (
	"context"
	"time"

	"markbook/internal/core/entity"
	"markbook/internal/core/ident"
	"markbook/internal/modkit/repokit"
	perr "markbook/internal/platform/errors"
	"markbook/internal/platform/store"
)

// RunRow records the outcome of one completed processing run
type RunRow struct {
	TeacherID        string
	RunID            string
	SnapshotHash     string
	ProcessedAt      time.Time
	ProcessingTimeMs int64
	ErrorCount       int
}

// Storage defines the persistence surface the reconciliation run needs.
// All list methods are scoped to one teacher; submissions return latest
// version rows only
type Storage interface {
	FindTeacher(ctx context.Context, email, schoolEmail string) (entity.Teacher, error)
	UpsertTeacher(ctx context.Context, t entity.Teacher) error

	Classrooms(ctx context.Context, teacherID string) ([]entity.Classroom, error)
	UpsertClassroom(ctx context.Context, c entity.Classroom) error
	ArchiveClassroom(ctx context.Context, id string, now time.Time) error

	Assignments(ctx context.Context, teacherID string) ([]entity.Assignment, error)
	UpsertAssignment(ctx context.Context, a entity.Assignment) error
	ArchiveAssignment(ctx context.Context, id string, now time.Time) error

	Enrollments(ctx context.Context, teacherID string) ([]entity.Enrollment, error)
	UpsertEnrollment(ctx context.Context, e entity.Enrollment) error
	ArchiveEnrollment(ctx context.Context, id string, now time.Time) error

	LatestSubmissions(ctx context.Context, teacherID string) ([]entity.Submission, error)
	InsertSubmission(ctx context.Context, s entity.Submission) error
	UpdateSubmission(ctx context.Context, s entity.Submission) error
	DemoteSubmission(ctx context.Context, id string, now time.Time) error
	ArchiveSubmission(ctx context.Context, id string, now time.Time) error

	RecountClassrooms(ctx context.Context, teacherID string, now time.Time) error
	RecountEnrollments(ctx context.Context, teacherID string, now time.Time) error

	LastRun(ctx context.Context, teacherID string) (RunRow, error)
	SaveRun(ctx context.Context, r RunRow) error
}

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// FindTeacher resolves a teacher row by either mailbox. Snapshots may arrive
// under the personal login or the institutional account, and both must land
// on the same row. Empty school emails never act as a match key
func (s *pg) FindTeacher(ctx context.Context, email, schoolEmail string) (entity.Teacher, error) {
	const sql = `
SELECT id, email, name, school_email, classroom_ids,
	total_classrooms, total_students, created_at, updated_at
FROM teachers
WHERE (email = $1 OR school_email = $1)
	OR ($2 <> '' AND (email = $2 OR school_email = $2))
LIMIT 1
`
	return store.One(ctx, s.q, func(r store.Row) (entity.Teacher, error) {
		var t entity.Teacher
		err := r.Scan(&t.ID, &t.Email, &t.Name, &t.SchoolEmail, &t.ClassroomIDs,
			&t.TotalClassrooms, &t.TotalStudents, &t.CreatedAt, &t.UpdatedAt)
		return t, err
	}, sql, email, schoolEmail)
}

func (s *pg) UpsertTeacher(ctx context.Context, t entity.Teacher) error {
	const sql = `
INSERT INTO teachers
	(id, email, name, school_email, classroom_ids,
	total_classrooms, total_students, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	school_email = COALESCE(NULLIF(EXCLUDED.school_email, ''), teachers.school_email),
	classroom_ids = EXCLUDED.classroom_ids,
	total_classrooms = EXCLUDED.total_classrooms,
	total_students = EXCLUDED.total_students,
	updated_at = EXCLUDED.updated_at
`
	_, err := s.q.Exec(ctx, sql,
		t.ID, t.Email, t.Name, t.SchoolEmail, t.ClassroomIDs,
		t.TotalClassrooms, t.TotalStudents, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func scanClassroom(r store.Row) (entity.Classroom, error) {
	var c entity.Classroom
	var state string
	if err := r.Scan(
		&c.ID, &c.ExternalID, &c.TeacherID, &c.Name, &c.Section, &state,
		&c.StudentCount, &c.AssignmentCount, &c.UngradedSubmissions,
		&c.ArchivedAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return entity.Classroom{}, err
	}
	c.CourseState = entity.CourseState(state)
	c.Version = 1
	c.IsLatest = true
	return c, nil
}

func (s *pg) Classrooms(ctx context.Context, teacherID string) ([]entity.Classroom, error) {
	const sql = `
SELECT id, external_id, teacher_id, name, section, course_state,
	student_count, assignment_count, ungraded_submissions,
	archived_at, created_at, updated_at
FROM classrooms
WHERE teacher_id = $1
`
	return store.Many(ctx, s.q, scanClassroom, sql, teacherID)
}

func (s *pg) UpsertClassroom(ctx context.Context, c entity.Classroom) error {
	const sql = `
INSERT INTO classrooms
	(id, external_id, teacher_id, name, section, course_state,
	student_count, assignment_count, ungraded_submissions,
	archived_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	section = EXCLUDED.section,
	course_state = EXCLUDED.course_state,
	student_count = EXCLUDED.student_count,
	assignment_count = EXCLUDED.assignment_count,
	ungraded_submissions = EXCLUDED.ungraded_submissions,
	archived_at = NULL,
	updated_at = EXCLUDED.updated_at
`
	_, err := s.q.Exec(ctx, sql,
		c.ID, c.ExternalID, c.TeacherID, c.Name, c.Section, string(c.CourseState),
		c.StudentCount, c.AssignmentCount, c.UngradedSubmissions,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *pg) ArchiveClassroom(ctx context.Context, id string, now time.Time) error {
	const sql = `
UPDATE classrooms
SET course_state = 'ARCHIVED', archived_at = $2, updated_at = $2
WHERE id = $1
`
	return execOne(ctx, s.q, "classroom", id, sql, id, now)
}

func scanAssignment(r store.Row) (entity.Assignment, error) {
	var a entity.Assignment
	var typ string
	if err := r.Scan(
		&a.ID, &a.ExternalID, &a.ClassroomID, &a.Title, &a.MaxScore, &typ,
		&a.DueDate, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return entity.Assignment{}, err
	}
	a.Type = entity.AssignmentType(typ)
	a.Version = 1
	a.IsLatest = true
	return a, nil
}

func (s *pg) Assignments(ctx context.Context, teacherID string) ([]entity.Assignment, error) {
	const sql = `
SELECT a.id, a.external_id, a.classroom_id, a.title, a.max_score, a.type,
	a.due_date, a.archived_at, a.created_at, a.updated_at
FROM assignments a
JOIN classrooms c ON c.id = a.classroom_id
WHERE c.teacher_id = $1
`
	return store.Many(ctx, s.q, scanAssignment, sql, teacherID)
}

func (s *pg) UpsertAssignment(ctx context.Context, a entity.Assignment) error {
	const sql = `
INSERT INTO assignments
	(id, external_id, classroom_id, title, max_score, type,
	due_date, archived_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	max_score = EXCLUDED.max_score,
	type = EXCLUDED.type,
	due_date = EXCLUDED.due_date,
	archived_at = NULL,
	updated_at = EXCLUDED.updated_at
`
	_, err := s.q.Exec(ctx, sql,
		a.ID, a.ExternalID, a.ClassroomID, a.Title, a.MaxScore, string(a.Type),
		a.DueDate, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *pg) ArchiveAssignment(ctx context.Context, id string, now time.Time) error {
	const sql = `UPDATE assignments SET archived_at = $2, updated_at = $2 WHERE id = $1`
	return execOne(ctx, s.q, "assignment", id, sql, id, now)
}

func scanEnrollment(r store.Row) (entity.Enrollment, error) {
	var e entity.Enrollment
	var status string
	if err := r.Scan(
		&e.ID, &e.ClassroomID, &e.StudentID, &e.StudentEmail, &e.StudentName,
		&status, &e.SubmissionCount, &e.AverageGrade,
		&e.ArchivedAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return entity.Enrollment{}, err
	}
	e.Status = entity.EnrollmentStatus(status)
	e.Version = 1
	e.IsLatest = true
	return e, nil
}

func (s *pg) Enrollments(ctx context.Context, teacherID string) ([]entity.Enrollment, error) {
	const sql = `
SELECT e.id, e.classroom_id, e.student_id, e.student_email, e.student_name,
	e.status, e.submission_count, e.average_grade,
	e.archived_at, e.created_at, e.updated_at
FROM enrollments e
JOIN classrooms c ON c.id = e.classroom_id
WHERE c.teacher_id = $1
`
	return store.Many(ctx, s.q, scanEnrollment, sql, teacherID)
}

func (s *pg) UpsertEnrollment(ctx context.Context, e entity.Enrollment) error {
	const sql = `
INSERT INTO enrollments
	(id, classroom_id, student_id, student_email, student_name,
	status, submission_count, average_grade,
	archived_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	student_name = EXCLUDED.student_name,
	status = EXCLUDED.status,
	submission_count = EXCLUDED.submission_count,
	average_grade = EXCLUDED.average_grade,
	archived_at = NULL,
	updated_at = EXCLUDED.updated_at
`
	_, err := s.q.Exec(ctx, sql,
		e.ID, e.ClassroomID, e.StudentID, e.StudentEmail, e.StudentName,
		string(e.Status), e.SubmissionCount, e.AverageGrade,
		e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (s *pg) ArchiveEnrollment(ctx context.Context, id string, now time.Time) error {
	const sql = `
UPDATE enrollments
SET status = 'archived', archived_at = $2, updated_at = $2
WHERE id = $1
`
	return execOne(ctx, s.q, "enrollment", id, sql, id, now)
}

func scanSubmission(r store.Row) (entity.Submission, error) {
	var sub entity.Submission
	var status string
	if err := r.Scan(
		&sub.ID, &sub.Version, &sub.IsLatest, &sub.PreviousVersionID,
		&sub.AssignmentID, &sub.StudentID, &sub.StudentEmail, &sub.StudentName,
		&sub.Content, &status,
		&sub.ArchivedAt, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return entity.Submission{}, err
	}
	sub.Status = entity.SubmissionStatus(status)
	return sub, nil
}

func (s *pg) LatestSubmissions(ctx context.Context, teacherID string) ([]entity.Submission, error) {
	const sql = `
SELECT s.id, s.version, s.is_latest, s.previous_version_id,
	s.assignment_id, s.student_id, s.student_email, s.student_name,
	s.content, s.status,
	s.archived_at, s.created_at, s.updated_at
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
JOIN classrooms c ON c.id = a.classroom_id
WHERE c.teacher_id = $1 AND s.is_latest
`
	return store.Many(ctx, s.q, scanSubmission, sql, teacherID)
}

func (s *pg) InsertSubmission(ctx context.Context, sub entity.Submission) error {
	lineage, err := ident.Submission(sub.AssignmentID, sub.StudentID)
	if err != nil {
		return err
	}
	const sql = `
INSERT INTO submissions
	(id, lineage_id, version, is_latest, previous_version_id,
	assignment_id, student_id, student_email, student_name,
	content, status,
	archived_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`
	_, err = s.q.Exec(ctx, sql,
		sub.ID, lineage, sub.Version, sub.IsLatest, sub.PreviousVersionID,
		sub.AssignmentID, sub.StudentID, sub.StudentEmail, sub.StudentName,
		sub.Content, string(sub.Status),
		sub.ArchivedAt, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

// UpdateSubmission rewrites the mutable metadata of one version row in place.
// Content and version identity are immutable once written
func (s *pg) UpdateSubmission(ctx context.Context, sub entity.Submission) error {
	const sql = `
UPDATE submissions
SET student_name = $2, status = $3, archived_at = $4, updated_at = $5
WHERE id = $1
`
	return execOne(ctx, s.q, "submission", sub.ID, sql,
		sub.ID, sub.StudentName, string(sub.Status), sub.ArchivedAt, sub.UpdatedAt)
}

func (s *pg) DemoteSubmission(ctx context.Context, id string, now time.Time) error {
	const sql = `UPDATE submissions SET is_latest = FALSE, updated_at = $2 WHERE id = $1`
	return execOne(ctx, s.q, "submission", id, sql, id, now)
}

func (s *pg) ArchiveSubmission(ctx context.Context, id string, now time.Time) error {
	const sql = `UPDATE submissions SET archived_at = $2, updated_at = $2 WHERE id = $1`
	return execOne(ctx, s.q, "submission", id, sql, id, now)
}

// RecountClassrooms refreshes the denormalized caches after a run. The
// collections stay the source of truth; this is display plumbing only
func (s *pg) RecountClassrooms(ctx context.Context, teacherID string, now time.Time) error {
	const sql = `
UPDATE classrooms c SET
	student_count = (
		SELECT COUNT(*) FROM enrollments e
		WHERE e.classroom_id = c.id AND e.status = 'active'
	),
	assignment_count = (
		SELECT COUNT(*) FROM assignments a
		WHERE a.classroom_id = c.id AND a.archived_at IS NULL
	),
	ungraded_submissions = (
		SELECT COUNT(*) FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		WHERE a.classroom_id = c.id AND s.is_latest
			AND s.status IN ('submitted', 'grading')
	),
	updated_at = $2
WHERE c.teacher_id = $1
`
	_, err := s.q.Exec(ctx, sql, teacherID, now)
	return err
}

// RecountEnrollments refreshes per-student caches from latest submissions
// and their latest grades
func (s *pg) RecountEnrollments(ctx context.Context, teacherID string, now time.Time) error {
	const sql = `
UPDATE enrollments e SET
	submission_count = (
		SELECT COUNT(*) FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		WHERE a.classroom_id = e.classroom_id
			AND s.student_id = e.student_id AND s.is_latest
	),
	average_grade = COALESCE((
		SELECT AVG(g.score / NULLIF(g.max_points, 0) * 100)
		FROM grades g
		JOIN submissions s ON s.lineage_id = g.submission_id AND s.is_latest
		JOIN assignments a ON a.id = s.assignment_id
		WHERE a.classroom_id = e.classroom_id
			AND s.student_id = e.student_id AND g.is_latest
	), 0),
	updated_at = $2
WHERE e.classroom_id IN (SELECT id FROM classrooms WHERE teacher_id = $1)
`
	_, err := s.q.Exec(ctx, sql, teacherID, now)
	return err
}

func (s *pg) LastRun(ctx context.Context, teacherID string) (RunRow, error) {
	const sql = `
SELECT teacher_id, run_id, snapshot_hash, processed_at, processing_time_ms, error_count
FROM snapshot_runs
WHERE teacher_id = $1
ORDER BY processed_at DESC
LIMIT 1
`
	return store.One(ctx, s.q, func(r store.Row) (RunRow, error) {
		var row RunRow
		err := r.Scan(&row.TeacherID, &row.RunID, &row.SnapshotHash,
			&row.ProcessedAt, &row.ProcessingTimeMs, &row.ErrorCount)
		return row, err
	}, sql, teacherID)
}

func (s *pg) SaveRun(ctx context.Context, r RunRow) error {
	const sql = `
INSERT INTO snapshot_runs
	(teacher_id, run_id, snapshot_hash, processed_at, processing_time_ms, error_count)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := s.q.Exec(ctx, sql,
		r.TeacherID, r.RunID, r.SnapshotHash, r.ProcessedAt, r.ProcessingTimeMs, r.ErrorCount)
	return err
}

func execOne(ctx context.Context, q repokit.Queryer, kind, id, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return perr.Newf(perr.ErrorCodeNotFound, "%s %q not found", kind, id)
	}
	return nil
}
