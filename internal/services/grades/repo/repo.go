// Package repo provides postgres access for grade lineages
package repo

import (
	"context"
	"time"

	"markbook/internal/core/entity"
	"markbook/internal/modkit/repokit"
	perr "markbook/internal/platform/errors"
	"markbook/internal/platform/store"
)

// SubmissionRow is the slice of a submission the grading flow needs
type SubmissionRow struct {
	ID           string
	AssignmentID string
	StudentID    string
	Title        string
	Content      string
	MaxScore     float64
}

// Storage defines the grades repository.
// Latest returns perr.ErrNotFound when the lineage has no grade yet
type Storage interface {
	Latest(ctx context.Context, submissionID string) (entity.Grade, error)
	LatestForUpdate(ctx context.Context, submissionID string) (entity.Grade, error)
	TailForUpdate(ctx context.Context, submissionID string) (entity.Grade, error)
	Lineage(ctx context.Context, submissionID string) ([]entity.Grade, error)
	Insert(ctx context.Context, g entity.Grade) error
	SetLatest(ctx context.Context, id string, latest bool, updatedAt time.Time) error
	LatestSubmission(ctx context.Context, submissionID string) (SubmissionRow, error)
}

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

const gradeCols = `
	id, submission_id, version, is_latest, previous_version_id,
	score, max_points, feedback, graded_by, is_locked,
	graded_at, created_at, updated_at`

func scanGrade(r store.Row) (entity.Grade, error) {
	var g entity.Grade
	var gradedBy string
	if err := r.Scan(
		&g.ID, &g.SubmissionID, &g.Version, &g.IsLatest, &g.PreviousVersionID,
		&g.Score, &g.MaxPoints, &g.Feedback, &gradedBy, &g.IsLocked,
		&g.GradedAt, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return entity.Grade{}, err
	}
	g.GradedBy = entity.GradeOrigin(gradedBy)
	return g, nil
}

func (s *pg) Latest(ctx context.Context, submissionID string) (entity.Grade, error) {
	const sql = `
SELECT` + gradeCols + `
FROM grades
WHERE submission_id = $1 AND is_latest
`
	return store.One(ctx, s.q, scanGrade, sql, submissionID)
}

// LatestForUpdate takes a row lock so two writers cannot both fork the same
// head. Only meaningful inside a transaction
func (s *pg) LatestForUpdate(ctx context.Context, submissionID string) (entity.Grade, error) {
	const sql = `
SELECT` + gradeCols + `
FROM grades
WHERE submission_id = $1 AND is_latest
FOR UPDATE
`
	return store.One(ctx, s.q, scanGrade, sql, submissionID)
}

// TailForUpdate locks the highest version ever written. After a rollback this
// is not the row the latest pointer sits on, and new versions count from here
// so a number is never minted twice
func (s *pg) TailForUpdate(ctx context.Context, submissionID string) (entity.Grade, error) {
	const sql = `
SELECT` + gradeCols + `
FROM grades
WHERE submission_id = $1
ORDER BY version DESC
LIMIT 1
FOR UPDATE
`
	return store.One(ctx, s.q, scanGrade, sql, submissionID)
}

func (s *pg) Lineage(ctx context.Context, submissionID string) ([]entity.Grade, error) {
	const sql = `
SELECT` + gradeCols + `
FROM grades
WHERE submission_id = $1
ORDER BY version ASC
`
	return store.Many(ctx, s.q, scanGrade, sql, submissionID)
}

func (s *pg) Insert(ctx context.Context, g entity.Grade) error {
	const sql = `
INSERT INTO grades
	(id, submission_id, version, is_latest, previous_version_id,
	score, max_points, feedback, graded_by, is_locked,
	graded_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	_, err := s.q.Exec(ctx, sql,
		g.ID, g.SubmissionID, g.Version, g.IsLatest, g.PreviousVersionID,
		g.Score, g.MaxPoints, g.Feedback, string(g.GradedBy), g.IsLocked,
		g.GradedAt, g.CreatedAt, g.UpdatedAt,
	)
	return err
}

func (s *pg) SetLatest(ctx context.Context, id string, latest bool, updatedAt time.Time) error {
	const sql = `UPDATE grades SET is_latest = $2, updated_at = $3 WHERE id = $1`
	tag, err := s.q.Exec(ctx, sql, id, latest, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return perr.Newf(perr.ErrorCodeNotFound, "grade %q not found", id)
	}
	return nil
}

// LatestSubmission resolves a lineage key to its current submission content
// together with the owning assignment's title and max score
func (s *pg) LatestSubmission(ctx context.Context, submissionID string) (SubmissionRow, error) {
	const sql = `
SELECT s.id, s.assignment_id, s.student_id, a.title, s.content, a.max_score
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE s.lineage_id = $1 AND s.is_latest
`
	return store.One(ctx, s.q, func(r store.Row) (SubmissionRow, error) {
		var row SubmissionRow
		err := r.Scan(&row.ID, &row.AssignmentID, &row.StudentID, &row.Title, &row.Content, &row.MaxScore)
		return row, err
	}, sql, submissionID)
}
