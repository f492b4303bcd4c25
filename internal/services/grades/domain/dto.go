// Package domain holds DTOs for grades http and service contracts
package domain

import (
	"time"

	"markbook/internal/core/entity"
)

// VersionInput records a manual grade over a submission lineage
type VersionInput struct {
	SubmissionID string  `json:"submission_id" validate:"required,min=1,max=300" example:"submission:assignment%3A123:student%3A456"` //nolint:lll
	Score        float64 `json:"score" validate:"min=0" example:"87.5"`
	MaxPoints    float64 `json:"max_points" validate:"required,gt=0" example:"100"`
	Feedback     string  `json:"feedback,omitempty" validate:"max=20000" example:"Strong solution, clean loop bounds"`
}

// RollbackInput promotes an earlier version of a lineage back to latest
type RollbackInput struct {
	SubmissionID  string `json:"submission_id" validate:"required,min=1,max=300"`
	TargetVersion int    `json:"target_version" validate:"required,min=1" example:"2"`
}

// LineageQuery retrieves the full version history of one lineage
type LineageQuery struct {
	SubmissionID string `json:"submission_id" validate:"required,min=1,max=300"`
}

// LatestQuery retrieves the current latest grade of one lineage
type LatestQuery struct {
	SubmissionID string `json:"submission_id" validate:"required,min=1,max=300"`
}

// AIGradeInput asks the grading backend to score a submission and records
// the result through the normal versioning rules
type AIGradeInput struct {
	SubmissionID string `json:"submission_id" validate:"required,min=1,max=300"`
}

// GradeView is the wire representation of a single grade version
type GradeView struct {
	ID                string    `json:"id"`
	SubmissionID      string    `json:"submission_id"`
	Version           int       `json:"version"`
	IsLatest          bool      `json:"is_latest"`
	PreviousVersionID string    `json:"previous_version_id,omitempty"`
	Score             float64   `json:"score"`
	MaxPoints         float64   `json:"max_points"`
	Feedback          string    `json:"feedback,omitempty"`
	GradedBy          string    `json:"graded_by"`
	IsLocked          bool      `json:"is_locked"`
	GradedAt          time.Time `json:"graded_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ViewOf converts an entity grade into its wire shape
func ViewOf(g entity.Grade) GradeView {
	return GradeView{
		ID:                g.ID,
		SubmissionID:      g.SubmissionID,
		Version:           g.Version,
		IsLatest:          g.IsLatest,
		PreviousVersionID: g.PreviousVersionID,
		Score:             g.Score,
		MaxPoints:         g.MaxPoints,
		Feedback:          g.Feedback,
		GradedBy:          string(g.GradedBy),
		IsLocked:          g.IsLocked,
		GradedAt:          g.GradedAt,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
	}
}

// VersionOutput reports what the versioning rules decided and the grade row
// that is latest after the call
type VersionOutput struct {
	Action string    `json:"action" example:"create_version"`
	Reason string    `json:"reason" example:"grade content changed"`
	Grade  GradeView `json:"grade"`
}

// LineageOutput is the ordered version history plus integrity status
type LineageOutput struct {
	SubmissionID string      `json:"submission_id"`
	Versions     []GradeView `json:"versions"`
	ChainIntact  bool        `json:"chain_intact"`
}
