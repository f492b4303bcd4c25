package domain

import (
	"context"

	"markbook/internal/core/grading"
)

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	CreateVersion(ctx context.Context, in VersionInput) (VersionOutput, error)
	Rollback(ctx context.Context, in RollbackInput) (VersionOutput, error)
	Latest(ctx context.Context, in LatestQuery) (GradeView, error)
	Lineage(ctx context.Context, in LineageQuery) (LineageOutput, error)
	GradeWithAI(ctx context.Context, in AIGradeInput) (VersionOutput, error)
}

// ApplyOutcome reports how a candidate was absorbed into a lineage
type ApplyOutcome struct {
	Action  grading.Action
	Reason  string
	GradeID string
}

// ApplierPort is the cross-module surface the snapshot pipeline uses to feed
// grade candidates through the versioning rules
type ApplierPort interface {
	Apply(ctx context.Context, cand grading.Candidate) (ApplyOutcome, error)
}
