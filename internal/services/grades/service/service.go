// Package service contains the grade versioning workflows
package service

import (
	"context"
	"time"

	"markbook/internal/adapters/grader"
	"markbook/internal/core/entity"
	"markbook/internal/core/grading"
	"markbook/internal/modkit/repokit"
	perr "markbook/internal/platform/errors"
	"markbook/internal/services/grades/domain"
	"markbook/internal/services/grades/repo"
)

// Service defines the grades service contract
type Service interface {
	domain.ServicePort
	domain.ApplierPort
}

// Options carries optional collaborators
type Options struct {
	// Grader is the automated grading backend; nil disables GradeWithAI
	Grader grader.Port

	// Now is injectable for tests, defaults to time.Now
	Now func() time.Time
}

// Svc implements the grades service. Every write that touches a lineage head
// runs inside one transaction with the head row locked, so the single-latest
// invariant holds even under concurrent writers
type Svc struct {
	Repo   repo.Storage
	binder repokit.Binder[repo.Storage]
	db     repokit.TxRunner
	grader grader.Port
	now    func() time.Time
}

// New constructs a grades service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage], opt Options) *Svc {
	if db == nil {
		panic("grades.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("grades.Service requires a non nil Repo binder")
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	return &Svc{Repo: binder.Bind(db), binder: binder, db: db, grader: opt.Grader, now: now}
}

// CreateVersion records an explicit manual re-grade. This is the one path
// allowed to supersede a locked grade
func (s *Svc) CreateVersion(ctx context.Context, in domain.VersionInput) (domain.VersionOutput, error) {
	cand := grading.Candidate{
		SubmissionID: in.SubmissionID,
		Score:        in.Score,
		MaxPoints:    in.MaxPoints,
		Feedback:     in.Feedback,
		GradedBy:     entity.OriginManual,
		GradedAt:     s.now().UTC(),
	}
	if err := cand.Validate(); err != nil {
		return domain.VersionOutput{}, err
	}

	var out domain.VersionOutput
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)

		latest, err := r.LatestForUpdate(ctx, in.SubmissionID)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			g, err := grading.Initial(cand, s.now())
			if err != nil {
				return err
			}
			if err := r.Insert(ctx, g); err != nil {
				return err
			}
			out = domain.VersionOutput{Action: string(grading.ActionCreate), Reason: "no existing grade", Grade: domain.ViewOf(g)}
			return nil
		}
		if err != nil {
			return err
		}

		if sameManual(latest, cand) {
			out = domain.VersionOutput{
				Action: string(grading.ActionKeep),
				Reason: "identical grade content",
				Grade:  domain.ViewOf(latest),
			}
			return nil
		}

		tail, err := r.TailForUpdate(ctx, in.SubmissionID)
		if err != nil {
			return err
		}
		next, prev, err := grading.Supersede(latest, tail, cand, s.now())
		if err != nil {
			return err
		}
		if err := r.SetLatest(ctx, prev.ID, false, prev.UpdatedAt); err != nil {
			return err
		}
		if err := r.Insert(ctx, next); err != nil {
			return err
		}
		out = domain.VersionOutput{Action: string(grading.ActionVersion), Reason: "manual re-grade", Grade: domain.ViewOf(next)}
		return nil
	})
	return out, err
}

// sameManual reports whether a manual candidate is a byte-for-byte repeat of
// the latest manual grade, so double submitted forms do not grow the chain
func sameManual(g entity.Grade, c grading.Candidate) bool {
	return g.GradedBy == entity.OriginManual &&
		g.Score == c.Score && g.MaxPoints == c.MaxPoints && g.Feedback == c.Feedback
}

// Apply feeds one automatic candidate through the precedence rules.
// Used by the snapshot pipeline and by GradeWithAI
func (s *Svc) Apply(ctx context.Context, cand grading.Candidate) (domain.ApplyOutcome, error) {
	if err := cand.Validate(); err != nil {
		return domain.ApplyOutcome{}, err
	}

	var out domain.ApplyOutcome
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)

		latest, err := r.LatestForUpdate(ctx, cand.SubmissionID)
		var head *entity.Grade
		switch {
		case perr.IsCode(err, perr.ErrorCodeNotFound):
			head = nil
		case err != nil:
			return err
		default:
			head = &latest
		}

		d := grading.Resolve(head, cand)
		out = domain.ApplyOutcome{Action: d.Action, Reason: d.Reason}

		switch d.Action {
		case grading.ActionKeep:
			out.GradeID = latest.ID
			return nil
		case grading.ActionCreate:
			g, err := grading.Initial(cand, s.now())
			if err != nil {
				return err
			}
			if err := r.Insert(ctx, g); err != nil {
				return err
			}
			out.GradeID = g.ID
			return nil
		default:
			// after a rollback the latest pointer sits below the newest
			// version, so the next number comes from the lineage tail
			tail, err := r.TailForUpdate(ctx, cand.SubmissionID)
			if err != nil {
				return err
			}
			next, prev, err := grading.NextVersion(latest, tail, cand, s.now())
			if err != nil {
				return err
			}
			if err := r.SetLatest(ctx, prev.ID, false, prev.UpdatedAt); err != nil {
				return err
			}
			if err := r.Insert(ctx, next); err != nil {
				return err
			}
			out.GradeID = next.ID
			return nil
		}
	})
	return out, err
}

// Rollback moves the latest pointer of a lineage to an earlier version.
// It never deletes versions and never touches lock flags
func (s *Svc) Rollback(ctx context.Context, in domain.RollbackInput) (domain.VersionOutput, error) {
	var out domain.VersionOutput
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)

		chain, err := r.Lineage(ctx, in.SubmissionID)
		if err != nil {
			return err
		}
		if len(chain) == 0 {
			return perr.Newf(perr.ErrorCodeNotFound, "no grades for submission %q", in.SubmissionID)
		}

		var target, head *entity.Grade
		for i := range chain {
			if chain[i].Version == in.TargetVersion {
				target = &chain[i]
			}
			if chain[i].IsLatest {
				head = &chain[i]
			}
		}
		if target == nil {
			return perr.Newf(perr.ErrorCodeNotFound,
				"version %d is not part of submission %q lineage", in.TargetVersion, in.SubmissionID)
		}
		if head == nil {
			return perr.Newf(perr.ErrorCodeConflict, "lineage %q has no latest row", in.SubmissionID)
		}

		if target.ID == head.ID {
			out = domain.VersionOutput{Action: string(grading.ActionKeep), Reason: "target is already latest", Grade: domain.ViewOf(*target)}
			return nil
		}

		now := s.now().UTC()
		if err := r.SetLatest(ctx, head.ID, false, now); err != nil {
			return err
		}
		if err := r.SetLatest(ctx, target.ID, true, now); err != nil {
			return err
		}

		rolled := *target
		rolled.IsLatest = true
		rolled.UpdatedAt = now
		out = domain.VersionOutput{Action: "rollback", Reason: "latest pointer moved", Grade: domain.ViewOf(rolled)}
		return nil
	})
	return out, err
}

// Latest returns the current latest grade of a lineage
func (s *Svc) Latest(ctx context.Context, in domain.LatestQuery) (domain.GradeView, error) {
	g, err := s.Repo.Latest(ctx, in.SubmissionID)
	if err != nil {
		return domain.GradeView{}, err
	}
	return domain.ViewOf(g), nil
}

// Lineage returns the full ordered version history plus a chain integrity flag
func (s *Svc) Lineage(ctx context.Context, in domain.LineageQuery) (domain.LineageOutput, error) {
	chain, err := s.Repo.Lineage(ctx, in.SubmissionID)
	if err != nil {
		return domain.LineageOutput{}, err
	}
	if len(chain) == 0 {
		return domain.LineageOutput{}, perr.Newf(perr.ErrorCodeNotFound, "no grades for submission %q", in.SubmissionID)
	}

	views := make([]domain.GradeView, 0, len(chain))
	for _, g := range chain {
		views = append(views, domain.ViewOf(g))
	}
	return domain.LineageOutput{
		SubmissionID: in.SubmissionID,
		Versions:     views,
		ChainIntact:  grading.ValidateChain(chain) == nil,
	}, nil
}

// GradeWithAI fetches the submission's current content, asks the grading
// backend for a verdict, and applies it through the normal precedence rules
func (s *Svc) GradeWithAI(ctx context.Context, in domain.AIGradeInput) (domain.VersionOutput, error) {
	if s.grader == nil {
		return domain.VersionOutput{}, perr.New(perr.ErrorCodeUnavailable, "no grading backend configured")
	}

	sub, err := s.Repo.LatestSubmission(ctx, in.SubmissionID)
	if err != nil {
		return domain.VersionOutput{}, err
	}

	res, err := s.grader.Grade(ctx, grader.Request{
		SubmissionID:    in.SubmissionID,
		AssignmentTitle: sub.Title,
		Content:         sub.Content,
		MaxPoints:       sub.MaxScore,
	})
	if err != nil {
		return domain.VersionOutput{}, err
	}

	outcome, err := s.Apply(ctx, grading.Candidate{
		SubmissionID: in.SubmissionID,
		Score:        res.Score,
		MaxPoints:    res.MaxPoints,
		Feedback:     res.Feedback,
		GradedBy:     entity.OriginAI,
		GradedAt:     s.now().UTC(),
	})
	if err != nil {
		return domain.VersionOutput{}, err
	}

	g, err := s.Repo.Latest(ctx, in.SubmissionID)
	if err != nil {
		return domain.VersionOutput{}, err
	}
	return domain.VersionOutput{Action: string(outcome.Action), Reason: outcome.Reason, Grade: domain.ViewOf(g)}, nil
}
