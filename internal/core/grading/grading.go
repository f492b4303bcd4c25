// Package grading decides what happens when a new grade result meets the
// persisted latest grade for a submission. Grades are never updated in place:
// a real change forks a new version, everything else keeps the existing row.
// Locked grades (manual ones) are terminal and never superseded automatically
package grading

import (
	"time"

	"markbook/internal/core/entity"
	"markbook/internal/core/ident"
	perr "markbook/internal/platform/errors"
)

// Action is the outcome of resolving a candidate against the latest grade
type Action string

const (
	// ActionCreate writes the first version of a lineage
	ActionCreate Action = "create"

	// ActionVersion forks a new version and demotes the current latest
	ActionVersion Action = "create_version"

	// ActionKeep leaves the persisted grade untouched
	ActionKeep Action = "keep"
)

// Candidate is a grade result awaiting resolution, before any versioning
// identity is assigned
type Candidate struct {
	SubmissionID string
	Score        float64
	MaxPoints    float64
	Feedback     string
	GradedBy     entity.GradeOrigin
	GradedAt     time.Time
}

// Validate rejects candidates that could never become a well-formed grade
func (c Candidate) Validate() error {
	if c.SubmissionID == "" {
		return perr.New(perr.ErrorCodeValidation, "grade candidate missing submission id")
	}
	if !c.GradedBy.Valid() {
		return perr.Newf(perr.ErrorCodeValidation, "unknown grade origin %q", c.GradedBy)
	}
	if c.MaxPoints <= 0 {
		return perr.Newf(perr.ErrorCodeValidation, "max points must be positive, got %v", c.MaxPoints)
	}
	if c.Score < 0 || c.Score > c.MaxPoints {
		return perr.Newf(perr.ErrorCodeValidation, "score %v outside [0, %v]", c.Score, c.MaxPoints)
	}
	return nil
}

// Decision carries the resolved action and a short human-readable reason,
// surfaced in run reports and API responses
type Decision struct {
	Action Action
	Reason string
}

// Resolve applies the precedence ladder to a candidate and the latest
// persisted grade of its lineage (nil when none exists). The ladder is
// ordered: lock beats origin, origin beats content equality
func Resolve(existing *entity.Grade, cand Candidate) Decision {
	if existing == nil {
		return Decision{Action: ActionCreate, Reason: "no existing grade"}
	}
	if existing.IsLocked {
		return Decision{Action: ActionKeep, Reason: "existing grade is locked"}
	}
	if existing.GradedBy == entity.OriginManual && cand.GradedBy == entity.OriginAI {
		return Decision{Action: ActionKeep, Reason: "manual grade outranks ai result"}
	}
	if sameContent(*existing, cand) {
		return Decision{Action: ActionKeep, Reason: "identical grade content"}
	}
	return Decision{Action: ActionVersion, Reason: "grade content changed"}
}

// sameContent compares the fields that make two grades the same grade.
// GradedAt is bookkeeping, not content: re-running a grader over an unchanged
// submission must not fork a version just because the clock moved
func sameContent(g entity.Grade, c Candidate) bool {
	return g.Score == c.Score && g.MaxPoints == c.MaxPoints && g.Feedback == c.Feedback
}

// Initial builds version 1 of a grade lineage from a candidate
func Initial(cand Candidate, now time.Time) (entity.Grade, error) {
	if err := cand.Validate(); err != nil {
		return entity.Grade{}, err
	}
	id, err := ident.Grade(cand.SubmissionID, 1)
	if err != nil {
		return entity.Grade{}, err
	}
	now = now.UTC()
	return entity.Grade{
		Envelope: entity.Envelope{
			ID:        id,
			Version:   1,
			IsLatest:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		SubmissionID: cand.SubmissionID,
		Score:        cand.Score,
		MaxPoints:    cand.MaxPoints,
		Feedback:     cand.Feedback,
		GradedBy:     cand.GradedBy,
		IsLocked:     cand.GradedBy.Locks(),
		GradedAt:     cand.GradedAt.UTC(),
	}, nil
}

// NextVersion builds the successor of a lineage from a candidate and returns
// the demoted previous row alongside it. latest is the row the latest pointer
// sits on; tail is the highest version ever written. The two differ after a
// rollback, and version numbers are never reused, so the successor always
// counts from tail. Both rows must be written atomically by the caller so the
// lineage never has zero or two latest versions
func NextVersion(latest, tail entity.Grade, cand Candidate, now time.Time) (next, previous entity.Grade, err error) {
	if err := cand.Validate(); err != nil {
		return entity.Grade{}, entity.Grade{}, err
	}
	if cand.SubmissionID != latest.SubmissionID {
		return entity.Grade{}, entity.Grade{}, perr.Newf(perr.ErrorCodeInvalidArgument,
			"candidate submission %q does not match lineage %q", cand.SubmissionID, latest.SubmissionID)
	}
	if tail.SubmissionID != latest.SubmissionID {
		return entity.Grade{}, entity.Grade{}, perr.Newf(perr.ErrorCodeInvalidArgument,
			"tail submission %q does not match lineage %q", tail.SubmissionID, latest.SubmissionID)
	}
	if latest.IsLocked {
		return entity.Grade{}, entity.Grade{}, perr.New(perr.ErrorCodeConflict, "cannot version a locked grade")
	}

	id, err := ident.Grade(latest.SubmissionID, tail.Version+1)
	if err != nil {
		return entity.Grade{}, entity.Grade{}, err
	}
	now = now.UTC()

	next = entity.Grade{
		Envelope: entity.Envelope{
			ID:                id,
			Version:           tail.Version + 1,
			IsLatest:          true,
			PreviousVersionID: tail.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		SubmissionID: latest.SubmissionID,
		Score:        cand.Score,
		MaxPoints:    cand.MaxPoints,
		Feedback:     cand.Feedback,
		GradedBy:     cand.GradedBy,
		IsLocked:     cand.GradedBy.Locks(),
		GradedAt:     cand.GradedAt.UTC(),
	}

	previous = latest
	previous.IsLatest = false
	previous.UpdatedAt = now
	return next, previous, nil
}

// Supersede is the explicit manual re-grade path. Unlike NextVersion it may
// fork past a locked head, because a human asked for it by name. Only manual
// candidates are accepted here; automatic writers must go through Resolve
func Supersede(latest, tail entity.Grade, cand Candidate, now time.Time) (next, previous entity.Grade, err error) {
	if cand.GradedBy != entity.OriginManual {
		return entity.Grade{}, entity.Grade{}, perr.Newf(perr.ErrorCodeForbidden,
			"only manual re-grades may supersede, got origin %q", cand.GradedBy)
	}
	unlocked := latest
	unlocked.IsLocked = false
	next, previous, err = NextVersion(unlocked, tail, cand, now)
	if err != nil {
		return entity.Grade{}, entity.Grade{}, err
	}
	// demotion flips is_latest only; the old row keeps its lock flag
	previous.IsLocked = latest.IsLocked
	return next, previous, nil
}

// ValidateChain checks the structural integrity of a full grade lineage:
// contiguous versions from 1, previous pointers that actually link, exactly
// one latest row, and one submission throughout. The latest flag may sit on
// any version, not just the head, because a rollback moves the pointer
// without rewriting history. The slice may arrive in any order
func ValidateChain(chain []entity.Grade) error {
	if len(chain) == 0 {
		return nil
	}

	byVersion := make(map[int]entity.Grade, len(chain))
	sub := chain[0].SubmissionID
	latestCount := 0
	maxVersion := 0
	for _, g := range chain {
		if g.SubmissionID != sub {
			return perr.Newf(perr.ErrorCodeConflict,
				"lineage mixes submissions %q and %q", sub, g.SubmissionID)
		}
		if _, dup := byVersion[g.Version]; dup {
			return perr.Newf(perr.ErrorCodeConflict, "duplicate version %d in lineage", g.Version)
		}
		byVersion[g.Version] = g
		if g.IsLatest {
			latestCount++
		}
		if g.Version > maxVersion {
			maxVersion = g.Version
		}
	}

	if latestCount != 1 {
		return perr.Newf(perr.ErrorCodeConflict, "lineage has %d latest rows, want exactly 1", latestCount)
	}

	for v := 1; v <= maxVersion; v++ {
		g, ok := byVersion[v]
		if !ok {
			return perr.Newf(perr.ErrorCodeConflict, "lineage missing version %d", v)
		}
		if v == 1 {
			if g.PreviousVersionID != "" {
				return perr.New(perr.ErrorCodeConflict, "version 1 must not have a previous pointer")
			}
			continue
		}
		if g.PreviousVersionID != byVersion[v-1].ID {
			return perr.Newf(perr.ErrorCodeConflict,
				"version %d previous pointer %q does not link to version %d", v, g.PreviousVersionID, v-1)
		}
	}
	return nil
}
