// Package service contains the snapshot reconciliation run
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"markbook/internal/core/diffmerge"
	"markbook/internal/core/entity"
	"markbook/internal/core/grading"
	"markbook/internal/core/snapshot"
	"markbook/internal/modkit/repokit"
	perr "markbook/internal/platform/errors"
	"markbook/internal/platform/logger"
	"markbook/internal/platform/store"
	"markbook/internal/services/snapshots/domain"
	"markbook/internal/services/snapshots/repo"
)

// Service defines the snapshots service contract
type Service interface {
	domain.ServicePort
}

// Options tunes one processing run
type Options struct {
	// BatchSize is how many entity writes go between budget checks
	BatchSize int

	// TimeBudget bounds one run; when it expires the run stops applying
	// batches and reports Incomplete instead of blocking the caller forever
	TimeBudget time.Duration

	// CH receives best-effort run report rows for analytics, may be nil
	CH store.Clickhouse

	// Now and NewRunID are injectable for tests
	Now      func() time.Time
	NewRunID func() string
}

const (
	defaultBatchSize  = 50
	defaultTimeBudget = 2 * time.Minute
)

// Svc implements the snapshot pipeline. Runs for the same teacher are
// serialized with an in-process mutex so a retried webhook cannot race a
// manual resync against the same persisted state
type Svc struct {
	Repo   repo.Storage
	binder repokit.Binder[repo.Storage]
	db     repokit.TxRunner
	grades domain.GradeApplier
	opts   Options
	log    logger.Logger

	locks sync.Map // teacher id -> *sync.Mutex
}

// New constructs a snapshots service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage], grades domain.GradeApplier, opt Options) *Svc {
	if db == nil {
		panic("snapshots.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("snapshots.Service requires a non nil Repo binder")
	}
	if grades == nil {
		panic("snapshots.Service requires the grades Apply port")
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = defaultBatchSize
	}
	if opt.TimeBudget <= 0 {
		opt.TimeBudget = defaultTimeBudget
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.NewRunID == nil {
		opt.NewRunID = func() string { return uuid.NewString() }
	}
	return &Svc{
		Repo:   binder.Bind(db),
		binder: binder,
		db:     db,
		grades: grades,
		opts:   opt,
		log:    *logger.Named("snapshots"),
	}
}

func (s *Svc) lockFor(teacherID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(teacherID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// run carries the mutable state of one processing pass
type run struct {
	report   domain.RunReport
	deadline time.Time
	now      time.Time
	ops      int
	full     bool
}

func (r *run) fail(kind, id string, err error) {
	code := perr.CodeOf(err)
	r.report.Errors = append(r.report.Errors, domain.EntityError{
		EntityType: kind,
		EntityID:   id,
		Message:    err.Error(),
		Retryable: code == perr.ErrorCodeUnavailable ||
			code == perr.ErrorCodeTooManyRequests ||
			code == perr.ErrorCodeDB,
	})
}

// overBudget checks the clock once per batch, not per entity
func (s *Svc) overBudget(r *run) bool {
	r.ops++
	if r.ops%s.opts.BatchSize != 0 {
		return false
	}
	return s.opts.Now().After(r.deadline)
}

// Process reconciles one inbound snapshot against the persisted state.
// Malformed top-level input fails fast before any write; per-entity failures
// are recorded in the report and never abort the run
func (s *Svc) Process(ctx context.Context, in domain.ProcessInput) (domain.RunReport, error) {
	start := s.opts.Now()

	bundle, err := snapshot.Normalize(in.Snapshot, start)
	if err != nil {
		return domain.RunReport{}, err
	}
	teacherID := bundle.Teacher.ID

	// both mailboxes resolve to the same teacher; a snapshot exported under
	// the school account must not mint a second identity
	existing, err := s.Repo.FindTeacher(ctx, bundle.Teacher.Email, bundle.Teacher.SchoolEmail)
	switch {
	case err == nil:
		if existing.ID != teacherID {
			bundle.RekeyTeacher(existing.ID)
			teacherID = existing.ID
		}
	case !perr.IsCode(err, perr.ErrorCodeNotFound):
		return domain.RunReport{}, err
	}

	mu := s.lockFor(teacherID)
	mu.Lock()
	defer mu.Unlock()

	r := &run{
		now:      start.UTC(),
		deadline: start.Add(s.opts.TimeBudget),
		full:     !in.Partial,
		report: domain.RunReport{
			RunID:     s.opts.NewRunID(),
			TeacherID: teacherID,
		},
	}
	for _, w := range bundle.Warnings {
		r.report.Warnings = append(r.report.Warnings, w.Message)
	}

	hash, err := snapshot.ContentHash(in.Snapshot)
	if err != nil {
		return domain.RunReport{}, perr.Wrap(err, perr.ErrorCodeValidation, "snapshot not hashable")
	}

	// content-identical to the last processed snapshot short-circuits the
	// whole run; volatile fields were stripped before hashing
	last, err := s.Repo.LastRun(ctx, teacherID)
	if err == nil && last.SnapshotHash == hash {
		r.report.NoChanges = true
		r.report.Success = true
		r.report.ProcessingTimeMs = s.opts.Now().Sub(start).Milliseconds()
		s.emit(ctx, r.report)
		return r.report, nil
	}
	if err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.RunReport{}, err
	}

	s.applyClassrooms(ctx, r, bundle)
	s.applyAssignments(ctx, r, bundle)
	s.applyEnrollments(ctx, r, bundle)
	s.applySubmissions(ctx, r, bundle)
	s.applyGrades(ctx, r, bundle)

	// refresh denormalized caches and the teacher roll-up after the writes
	if err := s.Repo.RecountClassrooms(ctx, teacherID, r.now); err != nil {
		r.fail("classroom", teacherID, err)
	}
	if err := s.Repo.RecountEnrollments(ctx, teacherID, r.now); err != nil {
		r.fail("enrollment", teacherID, err)
	}
	if err := s.Repo.UpsertTeacher(ctx, bundle.Teacher); err != nil {
		r.fail("teacher", teacherID, err)
	}

	r.report.Success = len(r.report.Errors) == 0 && !r.report.Incomplete
	r.report.ProcessingTimeMs = s.opts.Now().Sub(start).Milliseconds()

	// the hash is recorded only after a clean, complete run so a failed or
	// truncated import is retried rather than short-circuited next time
	if r.report.Success {
		err := s.Repo.SaveRun(ctx, repo.RunRow{
			TeacherID:        teacherID,
			RunID:            r.report.RunID,
			SnapshotHash:     hash,
			ProcessedAt:      r.now,
			ProcessingTimeMs: r.report.ProcessingTimeMs,
			ErrorCount:       0,
		})
		if err != nil {
			r.fail("run", r.report.RunID, err)
			r.report.Success = false
		}
	}

	s.emit(ctx, r.report)
	return r.report, nil
}

// applySet walks one change list, counting successes and recording failures.
// It stops early once the run goes over budget
func applySet[T any](s *Svc, r *run, kind string, items []T, id func(T) string, counter *int, do func(T) error) {
	for _, it := range items {
		if r.report.Incomplete {
			return
		}
		if err := do(it); err != nil {
			r.fail(kind, id(it), err)
		} else {
			*counter++
		}
		if s.overBudget(r) {
			r.report.Incomplete = true
		}
	}
}

func (s *Svc) applyClassrooms(ctx context.Context, r *run, b snapshot.Bundle) {
	persisted, err := s.Repo.Classrooms(ctx, r.report.TeacherID)
	if err != nil {
		r.fail("classroom", r.report.TeacherID, err)
		return
	}
	ch, err := diffmerge.Classrooms(b.Classrooms, persisted, r.full)
	if err != nil {
		r.fail("classroom", r.report.TeacherID, err)
		return
	}

	cid := func(c entity.Classroom) string { return c.ID }
	applySet(s, r, "classroom", ch.Create, cid, &r.report.Classrooms.Created, func(c entity.Classroom) error {
		return s.Repo.UpsertClassroom(ctx, c)
	})
	applySet(s, r, "classroom", ch.Update, func(p diffmerge.Pair[entity.Classroom]) string { return p.Incoming.ID },
		&r.report.Classrooms.Updated, func(p diffmerge.Pair[entity.Classroom]) error {
			c := p.Incoming
			c.Envelope = diffmerge.CarryEnvelope(p.Persisted.Envelope, r.now)
			return s.Repo.UpsertClassroom(ctx, c)
		})
	applySet(s, r, "classroom", ch.Archive, cid, &r.report.Classrooms.Archived, func(c entity.Classroom) error {
		return s.Repo.ArchiveClassroom(ctx, c.ID, r.now)
	})
}

func (s *Svc) applyAssignments(ctx context.Context, r *run, b snapshot.Bundle) {
	if r.report.Incomplete {
		return
	}
	persisted, err := s.Repo.Assignments(ctx, r.report.TeacherID)
	if err != nil {
		r.fail("assignment", r.report.TeacherID, err)
		return
	}
	ch, err := diffmerge.Assignments(b.Assignments, persisted, r.full)
	if err != nil {
		r.fail("assignment", r.report.TeacherID, err)
		return
	}

	aid := func(a entity.Assignment) string { return a.ID }
	applySet(s, r, "assignment", ch.Create, aid, &r.report.Assignments.Created, func(a entity.Assignment) error {
		return s.Repo.UpsertAssignment(ctx, a)
	})
	applySet(s, r, "assignment", ch.Update, func(p diffmerge.Pair[entity.Assignment]) string { return p.Incoming.ID },
		&r.report.Assignments.Updated, func(p diffmerge.Pair[entity.Assignment]) error {
			a := p.Incoming
			a.Envelope = diffmerge.CarryEnvelope(p.Persisted.Envelope, r.now)
			return s.Repo.UpsertAssignment(ctx, a)
		})
	applySet(s, r, "assignment", ch.Archive, aid, &r.report.Assignments.Archived, func(a entity.Assignment) error {
		return s.Repo.ArchiveAssignment(ctx, a.ID, r.now)
	})
}

func (s *Svc) applyEnrollments(ctx context.Context, r *run, b snapshot.Bundle) {
	if r.report.Incomplete {
		return
	}
	persisted, err := s.Repo.Enrollments(ctx, r.report.TeacherID)
	if err != nil {
		r.fail("enrollment", r.report.TeacherID, err)
		return
	}
	ch, err := diffmerge.Enrollments(b.Enrollments, persisted, r.full)
	if err != nil {
		r.fail("enrollment", r.report.TeacherID, err)
		return
	}

	eid := func(e entity.Enrollment) string { return e.ID }
	applySet(s, r, "enrollment", ch.Create, eid, &r.report.Enrollments.Created, func(e entity.Enrollment) error {
		return s.Repo.UpsertEnrollment(ctx, e)
	})
	applySet(s, r, "enrollment", ch.Update, func(p diffmerge.Pair[entity.Enrollment]) string { return p.Incoming.ID },
		&r.report.Enrollments.Updated, func(p diffmerge.Pair[entity.Enrollment]) error {
			e := p.Incoming
			e.Envelope = diffmerge.CarryEnvelope(p.Persisted.Envelope, r.now)
			return s.Repo.UpsertEnrollment(ctx, e)
		})
	applySet(s, r, "enrollment", ch.Archive, eid, &r.report.Enrollments.Archived, func(e entity.Enrollment) error {
		return s.Repo.ArchiveEnrollment(ctx, e.ID, r.now)
	})
}

func (s *Svc) applySubmissions(ctx context.Context, r *run, b snapshot.Bundle) {
	if r.report.Incomplete {
		return
	}
	persisted, err := s.Repo.LatestSubmissions(ctx, r.report.TeacherID)
	if err != nil {
		r.fail("submission", r.report.TeacherID, err)
		return
	}
	ch, err := diffmerge.Submissions(b.Submissions, persisted, r.full, r.now)
	if err != nil {
		r.fail("submission", r.report.TeacherID, err)
		return
	}

	sid := func(sub entity.Submission) string { return sub.ID }
	applySet(s, r, "submission", ch.Create, sid, &r.report.Submissions.Created, func(sub entity.Submission) error {
		return s.Repo.InsertSubmission(ctx, sub)
	})

	// a content fork demotes the old head and inserts the new version as one
	// transaction; the lineage must never be observable with two heads
	applySet(s, r, "submission", ch.Fork, func(f diffmerge.SubmissionFork) string { return f.Next.ID },
		&r.report.Submissions.Created, func(f diffmerge.SubmissionFork) error {
			return s.db.Tx(ctx, func(q repokit.Queryer) error {
				tr := s.binder.Bind(q)
				if err := tr.DemoteSubmission(ctx, f.Previous.ID, r.now); err != nil {
					return err
				}
				return tr.InsertSubmission(ctx, f.Next)
			})
		})

	applySet(s, r, "submission", ch.UpdateMeta, func(p diffmerge.Pair[entity.Submission]) string { return p.Persisted.ID },
		&r.report.Submissions.Updated, func(p diffmerge.Pair[entity.Submission]) error {
			sub := p.Persisted
			sub.StudentName = p.Incoming.StudentName
			sub.Status = p.Incoming.Status
			sub.ArchivedAt = nil
			sub.UpdatedAt = r.now
			return s.Repo.UpdateSubmission(ctx, sub)
		})
	applySet(s, r, "submission", ch.Archive, sid, &r.report.Submissions.Archived, func(sub entity.Submission) error {
		return s.Repo.ArchiveSubmission(ctx, sub.ID, r.now)
	})
}

// applyGrades runs after submissions so every candidate's lineage row exists.
// Candidates go through the grades service, which owns the precedence rules;
// this pipeline never writes grade rows directly
func (s *Svc) applyGrades(ctx context.Context, r *run, b snapshot.Bundle) {
	if r.report.Incomplete {
		return
	}
	for _, gc := range b.Grades {
		if r.report.Incomplete {
			return
		}
		out, err := s.grades.Apply(ctx, grading.Candidate{
			SubmissionID: gc.SubmissionID,
			Score:        gc.Score,
			MaxPoints:    gc.MaxPoints,
			Feedback:     gc.Feedback,
			GradedBy:     gc.GradedBy,
			GradedAt:     gc.GradedAt,
		})
		if err != nil {
			r.fail("grade", gc.SubmissionID, err)
		} else {
			switch out.Action {
			case grading.ActionCreate:
				r.report.Grades.Created++
			case grading.ActionVersion:
				r.report.Grades.Versioned++
			default:
				r.report.Grades.Kept++
			}
		}
		if s.overBudget(r) {
			r.report.Incomplete = true
		}
	}
}

// emit ships the run report to analytics, best effort
func (s *Svc) emit(ctx context.Context, rep domain.RunReport) {
	if s.opts.CH == nil {
		return
	}
	if err := s.opts.CH.Insert(ctx, "snapshot_run_reports", rep); err != nil {
		s.log.Debug().Err(err).Str("run", rep.RunID).Msg("run report insert skipped")
	}
}

// Last returns the stored record of a teacher's most recent completed run
func (s *Svc) Last(ctx context.Context, in domain.LastQuery) (domain.LastView, error) {
	row, err := s.Repo.LastRun(ctx, in.TeacherID)
	if err != nil {
		return domain.LastView{}, err
	}
	return domain.LastView{
		TeacherID:        row.TeacherID,
		RunID:            row.RunID,
		SnapshotHash:     row.SnapshotHash,
		ProcessedAt:      row.ProcessedAt,
		ProcessingTimeMs: row.ProcessingTimeMs,
		ErrorCount:       row.ErrorCount,
	}, nil
}
