package diffmerge

import (
	"time"

	"markbook/internal/core/entity"
	"markbook/internal/core/ident"
)

// SubmissionFork is a content change that forks a new submission version.
// Previous is the demoted row (IsLatest flipped false), Next the new latest
type SubmissionFork struct {
	Previous entity.Submission
	Next     entity.Submission
}

// SubmissionChanges separates content forks from metadata-only updates.
// Only content differences fork a version; status churn (late flags, state
// transitions) updates the latest row in place to avoid an explosive version
// count from administrative noise
type SubmissionChanges struct {
	Create     []entity.Submission
	Fork       []SubmissionFork
	UpdateMeta []Pair[entity.Submission]
	Archive    []entity.Submission
}

// Empty reports whether the diff found nothing to do
func (c SubmissionChanges) Empty() bool {
	return len(c.Create) == 0 && len(c.Fork) == 0 && len(c.UpdateMeta) == 0 && len(c.Archive) == 0
}

// submissionKey recovers the lineage key from content fields, so persisted
// version rows and incoming normalized rows index identically
func submissionKey(s entity.Submission) (string, error) {
	return ident.Submission(s.AssignmentID, s.StudentID)
}

// Submissions reconciles incoming submissions against the persisted latest
// version per lineage. persisted must contain only IsLatest rows
func Submissions(incoming, persisted []entity.Submission, full bool, now time.Time) (SubmissionChanges, error) {
	now = now.UTC()
	var out SubmissionChanges

	persistedByKey := make(map[string]entity.Submission, len(persisted))
	for _, p := range persisted {
		k, err := submissionKey(p)
		if err != nil {
			return SubmissionChanges{}, err
		}
		persistedByKey[k] = p
	}

	incomingKeys := make(map[string]struct{}, len(incoming))
	for _, in := range incoming {
		k, err := submissionKey(in)
		if err != nil {
			return SubmissionChanges{}, err
		}
		incomingKeys[k] = struct{}{}

		p, ok := persistedByKey[k]
		if !ok {
			out.Create = append(out.Create, in)
			continue
		}

		if in.Content != p.Content {
			next := in
			next.Version = p.Version + 1
			next.PreviousVersionID = p.ID
			next.IsLatest = true
			next.CreatedAt = now
			next.UpdatedAt = now
			id, err := ident.SubmissionVersion(k, next.Version)
			if err != nil {
				return SubmissionChanges{}, err
			}
			next.ID = id

			prev := p
			prev.IsLatest = false
			prev.UpdatedAt = now
			out.Fork = append(out.Fork, SubmissionFork{Previous: prev, Next: next})
			continue
		}

		if in.Status != p.Status || in.StudentName != p.StudentName || p.Archived() {
			out.UpdateMeta = append(out.UpdateMeta, Pair[entity.Submission]{Incoming: in, Persisted: p})
		}
	}

	if full {
		for _, p := range persisted {
			k, err := submissionKey(p)
			if err != nil {
				return SubmissionChanges{}, err
			}
			if _, ok := incomingKeys[k]; ok {
				continue
			}
			if p.Archived() {
				continue
			}
			out.Archive = append(out.Archive, p)
		}
	}
	return out, nil
}
