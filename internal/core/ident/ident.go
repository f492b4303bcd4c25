// Package ident derives stable entity IDs from externally supplied identifiers.
// IDs are pure functions of their inputs: the same real-world object maps to
// the same internal ID across repeated snapshot imports, in any process.
// Empty or whitespace-only parts are rejected loudly, since a degenerate ID
// would silently merge two distinct real-world entities
package ident

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	perr "markbook/internal/platform/errors"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Entity kinds used as ID prefixes. Values are stable; stored IDs embed them
const (
	KindTeacher    = "teacher"
	KindClassroom  = "classroom"
	KindAssignment = "assignment"
	KindEnrollment = "enrollment"
	KindSubmission = "submission"
	KindGrade      = "grade"
)

// folder performs Unicode case folding for email components.
// cases.Fold is locale independent, which keeps derivation deterministic
var folder = cases.Fold()

// Derive builds a stable ID from a kind and one or more parts.
// Each part is escaped before joining, so the mapping is injective: distinct
// part tuples can never collide on the joined form
func Derive(kind string, parts ...string) (string, error) {
	if strings.TrimSpace(kind) == "" {
		return "", perr.New(perr.ErrorCodeInvalidArgument, "ident: empty kind")
	}
	if len(parts) == 0 {
		return "", perr.Newf(perr.ErrorCodeInvalidArgument, "ident: %s id needs at least one part", kind)
	}
	segs := make([]string, 0, len(parts)+1)
	segs = append(segs, kind)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", perr.Newf(perr.ErrorCodeInvalidArgument, "ident: %s id part %d is empty", kind, i+1)
		}
		segs = append(segs, url.QueryEscape(p))
	}
	return strings.Join(segs, ":"), nil
}

// NormalizeEmail folds case and collapses whitespace in an email address so
// the same mailbox always derives the same ID component
func NormalizeEmail(email string) (string, error) {
	e := strings.TrimSpace(email)
	if e == "" {
		return "", perr.New(perr.ErrorCodeInvalidArgument, "ident: empty email")
	}
	e = norm.NFKC.String(e)
	e = folder.String(e)
	// drop any interior whitespace a sloppy exporter may have left in
	e = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, e)
	if !strings.Contains(e, "@") {
		return "", perr.Newf(perr.ErrorCodeInvalidArgument, "ident: %q is not an email", email)
	}
	return e, nil
}

// Teacher derives a teacher ID from the login email
func Teacher(email string) (string, error) {
	e, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	return Derive(KindTeacher, e)
}

// Classroom derives a classroom ID from the external course ID
func Classroom(externalCourseID string) (string, error) {
	return Derive(KindClassroom, externalCourseID)
}

// Assignment derives an assignment ID from its classroom's stable ID and the
// external coursework ID
func Assignment(classroomID, externalWorkID string) (string, error) {
	return Derive(KindAssignment, classroomID, externalWorkID)
}

// Enrollment derives an enrollment ID from the classroom stable ID and the
// student's normalized email
func Enrollment(classroomID, studentEmail string) (string, error) {
	e, err := NormalizeEmail(studentEmail)
	if err != nil {
		return "", err
	}
	return Derive(KindEnrollment, classroomID, e)
}

// Submission derives a submission ID from the assignment stable ID and the
// external student ID
func Submission(assignmentID, studentID string) (string, error) {
	return Derive(KindSubmission, assignmentID, studentID)
}

// SubmissionVersion derives the row ID for a forked submission version.
// Version 1 keeps the bare lineage ID so grade references stay stable when
// content later forks
func SubmissionVersion(lineageID string, version int) (string, error) {
	if version < 1 {
		return "", perr.Newf(perr.ErrorCodeInvalidArgument, "ident: submission version %d out of range", version)
	}
	if version == 1 {
		if strings.TrimSpace(lineageID) == "" {
			return "", perr.New(perr.ErrorCodeInvalidArgument, "ident: empty submission lineage id")
		}
		return lineageID, nil
	}
	return Derive(KindSubmission, lineageID, "v"+strconv.Itoa(version))
}

// Grade derives a grade version ID from the submission stable ID and the
// version number. Deterministic version IDs mean a retried batch cannot mint
// a second ID for the same logical version
func Grade(submissionID string, version int) (string, error) {
	if version < 1 {
		return "", perr.Newf(perr.ErrorCodeInvalidArgument, "ident: grade version %d out of range", version)
	}
	return Derive(KindGrade, submissionID, strconv.Itoa(version))
}
