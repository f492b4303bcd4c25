// Package domain holds DTOs for snapshot processing contracts
package domain

import (
	"time"

	"markbook/internal/core/snapshot"
)

// ProcessInput carries one inbound snapshot for reconciliation.
// Partial marks a filtered export; absence then never archives anything
type ProcessInput struct {
	Snapshot snapshot.Raw `json:"snapshot"`
	Partial  bool         `json:"partial,omitempty"`
}

// TypeStats counts what happened to one entity type during a run
type TypeStats struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
}

// GradeStats counts grade candidate outcomes during a run
type GradeStats struct {
	Created   int `json:"created"`
	Versioned int `json:"versioned"`
	Kept      int `json:"kept"`
}

// EntityError is one per-entity failure captured without aborting the run
type EntityError struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

// RunReport is the result of one processing run
type RunReport struct {
	RunID     string `json:"run_id"`
	TeacherID string `json:"teacher_id"`

	// Success means the run completed with zero entity errors.
	// NoChanges means the snapshot was content-identical to the last
	// processed one and the run short-circuited before any diffing.
	// Incomplete means the time budget expired before all batches applied
	Success    bool `json:"success"`
	NoChanges  bool `json:"no_changes"`
	Incomplete bool `json:"incomplete"`

	Classrooms  TypeStats  `json:"classrooms"`
	Assignments TypeStats  `json:"assignments"`
	Enrollments TypeStats  `json:"enrollments"`
	Submissions TypeStats  `json:"submissions"`
	Grades      GradeStats `json:"grades"`

	Warnings []string      `json:"warnings,omitempty"`
	Errors   []EntityError `json:"errors,omitempty"`

	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// ErrorCount is the total number of per-entity failures
func (r RunReport) ErrorCount() int { return len(r.Errors) }

// LastQuery asks for the most recent run of one teacher
type LastQuery struct {
	TeacherID string `json:"teacher_id" validate:"required,min=1,max=300"`
}

// LastView is the stored record of a teacher's most recent completed run
type LastView struct {
	TeacherID        string    `json:"teacher_id"`
	RunID            string    `json:"run_id"`
	SnapshotHash     string    `json:"snapshot_hash"`
	ProcessedAt      time.Time `json:"processed_at"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ErrorCount       int       `json:"error_count"`
}
