// Package grader provides the outbound seam to an automated grading backend
package grader

import "context"

// Request carries everything a grading backend needs to score one submission
type Request struct {
	SubmissionID    string  `json:"submission_id"`
	AssignmentTitle string  `json:"assignment_title,omitempty"`
	Content         string  `json:"content"`
	MaxPoints       float64 `json:"max_points"`
}

// Result is the backend's verdict for a single submission.
// Confidence is informational; it never gates whether the verdict is applied
type Result struct {
	Score      float64 `json:"score"`
	MaxPoints  float64 `json:"max_points"`
	Feedback   string  `json:"feedback"`
	Confidence float64 `json:"confidence,omitempty"`
	Model      string  `json:"model,omitempty"`
}

// Port is the surface services consume; the HTTP client implements it
type Port interface {
	Grade(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to Port, handy in tests
type Func func(ctx context.Context, req Request) (Result, error)

// Grade calls the underlying function
func (f Func) Grade(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }
