package domain

import (
	"context"

	gradesdom "markbook/internal/services/grades/domain"
)

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	Process(ctx context.Context, in ProcessInput) (RunReport, error)
	Last(ctx context.Context, in LastQuery) (LastView, error)
}

// GradeApplier is the injected half of the grades module this pipeline needs.
// Alias kept local so the snapshots domain does not name the grades service
type GradeApplier = gradesdom.ApplierPort
