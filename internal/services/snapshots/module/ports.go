package module

import (
	"context"

	"markbook/internal/services/snapshots/domain"
	ssvc "markbook/internal/services/snapshots/service"
)

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// adaptSnapshotsPort exposes service methods as module ports
type adaptSnapshotsPort struct{ svc ssvc.Service }

// Process runs one reconciliation pass
func (a adaptSnapshotsPort) Process(ctx context.Context, in domain.ProcessInput) (domain.RunReport, error) {
	return a.svc.Process(ctx, in)
}

// Last returns a teacher's most recent completed run
func (a adaptSnapshotsPort) Last(ctx context.Context, in domain.LastQuery) (domain.LastView, error) {
	return a.svc.Last(ctx, in)
}
