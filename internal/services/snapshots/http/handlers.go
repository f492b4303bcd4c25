// Package http provides http transport for snapshot processing
package http

import (
	stdhttp "net/http"

	"markbook/internal/modkit/httpkit"
	"markbook/internal/services/snapshots/domain"
	svc "markbook/internal/services/snapshots/service"
)

// Register mounts snapshot endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	// run one synchronous reconciliation pass
	httpkit.PostJSON[domain.ProcessInput](r, "/process", h.process)

	// most recent completed run for a teacher
	httpkit.PostJSON[domain.LastQuery](r, "/last", h.last)
}

type handlers struct{ svc svc.Service }

// swagger:route POST /snapshots/process Snapshots snapshotsProcess
// @Summary Reconcile one classroom snapshot into the entity store
// @Tags Snapshots
// @Accept json
// @Produce json
// @Param payload body domain.ProcessInput true "Snapshot"
// @Success 200 {object} domain.RunReport "ok"
// @Router /snapshots/process [post]
func (h *handlers) process(r *stdhttp.Request, in domain.ProcessInput) (any, error) {
	return h.svc.Process(r.Context(), in)
}

// swagger:route POST /snapshots/last Snapshots snapshotsLast
// @Summary Most recent completed run for a teacher
// @Tags Snapshots
// @Accept json
// @Produce json
// @Param payload body domain.LastQuery true "Query"
// @Success 200 {object} domain.LastView "ok"
// @Router /snapshots/last [post]
func (h *handlers) last(r *stdhttp.Request, in domain.LastQuery) (any, error) {
	return h.svc.Last(r.Context(), in)
}
