// Package http provides http transport for grades
package http

import (
	stdhttp "net/http"

	"markbook/internal/modkit/httpkit"
	"markbook/internal/services/grades/domain"
	svc "markbook/internal/services/grades/service"
)

// Register mounts grade endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	// explicit manual re-grade
	httpkit.PostJSON[domain.VersionInput](r, "/version", h.createVersion)

	// move the latest pointer to an earlier version
	httpkit.PostJSON[domain.RollbackInput](r, "/rollback", h.rollback)

	// current head of one lineage
	httpkit.PostJSON[domain.LatestQuery](r, "/latest", h.latest)

	// full version history
	httpkit.PostJSON[domain.LineageQuery](r, "/lineage", h.lineage)

	// score through the automated backend
	httpkit.PostJSON[domain.AIGradeInput](r, "/ai", h.gradeWithAI)
}

type handlers struct{ svc svc.Service }

// swagger:route POST /grades/version Grades gradesCreateVersion
// @Summary Record a manual re-grade as a new version
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body domain.VersionInput true "Grade"
// @Success 200 {object} domain.VersionOutput "ok"
// @Router /grades/version [post]
func (h *handlers) createVersion(r *stdhttp.Request, in domain.VersionInput) (any, error) {
	return h.svc.CreateVersion(r.Context(), in)
}

// swagger:route POST /grades/rollback Grades gradesRollback
// @Summary Roll the latest pointer back to an earlier version
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body domain.RollbackInput true "Target"
// @Success 200 {object} domain.VersionOutput "ok"
// @Router /grades/rollback [post]
func (h *handlers) rollback(r *stdhttp.Request, in domain.RollbackInput) (any, error) {
	return h.svc.Rollback(r.Context(), in)
}

// swagger:route POST /grades/latest Grades gradesLatest
// @Summary Current latest grade of a lineage
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body domain.LatestQuery true "Query"
// @Success 200 {object} domain.GradeView "ok"
// @Router /grades/latest [post]
func (h *handlers) latest(r *stdhttp.Request, in domain.LatestQuery) (any, error) {
	return h.svc.Latest(r.Context(), in)
}

// swagger:route POST /grades/lineage Grades gradesLineage
// @Summary Full version history of a lineage
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body domain.LineageQuery true "Query"
// @Success 200 {object} domain.LineageOutput "ok"
// @Router /grades/lineage [post]
func (h *handlers) lineage(r *stdhttp.Request, in domain.LineageQuery) (any, error) {
	return h.svc.Lineage(r.Context(), in)
}

// swagger:route POST /grades/ai Grades gradesAI
// @Summary Grade a submission through the automated backend
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body domain.AIGradeInput true "Submission"
// @Success 200 {object} domain.VersionOutput "ok"
// @Router /grades/ai [post]
func (h *handlers) gradeWithAI(r *stdhttp.Request, in domain.AIGradeInput) (any, error) {
	return h.svc.GradeWithAI(r.Context(), in)
}
