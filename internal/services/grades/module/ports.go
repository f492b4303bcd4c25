package module

import dom "markbook/internal/services/grades/domain"

// Ports holds the ports exposed by the grades module.
// Applier is the surface the snapshot pipeline feeds automatic candidates
// through so the versioning rules stay in one place
type Ports struct {
	Service dom.ServicePort
	Applier dom.ApplierPort
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
