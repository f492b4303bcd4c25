// Package module wires snapshot processing into the API using modkit
package module

import (
	"net/http"
	"time"

	modkit "markbook/internal/modkit"
	"markbook/internal/modkit/httpkit"
	"markbook/internal/platform/config"

	"markbook/internal/services/snapshots/domain"
	shttp "markbook/internal/services/snapshots/http"
	srepo "markbook/internal/services/snapshots/repo"
	ssvc "markbook/internal/services/snapshots/service"
)

// Ports declares the required injected port(s) for this module
type Ports struct {
	// Grades is the grades module's Apply surface; candidates found in
	// snapshots are fed through it so the versioning rules stay in one place
	Grades domain.GradeApplier
}

// Options tunes processing runs
type Options struct {
	BatchSize  int
	TimeBudget time.Duration
}

// FromConfig reads SNAPSHOTS_* values from process config/env
func FromConfig(cfg config.Conf) Options {
	sc := cfg.Prefix("SNAPSHOTS_")
	return Options{
		BatchSize:  sc.MayInt("BATCH_SIZE", 50),
		TimeBudget: sc.MayDuration("TIME_BUDGET", 2*time.Minute),
	}
}

// Module implements the snapshots module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc ssvc.Service
}

// New constructs the snapshots module
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("snapshots"),
		modkit.WithPrefix("/snapshots"),
	}, opts...)...)

	var injected Ports
	if p, ok := b.Ports.(Ports); ok {
		injected = p
	}
	if injected.Grades == nil {
		panic("snapshots module requires the grades Apply port (from services/grades)")
	}

	cfg := FromConfig(deps.Cfg)
	svc := ssvc.New(deps.PG, srepo.NewPG(), injected.Grades, ssvc.Options{
		BatchSize:  cfg.BatchSize,
		TimeBudget: cfg.TimeBudget,
		CH:         deps.CH,
	})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = adaptSnapshotsPort{svc: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		shttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return m.prefix }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
