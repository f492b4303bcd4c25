// Package module wires grades into the API using modkit
package module

import (
	"net/http"
	"time"

	"markbook/internal/adapters/grader"
	modkit "markbook/internal/modkit"
	"markbook/internal/modkit/httpkit"
	"markbook/internal/platform/config"

	ghttp "markbook/internal/services/grades/http"
	grepo "markbook/internal/services/grades/repo"
	gsvc "markbook/internal/services/grades/service"
)

// Options controls the grading backend client
type Options struct {
	GraderBaseURL    string
	GraderAPIKey     string
	GraderUserAgent  string
	GraderTimeout    time.Duration
	GraderMaxRetries int
	GraderRetryBase  time.Duration
}

// FromConfig reads GRADER_* values from process config/env
func FromConfig(cfg config.Conf) Options {
	gc := cfg.Prefix("GRADER_")
	return Options{
		GraderBaseURL:    gc.MayString("BASE_URL", ""),
		GraderAPIKey:     gc.MayString("API_KEY", ""),
		GraderUserAgent:  gc.MayString("UA", "markbook-grader"),
		GraderTimeout:    gc.MayDuration("TIMEOUT", 30*time.Second),
		GraderMaxRetries: gc.MayInt("MAX_RETRIES", 4),
		GraderRetryBase:  gc.MayDuration("RETRY_BASE", 500*time.Millisecond),
	}
}

// Module implements the grades module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc gsvc.Service
}

// New constructs the grades module
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("grades"), modkit.WithPrefix("/grades")}, opts...)...)

	cfg := FromConfig(deps.Cfg)

	var backend grader.Port
	if cfg.GraderBaseURL != "" {
		backend = grader.NewClient(grader.Options{
			BaseURL:    cfg.GraderBaseURL,
			APIKey:     cfg.GraderAPIKey,
			UserAgent:  cfg.GraderUserAgent,
			Timeout:    cfg.GraderTimeout,
			MaxRetries: cfg.GraderMaxRetries,
			RetryBase:  cfg.GraderRetryBase,
		})
	}

	svc := gsvc.New(deps.PG, grepo.NewPG(), gsvc.Options{Grader: backend})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = Ports{Service: svc, Applier: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		ghttp.Register(r, m.svc)
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
