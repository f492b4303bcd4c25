// Package api provides the HTTP API for the application
package api

import (
	"crypto/subtle"
	"net/http"

	"markbook/internal/platform/config"
	perr "markbook/internal/platform/errors"
	"markbook/internal/platform/logger"
	phttp "markbook/internal/platform/net/http"
	"markbook/internal/platform/store"

	"markbook/internal/modkit"
	"markbook/internal/modkit/httpkit"
	"markbook/internal/modkit/module"
	"markbook/internal/modkit/swaggerkit"

	metamod "markbook/internal/services/api/meta/module"
	gradesmod "markbook/internal/services/grades/module"
	snapmod "markbook/internal/services/snapshots/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}

	// optional shared-token guard for the write endpoints; the exporter script
	// sends it as a bearer token. Empty config leaves the API open (dev mode)
	var guarded []func(http.Handler) http.Handler
	if token := opt.Config.MayString("STATIC_TOKEN", ""); token != "" {
		port := httpkit.NewPortFunc(func(got string) (string, string, error) {
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return "", "", perr.Unauthorizedf("bad token")
			}
			return "exporter", "", nil
		})
		guarded = append(guarded, httpkit.Auth(port))
	}

	// Construct the grades module first and extract its Apply port
	grades := gradesmod.New(deps, modkit.WithMiddlewares(guarded...))
	applier := module.MustPortsOf[gradesmod.Ports](grades).Applier

	// Inject that port into the snapshot pipeline so every grade candidate
	// found in a snapshot goes through the same versioning rules
	snapshots := snapmod.New(
		deps,
		modkit.WithPorts(snapmod.Ports{
			Grades: applier,
		}),
		modkit.WithMiddlewares(guarded...),
	)

	mods := []module.Module{
		metamod.New(deps),
		grades,
		snapshots,
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}
