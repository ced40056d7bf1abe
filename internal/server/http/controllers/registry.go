package controllers

import (
	"net/http"

	"github.com/PortoLucas1/zerobus-station/internal/schema"
	streamsvc "github.com/PortoLucas1/zerobus-station/internal/services/streams"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

// Registry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes and shares
// the stream manager and schema registry between them.
type Registry struct {
	general *GeneralController
	ingest  *IngestController
}

// NewRegistry creates a controller registry wired to the given services.
func NewRegistry(mgr *streamsvc.Manager, reg *schema.Registry, logger logpkg.Logger) *Registry {
	return &Registry{
		general: NewGeneralController(mgr, reg),
		ingest:  NewIngestController(mgr, reg, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *Registry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.ingest.RegisterRoutes(mux)
}
