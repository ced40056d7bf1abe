package controllers

import (
	"net/http"

	"github.com/PortoLucas1/zerobus-station/internal/schema"
	streamsvc "github.com/PortoLucas1/zerobus-station/internal/services/streams"
)

// GeneralController handles service-level endpoints: the root info page,
// health checks, and the table inventory.
type GeneralController struct {
	mgr *streamsvc.Manager
	reg *schema.Registry
}

// NewGeneralController creates a new general controller.
func NewGeneralController(mgr *streamsvc.Manager, reg *schema.Registry) *GeneralController {
	return &GeneralController{mgr: mgr, reg: reg}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleRoot)
	mux.HandleFunc("GET /v1/healthz", c.handleHealth)
	mux.HandleFunc("GET /v1/health/{table}", c.handleTableHealth)
	mux.HandleFunc("GET /v1/tables", c.handleListTables)
	mux.HandleFunc("DELETE /v1/tables/{table}", c.handleRemoveTable)
}

// handleRoot describes the service and its configured tables.
func (c *GeneralController) handleRoot(w http.ResponseWriter, r *http.Request) {
	tables := make([]map[string]string, 0)
	for _, key := range c.reg.Keys() {
		tables = append(tables, map[string]string{
			"table":  key,
			"ingest": "/v1/ingest/" + key,
			"flush":  "/v1/flush/" + key,
			"health": "/v1/health/" + key,
		})
	}
	writeJSON(w, map[string]any{
		"service": "zerobus-station",
		"tables":  tables,
	})
}

// handleHealth reports overall liveness and the set of active streams.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":         "ok",
		"active_streams": c.mgr.ActiveTables(),
	})
}

// handleTableHealth reports per-table stream liveness. 404 for tables not in
// the configuration.
func (c *GeneralController) handleTableHealth(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("table")
	if _, ok := c.reg.Lookup(key); !ok {
		writeError(w, http.StatusNotFound, "unknown table: "+key)
		return
	}
	state, active := c.mgr.StreamState(key)
	resp := map[string]any{
		"table":         key,
		"stream_active": active,
	}
	if active {
		resp["state"] = state.String()
	}
	writeJSON(w, resp)
}

// handleListTables returns every configured table and whether it currently
// has a live stream.
func (c *GeneralController) handleListTables(w http.ResponseWriter, r *http.Request) {
	active := map[string]bool{}
	for _, key := range c.mgr.ActiveTables() {
		active[key] = true
	}
	tables := make([]map[string]any, 0)
	for _, key := range c.reg.Keys() {
		entry, _ := c.reg.Lookup(key)
		tables = append(tables, map[string]any{
			"key":           key,
			"table_name":    entry.Table.TableName,
			"stream_active": active[key],
		})
	}
	writeJSON(w, map[string]any{"tables": tables})
}

// handleRemoveTable tears down the active stream for a table.
func (c *GeneralController) handleRemoveTable(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("table")
	if _, ok := c.reg.Lookup(key); !ok {
		writeError(w, http.StatusNotFound, "unknown table: "+key)
		return
	}
	c.mgr.RemoveTable(key)
	writeNoContent(w)
}
