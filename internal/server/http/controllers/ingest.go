package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/PortoLucas1/zerobus-station/internal/schema"
	streamsvc "github.com/PortoLucas1/zerobus-station/internal/services/streams"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

// maxRecordBytes bounds a single ingested record body.
const maxRecordBytes = 4 << 20

// IngestController handles the record ingestion and flush endpoints.
//
// Each request resolves its table against the schema registry, encodes the
// JSON body through the table's codec, and appends the record onto the
// table's stream, creating the stream on first use.
type IngestController struct {
	mgr    *streamsvc.Manager
	reg    *schema.Registry
	logger logpkg.Logger
}

// NewIngestController creates a new ingest controller.
func NewIngestController(mgr *streamsvc.Manager, reg *schema.Registry, logger logpkg.Logger) *IngestController {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &IngestController{mgr: mgr, reg: reg, logger: logger.WithComponent("ingest")}
}

// RegisterRoutes registers ingestion routes with the given mux.
func (c *IngestController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/ingest/{table}", c.handleIngest)
	mux.HandleFunc("POST /v1/flush/{table}", c.handleFlush)
}

// handleIngest appends one JSON record to the table's stream.
//
// Responses: 404 unknown table, 400 malformed or schema-invalid body, 422
// rejected by the table's admission filter, 500 stream creation or submission
// failure. With ?wait_for_ack=true the request blocks until the record is
// durable and reports it in the response.
func (c *IngestController) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("table")
	entry, ok := c.reg.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown table: "+key)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return
	}
	if entry.Filter.Enabled() && !entry.Filter.Eval(key, body) {
		writeJSONStatus(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "filtered",
			"table":  key,
		})
		return
	}
	payload, err := entry.Codec.Encode(body)
	if err != nil {
		var fe *schema.FieldError
		if errors.As(err, &fe) {
			writeError(w, http.StatusBadRequest, fe.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid record: "+err.Error())
		return
	}

	if _, err := c.mgr.GetOrCreateStream(r.Context(), key, streamsvc.Descriptor{
		TableName: entry.Table.TableName,
		Message:   entry.Codec.Descriptor(),
	}); err != nil {
		c.logger.Error("stream creation failed", logpkg.Str("table", key), logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ack, err := c.mgr.IngestRecord(r.Context(), key, payload)
	if err != nil {
		c.logger.Error("record submission failed", logpkg.Str("table", key), logpkg.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if parseBool(r.URL.Query().Get("wait_for_ack")) {
		if err := ack.Await(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "awaiting durability: "+err.Error())
			return
		}
		writeJSON(w, map[string]any{
			"status":  "durable",
			"table":   key,
			"offset":  ack.Offset(),
			"durable": true,
		})
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"table":  key,
		"offset": ack.Offset(),
	})
}

// handleFlush drains the table's stream. A table with no active stream is
// reported, not an error: there is nothing to drain.
func (c *IngestController) handleFlush(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("table")
	if _, ok := c.reg.Lookup(key); !ok {
		writeError(w, http.StatusNotFound, "unknown table: "+key)
		return
	}
	if err := c.mgr.Flush(r.Context(), key); err != nil {
		var nf *streamsvc.NotFoundError
		if errors.As(err, &nf) {
			writeJSON(w, map[string]string{"status": "no_active_stream", "table": key})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "flushed", "table": key})
}
