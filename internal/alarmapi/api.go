// Package alarmapi exposes the incident pipeline over HTTP: alarm ingestion
// and read access to the invocation history.
package alarmapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/alarmhook/internal/incident"
)

// MaxListLimit caps the limit query parameter of the list endpoint.
const MaxListLimit = 500

// IncidentService defines the business operations alarmapi needs.
type IncidentService interface {
	Invoke(ctx context.Context, event []byte) (*incident.Result, *incident.Record, error)
	Get(ctx context.Context, id string) (*incident.Record, bool, error)
	List(ctx context.Context, limit int) ([]*incident.Record, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IncidentService
}

// New creates a new API handler.
func New(logger log.Logger, svc IncidentService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("incident service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. ingest middleware
// (authentication) wraps only the alarm ingestion route.
func (a *API) RegisterRoutes(r chi.Router, ingest ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(ingest...).Post("/alarms", a.handleIngestAlarm)
		r.Get("/incidents", a.handleListIncidents)
		r.Get("/incidents/{id}", a.handleGetIncident)
	})
}

type errorResponse struct {
	Error      string `json:"error"`
	ErrorClass string `json:"errorClass,omitempty"`
	IncidentID string `json:"incidentId,omitempty"`
}

func (a *API) handleIngestAlarm(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable payload"})
		return
	}

	span := trace.SpanFromContext(r.Context())

	res, rec, err := a.svc.Invoke(r.Context(), body)
	if rec != nil {
		span.SetAttributes(
			attribute.String("alarmhook.incident.id", rec.ID),
			attribute.String("alarmhook.alarm.name", rec.AlarmName),
		)
	}
	if err != nil {
		class := fault.Classify(err)
		resp := errorResponse{Error: err.Error(), ErrorClass: string(class)}
		if rec != nil {
			resp.IncidentID = rec.ID
		}
		writeJSON(w, statusFor(class), resp)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// statusFor maps an error class onto the HTTP status returned to the caller.
func statusFor(class fault.Class) int {
	switch class {
	case fault.ClassMalformedEvent:
		return http.StatusBadRequest
	case fault.ClassConfiguration:
		// the sender cannot fix a bad server setting
		return http.StatusInternalServerError
	case fault.ClassCanceled:
		return http.StatusServiceUnavailable
	case fault.ClassNone:
		return http.StatusOK
	default:
		return http.StatusBadGateway
	}
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("alarmhook.incident.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident record", "id", id)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}

	span.SetAttributes(attribute.String("alarmhook.incident.status", string(rec.Status)))
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > MaxListLimit {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be 1.." + strconv.Itoa(MaxListLimit)})
			return
		}
		limit = n
	}

	recs, err := a.svc.List(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incident records")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if recs == nil {
		recs = []*incident.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": recs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
