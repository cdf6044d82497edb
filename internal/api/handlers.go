package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/monitor"
)

// Store is the read-only ledger surface exposed over HTTP.
type Store interface {
	ListIncidents(ctx context.Context, limit int) ([]models.Incident, error)
	ListUnresolved(ctx context.Context) ([]models.Incident, error)
	ListPatterns(ctx context.Context) ([]models.Pattern, error)
	RecentMetrics(ctx context.Context, limit int) ([]models.MetricSample, error)
	Ping(ctx context.Context) error
}

// Remediator accepts operator-supplied remediations for open incidents.
type Remediator interface {
	SubmitRemediation(ctx context.Context, incidentID int64, command string) (*monitor.Feedback, error)
}

// Predictor exposes the advisory classifier.
type Predictor interface {
	Predict(message string) (string, bool)
}

// Handlers bundles the HTTP endpoints of the operator API.
type Handlers struct {
	store      Store
	remediator Remediator
	predictor  Predictor
	logger     *slog.Logger
}

// NewHandlers constructs the endpoint set. predictor may be nil when no
// classifier is configured.
func NewHandlers(logger *slog.Logger, store Store, remediator Remediator, predictor Predictor) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, remediator: remediator, predictor: predictor, logger: logger}
}

// Router wires all routes.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/incidents", h.listIncidents).Methods(http.MethodGet)
	v1.HandleFunc("/incidents/unmatched", h.listUnmatched).Methods(http.MethodGet)
	v1.HandleFunc("/incidents/{id:[0-9]+}/remediation", h.submitRemediation).Methods(http.MethodPost)
	v1.HandleFunc("/patterns", h.listPatterns).Methods(http.MethodGet)
	v1.HandleFunc("/metrics/system", h.listMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/classify", h.classify).Methods(http.MethodPost)
	return r
}

type incidentResponse struct {
	ID          int64              `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Service     string             `json:"service"`
	Category    string             `json:"category"`
	Severity    string             `json:"severity"`
	Message     string             `json:"message"`
	Resolved    bool               `json:"resolved"`
	Attempts    int                `json:"attempts"`
	Resolution  *models.Resolution `json:"resolution,omitempty"`
	LastAttempt *time.Time         `json:"last_attempt,omitempty"`
}

func toIncidentResponse(inc models.Incident) incidentResponse {
	resp := incidentResponse{
		ID:         inc.ID,
		Timestamp:  inc.Timestamp,
		Service:    inc.Service,
		Category:   inc.Category,
		Severity:   string(inc.Severity),
		Message:    inc.Message,
		Resolved:   inc.Resolved,
		Attempts:   inc.Attempts,
		Resolution: inc.Resolution,
	}
	if !inc.LastAttempt.IsZero() {
		t := inc.LastAttempt
		resp.LastAttempt = &t
	}
	return resp
}

type patternResponse struct {
	ID                  int64     `json:"id"`
	IssuePattern        string    `json:"issue_pattern"`
	RemediationTemplate string    `json:"remediation_template"`
	Confidence          float64   `json:"confidence"`
	LastUsed            time.Time `json:"last_used"`
}

type metricResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	CPU       float64   `json:"cpu_usage"`
	Memory    float64   `json:"memory_usage"`
	Disk      float64   `json:"disk_usage"`
	Network   float64   `json:"network_usage"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("cannot encode response", slog.Any("error", err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) listIncidents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	incidents, err := h.store.ListIncidents(r.Context(), limit)
	if err != nil {
		h.logger.Error("list incidents failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "cannot list incidents")
		return
	}
	h.respondIncidents(w, incidents)
}

func (h *Handlers) listUnmatched(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.store.ListUnresolved(r.Context())
	if err != nil {
		h.logger.Error("list unresolved failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "cannot list incidents")
		return
	}
	h.respondIncidents(w, incidents)
}

func (h *Handlers) respondIncidents(w http.ResponseWriter, incidents []models.Incident) {
	out := make([]incidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, toIncidentResponse(inc))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"incidents": out})
}

func (h *Handlers) listPatterns(w http.ResponseWriter, r *http.Request) {
	pats, err := h.store.ListPatterns(r.Context())
	if err != nil {
		h.logger.Error("list patterns failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "cannot list patterns")
		return
	}
	out := make([]patternResponse, 0, len(pats))
	for _, p := range pats {
		out = append(out, patternResponse{
			ID:                  p.ID,
			IssuePattern:        p.IssuePattern,
			RemediationTemplate: p.RemediationTemplate,
			Confidence:          p.Confidence,
			LastUsed:            p.LastUsed,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"patterns": out})
}

func (h *Handlers) listMetrics(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	samples, err := h.store.RecentMetrics(r.Context(), limit)
	if err != nil {
		h.logger.Error("list metrics failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "cannot list metrics")
		return
	}
	out := make([]metricResponse, 0, len(samples))
	for _, m := range samples {
		out = append(out, metricResponse{
			Timestamp: m.Timestamp,
			Service:   m.Service,
			CPU:       m.CPU,
			Memory:    m.Memory,
			Disk:      m.Disk,
			Network:   m.Network,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"metrics": out})
}

type remediationRequest struct {
	Command string `json:"command"`
}

type remediationResponse struct {
	PatternID     int64  `json:"pattern_id"`
	IssueTemplate string `json:"issue_template"`
	Resolved      bool   `json:"resolved"`
	Output        string `json:"output"`
}

func (h *Handlers) submitRemediation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	var req remediationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		h.writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	fb, err := h.remediator.SubmitRemediation(r.Context(), id, req.Command)
	if err != nil {
		if errors.Is(err, monitor.ErrIncidentNotFound) {
			h.writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		h.logger.Error("remediation submission failed",
			slog.Int64("incident_id", id),
			slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "cannot apply remediation")
		return
	}

	h.writeJSON(w, http.StatusOK, remediationResponse{
		PatternID:     fb.Pattern.ID,
		IssueTemplate: fb.Pattern.IssuePattern,
		Resolved:      fb.Resolved,
		Output:        fb.Result.Output,
	})
}

type classifyRequest struct {
	Message string `json:"message"`
}

func (h *Handlers) classify(w http.ResponseWriter, r *http.Request) {
	if h.predictor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "classifier not configured")
		return
	}
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	category, ok := h.predictor.Predict(req.Message)
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, "model not trained yet")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"category": category})
}
