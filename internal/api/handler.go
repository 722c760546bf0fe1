package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/ringwatch/internal/analysis"
	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/ingest"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
	"github.com/opensource-finance/ringwatch/internal/repository"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

// CacheHeader reports whether a report came from the fingerprint cache.
const CacheHeader = "X-RingWatch-Cache"

// Handler holds dependencies for API handlers.
type Handler struct {
	service *analysis.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	roles   *rules.RoleClassifier
	version string
	maxBody int64
}

// Deps groups the collaborators of a Handler. Repo, Cache and Bus may be nil.
type Deps struct {
	Service *analysis.Service
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Roles   *rules.RoleClassifier
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = 64 << 20
	}
	return &Handler{
		service: deps.Service,
		repo:    deps.Repo,
		cache:   deps.Cache,
		bus:     deps.Bus,
		roles:   deps.Roles,
		version: version,
		maxBody: maxBody,
	}
}

// AnalyzeResponse wraps a report with request metadata.
type AnalyzeResponse struct {
	*domain.Report
	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata describes how a request was served.
type ResponseMetadata struct {
	TraceID     string `json:"traceId"`
	Cached      bool   `json:"cached"`
	ParseErrors int    `json:"parseErrors"`
	TotalMs     int64  `json:"totalMs"`
	Version     string `json:"version"`
}

// SubmitResponse is the response for POST /analyses.
type SubmitResponse struct {
	RunID    string `json:"runId"`
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// readLedger parses a JSON or CSV request body.
func (h *Handler) readLedger(w http.ResponseWriter, r *http.Request) (*ingest.Result, error) {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv", "application/csv":
		return ingest.ReadCSV(body)
	default:
		var req domain.LedgerRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return nil, err
		}
		return ingest.FromRequests(req.Transactions), nil
	}
}

// Analyze handles POST /analyze: the ledger is analysed synchronously and
// the report returned.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	parsed, err := h.readLedger(w, r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	res, err := h.service.Analyze(ctx, analysis.Request{
		TenantID: tenantID,
		Ledger: pipeline.Ledger{
			Transactions: parsed.Transactions,
			Rejected:     parsed.Rejected,
		},
	})
	if err != nil {
		writeAnalysisError(w, err)
		return
	}

	cacheState := "miss"
	if res.Cached {
		cacheState = "hit"
	}
	w.Header().Set(CacheHeader, cacheState)

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Report: res.Report,
		Metadata: ResponseMetadata{
			TraceID:     GetTraceID(ctx),
			Cached:      res.Cached,
			ParseErrors: len(parsed.Errors),
			TotalMs:     time.Since(start).Milliseconds(),
			Version:     h.version,
		},
	})
}

// Submit handles POST /analyses: the ledger is queued on the event bus and
// the run id returned immediately.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	parsed, err := h.readLedger(w, r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if len(parsed.Transactions) == 0 && parsed.RejectedCount() == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": pipeline.ErrEmptyLedger.Error(),
		})
		return
	}

	runID := uuid.New().String()
	payload, err := json.Marshal(domain.DatasetMessage{
		RunID:            runID,
		TenantID:         tenantID,
		TraceID:          GetTraceID(ctx),
		Transactions:     parsed.Transactions,
		RejectedByReason: parsed.Rejected,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode dataset",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicDatasetSubmitted, payload); err != nil {
		slog.Error("failed to queue dataset", "run_id", runID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue dataset",
		})
		return
	}

	slog.Info("dataset queued",
		"run_id", runID,
		"tenant_id", tenantID,
		"transactions", len(parsed.Transactions),
	)
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		RunID:    runID,
		Status:   "queued",
		Accepted: len(parsed.Transactions),
		Rejected: parsed.RejectedCount(),
	})
}

// ListReports handles GET /reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	limit := repository.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be between 1 and 500",
			})
			return
		}
		limit = n
	}

	reports, err := h.repo.ListReports(ctx, GetTenantID(ctx), limit)
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list reports",
		})
		return
	}
	if reports == nil {
		reports = []*domain.ReportSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// GetReport handles GET /reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetRing handles GET /reports/{id}/rings/{ringId}.
func (h *Handler) GetRing(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	ringID := chi.URLParam(r, "ringId")
	for i := range report.FraudRings {
		if report.FraudRings[i].RingID == ringID {
			writeJSON(w, http.StatusOK, report.FraudRings[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "ring not found",
	})
}

// AccountRings handles GET /accounts/{id}/rings: every stored ring the
// account belonged to.
func (h *Handler) AccountRings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	accountID := chi.URLParam(r, "id")
	rings, err := h.repo.ListRingsByAccount(ctx, GetTenantID(ctx), accountID)
	if err != nil {
		slog.Error("failed to list rings for account", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rings",
		})
		return
	}
	if rings == nil {
		rings = []*domain.FraudRing{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"rings":     rings,
		"count":     len(rings),
	})
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return nil, false
	}

	reportID := chi.URLParam(r, "id")
	report, err := h.repo.GetReport(ctx, GetTenantID(ctx), reportID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return nil, false
	}
	if err != nil {
		slog.Error("failed to get report", "id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load report",
		})
		return nil, false
	}
	return report, true
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return false
	}
	return true
}

// ListRoleRules returns the role rules currently loaded.
func (h *Handler) ListRoleRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.roles.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// ValidateRoleRule compiles a single rule without loading it.
func (h *Handler) ValidateRoleRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.RoleRule
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}

	if err := h.roles.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
	})
}

// ReloadRoleRules replaces the role rules with the YAML or JSON body.
// The old set stays active if any rule fails to compile.
func (h *Handler) ReloadRoleRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read body",
		})
		return
	}

	// JSON is a subset of YAML, so one parser covers both.
	parsed, err := rules.ParseRoleRules(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.roles.Reload(parsed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid role rules: " + err.Error(),
		})
		return
	}

	slog.Info("role rules reloaded", "count", len(parsed))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "role rules reloaded successfully",
		"count":   len(parsed),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the backing stores answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "event bus unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": "ledger exceeds maximum upload size",
		})
	case errors.Is(err, ingest.ErrMissingColumns):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid ledger body: " + err.Error(),
		})
	}
}

func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyLedger):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, pipeline.ErrInvariantViolation):
		slog.Error("analysis invariant violated", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed an internal consistency check",
		})
	default:
		slog.Error("analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
