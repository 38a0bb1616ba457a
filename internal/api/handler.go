package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-insurance/kestrel/internal/audit"
	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/rules"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	service *audit.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, service *audit.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		service: service,
		version: version,
	}
}

// AuditResponse is the response for POST /audit.
type AuditResponse struct {
	AuditID    string              `json:"auditId"`
	Score      int                 `json:"score"`
	Grade      string              `json:"grade"`
	Summary    domain.AuditSummary `json:"summary"`
	Violations []domain.Violation  `json:"violations"`
	ReportID   string              `json:"reportId"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Audit handles POST /audit requests. Runs the full pipeline
// synchronously and returns the scored result.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req audit.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "content is required",
		})
		return
	}
	req.TraceID = traceID

	result, err := h.service.Run(ctx, tenantID, &req)
	if err != nil {
		slog.Error("audit failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	resp := AuditResponse{
		AuditID:    result.ID,
		Score:      result.Score,
		Grade:      result.Grade,
		Summary:    result.Summary,
		Violations: result.Violations,
		ReportID:   result.ReportID,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = result.Metadata.TotalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// CheckRequest is the request body for POST /check.
type CheckRequest struct {
	Content string `json:"content"`
}

// Check handles POST /check requests. Runs only the negative list check
// without pricing, scoring or persistence.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "content is required",
		})
		return
	}

	result, err := h.service.Check(ctx, tenantID, req.Content)
	if err != nil {
		slog.Error("check failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "check failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAudit retrieves an audit result by ID.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	auditID := chi.URLParam(r, "id")

	if auditID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "audit id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetAudit(ctx, tenantID, auditID)
	if err != nil {
		slog.Error("failed to get audit", "id", auditID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "audit not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListAudits retrieves recent audits for the tenant.
func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	audits, err := h.repo.ListAudits(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list audits", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audits",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audits": audits,
		"count":  len(audits),
	})
}

// GetReport returns the rendered markdown report of an audit.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	auditID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetAudit(ctx, tenantID, auditID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "audit not found",
		})
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result.Report))
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
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

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateNegativeRuleRequest is the request body for creating a negative
// list rule.
type CreateNegativeRuleRequest struct {
	ID          string   `json:"id"`
	RuleNumber  string   `json:"ruleNumber"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Keywords    []string `json:"keywords"`
	Patterns    []string `json:"patterns,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// ListNegativeRules returns the tenant's negative list.
func (h *Handler) ListNegativeRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	ruleSet, err := h.repo.ListNegativeRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list negative rules", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleSet,
		"count": len(ruleSet),
	})
}

// GetNegativeRule retrieves a negative rule by ID.
func (h *Handler) GetNegativeRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetNegativeRule(ctx, tenantID, ruleID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateNegativeRule creates or updates a negative list rule and
// invalidates the cached rule set.
func (h *Handler) CreateNegativeRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateNegativeRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and description are required",
		})
		return
	}
	if len(req.Keywords) == 0 && len(req.Patterns) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one keyword or pattern is required",
		})
		return
	}

	rule := &domain.NegativeRule{
		ID:          req.ID,
		TenantID:    tenantID,
		RuleNumber:  req.RuleNumber,
		Category:    req.Category,
		Description: req.Description,
		Severity:    req.Severity,
		Keywords:    req.Keywords,
		Patterns:    req.Patterns,
		Remediation: req.Remediation,
		Enabled:     req.Enabled,
	}

	if err := h.repo.SaveNegativeRule(ctx, tenantID, rule); err != nil {
		slog.Error("failed to save negative rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	h.invalidateRuleSet(ctx, tenantID)

	slog.Info("negative rule created", "id", rule.ID, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteNegativeRule disables a negative rule.
func (h *Handler) DeleteNegativeRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteNegativeRule(ctx, tenantID, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	h.invalidateRuleSet(ctx, tenantID)

	slog.Info("negative rule deleted", "id", ruleID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// ReloadRules invalidates the cached negative list so the next audit
// reads fresh rules from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	h.invalidateRuleSet(ctx, tenantID)

	if h.bus != nil {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicRulesReloaded, nil); err != nil {
			slog.Warn("failed to publish rules reloaded event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule cache invalidated",
	})
}

// CreateProductRuleRequest is the request body for creating a product rule.
type CreateProductRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Category    string `json:"category,omitempty"`
	Severity    string `json:"severity"`
	Remediation string `json:"remediation,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// ListProductRules returns all loaded product rules from the engine.
func (h *Handler) ListProductRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// CreateProductRule creates a new product rule and saves it to the
// database. Rules are saved globally (tenant_id = "*") so they apply to
// all tenants.
func (h *Handler) CreateProductRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateProductRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.ProductRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Category:    req.Category,
		Severity:    req.Severity,
		Remediation: req.Remediation,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveProductRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save product rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("product rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /product-rules/reload to apply changes.",
	})
}

// ReloadProductRules reloads all product rules from the database into
// the engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadProductRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListProductRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list product rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload product rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("product rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func (h *Handler) invalidateRuleSet(ctx context.Context, tenantID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, tenantID, "ruleset"); err != nil {
		slog.Warn("failed to invalidate rule set cache",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
