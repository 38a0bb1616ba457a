package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-insurance/kestrel/internal/audit"
	"github.com/opensource-insurance/kestrel/internal/bus"
	"github.com/opensource-insurance/kestrel/internal/cache"
	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/repository"
	"github.com/opensource-insurance/kestrel/internal/rules"
)

const sampleDocument = `# 安心终身寿险条款

平安人寿保险股份有限公司

产品类型：寿险

第一条 本合同等待期为180天，等待期180天内发生保险事故不承担责任。

第二条 本产品预定利率为3.0%。`

type testEnv struct {
	server *Server
	repo   domain.Repository
	cache  *cache.LRUCache
	bus    *bus.ChannelBus
	engine *rules.Engine
}

func createTestServer(t *testing.T) *testEnv {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })

	engine, err := rules.NewEngine(2)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	service := audit.NewService(repo, c, b, rules.NewMatcher(), engine, domain.AuditConfig{})

	server := NewServer(domain.ServerConfig{Port: 0}, repo, c, b, engine, service, "test")

	return &testEnv{server: server, repo: repo, cache: c, bus: b, engine: engine}
}

func doJSON(t *testing.T, env *testEnv, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	env := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/health", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp map[string]string
		decodeBody(t, rec, &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test" {
			t.Errorf("expected version test, got %s", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/ready", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp map[string]string
		decodeBody(t, rec, &resp)
		if resp["ready"] != "true" {
			t.Errorf("expected ready true, got %s", resp["ready"])
		}
	})
}

func TestAuditEndpoint(t *testing.T) {
	env := createTestServer(t)

	seedRule := CreateNegativeRuleRequest{
		ID:          "neg-001",
		RuleNumber:  "1.1",
		Category:    "保险责任",
		Description: "等待期超过监管上限",
		Severity:    domain.SeverityHigh,
		Keywords:    []string{"等待期180天"},
		Enabled:     true,
	}
	if rec := doJSON(t, env, http.MethodPost, "/rules", seedRule, nil); rec.Code != http.StatusCreated {
		t.Fatalf("failed to seed rule: %d %s", rec.Code, rec.Body.String())
	}

	t.Run("Success", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/audit", map[string]string{"content": sampleDocument}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp AuditResponse
		decodeBody(t, rec, &resp)
		if resp.AuditID == "" {
			t.Error("expected audit ID")
		}
		if len(resp.Violations) != 1 {
			t.Errorf("expected 1 violation, got %d", len(resp.Violations))
		}
		if resp.Grade == "" {
			t.Error("expected grade")
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected trace ID in metadata")
		}
		if resp.Metadata.Version != "test" {
			t.Errorf("expected version test, got %s", resp.Metadata.Version)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/audit", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("EmptyContent", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/audit", map[string]string{"content": ""}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("GetAndReport", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/audit", map[string]string{"content": sampleDocument}, nil)
		var resp AuditResponse
		decodeBody(t, rec, &resp)

		// Persistence is async, poll for it
		deadline := time.Now().Add(2 * time.Second)
		for {
			getRec := doJSON(t, env, http.MethodGet, "/audits/"+resp.AuditID, nil, nil)
			if getRec.Code == http.StatusOK {
				var result domain.AuditResult
				decodeBody(t, getRec, &result)
				if result.ID != resp.AuditID {
					t.Errorf("expected audit %s, got %s", resp.AuditID, result.ID)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("audit never became retrievable")
			}
			time.Sleep(20 * time.Millisecond)
		}

		rptRec := doJSON(t, env, http.MethodGet, "/audits/"+resp.AuditID+"/report", nil, nil)
		if rptRec.Code != http.StatusOK {
			t.Fatalf("expected 200 for report, got %d", rptRec.Code)
		}
		if ct := rptRec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
			t.Errorf("expected markdown content type, got %s", ct)
		}
		if !strings.Contains(rptRec.Body.String(), "一、审核结论") {
			t.Error("expected report content")
		}
	})

	t.Run("List", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/audits?limit=5", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count == 0 {
			t.Error("expected at least one audit in list")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/audits/AUD-0-0000", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestCheckEndpoint(t *testing.T) {
	env := createTestServer(t)

	rec := doJSON(t, env, http.MethodPost, "/check", CheckRequest{Content: sampleDocument}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result domain.CheckResult
	decodeBody(t, rec, &result)
	if result.Count != 0 {
		t.Errorf("expected no violations without rules, got %d", result.Count)
	}
	if result.Message == "" {
		t.Error("expected message for empty rule set")
	}
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	env := createTestServer(t)

	rule := CreateNegativeRuleRequest{
		ID:          "neg-001",
		Description: "等待期超过监管上限",
		Severity:    domain.SeverityHigh,
		Keywords:    []string{"等待期180天"},
		Enabled:     true,
	}
	headers := map[string]string{TenantIDHeader: "tenant-001"}

	if rec := doJSON(t, env, http.MethodPost, "/rules", rule, headers); rec.Code != http.StatusCreated {
		t.Fatalf("failed to create rule: %d", rec.Code)
	}

	t.Run("VisibleToOwner", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/rules/neg-001", nil, headers)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("HiddenFromOthers", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/rules/neg-001", nil, map[string]string{TenantIDHeader: "tenant-002"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("MissingHeaderUsesDefault", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/rules/neg-001", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for default tenant, got %d", rec.Code)
		}
	})
}

func TestNegativeRuleEndpoints(t *testing.T) {
	env := createTestServer(t)

	t.Run("CreateValidation", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/rules", CreateNegativeRuleRequest{ID: "x"}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing description, got %d", rec.Code)
		}

		rec = doJSON(t, env, http.MethodPost, "/rules", CreateNegativeRuleRequest{
			ID:          "x",
			Description: "d",
		}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing keywords and patterns, got %d", rec.Code)
		}
	})

	rule := CreateNegativeRuleRequest{
		ID:          "neg-001",
		Description: "等待期超过监管上限",
		Severity:    domain.SeverityHigh,
		Keywords:    []string{"等待期180天"},
		Enabled:     true,
	}
	if rec := doJSON(t, env, http.MethodPost, "/rules", rule, nil); rec.Code != http.StatusCreated {
		t.Fatalf("failed to create rule: %d", rec.Code)
	}

	t.Run("List", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/rules", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 rule, got %d", resp.Count)
		}
	})

	t.Run("CreateInvalidatesCache", func(t *testing.T) {
		ctx := context.Background()
		env.cache.SetRuleSet(ctx, DefaultTenantID, []*domain.NegativeRule{}, time.Minute)

		another := rule
		another.ID = "neg-002"
		if rec := doJSON(t, env, http.MethodPost, "/rules", another, nil); rec.Code != http.StatusCreated {
			t.Fatalf("failed to create rule: %d", rec.Code)
		}

		cached, _ := env.cache.GetRuleSet(ctx, DefaultTenantID)
		if cached != nil {
			t.Error("expected rule set cache invalidated after create")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodDelete, "/rules/neg-001", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}

		rec = doJSON(t, env, http.MethodDelete, "/rules/nonexistent", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/rules/reload", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestProductRuleEndpoints(t *testing.T) {
	env := createTestServer(t)

	t.Run("CreateRejectsInvalidExpression", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/product-rules", CreateProductRuleRequest{
			ID:         "pr-bad",
			Name:       "坏规则",
			Expression: "interest_rate >",
		}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid expression, got %d", rec.Code)
		}
	})

	t.Run("CreateAndReload", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodPost, "/product-rules", CreateProductRuleRequest{
			ID:         "pr-001",
			Name:       "预定利率上限",
			Expression: `interest_rate > 0.035`,
			Severity:   domain.SeverityHigh,
			Enabled:    true,
		}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		// Rules apply only after an explicit reload
		if env.engine.RulesCount() != 0 {
			t.Error("expected rule not loaded before reload")
		}

		rec = doJSON(t, env, http.MethodPost, "/product-rules/reload", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if env.engine.RulesCount() != 1 {
			t.Errorf("expected 1 loaded rule, got %d", env.engine.RulesCount())
		}
	})

	t.Run("List", func(t *testing.T) {
		rec := doJSON(t, env, http.MethodGet, "/product-rules", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Count  int    `json:"count"`
			Source string `json:"source"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 rule, got %d", resp.Count)
		}
		if resp.Source != "database" {
			t.Errorf("expected source database, got %s", resp.Source)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingSetsHeaders", func(t *testing.T) {
		env := createTestServer(t)

		rec := doJSON(t, env, http.MethodGet, "/health", nil, nil)
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Error("expected request ID header")
		}
		if rec.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace ID header")
		}
	})

	t.Run("TracingKeepsCallerRequestID", func(t *testing.T) {
		env := createTestServer(t)

		rec := doJSON(t, env, http.MethodGet, "/health", nil, map[string]string{RequestIDHeader: "req-42"})
		if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
			t.Errorf("expected req-42, got %s", got)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		env := createTestServer(t)

		req := httptest.NewRequest(http.MethodOptions, "/audit", nil)
		req.Header.Set("Origin", "https://console.example.com")
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
			t.Errorf("unexpected allow origin: %s", got)
		}
	})

	t.Run("RecoverReturns500", func(t *testing.T) {
		panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		wrapped := RecoverMiddleware(panicking)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("TenantDefault", func(t *testing.T) {
		var seen string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetTenantID(r.Context())
		})
		wrapped := TenantMiddleware(inner)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
		if seen != DefaultTenantID {
			t.Errorf("expected default tenant, got %s", seen)
		}

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TenantIDHeader, "tenant-001")
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "tenant-001" {
			t.Errorf("expected tenant-001, got %s", seen)
		}
	})
}
