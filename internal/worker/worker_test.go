package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/opensource-insurance/kestrel/internal/audit"
	"github.com/opensource-insurance/kestrel/internal/bus"
	"github.com/opensource-insurance/kestrel/internal/cache"
	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/repository"
	"github.com/opensource-insurance/kestrel/internal/rules"
)

func newTestService(t *testing.T, b domain.EventBus) *audit.Service {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-worker-test-*.db")
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

	engine, err := rules.NewEngine(2)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	return audit.NewService(repo, c, b, rules.NewMatcher(), engine, domain.AuditConfig{})
}

func TestWorkerProcessesAuditRequests(t *testing.T) {
	ctx := context.Background()
	b := bus.NewChannelBus(10)
	defer b.Close()

	service := newTestService(t, b)

	w := NewWorker(b, service)
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Listen for the completion event published by the pipeline
	completed := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, "tenant-001", domain.TopicAuditCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	payload, _ := json.Marshal(AuditMessage{
		TenantID:  "tenant-001",
		TraceID:   "trace-001",
		Content:   "第一条 本合同等待期为90天。\n第二条 本产品预定利率为3.0%。",
		AuditType: domain.AuditNegativeOnly,
	})
	if err := b.Publish(ctx, "_global", domain.TopicAuditRequested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-completed:
		var result domain.AuditResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			t.Fatalf("failed to parse result: %v", err)
		}
		if result.TenantID != "tenant-001" {
			t.Errorf("expected tenant-001, got %s", result.TenantID)
		}
		if result.Metadata.TraceID != "trace-001" {
			t.Errorf("expected trace-001, got %s", result.Metadata.TraceID)
		}
		if result.Score != 100 {
			t.Errorf("expected clean document to score 100, got %d", result.Score)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for audit completion")
	}
}

func TestWorkerTenantSubscriptions(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	service := newTestService(t, b)

	w := NewWorker(b, service)
	if err := w.Start(Config{TenantIDs: []string{"tenant-001", "tenant-002"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}
	for _, topic := range stats.Topics {
		if topic != domain.TopicAuditRequested {
			t.Errorf("unexpected topic %s", topic)
		}
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", got)
	}
}

func TestWorkerIgnoresMalformedMessages(t *testing.T) {
	ctx := context.Background()
	b := bus.NewChannelBus(10)
	defer b.Close()

	service := newTestService(t, b)

	w := NewWorker(b, service)
	if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := b.Publish(ctx, "tenant-001", domain.TopicAuditRequested, []byte("not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Worker logs and drops the message without crashing
	time.Sleep(100 * time.Millisecond)
	if w.GetStats().SubscriptionCount != 1 {
		t.Error("expected worker to remain subscribed after bad message")
	}
}
