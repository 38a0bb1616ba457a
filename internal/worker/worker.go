// Package worker provides async audit processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-insurance/kestrel/internal/audit"
	"github.com/opensource-insurance/kestrel/internal/domain"
)

// Worker processes audit requests asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	service *audit.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *audit.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing audit requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAuditRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAuditRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processAudit(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAuditRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processAudit(ctx, msg.TenantID, msg)
}

// AuditMessage is the message payload for async audit requests.
type AuditMessage struct {
	TenantID    string `json:"tenantId"`
	TraceID     string `json:"traceId"`
	Content     string `json:"content"`
	DocumentURL string `json:"documentUrl,omitempty"`
	AuditType   string `json:"auditType,omitempty"`
}

// processAudit runs a document through the audit pipeline.
func (w *Worker) processAudit(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var auditMsg AuditMessage
	if err := json.Unmarshal(msg.Payload, &auditMsg); err != nil {
		slog.Error("failed to parse audit message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if auditMsg.TenantID != "" {
		tenantID = auditMsg.TenantID
	}

	traceID := auditMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing audit request",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"audit_type", auditMsg.AuditType,
	)

	result, err := w.service.Run(ctx, tenantID, &audit.Request{
		Content:     auditMsg.Content,
		DocumentURL: auditMsg.DocumentURL,
		AuditType:   auditMsg.AuditType,
		TraceID:     traceID,
	})
	if err != nil {
		slog.Error("audit failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("audit request processed",
		"audit_id", result.ID,
		"tenant_id", tenantID,
		"score", result.Score,
		"grade", result.Grade,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
