// Package worker runs the asynchronous analysis pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// explanationTTL bounds how long a generated explanation stays cached.
const explanationTTL = time.Hour

// Per-tenant analysis-rate counter, windowed so operators can read a
// recent throughput figure off the cache.
const (
	analysisRateKey    = "analysis-rate"
	analysisRateWindow = time.Minute
)

// Pipeline executes one full analysis pass for a transaction: status
// transition, scoring, explanation, persistence and event publication.
// The API uses it for synchronous analyze requests and the Worker for
// ingested-event processing, so both paths stay identical.
type Pipeline struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	analyzer  *scoring.Analyzer
	explainer *explain.Explainer
	logger    *slog.Logger
}

// NewPipeline creates an analysis pipeline. repo, cache and bus may be
// nil; the corresponding steps are skipped.
func NewPipeline(repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *scoring.Analyzer, explainer *explain.Explainer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		analyzer:  analyzer,
		explainer: explainer,
		logger:    logger,
	}
}

// Process analyzes a transaction end to end and returns the stored
// result together with its explanation text.
func (p *Pipeline) Process(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.AnalysisResult, string, error) {
	start := time.Now()

	movedToAnalyzing := false
	if p.repo != nil && tx.Status == domain.StatusPending {
		if err := p.repo.UpdateTransactionStatus(ctx, tenantID, tx.ID, domain.StatusAnalyzing); err != nil {
			p.logger.Warn("failed to mark transaction analyzing",
				"tenant_id", tenantID,
				"tx_id", tx.ID,
				"error", err)
		} else {
			movedToAnalyzing = true
		}
	}

	var checker scoring.PriorTransactionChecker
	if p.repo != nil {
		checker = func(ctx context.Context) (bool, error) {
			return p.repo.HasPriorTransaction(ctx, tenantID, tx.SenderAccount, tx.ReceiverAccount, tx.ID)
		}
	}

	result := p.analyzer.Analyze(ctx, tx, checker)

	if p.cache != nil {
		if _, err := p.cache.IncrementCounter(ctx, tenantID, analysisRateKey, analysisRateWindow); err != nil {
			p.logger.Warn("failed to bump analysis-rate counter",
				"tenant_id", tenantID,
				"error", err)
		}
	}

	explanation := p.explanationFor(ctx, tenantID, tx, result)
	result.Metadata.TotalMs = time.Since(start).Milliseconds()

	if p.repo != nil {
		if err := p.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			p.resetToPending(ctx, tenantID, tx.ID, movedToAnalyzing)
			return nil, "", fmt.Errorf("failed to save analysis: %w", err)
		}
		if err := p.repo.UpdateTransactionAnalysis(ctx, tenantID, tx.ID, result.Score, result.Suspicious, explanation, result.AnalyzedAt); err != nil {
			p.resetToPending(ctx, tenantID, tx.ID, movedToAnalyzing)
			return nil, "", fmt.Errorf("failed to update transaction: %w", err)
		}
	}

	p.publish(ctx, tenantID, tx, result, explanation)

	return result, explanation, nil
}

// resetToPending returns a transaction to the pending state when
// persistence fails mid-pipeline. Without it the transaction would be
// stuck in analyzing, a state reviewers cannot transition out of.
func (p *Pipeline) resetToPending(ctx context.Context, tenantID, txID string, moved bool) {
	if !moved {
		return
	}
	if err := p.repo.UpdateTransactionStatus(ctx, tenantID, txID, domain.StatusPending); err != nil {
		p.logger.Warn("failed to reset transaction to pending",
			"tenant_id", tenantID,
			"tx_id", txID,
			"error", err)
	}
}

// explanationFor returns a cached explanation when one exists, otherwise
// generates a fresh one and caches it. Generation never fails; the
// explainer degrades to its deterministic fallback internally.
func (p *Pipeline) explanationFor(ctx context.Context, tenantID string, tx *domain.Transaction, result *domain.AnalysisResult) string {
	if p.cache != nil {
		if cached, err := p.cache.GetExplanation(ctx, tenantID, tx.ID); err == nil && cached != "" {
			return cached
		}
	}

	explainStart := time.Now()
	explanation := p.explainer.Explain(ctx, tx, result.Score, result.Factors)
	result.Metadata.ExplainMs = time.Since(explainStart).Milliseconds()

	if p.cache != nil && explanation != "" {
		if err := p.cache.SetExplanation(ctx, tenantID, tx.ID, explanation, explanationTTL); err != nil {
			p.logger.Warn("failed to cache explanation",
				"tenant_id", tenantID,
				"tx_id", tx.ID,
				"error", err)
		}
	}
	return explanation
}

// publish emits the analyzed event, plus an alert when suspicious.
func (p *Pipeline) publish(ctx context.Context, tenantID string, tx *domain.Transaction, result *domain.AnalysisResult, explanation string) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(result.ToResponse(tx.Reference, explanation))
	if err != nil {
		p.logger.Error("failed to marshal analysis event",
			"tx_id", tx.ID,
			"error", err)
		return
	}

	if err := p.bus.Publish(ctx, tenantID, domain.TopicTransactionAnalyzed, payload); err != nil {
		p.logger.Error("failed to publish analysis",
			"tx_id", tx.ID,
			"error", err)
	}

	if result.Suspicious {
		if err := p.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			p.logger.Error("failed to publish alert",
				"tx_id", tx.ID,
				"error", err)
		}
	}
}

// Worker consumes ingested-transaction events from the EventBus and
// feeds them through the pipeline.
type Worker struct {
	bus      domain.EventBus
	pipeline *Pipeline
	logger   *slog.Logger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via the
	// global subscription)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, pipeline *Pipeline, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: pipeline,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			w.logger.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err)
			continue
		}
	}

	w.logger.Info("workers started",
		"tenant_count", len(cfg.TenantIDs))

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processMessage(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processMessage(ctx, msg.TenantID, msg)
}

// TransactionMessage is the payload published on the ingested topic.
// The full transaction rides along so the worker never re-reads it
// before scoring.
type TransactionMessage struct {
	TenantID    string              `json:"tenantId"`
	TraceID     string              `json:"traceId,omitempty"`
	Transaction *domain.Transaction `json:"transaction"`
}

// processMessage parses the envelope and runs the pipeline. In-flight
// handlers are tracked so Stop waits for them to drain.
func (w *Worker) processMessage(ctx context.Context, tenantID string, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		w.logger.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err)
		return err
	}

	// Use message tenant if provided
	if txMsg.TenantID != "" {
		tenantID = txMsg.TenantID
	}

	if txMsg.Transaction == nil {
		w.logger.Error("transaction message missing transaction",
			"message_id", msg.ID,
			"tenant_id", tenantID)
		return fmt.Errorf("message %s has no transaction", msg.ID)
	}
	tx := txMsg.Transaction

	w.logger.Debug("processing transaction",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"trace_id", txMsg.TraceID)

	result, _, err := w.pipeline.Process(ctx, tenantID, tx)
	if err != nil {
		w.logger.Error("pipeline failed",
			"tx_id", tx.ID,
			"tenant_id", tenantID,
			"error", err)
		return err
	}

	w.logger.Info("transaction processed",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"score", result.Score,
		"risk_level", result.RiskLevel,
		"suspicious", result.Suspicious,
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("workers stopped")
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
