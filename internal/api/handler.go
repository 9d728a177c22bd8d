package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	analyzer  *scoring.Analyzer
	explainer *explain.Explainer
	pipeline  *worker.Pipeline
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *scoring.Analyzer, explainer *explain.Explainer, pipeline *worker.Pipeline, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		analyzer:  analyzer,
		explainer: explainer,
		pipeline:  pipeline,
		version:   version,
	}
}

// CreateTransaction handles POST /transactions. The transaction is
// persisted with status pending and an ingested event is published for
// the async worker; scoring itself happens on the analyze endpoint or
// in the worker.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}
	if req.SenderAccount == "" || req.ReceiverAccount == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "senderAccount and receiverAccount are required",
		})
		return
	}
	if !validTransactionType(req.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be one of: transfer, direct_debit, card, withdrawal, deposit",
		})
		return
	}
	if req.Channel != "" && !validTransactionChannel(req.Channel) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "channel must be one of: web, mobile, branch, atm, api",
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()
	tx.TenantID = tenantID

	if err := h.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
		slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transaction",
		})
		return
	}

	if h.bus != nil {
		payload, err := json.Marshal(worker.TransactionMessage{
			TenantID:    tenantID,
			TraceID:     traceID,
			Transaction: tx,
		})
		if err == nil {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicTransactionIngested, payload); err != nil {
				slog.Error("failed to publish ingested event", "tx_id", tx.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions handles GET /transactions with filtering and paging.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	q := r.URL.Query()

	filter := domain.TransactionFilter{
		Status: q.Get("status"),
	}
	if v := q.Get("suspicious"); v != "" {
		suspicious, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "suspicious must be a boolean",
			})
			return
		}
		filter.Suspicious = &suspicious
	}
	if v := q.Get("minAmount"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "minAmount must be a number",
			})
			return
		}
		filter.MinAmount = &min
	}
	if v := q.Get("maxAmount"); v != "" {
		max, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "maxAmount must be a number",
			})
			return
		}
		filter.MaxAmount = &max
	}
	if v := q.Get("page"); v != "" {
		filter.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("pageSize"); v != "" {
		filter.PageSize, _ = strconv.Atoi(v)
	}

	txs, total, err := h.repo.ListTransactions(ctx, tenantID, filter)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"page":         page,
		"pageSize":     pageSize,
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// AnalyzeTransaction handles POST /transactions/{id}/analyze.
// An already-analyzed transaction returns its stored result unless
// force=true re-runs the full pipeline.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	if tx.FraudScore != nil && !force {
		writeJSON(w, http.StatusOK, &domain.AnalysisResponse{
			TxID:        tx.ID,
			Reference:   tx.Reference,
			Score:       *tx.FraudScore,
			Suspicious:  tx.IsSuspicious,
			RiskLevel:   domain.RiskLevelFor(*tx.FraudScore),
			Explanation: tx.Explanation,
		})
		return
	}

	result, explanation, err := h.pipeline.Process(ctx, tenantID, tx)
	if err != nil {
		slog.Error("analysis pipeline failed", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result.ToResponse(tx.Reference, explanation))
}

// StatusUpdateRequest is the body for POST /transactions/{id}/status.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// UpdateTransactionStatus applies a reviewer status transition.
func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status is required",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	if !domain.CanTransition(tx.Status, req.Status) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "illegal status transition from " + tx.Status + " to " + req.Status,
		})
		return
	}

	if err := h.repo.UpdateTransactionStatus(ctx, tenantID, txID, req.Status); err != nil {
		slog.Error("failed to update transaction status", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update status",
		})
		return
	}

	slog.Info("transaction status updated",
		"tenant_id", tenantID,
		"tx_id", txID,
		"from", tx.Status,
		"to", req.Status)

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     txID,
		"status": req.Status,
	})
}

// TransactionStats returns the dashboard rollup.
func (h *Handler) TransactionStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	stats, err := h.repo.Stats(ctx, tenantID)
	if err != nil {
		slog.Error("failed to compute stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetAnalysis retrieves a stored analysis result by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	result, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "analysis not found",
			})
			return
		}
		slog.Error("failed to get analysis", "analysis_id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TrainRequest is the optional body for POST /model/train.
type TrainRequest struct {
	// Limit caps how many recent transactions feed the training set.
	Limit int `json:"limit,omitempty"`
}

// TrainModel fits a new anomaly model on the tenant's transaction
// history and atomically swaps it in.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	txs, err := h.repo.ListTransactionsForTraining(ctx, tenantID, req.Limit)
	if err != nil {
		slog.Error("failed to load training transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load training data",
		})
		return
	}

	bundle, err := h.analyzer.TrainModel(txs)
	if err != nil {
		if errors.Is(err, anomaly.ErrInsufficientSamples) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":      "not enough transactions to train a model",
				"samples":    len(txs),
				"minSamples": anomaly.MinTrainingSamples,
			})
			return
		}
		slog.Error("model training failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model training failed",
		})
		return
	}

	slog.Info("model trained",
		"tenant_id", tenantID,
		"version", bundle.Version,
		"samples", bundle.SampleCount)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     bundle.Version,
		"trainedAt":   bundle.TrainedAt,
		"sampleCount": bundle.SampleCount,
	})
}

// ModelStatus reports the active anomaly model.
func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Status())
}

// ExplainerStatus probes the generation service.
func (h *Handler) ExplainerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.explainer.Status(r.Context()))
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
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
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

func validTransactionType(t string) bool {
	for _, v := range domain.TransactionTypes() {
		if v == t {
			return true
		}
	}
	return false
}

func validTransactionChannel(c string) bool {
	for _, v := range domain.TransactionChannels() {
		if v == c {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
