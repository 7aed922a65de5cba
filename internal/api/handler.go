package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bananabot/pricing/internal/auth"
	"github.com/bananabot/pricing/internal/domain"
	"github.com/bananabot/pricing/internal/ledger"
	"github.com/bananabot/pricing/internal/metrics"
	"github.com/bananabot/pricing/internal/pricing"
	"github.com/bananabot/pricing/internal/queue"
	"github.com/bananabot/pricing/internal/ratelimit"
	"github.com/bananabot/pricing/internal/repository"
	"github.com/bananabot/pricing/internal/spend"
	"github.com/bananabot/pricing/internal/telemetry"
)

type HandlerConfig struct {
	Engine      *pricing.Engine
	Callers     repository.CallerRepository
	Tariffs     repository.TariffRepository
	RateLimiter ratelimit.RateLimiter
	Ledger      ledger.Tracker
	Queue       queue.Queue
	Monitor     *spend.Monitor
	Checkers    []HealthChecker
}

type Handler struct {
	engine      *pricing.Engine
	callers     repository.CallerRepository
	tariffs     repository.TariffRepository
	rateLimiter ratelimit.RateLimiter
	ledger      ledger.Tracker
	queue       queue.Queue
	monitor     *spend.Monitor
	checkers    []HealthChecker
	mux         *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		engine:      cfg.Engine,
		callers:     cfg.Callers,
		tariffs:     cfg.Tariffs,
		rateLimiter: cfg.RateLimiter,
		ledger:      cfg.Ledger,
		queue:       cfg.Queue,
		monitor:     cfg.Monitor,
		checkers:    cfg.Checkers,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/quotes", h.handleCreateQuote)
	h.mux.HandleFunc("GET /v1/tariffs", h.handleListTariffs)
	h.mux.HandleFunc("GET /v1/tariffs/{model}", h.handleGetTariff)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type QuoteRequest struct {
	Model  string       `json:"model"`
	Usage  domain.Usage `json:"usage"`
	UserID string       `json:"user_id,omitempty"`
}

type QuoteResponse struct {
	Model     string       `json:"model"`
	UserID    string       `json:"user_id,omitempty"`
	Usage     domain.Usage `json:"usage"`
	CostUSD   float64      `json:"cost_usd"`
	PriceUSD  float64      `json:"price_usd"`
	MarginUSD float64      `json:"margin_usd"`
	QuoteID   string       `json:"quote_id"`
}

func (h *Handler) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx, span := telemetry.StartSpan(ctx, "quotes.create")
	defer span.End()

	ctx, caller, err := h.authenticateCaller(ctx, r)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAPIKey) {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		slog.Warn("invalid API key", "error", err, "request_id", requestID)
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	role, _ := auth.RoleFromContext(ctx)
	if !auth.HasPermission(role, auth.PermissionQuoteCreate) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	if caller.RateLimitRPM > 0 {
		allowed, remaining, resetAt, err := h.rateLimiter.Allow(ctx, caller.ID, caller.RateLimitRPM)
		if err != nil {
			slog.Error("rate limiter error", "error", err, "request_id", requestID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(caller.RateLimitRPM))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if !allowed {
			slog.Warn("rate limit exceeded", "caller_id", caller.ID, "request_id", requestID)
			metrics.RecordRateLimitHit(caller.ID)
			telemetry.AddErrorAttribute(span, domain.ErrRateLimitExceeded)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	telemetry.AddQuoteAttributes(span, caller.ID, req.Model, req.UserID, requestID)
	telemetry.AddUsageAttributes(span, req.Usage.PromptTokens, req.Usage.OutputTokens,
		req.Usage.ImageCount, req.Usage.VideoSeconds, req.Usage.AudioMinutes)

	result, err := h.engine.Quote(ctx, req.Model, req.Usage, req.UserID)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		status, message := quoteErrorStatus(err)
		if status == http.StatusBadGateway {
			slog.Error("quote failed", "error", err, "model", req.Model, "request_id", requestID)
			metrics.RecordLookupError("tariff")
		} else {
			slog.Warn("quote rejected", "error", err, "model", req.Model, "request_id", requestID)
		}
		metrics.RecordQuote(caller.ID, req.Model, "error", time.Since(start).Seconds())
		writeError(w, status, message)
		return
	}

	telemetry.AddPriceAttributes(span, result.CostUSD, result.PriceUSD, result.Margin)

	quoteID := uuid.New().String()
	record := domain.QuoteRecord{
		ID:        quoteID,
		CallerID:  caller.ID,
		UserID:    req.UserID,
		ModelID:   req.Model,
		Usage:     req.Usage,
		CostUSD:   result.CostUSD,
		PriceUSD:  result.PriceUSD,
		MarginUSD: result.Margin,
		CreatedAt: time.Now(),
	}

	if h.ledger != nil {
		if err := h.ledger.Record(ctx, record); err != nil {
			slog.Error("failed to record quote", "error", err, "request_id", requestID)
		}
	}

	if h.queue != nil {
		event := queue.QuoteEvent{
			ID:        record.ID,
			CallerID:  record.CallerID,
			UserID:    record.UserID,
			Model:     record.ModelID,
			CostUSD:   record.CostUSD,
			PriceUSD:  record.PriceUSD,
			MarginUSD: record.MarginUSD,
			CreatedAt: record.CreatedAt,
		}
		go func() {
			publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.queue.PublishQuote(publishCtx, event); err != nil {
				slog.Error("failed to publish quote event", "error", err, "quote_id", event.ID)
			}
		}()
	}

	if h.monitor != nil && req.UserID != "" {
		userID := req.UserID
		go func() {
			checkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := h.monitor.Check(checkCtx, userID); err != nil {
				slog.Error("spend check failed", "error", err, "user_id", userID)
			}
		}()
	}

	duration := time.Since(start)
	metrics.RecordQuote(caller.ID, req.Model, "ok", duration.Seconds())
	metrics.RecordQuoteAmounts(req.Model, result.CostUSD, result.PriceUSD, result.Margin)

	slog.Info("quote created",
		"request_id", requestID,
		"quote_id", quoteID,
		"caller_id", caller.ID,
		"model", req.Model,
		"user_id", req.UserID,
		"cost_usd", result.CostUSD,
		"price_usd", result.PriceUSD,
		"duration_ms", duration.Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	json.NewEncoder(w).Encode(QuoteResponse{
		Model:     req.Model,
		UserID:    req.UserID,
		Usage:     req.Usage,
		CostUSD:   result.CostUSD,
		PriceUSD:  result.PriceUSD,
		MarginUSD: result.Margin,
		QuoteID:   quoteID,
	})
}

func quoteErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTariffNotFound):
		return http.StatusNotFound, "model unavailable"
	case errors.Is(err, domain.ErrInvalidUsage):
		return http.StatusBadRequest, "invalid usage"
	case errors.Is(err, domain.ErrUsageMismatch):
		return http.StatusBadRequest, "usage does not match model pricing"
	default:
		return http.StatusBadGateway, "pricing lookup failed"
	}
}

func (h *Handler) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tariffs, err := h.tariffs.List(ctx)
	if err != nil {
		slog.Error("failed to list tariffs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tariffs")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tariffs": tariffs,
		"count":   len(tariffs),
	})
}

func (h *Handler) handleGetTariff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	model := r.PathValue("model")

	tariff, err := h.tariffs.GetTariff(ctx, model)
	if err != nil {
		if errors.Is(err, domain.ErrTariffNotFound) {
			writeError(w, http.StatusNotFound, "model unavailable")
			return
		}
		slog.Error("failed to get tariff", "error", err, "model", model)
		writeError(w, http.StatusInternalServerError, "failed to get tariff")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tariff)
}

// authenticateCaller resolves the API key on the request and attaches the
// caller's role to the context for downstream permission checks.
func (h *Handler) authenticateCaller(ctx context.Context, r *http.Request) (context.Context, *domain.Caller, error) {
	apiKey := extractAPIKey(r)
	if apiKey == "" {
		return ctx, nil, domain.ErrInvalidAPIKey
	}

	caller, err := h.callers.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return ctx, nil, err
	}
	return auth.WithRole(ctx, auth.Role(caller.Role)), caller, nil
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    status,
		},
	})
}
