package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bananabot/pricing/internal/crypto"
	"github.com/bananabot/pricing/internal/domain"
	"github.com/bananabot/pricing/internal/ledger"
	"github.com/bananabot/pricing/internal/notifications"
	"github.com/bananabot/pricing/internal/repository"
)

// TariffCacheInvalidator evicts a cached tariff after a pricing mutation.
type TariffCacheInvalidator interface {
	Invalidate(ctx context.Context, modelID string)
}

// SettingsCacheInvalidator evicts the cached system settings.
type SettingsCacheInvalidator interface {
	Invalidate(ctx context.Context)
}

type AdminHandlerConfig struct {
	Tariffs       repository.TariffRepository
	Settings      repository.SettingsRepository
	Users         repository.UserRepository
	Callers       repository.CallerRepository
	Ledger        ledger.Tracker
	Notifier      notifications.Notifier
	TariffCache   TariffCacheInvalidator
	SettingsCache SettingsCacheInvalidator

	// DefaultRateLimitRPM is assigned to new callers created without an
	// explicit rate limit. Zero falls back to 60.
	DefaultRateLimitRPM int
}

type AdminHandler struct {
	tariffs       repository.TariffRepository
	settings      repository.SettingsRepository
	users         repository.UserRepository
	callers       repository.CallerRepository
	ledger        ledger.Tracker
	notifier      notifications.Notifier
	tariffCache   TariffCacheInvalidator
	settingsCache SettingsCacheInvalidator
	defaultRPM    int
	mux           *http.ServeMux
}

func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	h := &AdminHandler{
		tariffs:       cfg.Tariffs,
		settings:      cfg.Settings,
		users:         cfg.Users,
		callers:       cfg.Callers,
		ledger:        cfg.Ledger,
		notifier:      cfg.Notifier,
		tariffCache:   cfg.TariffCache,
		settingsCache: cfg.SettingsCache,
		defaultRPM:    cfg.DefaultRateLimitRPM,
		mux:           http.NewServeMux(),
	}
	if h.defaultRPM <= 0 {
		h.defaultRPM = 60
	}

	h.mux.HandleFunc("GET /admin/tariffs", h.listTariffs)
	h.mux.HandleFunc("POST /admin/tariffs", h.createTariff)
	h.mux.HandleFunc("PUT /admin/tariffs/{model}", h.updateTariff)
	h.mux.HandleFunc("DELETE /admin/tariffs/{model}", h.deleteTariff)

	h.mux.HandleFunc("GET /admin/settings", h.getSettings)
	h.mux.HandleFunc("PUT /admin/settings", h.updateSettings)

	h.mux.HandleFunc("GET /admin/users/{id}/margin", h.getUserMargin)
	h.mux.HandleFunc("PUT /admin/users/{id}/margin", h.setUserMargin)
	h.mux.HandleFunc("PUT /admin/users/{id}/spend-limit", h.setSpendLimit)
	h.mux.HandleFunc("GET /admin/users/{id}/usage", h.getUserUsage)

	h.mux.HandleFunc("GET /admin/callers", h.listCallers)
	h.mux.HandleFunc("POST /admin/callers", h.createCaller)
	h.mux.HandleFunc("PUT /admin/callers/{id}", h.updateCaller)
	h.mux.HandleFunc("POST /admin/callers/{id}/rotate-key", h.rotateAPIKey)

	h.mux.HandleFunc("GET /admin/reports/margin", h.getMarginReport)

	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *AdminHandler) notifyPricingChanged(ctx context.Context, message string, data map[string]interface{}) {
	if h.notifier == nil {
		return
	}
	notification := notifications.Notification{
		Type:    notifications.NotificationPricingChanged,
		Message: message,
		Data:    data,
	}
	if err := h.notifier.Send(ctx, notification); err != nil {
		slog.Warn("failed to send pricing notification", "error", err)
	}
}

func (h *AdminHandler) listTariffs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tariffs, err := h.tariffs.List(ctx)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list tariffs")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tariffs": tariffs,
		"count":   len(tariffs),
	})
}

func (h *AdminHandler) createTariff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tariff domain.ModelTariff
	if err := json.NewDecoder(r.Body).Decode(&tariff); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if tariff.ModelID == "" {
		writeAdminError(w, http.StatusBadRequest, "model_id is required")
		return
	}

	now := time.Now()
	tariff.CreatedAt = now
	tariff.UpdatedAt = now

	if err := h.tariffs.Create(ctx, &tariff); err != nil {
		slog.Error("failed to create tariff", "error", err, "model", tariff.ModelID)
		writeAdminError(w, http.StatusInternalServerError, "failed to create tariff")
		return
	}

	if h.tariffCache != nil {
		h.tariffCache.Invalidate(ctx, tariff.ModelID)
	}
	h.notifyPricingChanged(ctx, "tariff created", map[string]interface{}{"model": tariff.ModelID})

	slog.Info("tariff created", "model", tariff.ModelID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tariff)
}

func (h *AdminHandler) updateTariff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	model := r.PathValue("model")

	var tariff domain.ModelTariff
	if err := json.NewDecoder(r.Body).Decode(&tariff); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tariff.ModelID = model

	if err := h.tariffs.Update(ctx, &tariff); err != nil {
		if errors.Is(err, domain.ErrTariffNotFound) {
			writeAdminError(w, http.StatusNotFound, "tariff not found")
			return
		}
		slog.Error("failed to update tariff", "error", err, "model", model)
		writeAdminError(w, http.StatusInternalServerError, "failed to update tariff")
		return
	}

	if h.tariffCache != nil {
		h.tariffCache.Invalidate(ctx, model)
	}
	h.notifyPricingChanged(ctx, "tariff updated", map[string]interface{}{"model": model})

	slog.Info("tariff updated", "model", model)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tariff)
}

func (h *AdminHandler) deleteTariff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	model := r.PathValue("model")

	if err := h.tariffs.Delete(ctx, model); err != nil {
		if errors.Is(err, domain.ErrTariffNotFound) {
			writeAdminError(w, http.StatusNotFound, "tariff not found")
			return
		}
		slog.Error("failed to delete tariff", "error", err, "model", model)
		writeAdminError(w, http.StatusInternalServerError, "failed to delete tariff")
		return
	}

	if h.tariffCache != nil {
		h.tariffCache.Invalidate(ctx, model)
	}
	h.notifyPricingChanged(ctx, "tariff deleted", map[string]interface{}{"model": model})

	slog.Info("tariff deleted", "model", model)

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := h.settings.GetSystemSettings(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			writeAdminError(w, http.StatusNotFound, "settings not configured")
			return
		}
		writeAdminError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

type UpdateSettingsRequest struct {
	SystemMargin float64 `json:"system_margin"`
}

func (h *AdminHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SystemMargin < 0 {
		writeAdminError(w, http.StatusBadRequest, "system_margin must not be negative")
		return
	}

	settings, err := h.settings.UpdateSystemSettings(ctx, req.SystemMargin)
	if err != nil {
		slog.Error("failed to update settings", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	if h.settingsCache != nil {
		h.settingsCache.Invalidate(ctx)
	}
	h.notifyPricingChanged(ctx, "system margin updated", map[string]interface{}{"system_margin": req.SystemMargin})

	slog.Info("system settings updated", "system_margin", req.SystemMargin)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

func (h *AdminHandler) getUserMargin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	margin, err := h.users.GetUserMargin(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeAdminError(w, http.StatusNotFound, "user not found")
			return
		}
		writeAdminError(w, http.StatusInternalServerError, "failed to get user margin")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id": userID,
		"margin":  margin,
	})
}

type SetUserMarginRequest struct {
	Margin float64 `json:"margin"`
}

func (h *AdminHandler) setUserMargin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	var req SetUserMarginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Margin < 0 {
		writeAdminError(w, http.StatusBadRequest, "margin must not be negative")
		return
	}

	if err := h.users.SetUserMargin(ctx, userID, req.Margin); err != nil {
		slog.Error("failed to set user margin", "error", err, "user_id", userID)
		writeAdminError(w, http.StatusInternalServerError, "failed to set user margin")
		return
	}

	slog.Info("user margin updated", "user_id", userID, "margin", req.Margin)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id": userID,
		"margin":  req.Margin,
	})
}

type SetSpendLimitRequest struct {
	LimitUSD float64 `json:"limit_usd"`
}

func (h *AdminHandler) setSpendLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	var req SetSpendLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.LimitUSD < 0 {
		writeAdminError(w, http.StatusBadRequest, "limit_usd must not be negative")
		return
	}

	if err := h.users.SetSpendLimit(ctx, userID, req.LimitUSD); err != nil {
		slog.Error("failed to set spend limit", "error", err, "user_id", userID)
		writeAdminError(w, http.StatusInternalServerError, "failed to set spend limit")
		return
	}

	slog.Info("spend limit updated", "user_id", userID, "limit_usd", req.LimitUSD)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":   userID,
		"limit_usd": req.LimitUSD,
	})
}

func (h *AdminHandler) getUserUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	since := parseSince(r, time.Now().AddDate(0, -1, 0))

	quotes, err := h.ledger.GetUserQuotes(ctx, userID, since)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to get user usage")
		return
	}

	total, err := h.ledger.GetUserTotalPrice(ctx, userID, since)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to get user usage")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":   userID,
		"since":     since,
		"quotes":    quotes,
		"count":     len(quotes),
		"total_usd": total,
	})
}

func (h *AdminHandler) getMarginReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since := parseSince(r, time.Now().AddDate(0, -1, 0))

	margin, err := h.ledger.GetTotalMargin(ctx, since)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to get margin report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"since":            since,
		"total_margin_usd": margin,
	})
}

func parseSince(r *http.Request, fallback time.Time) time.Time {
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return fallback
}

func (h *AdminHandler) listCallers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callers, err := h.callers.List(ctx)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, "failed to list callers")
		return
	}

	// Key material never leaves storage on reads.
	sanitized := make([]domain.Caller, 0, len(callers))
	for _, c := range callers {
		copied := *c
		copied.APIKey = ""
		sanitized = append(sanitized, copied)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"callers": sanitized,
		"count":   len(sanitized),
	})
}

type CreateCallerRequest struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

func (h *AdminHandler) createCaller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeAdminError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Role == "" {
		req.Role = "bot"
	}

	apiKey, err := crypto.GenerateAPIKey()
	if err != nil {
		slog.Error("failed to generate API key", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create caller")
		return
	}

	now := time.Now()
	caller := &domain.Caller{
		ID:           uuid.New().String(),
		Name:         req.Name,
		APIKey:       apiKey,
		APIKeyHash:   crypto.HashAPIKey(apiKey),
		Role:         req.Role,
		RateLimitRPM: req.RateLimitRPM,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if caller.RateLimitRPM == 0 {
		caller.RateLimitRPM = h.defaultRPM
	}

	if err := h.callers.Create(ctx, caller); err != nil {
		slog.Error("failed to create caller", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create caller")
		return
	}

	slog.Info("caller created", "caller_id", caller.ID, "name", caller.Name, "role", caller.Role)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(caller)
}

type UpdateCallerRequest struct {
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
	RateLimitRPM *int   `json:"rate_limit_rpm,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

func (h *AdminHandler) updateCaller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	caller, err := h.callers.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "caller not found")
		return
	}

	var req UpdateCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		caller.Name = req.Name
	}
	if req.Role != "" {
		caller.Role = req.Role
	}
	if req.RateLimitRPM != nil {
		caller.RateLimitRPM = *req.RateLimitRPM
	}
	if req.Enabled != nil {
		caller.Enabled = *req.Enabled
	}
	caller.UpdatedAt = time.Now()

	if err := h.callers.Update(ctx, caller); err != nil {
		slog.Error("failed to update caller", "error", err, "caller_id", id)
		writeAdminError(w, http.StatusInternalServerError, "failed to update caller")
		return
	}

	slog.Info("caller updated", "caller_id", id)

	caller.APIKey = ""
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(caller)
}

func (h *AdminHandler) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	caller, err := h.callers.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "caller not found")
		return
	}

	apiKey, err := crypto.GenerateAPIKey()
	if err != nil {
		slog.Error("failed to generate API key", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to rotate API key")
		return
	}

	caller.APIKey = apiKey
	caller.APIKeyHash = crypto.HashAPIKey(apiKey)
	caller.UpdatedAt = time.Now()

	if err := h.callers.Update(ctx, caller); err != nil {
		slog.Error("failed to rotate API key", "error", err, "caller_id", id)
		writeAdminError(w, http.StatusInternalServerError, "failed to rotate API key")
		return
	}

	slog.Info("API key rotated", "caller_id", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"api_key": apiKey,
	})
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
