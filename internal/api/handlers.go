package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"loginguard/internal/counter"
	"loginguard/internal/login"
	"loginguard/internal/models"
	"loginguard/internal/storage"
	"loginguard/internal/throttle"
	"net/http"
	"strconv"
	"time"
)

// maxLoginBodyBytes caps the login request body.
const maxLoginBodyBytes = 8 << 10

const healthCheckTimeout = 2 * time.Second

// SessionWriter sets and clears the session cookie.
type SessionWriter interface {
	AttachToResponse(w http.ResponseWriter, token string)
	Clear(w http.ResponseWriter)
}

// Handlers contains HTTP handlers for the login API
type Handlers struct {
	loginService login.ServiceInterface
	sessions     SessionWriter
	store        counter.Store
	storeMode    string
	directory    storage.Directory
	trustProxy   bool
	version      string
	startTime    time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithCounterStore reports the counter store in health checks. mode is
// "shared" or "local".
func WithCounterStore(store counter.Store, mode string) HandlerOption {
	return func(h *Handlers) {
		h.store = store
		h.storeMode = mode
	}
}

// WithDirectory reports the account directory in health checks.
func WithDirectory(directory storage.Directory) HandlerOption {
	return func(h *Handlers) {
		h.directory = directory
	}
}

// WithTrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
func WithTrustProxyHeaders(trust bool) HandlerOption {
	return func(h *Handlers) {
		h.trustProxy = trust
	}
}

// WithVersion sets the version reported by the health check.
func WithVersion(version string) HandlerOption {
	return func(h *Handlers) {
		h.version = version
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(loginService login.ServiceInterface, sessions SessionWriter, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		loginService: loginService,
		sessions:     sessions,
		version:      "dev",
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Login handles a password login
// POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeLoginResponse(w, http.StatusBadRequest, &models.LoginResponse{Error: models.MessageInvalidBody})
		return
	}
	if err := req.Validate(); err != nil {
		h.writeLoginResponse(w, http.StatusBadRequest, &models.LoginResponse{Error: models.MessageInvalidBody})
		return
	}
	req.Normalize()

	ip := ClientIP(r, h.trustProxy)
	result, err := h.loginService.AttemptLogin(r.Context(), ip, req.Email, req.Password)
	if err != nil {
		var svcErr *login.ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusBadRequest {
			h.writeLoginResponse(w, http.StatusBadRequest, &models.LoginResponse{Error: models.MessageInvalidBody})
			return
		}
		slog.ErrorContext(r.Context(), "Login failed with internal error", "ip", ip, "error", err)
		h.writeLoginResponse(w, http.StatusInternalServerError, &models.LoginResponse{Error: models.MessageInternalError})
		return
	}

	switch result.Outcome {
	case login.OutcomeSuccess:
		h.sessions.AttachToResponse(w, result.Token)
		h.writeLoginResponse(w, http.StatusOK, &models.LoginResponse{OK: true})
	case login.OutcomeRejected:
		h.writeRejection(w, result.Decision)
	case login.OutcomeUnverified:
		h.writeLoginResponse(w, http.StatusForbidden, &models.LoginResponse{Error: models.MessageUnverifiedEmail})
	default:
		h.writeLoginResponse(w, http.StatusUnauthorized, &models.LoginResponse{Error: models.MessageInvalidCredentials})
	}
}

// Logout clears the session cookie
// POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	h.writeLoginResponse(w, http.StatusOK, &models.LoginResponse{OK: true})
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()
	statusCode := http.StatusOK

	if h.store != nil {
		response.AddMetric("counter_store_mode", h.storeMode)
		if err := h.store.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Counter store health check failed", "error", err)
			response.Status = models.StatusDegraded
			response.AddComponent("counter_store", models.StatusDegraded,
				"Shared counter store unreachable, serving from local fallback")
		} else {
			response.AddComponent("counter_store", models.StatusHealthy, "Counter store is operational")
		}
	}

	if h.directory != nil {
		if err := h.directory.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Account directory health check failed", "error", err)
			response.Status = models.StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
			response.AddComponent("accounts", models.StatusUnhealthy, "Account directory unreachable")
		} else {
			response.AddComponent("accounts", models.StatusHealthy, "Account directory is operational")
		}
	}

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, statusCode, response)
}

func (h *Handlers) writeRejection(w http.ResponseWriter, decision throttle.Decision) {
	retryAfter := decision.RetryAfterSeconds()
	message := models.MessageTooManyRequests
	if decision.Reason == throttle.ReasonAccountLocked {
		message = models.MessageAccountLocked
	}

	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	h.writeLoginResponse(w, http.StatusTooManyRequests, &models.LoginResponse{
		Error:      string(decision.Reason),
		Message:    message,
		RetryAfter: retryAfter,
	})
}

func (h *Handlers) writeLoginResponse(w http.ResponseWriter, statusCode int, resp *models.LoginResponse) {
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more can be sent.
		slog.Error("Error encoding JSON response", "error", err)
	}
}
