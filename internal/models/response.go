// Package models - API response types and error handling.
// This file defines the outgoing API response structures.
//
// Response Design Principles:
// - Every login response carries an "ok" flag so clients branch on one field
// - Error text is fixed per outcome and never includes internal error details
// - RFC3339 timestamps for health reports
package models

import (
	"time"
)

// LoginResponse is returned by the login and logout endpoints.
type LoginResponse struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// ErrorResponse is the generic error body.
//
// Error holds the user-facing text (for throttle denials, the machine-readable
// reason such as "too_many_requests"); Code is the upper-case error code.
type ErrorResponse struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound           = "NOT_FOUND"            // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"          // 400: Invalid request format
	ErrorCodeInternalError      = "INTERNAL_ERROR"       // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"         // 401: Bad credentials
	ErrorCodeForbidden          = "FORBIDDEN"            // 403: Email not verified
	ErrorCodeTooManyRequests    = "TOO_MANY_REQUESTS"    // 429: IP throttled
	ErrorCodeAccountLocked      = "ACCOUNT_LOCKED"       // 429: Account locked
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"   // 405: Wrong verb
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"  // 503: Service temporarily down
)

// Fixed user-facing messages.
const (
	MessageInvalidCredentials = "Invalid credentials"
	MessageUnverifiedEmail    = "Please verify your email first"
	MessageInvalidBody        = "Invalid request body"
	MessageInternalError      = "Internal server error"
	MessageAccountLocked      = "Too many failed attempts. Please try again later."
	MessageTooManyRequests    = "Too many requests. Please try again later."
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
