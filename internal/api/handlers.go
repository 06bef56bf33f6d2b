// Package api implements the REST API endpoints for the Victory Integration
// dashboard.
//
// Every endpoint answers HTTP 200; failures are reported in-band via an
// "error" field in the body. This is deliberate: the UI distinguishes a
// "not configured" setup state from transient upstream failures and renders
// graceful empty states instead of error boundaries.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victorjmlee/victory-integration/internal/anthropic"
	"github.com/victorjmlee/victory-integration/internal/openai"
	"github.com/victorjmlee/victory-integration/internal/usage"
	"github.com/victorjmlee/victory-integration/internal/vercel"
)

// defaultRangeDays is the trailing window used when no date range is given.
const defaultRangeDays = 7

// Handlers provides REST API endpoint handlers. Provider services are nil
// when the matching credential is not configured.
type Handlers struct {
	anthropic *anthropic.Service
	openai    *openai.Service
	vercel    *vercel.Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(anthropicSvc *anthropic.Service, openaiSvc *openai.Service, vercelClient *vercel.Client) *Handlers {
	return &Handlers{anthropic: anthropicSvc, openai: openaiSvc, vercel: vercelClient}
}

// HealthCheck returns the service health status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "victory-integration",
		"version": "0.1.0",
	})
}

// GetAnthropicUsage serves GET /api/ai-usage/anthropic.
// Query params: start, end (YYYY-MM-DD, default trailing 7 days) and
// workspaces=true for a per-workspace cost summary.
func (h *Handlers) GetAnthropicUsage(c *gin.Context) {
	if h.anthropic == nil {
		c.JSON(http.StatusOK, usage.ErrorResponse(
			"ANTHROPIC_API_KEY not configured. An Admin API Key (sk-ant-admin-...) is required for usage data."))
		return
	}

	start, end, err := parseDateRange(c)
	if err != nil {
		c.JSON(http.StatusOK, usage.ErrorResponse(err.Error()))
		return
	}

	resp, err := h.anthropic.DailyUsage(c.Request.Context(), start, end, c.Query("workspaces") == "true")
	if err != nil {
		c.JSON(http.StatusOK, usage.ErrorResponse(errorMessage(err)))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetOpenAIUsage serves GET /api/ai-usage/openai.
// Query params: start, end (YYYY-MM-DD, default trailing 7 days).
func (h *Handlers) GetOpenAIUsage(c *gin.Context) {
	if h.openai == nil {
		c.JSON(http.StatusOK, usage.ErrorResponse(
			"OPENAI_API_KEY not configured. An Admin API Key is required for usage data."))
		return
	}

	start, end, err := parseDateRange(c)
	if err != nil {
		c.JSON(http.StatusOK, usage.ErrorResponse(err.Error()))
		return
	}

	resp, err := h.openai.DailyUsage(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusOK, usage.ErrorResponse(errorMessage(err)))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// projectsResponse is the body for the Vercel projects endpoint; like the
// usage endpoints it is always 200 with an in-band error.
type projectsResponse struct {
	Projects []vercel.Project `json:"projects"`
	Error    string           `json:"error,omitempty"`
}

// GetVercelProjects serves GET /api/vercel/projects.
func (h *Handlers) GetVercelProjects(c *gin.Context) {
	if h.vercel == nil {
		c.JSON(http.StatusOK, projectsResponse{
			Projects: []vercel.Project{},
			Error:    "VERCEL_TOKEN not configured.",
		})
		return
	}

	projects, err := h.vercel.Projects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, projectsResponse{
			Projects: []vercel.Project{},
			Error:    errorMessage(err),
		})
		return
	}
	c.JSON(http.StatusOK, projectsResponse{Projects: projects})
}

// parseDateRange reads the optional start/end query params. end defaults to
// today (UTC) and start to seven days before end.
func parseDateRange(c *gin.Context) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if s := c.Query("end"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'end' date %q, use YYYY-MM-DD", s)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -defaultRangeDays)
	if s := c.Query("start"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'start' date %q, use YYYY-MM-DD", s)
		}
		start = parsed
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("'start' date is after 'end' date")
	}
	return start, end, nil
}

// errorMessage maps service errors onto the in-band error strings of the
// response contract. Typed upstream errors carry their own wording;
// anything else is a transport or parse failure.
func errorMessage(err error) string {
	var authErr *usage.AuthorizationError
	if errors.As(err, &authErr) {
		return authErr.Guidance
	}
	var upErr *usage.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Error()
	}
	return fmt.Sprintf("Failed to fetch: %v", err)
}
