package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loreleaf/loreleaf/internal/cache"
	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/search"
)

// errorBody is the wire shape for failures.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req search.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Code:    apperrors.ErrCodeInvalidRequest,
			Message: "malformed request body",
		}})
	}

	ctx := c.Request().Context()

	var key string
	if s.cache != nil {
		alpha := search.EffectiveAlpha(s.engine.Fusion(), req.Query, req.Alpha)
		key = cache.Key(&req, alpha)
		if resp, ok := s.cache.Get(ctx, key); ok {
			s.metrics.RecordCacheEvent("hit")
			return c.JSON(http.StatusOK, resp)
		}
		s.metrics.RecordCacheEvent("miss")
	}

	resp, err := s.engine.Search(ctx, &req)
	if err != nil {
		return s.searchError(c, err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// searchError maps pipeline errors onto status codes: validation
// failures are the caller's fault, a total retrieval outage is 503,
// everything else is 500.
func (s *Server) searchError(c echo.Context, err error) error {
	code := apperrors.GetCode(err)
	status := http.StatusInternalServerError
	switch {
	case apperrors.GetCategory(err) == apperrors.CategoryValidation:
		status = http.StatusBadRequest
	case code == apperrors.ErrCodeAllPathsFailed:
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, errorBody{Error: errorDetail{
		Code:    code,
		Message: err.Error(),
	}})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the engine's stores answer. Load
// balancers route on this, not on /healthz.
func (s *Server) handleReady(c echo.Context) error {
	if err := s.engine.Ready(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
