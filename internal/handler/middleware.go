package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"variant-merger/internal/tracing"
)

type requestIDKey struct{}

// RequestID returns the request id stored by the RequestContext middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta"`
}

// RequestContext propagates or assigns a request id
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.WithValue(req.Context(), requestIDKey{}, requestID)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// Logger writes one line per request
func Logger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			logger.Info("request",
				zap.String("request_id", RequestID(req.Context())),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("route", c.Path()),
				zap.Int("status", res.Status),
				zap.String("remote_ip", c.RealIP()),
				zap.Duration("response_time", time.Since(start)),
				zap.Int64("response_size", res.Size))
			return nil
		}
	}
}

// ErrorHandler renders errors as ErrorResponse
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("api is returning an error", zap.String("request_id", RequestID(ctx)), zap.Error(err))
		} else {
			logger.Debug("api is returning an error", zap.String("request_id", RequestID(ctx)), zap.Error(err))
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: RequestID(ctx),
			TraceID:   tracing.TraceID(ctx),
			Meta:      meta,
		})
	}
}
