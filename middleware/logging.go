package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoggingConfig controls which paths the request logger skips or treats as
// long-lived streams.
type LoggingConfig struct {
	// SkipPaths are not logged at all (health checks).
	SkipPaths []string
	// StreamPaths are connections held open for minutes. They get an open
	// and a close line instead of a completion line, since their status
	// code says nothing about how the stream went.
	StreamPaths []string
}

// Logging logs one line per completed request, plus open and close lines
// for the jackpot update streams.
func Logging(logger zerolog.Logger) gin.HandlerFunc {
	return LoggingWithConfig(logger, LoggingConfig{
		SkipPaths:   []string{"/health", "/api/health"},
		StreamPaths: []string{"/api/v1/jackpot/updates", "/api/v1/jackpot/updates/ws"},
	})
}

// LoggingWithConfig creates a request logging middleware with custom path
// handling.
func LoggingWithConfig(logger zerolog.Logger, cfg LoggingConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	streams := make(map[string]bool, len(cfg.StreamPaths))
	for _, p := range cfg.StreamPaths {
		streams[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		reqLogger := logger.With().
			Str("trace_id", GetTraceID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client_ip", c.ClientIP()).
			Logger()

		start := time.Now()

		if streams[path] {
			reqLogger.Info().Msg("stream opened")
			c.Next()
			reqLogger.Info().Dur("connected", time.Since(start)).Msg("stream closed")
			return
		}

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = reqLogger.Error()
		case status >= 400:
			event = reqLogger.Warn()
		default:
			event = reqLogger.Info()
		}
		event.
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("response_size", c.Writer.Size()).
			Msg("request completed")

		for _, err := range c.Errors {
			reqLogger.Error().Err(err.Err).Msg("request error")
		}
	}
}
