// Package monitor exposes the liveness probe, Prometheus metrics and the
// admin log tail.
package monitor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// DefaultLogTailBytes is how much of the log file RegisterLogsRoute returns.
const DefaultLogTailBytes = 64 << 10

// RegisterHealth mounts GET /api/health. It never touches the database.
func RegisterHealth(router gin.IRoutes, version string) {
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "Grievance Management API is running",
			"version": version,
		})
	})
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterReadiness mounts GET /api/health/ready, which answers 503 while the
// database cannot be reached.
func RegisterReadiness(router gin.IRoutes, db Pinger) {
	router.GET("/api/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "UNAVAILABLE",
				"database": "unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "READY", "database": "ok"})
	})
}

func RegisterMetrics(router gin.IRoutes) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterLogsRoute serves the last maxBytes of the log file as plain text.
// Callers mount it behind admin authentication.
func RegisterLogsRoute(router gin.IRoutes, logPath string, maxBytes int64) {
	router.GET("/logs", func(c *gin.Context) {
		data, err := tailFile(logPath, maxBytes)
		if err != nil {
			log.Warn().Err(err).Str("file", logPath).Msg("unable to read log")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal server error",
				"message": "Unable to read log",
			})
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
	})
}

func tailFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []byte{}, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		if _, err := f.Seek(info.Size()-maxBytes, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}
