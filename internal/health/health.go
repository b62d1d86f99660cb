// Package health provides liveness and readiness handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gin-gonic/gin"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g.
	// "database", "ffmpeg"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Pinger is the connectivity probe of a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database checks connectivity to the recording database.
func Database(db Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			return db.Ping(ctx)
		},
	}
}

// FFmpeg checks that the configured ffmpeg binary is resolvable. Without it
// every upload would be stored as too_quiet.
func FFmpeg(path string) Checker {
	return Checker{
		Name: "ffmpeg",
		Check: func(_ context.Context) error {
			if _, err := exec.LookPath(path); err != nil {
				return fmt.Errorf("ffmpeg not found at %q: %w", path, err)
			}
			return nil
		},
	}
}

// DataDir checks that the audio data directory exists and is a directory.
func DataDir(dir string) Checker {
	return Checker{
		Name: "data_dir",
		Check: func(_ context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%q is not a directory", dir)
			}
			return nil
		},
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(c *gin.Context) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, chk := range h.checkers {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		err := chk.Check(ctx)
		cancel()

		if err != nil {
			checks[chk.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[chk.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, res)
}

// Register adds the /healthz and /readyz routes to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
}
