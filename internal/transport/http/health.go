package httptransport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"payflow/pkg/platform/httputil"
)

// Prober is a single dependency health probe.
type Prober interface {
	Health(ctx context.Context) error
}

// HealthHandler probes every registered dependency concurrently and reports
// per-dependency booleans. Any failing probe turns the overall status
// unhealthy with a 503.
type HealthHandler struct {
	timeout time.Duration

	mu     sync.Mutex
	probes map[string]Prober
}

// NewHealthHandler creates a health handler with the given per-check timeout.
func NewHealthHandler(timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{timeout: timeout, probes: map[string]Prober{}}
}

// Register adds a named dependency probe. Nil probers are ignored so optional
// backends can be wired unconditionally.
func (h *HealthHandler) Register(name string, p Prober) {
	if p == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// HandleHealth handles GET /health requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.Lock()
	probes := make(map[string]Prober, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	var mu sync.Mutex
	results := make(map[string]bool, len(probes))

	g, ctx := errgroup.WithContext(ctx)
	for name, p := range probes {
		g.Go(func() error {
			err := p.Health(ctx)
			mu.Lock()
			results[name] = err == nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, ok := range results {
		if !ok {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	httputil.WriteJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": results,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
