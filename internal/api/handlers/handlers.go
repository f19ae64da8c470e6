// Package handlers implements the management API endpoints: health,
// runtime statistics and relay configuration.
package handlers

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jroosing/relaydns/internal/config"
	"github.com/jroosing/relaydns/internal/proxy"
)

// ProxyStatsFunc returns a snapshot of the engine counters.
type ProxyStatsFunc func() proxy.StatsSnapshot

// ApplyProxyConfigFunc installs a new relay configuration (persisting it
// and re-initializing the engine).
type ApplyProxyConfigFunc func(config.ProxyConfig) error

// Handler contains dependencies for the API handlers.
type Handler struct {
	cfg        *config.Config
	logger     *slog.Logger
	startTime  time.Time
	instanceID string

	proxyStats  ProxyStatsFunc
	applyConfig ApplyProxyConfigFunc
}

// New creates a Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		logger:     logger,
		startTime:  time.Now(),
		instanceID: uuid.New().String()[:8],
	}
}

// SetProxyStats wires the engine counter snapshot source.
func (h *Handler) SetProxyStats(fn ProxyStatsFunc) {
	h.proxyStats = fn
}

// SetApplyProxyConfig wires the configuration apply path.
func (h *Handler) SetApplyProxyConfig(fn ApplyProxyConfigFunc) {
	h.applyConfig = fn
}
