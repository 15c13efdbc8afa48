package api

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

// RunSimulator nudges the metrics snapshot on every tick and broadcasts the
// result, for demo deployments with no real agents reporting in. Blocks
// until the context is cancelled.
func RunSimulator(ctx context.Context, store Storage, bc Broadcaster, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m, err := store.Metrics(ctx)
		if err != nil {
			logger.Errorf("simulator: load metrics: %v", err)
			continue
		}
		m = nudge(m)
		if err := store.ReplaceMetrics(ctx, m); err != nil {
			logger.Errorf("simulator: replace metrics: %v", err)
			continue
		}
		broadcast(bc, domain.EventMetricsUpdate, m)
	}
}

func nudge(m domain.Metrics) domain.Metrics {
	m.TotalRequests += int64(10 + rand.Intn(41))
	m.AvgLatency = clamp(m.AvgLatency+float64(rand.Intn(11)-5), 20, 100)
	m.SuccessRate = clamp(m.SuccessRate+(rand.Float64()*0.4-0.2), 95, 99.9)
	if m.ActiveAgents == 0 {
		m.ActiveAgents = 1 + rand.Intn(12)
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
