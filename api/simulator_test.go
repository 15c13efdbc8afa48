package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"agentdash/domain"
)

type syncBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *syncBroadcaster) Broadcast(ev domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *syncBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func TestSimulatorNudgesAndBroadcasts(t *testing.T) {
	var mu sync.Mutex
	current := domain.Metrics{TotalRequests: 100, SuccessRate: 98, AvgLatency: 40, ActiveAgents: 3}
	store := &mockStore{
		metricsFn: func(ctx context.Context) (domain.Metrics, error) {
			mu.Lock()
			defer mu.Unlock()
			return current, nil
		},
		replaceMetricsFn: func(ctx context.Context, m domain.Metrics) error {
			mu.Lock()
			defer mu.Unlock()
			current = m
			return nil
		},
	}
	bc := &syncBroadcaster{}
	logger, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSimulator(ctx, store, bc, time.Millisecond, logger)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for bc.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("simulator never broadcast")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if current.TotalRequests <= 100 {
		t.Fatalf("total requests did not grow: %d", current.TotalRequests)
	}
	if current.SuccessRate < 95 || current.SuccessRate > 99.9 {
		t.Fatalf("success rate out of band: %v", current.SuccessRate)
	}
	if current.AvgLatency < 20 || current.AvgLatency > 100 {
		t.Fatalf("latency out of band: %v", current.AvgLatency)
	}
}

func TestNudgeSeedsAgentsWhenZero(t *testing.T) {
	m := nudge(domain.Metrics{SuccessRate: 98, AvgLatency: 50})
	if m.ActiveAgents < 1 || m.ActiveAgents > 12 {
		t.Fatalf("agents out of band: %d", m.ActiveAgents)
	}
}
