package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
)

// Reloader refreshes the proposal snapshot from the ledger.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ProposalEvents streams the ids of the proposals touched by ledger events.
type ProposalEvents interface {
	MonitorProposalsByPolling(ctx context.Context, interval time.Duration) (<-chan uint64, error)
}

// ProposalMonitor represents a service that keeps the proposal snapshot
// fresh. It reloads every interval and, if an event source is given, as soon
// as the ledger reports a proposal change.
type ProposalMonitor struct {
	reloader Reloader
	events   ProposalEvents
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewProposalMonitor creates a new ProposalMonitor service. events may be nil.
func NewProposalMonitor(reloader Reloader, events ProposalEvents, interval time.Duration) *ProposalMonitor {
	return &ProposalMonitor{
		reloader: reloader,
		events:   events,
		interval: interval,
	}
}

// Start begins monitoring the proposals. It returns an error if the service
// is already running or if it fails to start monitoring.
func (pm *ProposalMonitor) Start(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if pm.interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", pm.interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	var events <-chan uint64
	if pm.events != nil {
		var err error
		if events, err = pm.events.MonitorProposalsByPolling(ctx, pm.interval); err != nil {
			cancel()
			return fmt.Errorf("failed to start proposal monitoring: %w", err)
		}
	}
	pm.cancel = cancel
	pm.done = make(chan struct{})
	go pm.monitorProposals(ctx, events, pm.done)
	return nil
}

// Stop halts the monitoring service and waits for it to exit.
func (pm *ProposalMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cancel != nil {
		pm.cancel()
		<-pm.done
		pm.cancel = nil
	}
}

func (pm *ProposalMonitor) monitorProposals(ctx context.Context, events <-chan uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.reload(ctx, "interval")
		case id, ok := <-events:
			if !ok {
				log.Warnw("proposal events closed, falling back to interval reloads")
				events = nil
				continue
			}
			log.Debugw("proposal event", "proposalId", id)
			// coalesce the events already queued into a single reload
			for drained := false; !drained; {
				select {
				case _, ok := <-events:
					if !ok {
						events = nil
						drained = true
					}
				default:
					drained = true
				}
			}
			pm.reload(ctx, "event")
		}
	}
}

func (pm *ProposalMonitor) reload(ctx context.Context, reason string) {
	if err := pm.reloader.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warnw("failed to reload proposals", "reason", reason, "error", err.Error())
	}
}
