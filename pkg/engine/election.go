package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rmax-ai/osmon/pkg/store"
)

// MaintenanceLease is the lease that gates the archive and prune workers
// when several daemons share one store.
const MaintenanceLease = "maintenance"

// ElectionManager keeps this daemon's claim on a lease and reports whether
// it is currently the leader.
type ElectionManager struct {
	store     store.LeaseStore
	holderID  string
	leaseName string
	ttl       time.Duration
	logger    *slog.Logger

	onPromote func()
	onDemote  func()

	isLeader bool
	mu       sync.RWMutex
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewElectionManager creates a new ElectionManager instance. The callbacks
// may be nil.
func NewElectionManager(
	leases store.LeaseStore,
	holderID string,
	leaseName string,
	ttl time.Duration,
	logger *slog.Logger,
	onPromote func(),
	onDemote func(),
) *ElectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ElectionManager{
		store:     leases,
		holderID:  holderID,
		leaseName: leaseName,
		ttl:       ttl,
		logger:    logger.With("component", "election", "holder_id", holderID, "lease", leaseName),
		onPromote: onPromote,
		onDemote:  onDemote,
		stopCh:    make(chan struct{}),
	}
}

// Start makes a first attempt synchronously, then keeps renewing in the
// background every ttl/2.
func (em *ElectionManager) Start(ctx context.Context) {
	em.attemptElection(ctx)

	ticker := time.NewTicker(em.ttl / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				em.attemptElection(ctx)
			case <-em.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	em.logger.Info("election_started")
}

// Stop ends the loop and releases the lease if held.
func (em *ElectionManager) Stop(ctx context.Context) {
	em.stopOnce.Do(func() { close(em.stopCh) })

	em.mu.Lock()
	wasLeader := em.isLeader
	em.isLeader = false
	em.mu.Unlock()

	if wasLeader {
		if err := em.store.Release(ctx, em.leaseName, em.holderID); err != nil {
			em.logger.Error("lease_release_failed", "error", err)
		} else {
			em.logger.Info("lease_released")
		}
	}
}

// IsLeader returns true if this instance currently holds the lease.
func (em *ElectionManager) IsLeader() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.isLeader
}

func (em *ElectionManager) attemptElection(ctx context.Context) {
	em.mu.RLock()
	wasLeader := em.isLeader
	em.mu.RUnlock()

	var leader bool
	if wasLeader {
		if err := em.store.Renew(ctx, em.leaseName, em.holderID, em.ttl); err != nil {
			em.logger.Warn("lease_renew_failed", "error", err)
		} else {
			leader = true
		}
	} else {
		ok, err := em.store.Acquire(ctx, em.leaseName, em.holderID, em.ttl)
		if err != nil {
			em.logger.Warn("lease_acquire_failed", "error", err)
		}
		leader = ok && err == nil
	}

	em.mu.Lock()
	em.isLeader = leader
	em.mu.Unlock()

	switch {
	case !wasLeader && leader:
		em.logger.Info("promoted")
		if em.onPromote != nil {
			em.onPromote()
		}
	case wasLeader && !leader:
		em.logger.Info("demoted")
		if em.onDemote != nil {
			em.onDemote()
		}
	}
}

// Leader is anything that can say whether this daemon should run
// singleton work. A nil Leader means always.
type Leader interface {
	IsLeader() bool
}

func isLeader(l Leader) bool {
	return l == nil || l.IsLeader()
}
