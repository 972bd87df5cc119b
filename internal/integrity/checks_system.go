package integrity

import (
	"context"
	"fmt"
	"time"
)

func (a *Agent) checkStoreConfigured(ctx context.Context) ([]Issue, error) {
	if a.store.Configured() {
		return nil, nil
	}
	return []Issue{newIssue(SeverityError, CategorySystem, TitleStoreNotConfigured,
		"No database is configured; data checks cannot run", nil, nil)}, nil
}

// checkStoreConnectivity times a minimal read. It reports nothing when no
// backend is configured; store-configured covers that case.
func (a *Agent) checkStoreConnectivity(ctx context.Context) ([]Issue, error) {
	if !a.store.Configured() {
		return nil, nil
	}

	if a.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.StoreTimeout)
		defer cancel()
	}

	start := time.Now()
	err := a.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return []Issue{newIssue(SeverityError, CategorySystem, TitleStoreConnectionFails,
			fmt.Sprintf("Database did not answer a trivial read: %v", err), nil, nil)}, nil
	}
	if latency >= a.cfg.SlowStoreThreshold {
		return []Issue{newIssue(SeverityWarning, CategorySystem, TitleStoreSlow,
			fmt.Sprintf("Database answered in %dms (threshold %dms)",
				latency.Milliseconds(), a.cfg.SlowStoreThreshold.Milliseconds()), nil, nil)}, nil
	}
	return nil, nil
}
