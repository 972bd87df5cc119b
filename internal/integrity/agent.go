package integrity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opsdesk/integrity/internal/storage"
)

// Agent runs the check catalog against a storage gateway and applies the
// fixes bound to the issues it finds.
//
// An Agent holds no per-sweep state; concurrent sweeps are safe but may
// observe each other's fixes.
type Agent struct {
	store    storage.Gateway
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	registry *Registry
	limiter  *rate.Limiter
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the wall clock used by time-based checks.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

// New builds an agent over store with the built-in check catalog registered.
func New(store storage.Gateway, opts ...Option) (*Agent, error) {
	if store == nil {
		return nil, fmt.Errorf("storage gateway is required")
	}

	a := &Agent{
		store:    store,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		now:      time.Now,
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid integrity config: %w", err)
	}
	if a.cfg.FixRate > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(a.cfg.FixRate), 1)
	}

	for _, check := range a.catalog() {
		if err := a.registry.Register(check); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Register adds a check after the built-in catalog.
func (a *Agent) Register(check Check) error {
	return a.registry.Register(check)
}

// Checks lists every registered check in sweep order.
func (a *Agent) Checks() []CheckInfo {
	checks := a.registry.List()
	out := make([]CheckInfo, 0, len(checks))
	for _, c := range checks {
		out = append(out, CheckInfo{
			Key:      c.Key(),
			Name:     c.Name(),
			Category: c.Category(),
			Enabled:  !a.cfg.disabled(c.Key()),
		})
	}
	return out
}

// RunAll executes every enabled check in catalog order and aggregates the
// result. A check that fails is logged, listed in ChecksFailed and skipped;
// it never aborts the sweep.
func (a *Agent) RunAll(ctx context.Context) *CheckResult {
	started := time.Now()
	result := &CheckResult{
		Timestamp:    a.now(),
		Issues:       []Issue{},
		ChecksRun:    []string{},
		ChecksFailed: []CheckFailure{},
	}

	for _, check := range a.registry.List() {
		if a.cfg.disabled(check.Key()) {
			a.logger.Debug("check disabled", zap.String("check", check.Key()))
			continue
		}

		issues, err := a.run(ctx, check)
		if err != nil {
			a.logger.Warn("check failed",
				zap.String("check", check.Key()),
				zap.Error(err))
			result.ChecksFailed = append(result.ChecksFailed, CheckFailure{
				Key:   check.Key(),
				Name:  check.Name(),
				Error: err.Error(),
				Err:   err,
			})
			continue
		}

		a.logger.Debug("check completed",
			zap.String("check", check.Key()),
			zap.Int("issues", len(issues)))
		result.Issues = append(result.Issues, issues...)
		result.ChecksRun = append(result.ChecksRun, check.Name())
	}

	result.Recount()
	result.DurationMillis = time.Since(started).Milliseconds()

	a.logger.Info("integrity sweep finished",
		zap.Int("issues", result.TotalIssues),
		zap.Int("errors", result.Errors),
		zap.Int("warnings", result.Warnings),
		zap.Int("checks_failed", len(result.ChecksFailed)),
		zap.Int64("duration_ms", result.DurationMillis))
	return result
}

// RunOne executes a single check by key, whether or not it is disabled.
// An unknown key yields *UnknownCheckError; a failing check returns its error.
func (a *Agent) RunOne(ctx context.Context, key string) ([]Issue, error) {
	check, ok := a.registry.Get(key)
	if !ok {
		return nil, &UnknownCheckError{Key: key}
	}

	issues, err := a.run(ctx, check)
	if err != nil {
		a.logger.Warn("check failed", zap.String("check", key), zap.Error(err))
		return nil, err
	}
	if issues == nil {
		issues = []Issue{}
	}
	return issues, nil
}

// run executes a check, converting a panic into an error and stamping the
// check key on every issue.
func (a *Agent) run(ctx context.Context, check Check) (issues []Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = fmt.Errorf("check %s panicked: %v", check.Key(), r)
		}
	}()

	issues, err = check.Run(ctx)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		issues[i].Check = check.Key()
	}
	return issues, nil
}
