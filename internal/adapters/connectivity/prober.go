package connectivity

import (
	"context"
	"io"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// Defaults for probing.
const (
	DefaultProbeInterval    = 5 * time.Second
	DefaultFailureThreshold = 2
)

// HealthChecker is implemented by the API client.
type HealthChecker interface {
	Health(context.Context) error
}

// Logger is the subset of the runtime logger the prober uses.
type Logger interface {
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	Interval         time.Duration
	FailureThreshold int
	Logger           Logger
}

// Prober polls the API health endpoint and derives connectivity from the results.
// It goes offline after FailureThreshold consecutive failures and back online after one success.
type Prober struct {
	*hub
	checker   HealthChecker
	interval  time.Duration
	threshold int
	logger    Logger

	stateMu  sync.Mutex
	failures int
	lastErr  error
	lastAt   time.Time
}

// NewProber constructs a prober that starts online.
func NewProber(checker HealthChecker, cfg ProberConfig) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &Prober{
		hub:       newHub(true),
		checker:   checker,
		interval:  cfg.Interval,
		threshold: cfg.FailureThreshold,
		logger:    logger,
	}
}

// Start launches the probe loop. It returns immediately.
func (p *Prober) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			p.Probe(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Probe runs one health check and applies its result.
func (p *Prober) Probe(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	err := p.checker.Health(checkCtx)
	if ctx.Err() != nil {
		return
	}

	p.stateMu.Lock()
	p.lastAt = time.Now()
	p.lastErr = err
	if err != nil {
		p.failures++
	} else {
		p.failures = 0
	}
	failures := p.failures
	p.stateMu.Unlock()

	switch {
	case err == nil:
		if p.set(true) {
			p.logger.Info("api reachable again")
		}
	case failures >= p.threshold:
		if p.set(false) {
			p.logger.Warn("api unreachable; switching to offline mode", "failures", failures, "err", err)
		}
	}
}

// ConsecutiveFailures returns the current failure streak.
func (p *Prober) ConsecutiveFailures() int {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.failures
}

// LastError returns the most recent probe error, or nil after a success.
func (p *Prober) LastError() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.lastErr
}
