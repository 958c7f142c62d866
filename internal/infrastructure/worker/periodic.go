package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// Stats summarizes a periodic worker's runs
type Stats struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	Skipped   int       `json:"skipped"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// job is one pass of a periodic worker
type job func(ctx context.Context) error

// periodic runs a job on a ticker. With a lease configured only one
// process runs each tick; the others skip it.
type periodic struct {
	name     string
	interval time.Duration
	run      job
	lease    port.Lease
	leaseTTL time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	stats     Stats
}

func newPeriodic(name string, interval time.Duration, run job, lease port.Lease, leaseTTL time.Duration, logger *zap.Logger) *periodic {
	if leaseTTL <= 0 {
		leaseTTL = interval
	}
	return &periodic{
		name:     name,
		interval: interval,
		run:      run,
		lease:    lease,
		leaseTTL: leaseTTL,
		logger:   logger,
		stats:    Stats{Name: name},
	}
}

// Start begins the polling loop in the background
func (p *periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("%s is already running", p.name)
	}
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", p.name)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.isRunning = true
	p.stats.Running = true

	p.logger.Info("Worker started",
		zap.String("worker_name", p.name),
		zap.Duration("interval", p.interval))

	go p.loop(ctx, p.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish
func (p *periodic) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.stats.Running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	s := p.Stats()
	p.logger.Info("Worker stopped",
		zap.String("worker_name", p.name),
		zap.Int("runs", s.Runs),
		zap.Int("failures", s.Failures))
	return nil
}

// Name returns the worker name for identification
func (p *periodic) Name() string {
	return p.name
}

// Stats returns a snapshot of run statistics
func (p *periodic) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Run immediately on start
	_ = p.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single pass, honoring the lease when one is set
func (p *periodic) RunOnce(ctx context.Context) error {
	if p.lease != nil {
		release, ok, err := p.lease.Acquire(ctx, p.name, p.leaseTTL)
		if err != nil {
			p.record(err)
			p.logger.Error("Failed to acquire lease", zap.String("worker_name", p.name), zap.Error(err))
			return err
		}
		if !ok {
			p.mu.Lock()
			p.stats.Skipped++
			p.mu.Unlock()
			return nil
		}
		defer release()
	}

	err := p.run(ctx)
	p.record(err)
	if err != nil && ctx.Err() == nil {
		p.logger.Error("Worker pass failed", zap.String("worker_name", p.name), zap.Error(err))
	}
	return err
}

func (p *periodic) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Runs++
	p.stats.LastRun = time.Now().UTC()
	if err != nil {
		p.stats.Failures++
		p.stats.LastError = err.Error()
	} else {
		p.stats.LastError = ""
	}
}
