package enrichment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voicemail-recorder/internal/metrics"
)

// Processor runs one enrichment job to completion.
type Processor interface {
	Process(ctx context.Context, job Job) (string, bool)
}

// Limiter caps in-flight jobs across processes. Acquire reports false when
// the cap is reached.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type PoolConfig struct {
	Workers   int
	QueueSize int

	// Limiter is optional. LimiterRetry is how long a worker waits before
	// asking again after the cap was reached.
	Limiter      Limiter
	LimiterRetry time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.QueueSize < 0 {
		out.QueueSize = 0
	}
	if out.LimiterRetry <= 0 {
		out.LimiterRetry = time.Second
	}
	return out
}

// Pool is a fixed set of workers reading from a bounded queue. Submit never
// blocks the webhook path: a full queue is rejected with ErrQueueFull.
type Pool struct {
	proc Processor
	cfg  PoolConfig
	log  *slog.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(proc Processor, cfg PoolConfig, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		proc:   proc,
		cfg:    cfg,
		log:    log,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake, cancels in-flight jobs and waits for workers to
// exit or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.SetQueueDepth(len(p.jobs))
		if p.ctx.Err() != nil {
			p.log.Warn("enrichment_job_dropped", "recording_id", job.RecordingID, "reason", "shutdown")
			continue
		}
		p.run(id, job)
	}
}

func (p *Pool) run(worker int, job Job) {
	log := p.log.With("worker", worker, "recording_id", job.RecordingID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("enrichment_job_panic", "panic", r)
		}
	}()

	if p.cfg.Limiter != nil {
		if !p.acquire(log) {
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := p.cfg.Limiter.Release(ctx); err != nil {
				log.Warn("enrichment_cap_release_failed", "err", err)
			}
		}()
	}

	url, ok := p.proc.Process(p.ctx, job)
	log.Info("enrichment_finished", "ok", ok, "url", url)
}

// acquire waits for a global slot. It gives up only on shutdown or a
// limiter error.
func (p *Pool) acquire(log *slog.Logger) bool {
	for {
		ok, err := p.cfg.Limiter.Acquire(p.ctx)
		if err != nil {
			log.Error("enrichment_cap_acquire_failed", "err", err)
			return false
		}
		if ok {
			return true
		}
		if err := sleep(p.ctx, p.cfg.LimiterRetry); err != nil {
			log.Warn("enrichment_job_dropped", "reason", "shutdown")
			return false
		}
	}
}
