package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a named unit of background work. Run receives a context that is
// cancelled when the pool shuts down, so long-running maintenance passes
// can bail out mid-flight.
type Job struct {
	Name string
	Run  func(context.Context) error
}

// Pool executes jobs on a fixed set of goroutines behind a bounded queue.
// Submission never blocks: when the queue is full the job is rejected and
// the caller decides whether to drop it or retry on a later tick.
type Pool struct {
	name    string
	queue   chan Job
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	closed    atomic.Bool
	inFlight  atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// New starts a pool with the given worker count and queue depth. Non-positive
// values fall back to a single worker and a depth of 16.
func New(name string, workers, depth int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		queue:  make(chan Job, depth),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run(i)
	}

	logger.Info("Worker pool started",
		zap.String("pool", name),
		zap.Int("workers", workers),
		zap.Int("queue_depth", depth))
	return p
}

func (p *Pool) run(id int) {
	defer p.workers.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.queue:
			p.inFlight.Add(1)
			start := time.Now()
			err := p.invoke(job)
			p.inFlight.Add(-1)

			if err != nil {
				p.failed.Add(1)
				p.logger.Error("Job failed",
					zap.String("pool", p.name),
					zap.Int("worker", id),
					zap.String("job", job.Name),
					zap.Duration("took", time.Since(start)),
					zap.Error(err))
				continue
			}
			p.completed.Add(1)
			p.logger.Debug("Job done",
				zap.String("pool", p.name),
				zap.Int("worker", id),
				zap.String("job", job.Name),
				zap.Duration("took", time.Since(start)))
		}
	}
}

// invoke converts a panic into an error so one bad job cannot take down a
// worker goroutine.
func (p *Pool) invoke(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Name, r)
		}
	}()
	return job.Run(p.ctx)
}

// TrySubmit enqueues the job if there is room. It returns false once the
// pool is shut down or while the queue is full.
func (p *Pool) TrySubmit(job Job) bool {
	if p.closed.Load() {
		p.rejected.Add(1)
		return false
	}
	select {
	case p.queue <- job:
		p.submitted.Add(1)
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Shutdown stops accepting jobs, cancels the worker context, and waits up
// to timeout for in-flight jobs to return. Queued jobs that never started
// are discarded.
func (p *Pool) Shutdown(timeout time.Duration) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped", zap.String("pool", p.name))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pool %q: %d jobs still in flight after %v",
			p.name, p.inFlight.Load(), timeout)
	}
}

// Snapshot reports pool counters for stats surfaces and tests.
type Snapshot struct {
	Name      string
	InFlight  int
	Queued    int
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
}

func (p *Pool) Snapshot() Snapshot {
	return Snapshot{
		Name:      p.name,
		InFlight:  int(p.inFlight.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
