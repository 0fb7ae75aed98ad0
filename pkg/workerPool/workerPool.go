// Package workerpool runs fire-and-forget background jobs on a fixed set
// of workers. The wiki uses it for best-effort work like feeding the
// search index after an edit; a failed job is logged, never retried, and
// never fails the operation that queued it.
package workerpool

import (
	"errors"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("workerpool: queue full")
	ErrClosed    = errors.New("workerpool: pool closed")
)

type Config struct {
	// WorkerCount defaults to the number of CPUs.
	WorkerCount int
	// Buffer is the queue capacity, default 1024. Submit never blocks;
	// a full queue rejects the job instead.
	Buffer int
	Logger *logrus.Logger
}

// Job is one unit of background work. The name only shows up in logs.
type Job struct {
	Name string
	Run  func() error
}

type Pool struct {
	jobs    chan Job
	log     *logrus.Logger
	wg      sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(config Config) *Pool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}
	if config.Buffer < 1 {
		config.Buffer = 1024
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	p := &Pool{
		jobs: make(chan Job, config.Buffer),
		log:  config.Logger,
	}
	for i := 0; i < config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := job.Run(); err != nil {
			p.log.WithFields(logrus.Fields{
				"job":   job.Name,
				"error": err,
			}).Warn("Background job failed")
		}
		p.pending.Done()
	}
}

// Submit queues a job without blocking. ErrQueueFull when the buffer is
// exhausted, ErrClosed after Close.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	p.pending.Add(1)
	select {
	case p.jobs <- job:
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

// Drain blocks until every job queued so far has finished.
func (p *Pool) Drain() {
	p.pending.Wait()
}

// Close drains the queue and stops the workers. Submitting after Close
// fails; closing twice is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
