package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("job queue closed")

// Local runs jobs on a fixed number of goroutines fed by a buffered
// channel.  It is used when no broker is configured.
type Local struct {
	jobs   chan MigrationJob
	handle Handler
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLocal starts workers goroutines.
func NewLocal(workers, buffer int, handle Handler, log zerolog.Logger) *Local {
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		jobs:   make(chan MigrationJob, buffer),
		handle: handle,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.work()
	}
	return l
}

func (l *Local) work() {
	defer l.wg.Done()
	for job := range l.jobs {
		if err := l.handle(l.ctx, job); err != nil {
			l.log.Error().Err(err).Uint64("log_id", job.LogID).Msg("migration job failed")
		}
	}
}

// Submit enqueues job, blocking while the buffer is full.
func (l *Local) Submit(ctx context.Context, job MigrationJob) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish or for ctx
// to expire, whichever comes first.
func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.jobs)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}
