package class1

import (
	"context"
	"sync"
	"time"
)

// blockWriter commits received page data on a background goroutine so that
// slow storage never holds up a T.30 response. Jobs run in submission order.
type blockWriter struct {
	jobs chan func() error
	done chan struct{}

	mu      sync.Mutex
	pending int
	err     error
	closed  bool
	wg      sync.WaitGroup
}

func newBlockWriter() *blockWriter {
	w := &blockWriter{
		jobs: make(chan func() error, 64),
		done: make(chan struct{}, 1),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *blockWriter) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		w.mu.Lock()
		failed := w.err != nil
		w.mu.Unlock()

		var err error
		if !failed {
			err = job()
		}

		w.mu.Lock()
		if err != nil && w.err == nil {
			w.err = err
		}
		w.pending--
		w.mu.Unlock()

		select {
		case w.done <- struct{}{}:
		default:
		}
	}
}

// Submit queues a job. After the first failure later jobs are skipped.
// Submit and Close are called from the engine goroutine only.
func (w *blockWriter) Submit(job func() error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending++
	w.mu.Unlock()
	w.jobs <- job
}

// Busy reports whether jobs are still queued or running.
func (w *blockWriter) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending > 0
}

// Err returns the first job error.
func (w *blockWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Wait blocks until the writer is idle or d elapses and reports whether it
// is idle.
func (w *blockWriter) Wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for w.Busy() {
		select {
		case <-w.done:
		case <-timer.C:
			return !w.Busy()
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Close waits for queued jobs and returns the first error.
func (w *blockWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.Err()
	}
	w.closed = true
	w.mu.Unlock()
	close(w.jobs)
	w.wg.Wait()
	return w.Err()
}
