package lifecycle

import (
	"context"
	"sync"
	"time"
)

// outbox runs side effects (mirror writes, notifications) one at a time in
// the order they were queued, off the controller's lock.
type outbox struct {
	timeout time.Duration

	mu      sync.Mutex
	queue   []func(ctx context.Context)
	running bool
	idle    chan struct{}
}

func newOutbox(timeout time.Duration) *outbox {
	return &outbox{timeout: timeout}
}

func (o *outbox) add(job func(ctx context.Context)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.queue = append(o.queue, job)
	if !o.running {
		o.running = true
		o.idle = make(chan struct{})
		go o.drain(o.idle)
	}
}

func (o *outbox) drain(idle chan struct{}) {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.running = false
			o.mu.Unlock()
			close(idle)
			return
		}
		job := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		job(ctx)
		cancel()
	}
}

// wait blocks until every queued job has run
func (o *outbox) wait() {
	for {
		o.mu.Lock()
		idle, running := o.idle, o.running
		o.mu.Unlock()
		if !running {
			return
		}
		<-idle
	}
}
