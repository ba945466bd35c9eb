package console

import (
	"context"
	"sync"
	"time"
)

// Poller runs one refresh function on a fixed interval in a single owned
// goroutine, so ticks never overlap. Stop cancels the in-flight call and
// waits for the goroutine to exit.
type Poller struct {
	name     string
	interval time.Duration
	fn       func(context.Context)

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewPoller creates a stopped poller.
func NewPoller(name string, interval time.Duration, fn func(context.Context)) *Poller {
	return &Poller{name: name, interval: interval, fn: fn}
}

// Name returns the poller name.
func (p *Poller) Name() string { return p.name }

// Interval returns the tick interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// Start launches the loop. The first refresh runs immediately. Calling
// Start on a running poller does nothing.
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(parent)
	p.stop = stop
	p.done = done
	p.cancel = cancel

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.fn(ctx)
		for {
			select {
			case <-ticker.C:
				p.fn(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for that run's goroutine to exit. A
// Start racing with Stop launches a fresh run with its own done channel.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop, done, cancel := p.stop, p.done, p.cancel
	p.stop, p.done, p.cancel = nil, nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	cancel()
	<-done
}
