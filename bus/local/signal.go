package local

import (
	"context"
	"errors"
	"sync"
)

// signal is a broadcast wakeup. Waiters grab the current channel before
// checking state; broadcast closes it and installs a fresh one.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *signal) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}

// errStop ends a subscription without reporting an error.
var errStop = errors.New("local: stop")

// subscription runs one reader goroutine.
type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (b *Bus) spawn(ctx context.Context, run func(ctx context.Context) error) *subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{cancel: cancel, done: make(chan struct{})}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(s.done)
		defer cancel()

		go func() {
			select {
			case <-b.closed:
				cancel()
			case <-ctx.Done():
			}
		}()

		err := run(ctx)
		if errors.Is(err, errStop) || errors.Is(err, context.Canceled) {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
	return s
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// call is a subscription addressed by request id.
type call struct {
	*subscription
	id string
}

func (c *call) ID() string {
	return c.id
}
