// Package stream implements a shared, replaying observable value.
package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/starford/daymark/internal/apperr"
)

// Source starts an upstream producer. It sends values on the first channel
// and failed attempts to produce one on the second, and must close both once
// ctx is cancelled. A nil error channel means the upstream never fails.
type Source[T any] func(ctx context.Context) (<-chan T, <-chan error)

type awaitResult[T any] struct {
	v   T
	err error
}

type awaitReq[T any] struct {
	resp chan awaitResult[T]
}

// Shared caches the latest value of an upstream Source and fans it out to
// subscribers.
//
// The upstream runs only while someone is interested: it starts with the first
// subscriber (or Await call) and is cancelled once the last subscriber has been
// gone for the grace period, so quick resubscription reuses the running
// upstream. The cached value survives upstream teardown.
//
// Concurrency model: a single internal goroutine owns all mutable state
// (subscribers, latest value, upstream handle). Public methods talk to it over
// channels, so no mutexes are required. Each subscriber channel holds at most
// one pending value; a slow subscriber sees only the newest one.
//
// An upstream error reported before the first value of a run fails pending
// and later Await calls fast, until a value arrives or the upstream restarts.
// Subscribers keep the cached value.
type Shared[T any] struct {
	source Source[T]
	grace  time.Duration

	subscribeCh   chan chan T
	unsubscribeCh chan chan T
	awaitCh       chan awaitReq[T]
	cancelAwaitCh chan awaitReq[T]
	valueReqCh    chan chan T

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewShared creates a Shared value that starts as initial.
func NewShared[T any](source Source[T], initial T, grace time.Duration) *Shared[T] {
	if grace < 0 {
		grace = 0
	}
	s := &Shared[T]{
		source:        source,
		grace:         grace,
		subscribeCh:   make(chan chan T),
		unsubscribeCh: make(chan chan T),
		awaitCh:       make(chan awaitReq[T]),
		cancelAwaitCh: make(chan awaitReq[T]),
		valueReqCh:    make(chan chan T),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go s.run(initial)
	return s
}

func (s *Shared[T]) run(latest T) {
	defer close(s.stopped)

	clients := make(map[chan T]struct{})
	waiters := make(map[awaitReq[T]]struct{})

	var (
		upstream   <-chan T
		upErrs     <-chan error
		upErr      error
		cancelUp   context.CancelFunc
		live       bool
		graceTimer *time.Timer
		graceCh    <-chan time.Time
	)

	startUpstream := func() {
		if graceTimer != nil {
			graceTimer.Stop()
			graceTimer, graceCh = nil, nil
		}
		if upstream != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		upstream, upErrs = s.source(ctx)
		cancelUp, upErr = cancel, nil
	}

	stopUpstream := func() {
		if cancelUp != nil {
			cancelUp()
		}
		upstream, upErrs, cancelUp, live = nil, nil, nil, false
	}

	idle := func() {
		if len(clients) > 0 || len(waiters) > 0 || upstream == nil || graceTimer != nil {
			return
		}
		graceTimer = time.NewTimer(s.grace)
		graceCh = graceTimer.C
	}

	for {
		select {
		case <-s.stopCh:
			if graceTimer != nil {
				graceTimer.Stop()
			}
			stopUpstream()
			for ch := range clients {
				close(ch)
			}
			for w := range waiters {
				close(w.resp)
			}
			return

		case ch := <-s.subscribeCh:
			clients[ch] = struct{}{}
			ch <- latest
			startUpstream()

		case ch := <-s.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}
			idle()

		case w := <-s.awaitCh:
			if live || (upErr != nil && upstream != nil) {
				w.resp <- awaitResult[T]{v: latest, err: upErr}
				close(w.resp)
				break
			}
			waiters[w] = struct{}{}
			startUpstream()

		case w := <-s.cancelAwaitCh:
			if _, ok := waiters[w]; ok {
				delete(waiters, w)
				close(w.resp)
			}
			idle()

		case v, ok := <-upstream:
			if !ok {
				// Upstream finished on its own; the next subscriber restarts it.
				stopUpstream()
				break
			}
			latest, live, upErr = v, true, nil
			for ch := range clients {
				offer(ch, v)
			}
			for w := range waiters {
				w.resp <- awaitResult[T]{v: v}
				close(w.resp)
				delete(waiters, w)
			}
			idle()

		case err, ok := <-upErrs:
			if !ok {
				upErrs = nil
				break
			}
			if live {
				break
			}
			upErr = err
			for w := range waiters {
				w.resp <- awaitResult[T]{err: err}
				close(w.resp)
				delete(waiters, w)
			}
			idle()

		case <-graceCh:
			graceTimer, graceCh = nil, nil
			if len(clients) == 0 && len(waiters) == 0 {
				stopUpstream()
			}

		case resp := <-s.valueReqCh:
			resp <- latest
		}
	}
}

// offer delivers v to a one-slot channel, replacing any value still pending.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Close stops the upstream and closes every subscriber channel.
func (s *Shared[T]) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}

// Subscribe returns a channel that immediately receives the latest value and
// then every subsequent one. The channel is closed by Unsubscribe or Close.
func (s *Shared[T]) Subscribe() chan T {
	ch := make(chan T, 1)
	if s.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case s.subscribeCh <- ch:
	case <-s.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Shared[T]) Unsubscribe(ch chan T) {
	if s.closed.Load() {
		return
	}
	select {
	case s.unsubscribeCh <- ch:
	case <-s.stopped:
	}
}

// Value returns the latest cached value without subscribing.
func (s *Shared[T]) Value() T {
	var zero T
	if s.closed.Load() {
		return zero
	}
	resp := make(chan T, 1)
	select {
	case s.valueReqCh <- resp:
	case <-s.stopped:
		return zero
	}
	select {
	case v := <-resp:
		return v
	case <-s.stopped:
		return zero
	}
}

// Await returns a value produced by a running upstream, starting it if
// needed. Unlike Value it never returns a stale cache from before the
// upstream was last started. It returns the upstream's error when the current
// run has failed before producing a value, and apperr.ErrClosed after Close.
func (s *Shared[T]) Await(ctx context.Context) (T, error) {
	var zero T
	req := awaitReq[T]{resp: make(chan awaitResult[T], 1)}
	if s.closed.Load() {
		return zero, apperr.ErrClosed
	}
	select {
	case s.awaitCh <- req:
	case <-s.stopped:
		return zero, apperr.ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r, ok := <-req.resp:
		if !ok {
			return zero, apperr.ErrClosed
		}
		if r.err != nil {
			return zero, r.err
		}
		return r.v, nil
	case <-ctx.Done():
		select {
		case s.cancelAwaitCh <- req:
		case <-s.stopped:
		}
		return zero, ctx.Err()
	}
}
