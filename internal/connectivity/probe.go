// Package connectivity reports whether the remote store is reachable and
// notifies listeners when it becomes reachable again.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Probe is the online/offline signal consumed by the offline manager.
type Probe interface {
	IsOnline() bool
	// OnOnline registers fn to run on every offline→online transition.
	// The returned func unregisters it.
	OnOnline(fn func()) (cancel func())
}

// listeners is a registry of transition callbacks shared by probe implementations.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (l *listeners) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) fire() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Watcher polls a health check and tracks reachability.
type Watcher struct {
	check    func(context.Context) error
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	online atomic.Bool
	subs   listeners
}

// NewWatcher creates a watcher. It starts offline until the first check
// succeeds, so the first successful check counts as a transition.
func NewWatcher(check func(context.Context) error, interval time.Duration, log *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		check:    check,
		interval: interval,
		timeout:  5 * time.Second,
		log:      log,
	}
}

// IsOnline returns the result of the latest check.
func (w *Watcher) IsOnline() bool {
	return w.online.Load()
}

// OnOnline registers a transition callback.
func (w *Watcher) OnOnline(fn func()) func() {
	return w.subs.add(fn)
}

// CheckNow runs one check, records the result and fires callbacks on an
// offline→online transition. Callbacks run on the caller's goroutine.
func (w *Watcher) CheckNow(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.check(cctx)
	cancel()

	up := err == nil
	was := w.online.Swap(up)
	switch {
	case up && !was:
		w.log.Info("connectivity: online")
		w.subs.fire()
	case !up && was:
		w.log.Warn("connectivity: offline", "err", err)
	case !up:
		w.log.Debug("connectivity: still offline", "err", err)
	}
	return up
}

// Run checks immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.CheckNow(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckNow(ctx)
		}
	}
}

// Static is a probe whose state is set by hand. Set(true) from offline fires
// the transition callbacks synchronously.
type Static struct {
	online atomic.Bool
	subs   listeners
}

// NewStatic creates a probe in the given state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) IsOnline() bool { return s.online.Load() }

func (s *Static) OnOnline(fn func()) func() { return s.subs.add(fn) }

// Set changes the state.
func (s *Static) Set(online bool) {
	if was := s.online.Swap(online); online && !was {
		s.subs.fire()
	}
}
