package identity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const probeTimeout = 3 * time.Second

// Pinger checks whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityWatcher probes the backend on an interval and calls its
// reconnect handlers when the backend comes back after being unreachable.
type ConnectivityWatcher struct {
	pinger   Pinger
	interval time.Duration
	logger   zerolog.Logger

	mu          sync.Mutex
	online      bool
	onReconnect []func()
}

// NewConnectivityWatcher assumes the backend starts reachable; use SetOnline
// to seed a known state.
func NewConnectivityWatcher(p Pinger, interval time.Duration, logger zerolog.Logger) *ConnectivityWatcher {
	return &ConnectivityWatcher{pinger: p, interval: interval, logger: logger, online: true}
}

func (w *ConnectivityWatcher) OnReconnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReconnect = append(w.onReconnect, fn)
}

func (w *ConnectivityWatcher) SetOnline(online bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.online = online
}

func (w *ConnectivityWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Run probes until ctx is done. A zero interval disables probing.
func (w *ConnectivityWatcher) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe and reports whether it observed a reconnect.
func (w *ConnectivityWatcher) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := w.pinger.Ping(pctx)
	cancel()

	w.mu.Lock()
	was := w.online
	w.online = err == nil
	handlers := append([]func(){}, w.onReconnect...)
	w.mu.Unlock()

	switch {
	case err != nil && was:
		w.logger.Info().Err(err).Msg("backend unreachable, switched to offline")
	case err == nil && !was:
		w.logger.Info().Msg("backend reachable again")
		for _, fn := range handlers {
			fn()
		}
		return true
	}
	return false
}
