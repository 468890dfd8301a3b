package gate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/session"
)

// View is a mounted screen.
type View interface {
	Title() string
	Render() string
	Close()
}

// Factory builds the view for a route. It is only called when the gate
// decided to render that route.
type Factory func(snap session.Snapshot, route Route) View

// SessionSource is the part of the session machine the router reads.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Mount(ctx context.Context) session.Outcome
}

// Views maps route paths to factories. Loading and NotFound cover the
// non-render decisions.
type Views struct {
	Routes   map[string]Factory
	Loading  Factory
	NotFound Factory
}

// Router is the navigator. Every navigation re-reads the session; nothing
// about a previous decision is cached.
type Router struct {
	session SessionSource
	views   Views
	logger  zerolog.Logger

	mu       sync.Mutex
	path     string
	decision Decision
	mounted  View
	onChange []func(path string, v View)

	unsubscribe func()
}

// NewRouter creates a router that re-evaluates the mounted route whenever
// the session changes.
func NewRouter(src SessionSource, views Views, logger zerolog.Logger) *Router {
	r := &Router{session: src, views: views, logger: logger}
	r.unsubscribe = src.Subscribe(func(session.Snapshot) { r.revalidate() })
	return r
}

// OnChange registers fn to run after every mount.
func (r *Router) OnChange(fn func(path string, v View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Navigate applies the gate to path and mounts the result. A redirect is
// followed and the final location is returned with its decision.
func (r *Router) Navigate(path string) (string, Decision) {
	r.mu.Lock()
	final, d, v, hooks := r.navigateLocked(path, false)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(final, v)
	}
	return final, d
}

// Reload is a hard navigation: the mounted view is discarded, the session is
// mounted from scratch and path is opened against the fresh session.
func (r *Router) Reload(ctx context.Context, path string) (string, Decision) {
	r.mu.Lock()
	if r.mounted != nil {
		r.mounted.Close()
		r.mounted = nil
	}
	r.path, r.decision = "", Decision{}
	r.mu.Unlock()

	r.session.Mount(ctx)
	return r.Navigate(path)
}

// Current returns the mounted location, its decision and view.
func (r *Router) Current() (string, Decision, View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path, r.decision, r.mounted
}

func (r *Router) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mounted != nil {
		r.mounted.Close()
		r.mounted = nil
	}
}

// revalidate re-runs the gate for the mounted location after a session
// change. The view is only replaced when the decision changed.
func (r *Router) revalidate() {
	r.mu.Lock()
	if r.path == "" {
		r.mu.Unlock()
		return
	}
	final, _, v, hooks := r.navigateLocked(r.path, true)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(final, v)
	}
}

func (r *Router) navigateLocked(path string, keepSame bool) (string, Decision, View, []func(string, View)) {
	path = Normalize(path)
	for hop := 0; ; hop++ {
		snap := r.session.Snapshot()
		d := Decide(snap.State, path)
		if d.Action == Redirect && hop < 3 {
			r.logger.Debug().Str("from", path).Str("to", d.Location).Msg("redirect")
			path = d.Location
			continue
		}

		if keepSame && r.mounted != nil && path == r.path && d.Action == r.decision.Action {
			return r.path, r.decision, r.mounted, nil
		}

		if r.mounted != nil {
			r.mounted.Close()
			r.mounted = nil
		}
		r.path, r.decision = path, d
		r.mounted = r.build(snap, d)
		r.logger.Debug().Str("path", path).Str("action", d.Action.String()).Msg("navigated")
		return path, d, r.mounted, append([]func(string, View){}, r.onChange...)
	}
}

func (r *Router) build(snap session.Snapshot, d Decision) View {
	var f Factory
	switch d.Action {
	case Render:
		f = r.views.Routes[d.Route.Path]
	case Loading:
		f = r.views.Loading
	case NotFound:
		f = r.views.NotFound
	}
	if f == nil {
		return nil
	}
	return f(snap, d.Route)
}
