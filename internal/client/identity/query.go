// Package identity exposes the signed-in user as a cached query keyed on
// /api/auth/me. It holds no session state of its own: it mirrors the
// session machine and asks it to refresh on mount, focus and reconnect.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/session"
)

// Data is the three-valued query payload: undefined before the first
// answer, null when there is no session, a user otherwise.
type Data struct {
	Fetched bool
	User    *apiclient.User
}

func (d Data) IsUndefined() bool { return !d.Fetched }
func (d Data) IsNull() bool      { return d.Fetched && d.User == nil }

func (d Data) String() string {
	switch {
	case d.IsUndefined():
		return "undefined"
	case d.IsNull():
		return "null"
	default:
		return d.User.Username
	}
}

// Result is the observable state of the query.
type Result struct {
	Data      Data
	IsLoading bool
	// Error is the last refresh's transient failure, nil once a refresh
	// gets an answer.
	Error     error
	UpdatedAt time.Time
}

// Refresher is the part of the session machine the query drives.
type Refresher interface {
	Refresh(ctx context.Context, trigger session.Trigger) session.Outcome
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Snapshot() session.Snapshot
}

type Query struct {
	machine Refresher
	logger  zerolog.Logger
	now     func() time.Time

	mu          sync.Mutex
	result      Result
	lastVersion uint64
	inflight    int
	unsubscribe func()
}

// NewQuery starts mirroring m. Call Close to detach.
func NewQuery(m Refresher, logger zerolog.Logger) *Query {
	q := &Query{machine: m, logger: logger, now: time.Now}
	q.unsubscribe = m.Subscribe(q.observe)
	q.observe(m.Snapshot())
	return q
}

// Key is the cache key of the query.
func (q *Query) Key() string { return apiclient.MePath }

func (q *Query) Result() Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Trigger refetches unconditionally, once. There is no freshness window and
// no retry; a failed attempt waits for the next trigger.
func (q *Query) Trigger(ctx context.Context, t session.Trigger) Result {
	q.mu.Lock()
	q.inflight++
	q.result.IsLoading = true
	q.mu.Unlock()

	out := q.machine.Refresh(ctx, t)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.result.IsLoading = q.inflight > 0 || q.machine.Snapshot().State == session.Resolving
	switch out.Kind {
	case session.Transient:
		q.result.Error = out.Err
		q.logger.Debug().Str("trigger", string(t)).Err(out.Err).Msg("identity refetch failed")
	default:
		q.result.Error = nil
		q.result.UpdatedAt = q.now()
	}
	return q.result
}

// Close stops mirroring the machine.
func (q *Query) Close() {
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
}

func (q *Query) observe(s session.Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s.Version < q.lastVersion {
		return
	}
	q.lastVersion = s.Version

	switch s.State {
	case session.Resolving:
		q.result.IsLoading = true
	case session.Authenticated:
		q.result.Data = Data{Fetched: true, User: s.User}
		q.result.IsLoading = q.inflight > 0
	case session.Anonymous:
		q.result.Data = Data{Fetched: true}
		q.result.IsLoading = q.inflight > 0
	}
}
