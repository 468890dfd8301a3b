package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medcabinet/medcabinet/internal/client/apiclient"
	"github.com/medcabinet/medcabinet/internal/client/credentials"
	"github.com/medcabinet/medcabinet/internal/client/session"
)

// fakeSession is a SessionSource driven by the test.
type fakeSession struct {
	mu      sync.Mutex
	snap    session.Snapshot
	subs    []func(session.Snapshot)
	mounts  int
	onMount func() session.State
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Subscribe(fn func(session.Snapshot)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.subs = nil
		f.mu.Unlock()
	}
}

func (f *fakeSession) Mount(context.Context) session.Outcome {
	f.mu.Lock()
	f.mounts++
	hook := f.onMount
	f.mu.Unlock()
	if hook != nil {
		f.set(hook())
	}
	return session.Outcome{}
}

func (f *fakeSession) set(state session.State) {
	f.mu.Lock()
	f.snap.State = state
	f.snap.Version++
	if state == session.Authenticated {
		f.snap.User = &apiclient.User{ID: 1, Username: "drsmith", Name: "Dr Smith"}
	} else {
		f.snap.User = nil
	}
	snap := f.snap
	subs := append([]func(session.Snapshot){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

type stubView struct {
	title  string
	closed atomic.Bool
}

func (v *stubView) Title() string  { return v.title }
func (v *stubView) Render() string { return v.title }
func (v *stubView) Close()         { v.closed.Store(true) }

// viewRecorder counts how often each factory ran.
type viewRecorder struct {
	mu    sync.Mutex
	built map[string]int
	last  *stubView
}

func (r *viewRecorder) factory(name string) Factory {
	return func(session.Snapshot, Route) View {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.built == nil {
			r.built = map[string]int{}
		}
		r.built[name]++
		r.last = &stubView{title: name}
		return r.last
	}
}

func (r *viewRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.built[name]
}

func (r *viewRecorder) views() Views {
	v := Views{
		Routes:   map[string]Factory{},
		Loading:  r.factory("loading"),
		NotFound: r.factory("not_found"),
	}
	for _, rt := range Routes() {
		v.Routes[rt.Path] = r.factory(rt.Path)
	}
	return v
}

func newTestRouter(state session.State) (*Router, *fakeSession, *viewRecorder) {
	src := &fakeSession{snap: session.Snapshot{State: state}}
	rec := &viewRecorder{}
	return NewRouter(src, rec.views(), zerolog.Nop()), src, rec
}

func TestRouter_AnonymousRedirectsWithoutBuildingProtectedView(t *testing.T) {
	r, _, rec := newTestRouter(session.Anonymous)
	defer r.Close()

	for _, rt := range Routes() {
		if !rt.Protected {
			continue
		}
		loc, d := r.Navigate(rt.Path)
		if loc != PathLogin || d.Action != Render {
			t.Errorf("%s: got %s %s, want login render", rt.Path, loc, d.Action)
		}
		if n := rec.count(rt.Path); n != 0 {
			t.Errorf("%s: protected factory ran %d times", rt.Path, n)
		}
	}
}

func TestRouter_ResolvingShowsLoading(t *testing.T) {
	r, _, rec := newTestRouter(session.Resolving)
	defer r.Close()

	loc, d := r.Navigate(PathPatients)
	if loc != PathPatients || d.Action != Loading {
		t.Fatalf("got %s %s, want loading on /patients", loc, d.Action)
	}
	if rec.count(PathPatients) != 0 {
		t.Error("protected view built while resolving")
	}
	if rec.count("loading") != 1 {
		t.Error("expected loading view")
	}
}

func TestRouter_RevalidatesOnTransition(t *testing.T) {
	r, src, rec := newTestRouter(session.Resolving)
	defer r.Close()

	r.Navigate(PathConsultations)
	loading := rec.last

	src.set(session.Authenticated)
	loc, d, v := r.Current()
	if loc != PathConsultations || d.Action != Render || v.Title() != PathConsultations {
		t.Fatalf("after auth got %s %s", loc, d.Action)
	}
	if !loading.closed.Load() {
		t.Error("loading view not closed")
	}

	mounted := rec.last
	src.set(session.Anonymous)
	loc, _, _ = r.Current()
	if loc != PathLogin {
		t.Fatalf("after sign-out got %s, want /login", loc)
	}
	if !mounted.closed.Load() {
		t.Error("protected view not closed on sign-out")
	}
}

func TestRouter_SameDecisionKeepsView(t *testing.T) {
	r, src, rec := newTestRouter(session.Authenticated)
	defer r.Close()

	r.Navigate(PathDashboard)
	src.set(session.Authenticated)

	if n := rec.count(PathDashboard); n != 1 {
		t.Errorf("dashboard built %d times, want 1", n)
	}
}

func TestRouter_NotFound(t *testing.T) {
	r, _, rec := newTestRouter(session.Anonymous)
	defer r.Close()

	loc, d := r.Navigate("/billing")
	if loc != "/billing" || d.Action != NotFound {
		t.Fatalf("got %s %s", loc, d.Action)
	}
	if rec.count("not_found") != 1 {
		t.Error("expected not-found view")
	}
}

func TestRouter_ReloadRemountsSession(t *testing.T) {
	r, src, rec := newTestRouter(session.Authenticated)
	defer r.Close()
	src.onMount = func() session.State { return session.Anonymous }

	r.Navigate(PathPatients)
	first := rec.last

	loc, _ := r.Reload(context.Background(), PathPatients)
	if loc != PathLogin {
		t.Fatalf("got %s, want /login", loc)
	}
	if src.mounts != 1 {
		t.Errorf("expected one mount, got %d", src.mounts)
	}
	if !first.closed.Load() {
		t.Error("reload did not close mounted view")
	}
}

func TestRouter_OnChange(t *testing.T) {
	r, _, _ := newTestRouter(session.Anonymous)
	defer r.Close()

	var got []string
	r.OnChange(func(path string, _ View) { got = append(got, path) })
	r.Navigate(PathSignup)
	r.Navigate(PathDashboard)

	if len(got) != 2 || got[0] != PathSignup || got[1] != PathLogin {
		t.Errorf("unexpected change log %v", got)
	}
}

// With no stored credential the app starts on the login route and the
// identity endpoint is never called.
func TestRouter_NoCredentialNeverCallsMe(t *testing.T) {
	var meCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == apiclient.MePath {
			meCalls.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	api := apiclient.New(srv.URL, 0)
	store := credentials.NewMemoryStore("")
	m := session.NewMachine(session.NewResolver(store, api, zerolog.Nop()), store, api, zerolog.Nop())
	rec := &viewRecorder{}
	r := NewRouter(m, rec.views(), zerolog.Nop())
	defer r.Close()

	loc, d := r.Reload(context.Background(), PathDashboard)
	if loc != PathLogin || d.Action != Render {
		t.Fatalf("got %s %s, want login render", loc, d.Action)
	}
	if rec.count(PathDashboard) != 0 {
		t.Error("dashboard built without a session")
	}
	if n := meCalls.Load(); n != 0 {
		t.Errorf("expected no identity requests, got %d", n)
	}
}
