// Package views holds the placeholder screens mounted by the navigator.
package views

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/medcabinet/medcabinet/internal/client/gate"
	"github.com/medcabinet/medcabinet/internal/client/session"
)

// Page is a titled screen. Protected pages show who is signed in.
type Page struct {
	title  string
	path   string
	body   string
	user   string
	closed atomic.Bool
}

func (p *Page) Title() string { return p.title }

func (p *Page) Path() string { return p.path }

func (p *Page) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", p.title)
	if p.user != "" {
		fmt.Fprintf(&b, "Signed in as %s\n", p.user)
	}
	if p.body != "" {
		b.WriteString(p.body)
		b.WriteString("\n")
	}
	return b.String()
}

func (p *Page) Close() { p.closed.Store(true) }

// Closed reports whether the navigator has unmounted p.
func (p *Page) Closed() bool { return p.closed.Load() }

var bodies = map[string]string{
	gate.PathDashboard:     "Today at a glance.",
	gate.PathPatients:      "Patient records.",
	gate.PathConsultations: "Consultation notes.",
	gate.PathAppointments:  "Upcoming appointments.",
	gate.PathCertificates:  "Medical certificates.",
	gate.PathPrescriptions: "Prescriptions.",
	gate.PathAssistantIA:   "Assistant IA.",
	gate.PathLogin:         "Type `login` to sign in, or `open /signup` to create an account.",
	gate.PathSignup:        "Type `signup` to create an account.",
}

func page(snap session.Snapshot, route gate.Route) gate.View {
	p := &Page{title: route.Title, path: route.Path, body: bodies[route.Path]}
	if route.Protected && snap.User != nil {
		p.user = displayName(snap)
	}
	return p
}

func displayName(snap session.Snapshot) string {
	if snap.User.Name != "" {
		return fmt.Sprintf("%s (%s)", snap.User.Name, snap.User.Username)
	}
	return snap.User.Username
}

// Loading is shown while the session resolves.
func Loading(_ session.Snapshot, route gate.Route) gate.View {
	return &Page{title: "Loading", path: route.Path, body: "Checking your session..."}
}

// NotFound is shown for unknown paths.
func NotFound(_ session.Snapshot, route gate.Route) gate.View {
	return &Page{title: "Not found", path: route.Path, body: fmt.Sprintf("No page at %s.", route.Path)}
}

// Registry returns a factory for every route in the gate table.
func Registry() gate.Views {
	v := gate.Views{
		Routes:   make(map[string]gate.Factory),
		Loading:  Loading,
		NotFound: NotFound,
	}
	for _, r := range gate.Routes() {
		v.Routes[r.Path] = page
	}
	return v
}
