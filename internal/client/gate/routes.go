// Package gate decides what the navigator may show for the current session.
package gate

import (
	"net/url"
	"strings"

	"github.com/medcabinet/medcabinet/internal/client/session"
)

// Route paths.
const (
	PathDashboard     = "/"
	PathPatients      = "/patients"
	PathConsultations = "/consultations"
	PathAppointments  = "/appointments"
	PathCertificates  = "/certificates"
	PathPrescriptions = "/prescriptions"
	PathAssistantIA   = "/assistant-ia"
	PathLogin         = "/login"
	PathSignup        = "/signup"
)

type Route struct {
	Path      string
	Title     string
	Protected bool
}

var routes = []Route{
	{Path: PathDashboard, Title: "Dashboard", Protected: true},
	{Path: PathPatients, Title: "Patients", Protected: true},
	{Path: PathConsultations, Title: "Consultations", Protected: true},
	{Path: PathAppointments, Title: "Appointments", Protected: true},
	{Path: PathCertificates, Title: "Certificates", Protected: true},
	{Path: PathPrescriptions, Title: "Prescriptions", Protected: true},
	{Path: PathAssistantIA, Title: "Assistant IA", Protected: true},
	{Path: PathLogin, Title: "Login"},
	{Path: PathSignup, Title: "Signup"},
}

// Routes returns the route table in display order.
func Routes() []Route {
	return append([]Route(nil), routes...)
}

// Lookup finds the route for path after normalization.
func Lookup(path string) (Route, bool) {
	p := Normalize(path)
	for _, r := range routes {
		if r.Path == p {
			return r, true
		}
	}
	return Route{}, false
}

// Normalize drops the query, fragment and trailing slash.
func Normalize(path string) string {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// Action is what the navigator must do with a route.
type Action int

const (
	Loading Action = iota
	Redirect
	Render
	NotFound
)

func (a Action) String() string {
	switch a {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Decision struct {
	Action Action
	Route  Route
	// Location is the redirect target, set only for Redirect.
	Location string
}

// Decide is the access rule. Protected routes render only when the session
// is authenticated, show a loading state while it resolves and redirect to
// the login route otherwise. Public routes always render.
func Decide(state session.State, path string) Decision {
	route, ok := Lookup(path)
	if !ok {
		return Decision{Action: NotFound, Route: Route{Path: Normalize(path), Title: "Not found"}}
	}
	if !route.Protected {
		return Decision{Action: Render, Route: route}
	}
	switch state {
	case session.Authenticated:
		return Decision{Action: Render, Route: route}
	case session.Resolving:
		return Decision{Action: Loading, Route: route}
	default:
		return Decision{Action: Redirect, Route: route, Location: PathLogin}
	}
}
