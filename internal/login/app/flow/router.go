package flow

import (
	"errors"
	"fmt"
	"strings"
)

const (
	RouteLogin  = "login"
	RouteReset  = "login/reset"
	RouteNew    = "login/new"
	RouteInvite = "login/invite"
)

// DefaultMaxRedirects bounds redirect chains so a misconfigured table cannot loop.
const DefaultMaxRedirects = 5

var (
	ErrRedirectLoop = errors.New("too many redirects")
	ErrNoRoute      = errors.New("no route matches path")
)

// Decision is what a guard returns: proceed with the route or go elsewhere.
type Decision struct {
	redirect string
}

func Proceed() Decision {
	return Decision{}
}

func RedirectTo(path string) Decision {
	return Decision{redirect: normalizePath(path)}
}

func (d Decision) IsRedirect() bool {
	return d.redirect != ""
}

func (d Decision) Target() string {
	return d.redirect
}

// Guard is a pure predicate over the configuration.
type Guard func(cfg Config) Decision

// ViewFunc builds the view model for a matched route.
type ViewFunc func(cfg Config, in Input) View

// Route maps a path pattern to a view. Patterns are exact paths, a prefix
// ending in "/*", or "*" for anything. A route with Redirect set never renders.
type Route struct {
	Pattern  string
	Guards   []Guard
	View     ViewFunc
	Redirect string
}

func (r Route) matches(path string) bool {
	switch {
	case r.Pattern == "*":
		return true
	case strings.HasSuffix(r.Pattern, "/*"):
		prefix := strings.TrimSuffix(r.Pattern, "*")
		return strings.HasPrefix(path, prefix)
	default:
		return r.Pattern == path
	}
}

// Navigation is the outcome of routing a path.
type Navigation struct {
	// Path is the route that finally rendered, after redirects.
	Path      string   `json:"path"`
	Redirects []string `json:"redirects,omitempty"`
	View      View     `json:"view"`
}

type Router struct {
	cfg          Config
	routes       []Route
	maxRedirects int
}

func NewRouter(cfg Config, routes []Route) *Router {
	return &Router{
		cfg:          cfg,
		routes:       routes,
		maxRedirects: DefaultMaxRedirects,
	}
}

// NewDefaultRouter builds the router for the standard login route table.
func NewDefaultRouter(cfg Config) *Router {
	return NewRouter(cfg, DefaultRoutes())
}

func (r *Router) Config() Config {
	return r.cfg
}

// Navigate routes path, following redirects issued by guards or redirect
// routes. The first matching route wins.
func (r *Router) Navigate(path string, in Input) (Navigation, error) {
	current := normalizePath(path)
	var redirects []string

	for {
		route, ok := r.match(current)
		if !ok {
			return Navigation{}, fmt.Errorf("%w: %q", ErrNoRoute, current)
		}

		target := route.Redirect
		if target == "" {
			for _, guard := range route.Guards {
				if d := guard(r.cfg); d.IsRedirect() {
					target = d.Target()
					break
				}
			}
		}

		if target == "" {
			return Navigation{
				Path:      current,
				Redirects: redirects,
				View:      route.View(r.cfg, in),
			}, nil
		}

		if len(redirects) >= r.maxRedirects {
			return Navigation{}, fmt.Errorf("%w: %s", ErrRedirectLoop, strings.Join(append(redirects, target), " -> "))
		}
		redirects = append(redirects, target)
		current = normalizePath(target)
	}
}

func (r *Router) match(path string) (Route, bool) {
	for _, route := range r.routes {
		if route.matches(path) {
			return route, true
		}
	}
	return Route{}, false
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.Trim(p, "/")
}

// AllowPasswordReset lets the route through when local password resets are possible.
func AllowPasswordReset(cfg Config) Decision {
	if cfg.AllowPasswordReset && !cfg.DisableLocalLogin {
		return Proceed()
	}
	return RedirectTo(RouteLogin)
}

func AllowUserInvite(cfg Config) Decision {
	if cfg.AllowUserInvite {
		return Proceed()
	}
	return RedirectTo(RouteLogin)
}

func DefaultRoutes() []Route {
	return []Route{
		{Pattern: RouteLogin, View: Resolve},
		{Pattern: RouteReset, Guards: []Guard{AllowPasswordReset}, View: resetRequestView},
		{Pattern: RouteNew, Guards: []Guard{AllowPasswordReset}, View: newPasswordView},
		{Pattern: RouteInvite, Guards: []Guard{AllowUserInvite}, View: inviteView},
		{Pattern: "login/*", Redirect: RouteLogin},
		{Pattern: "*", Redirect: RouteLogin},
	}
}

func resetRequestView(cfg Config, _ Input) View {
	return View{Name: ViewResetPasswordRequest, UsernameIsEmail: cfg.UsernameIsEmail}
}

func newPasswordView(_ Config, in Input) View {
	return View{Name: ViewNewPassword, UserID: in.Query.UserID, ResetCode: in.Query.ResetCode}
}

func inviteView(_ Config, in Input) View {
	return View{Name: ViewInviteAccept, UserID: in.Query.UserID}
}
