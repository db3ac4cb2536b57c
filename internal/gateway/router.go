package gateway

import (
	"net/http"
)

// Router wraps http.ServeMux and applies a guard to protected routes
type Router struct {
	mux   *http.ServeMux
	guard func(http.Handler) http.Handler
}

// NewRouter creates a new router. A nil guard leaves every route open.
func NewRouter(guard func(http.Handler) http.Handler) *Router {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	return &Router{
		mux:   http.NewServeMux(),
		guard: guard,
	}
}

// Mux returns the underlying http.ServeMux
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// Handle registers an open handler for the given pattern
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

// HandleFunc registers an open handler function for the given pattern
func (r *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	r.mux.HandleFunc(pattern, handler)
}

// Protect registers handler behind the router's guard
func (r *Router) Protect(pattern string, handler http.HandlerFunc) {
	r.mux.Handle(pattern, r.guard(handler))
}
