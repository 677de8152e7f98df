package server

import (
	"net/http"
	"strings"
)

// BasicRouter implements [Router] on top of [http.ServeMux].
//
// Paths may contain ServeMux wildcards such as {id}; handlers read them with [http.Request.PathValue].
type BasicRouter struct {
	mux         *http.ServeMux
	prefix      string
	middlewares []Middleware
	routes      map[string]map[string]http.Handler
}

var _ Router = (*BasicRouter)(nil)

// NewBasicRouter creates a router. Every path passed to [BasicRouter.Handle] is
// registered under prefix, which may be empty.
func NewBasicRouter(prefix string) *BasicRouter {
	return &BasicRouter{
		mux:         http.NewServeMux(),
		prefix:      strings.TrimRight(prefix, "/"),
		middlewares: []Middleware{},
		routes:      make(map[string]map[string]http.Handler),
	}
}

// Use adds [Middleware] to the stack, applied in the order it's added.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a handler for method and path. Several methods may share a path.
//
// The method check runs inside the middleware stack so CORS preflight requests are
// answered before a 405 is considered.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	full := r.prefix + path
	method = strings.ToUpper(method)

	if byMethod, ok := r.routes[full]; ok {
		byMethod[method] = handler
		return
	}

	byMethod := map[string]http.Handler{method: handler}
	r.routes[full] = byMethod
	r.mux.Handle(full, r.Apply(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h, ok := byMethod[req.Method]
		if !ok {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.ServeHTTP(w, req)
	})))
}

// Handler registers a custom [Handler] implementation for all of its routes, without the prefix.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)

	for _, route := range handler.Routes() {
		r.mux.Handle(route, wrapped)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
//
// Middleware is applied in reverse order (last added wraps first).
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	return wrapped
}
