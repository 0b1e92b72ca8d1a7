// Package inspect serves a read-only JSON view of a container tree. It is
// meant to be mounted by a host application:
//
//	mux.Mount("/debug/resolve", inspect.Handler(root, inspect.WithGatherer(metrics.Gatherer())))
//
// Routes:
//
//	GET /containers                      → the tree below root
//	GET /containers/{id}/registrations   → live entries of one container
//	GET /metrics                         → Prometheus exposition, when a gatherer is set
package inspect

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/km-arc/go-resolve/framework/container"
	"github.com/km-arc/go-resolve/framework/registry"
)

// Option configures the handler.
type Option func(*server)

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *server) { s.gatherer = g }
}

// WithLogger logs requests at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(s *server) {
		if l != nil {
			s.logger = l
		}
	}
}

type server struct {
	root     *container.Container
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// ContainerView is one node of the tree.
type ContainerView struct {
	ID            string          `json:"id"`
	Tag           string          `json:"tag"`
	Disposed      bool            `json:"disposed"`
	Registrations int             `json:"registrations"`
	Children      []ContainerView `json:"children"`
}

// RegistrationView describes one live entry.
type RegistrationView struct {
	Entry           uint64 `json:"entry"`
	Key             string `json:"key"`
	Lifetime        string `json:"lifetime"`
	Scope           string `json:"scope"`
	Template        bool   `json:"template"`
	Cached          int    `json:"cached"`
	Specializations int    `json:"specializations,omitempty"`
}

// Handler builds the diagnostics router for the tree below root.
func Handler(root *container.Container, opts ...Option) http.Handler {
	s := &server{root: root, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Get("/containers", s.tree)
	r.Get("/containers/{id}/registrations", s.registrations)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response{w}.notFound()
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.logger.Debug("inspect request", zap.String("method", req.Method), zap.String("path", req.URL.Path))
		next.ServeHTTP(w, req)
	})
}

func (s *server) tree(w http.ResponseWriter, _ *http.Request) {
	response{w}.success(view(s.root))
}

func (s *server) registrations(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	c := find(s.root, id)
	if c == nil {
		response{w}.notFound("No container " + id + ".")
		return
	}
	entries := c.Registry().Entries()
	out := make([]RegistrationView, 0, len(entries))
	for _, e := range entries {
		out = append(out, registrationView(e))
	}
	response{w}.success(out)
}

func view(c *container.Container) ContainerView {
	v := ContainerView{
		ID:            c.ID(),
		Tag:           c.Tag(),
		Disposed:      c.Disposed(),
		Registrations: c.Registry().Len(),
		Children:      []ContainerView{},
	}
	for _, child := range c.Children() {
		v.Children = append(v.Children, view(child))
	}
	return v
}

func registrationView(e *registry.Entry) RegistrationView {
	return RegistrationView{
		Entry:           e.ID(),
		Key:             e.Key().String(),
		Lifetime:        e.Policy().String(),
		Scope:           e.Scope().Name(),
		Template:        e.IsTemplate(),
		Cached:          e.Lifetime().Cached(),
		Specializations: e.Specializations(),
	}
}

func find(c *container.Container, id string) *container.Container {
	if c.ID() == id {
		return c
	}
	for _, child := range c.Children() {
		if found := find(child, id); found != nil {
			return found
		}
	}
	return nil
}
