package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/gambit/internal/engine"
)

// Router exposes read-only views of the running engines.
// Endpoints:
//
//	GET {basePath}/engines         all engine statuses
//	GET {basePath}/engines/:name   one engine by name
//	GET {basePath}/healthz         liveness of the host
//	GET /metrics                   Prometheus metrics, when a handler is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	statuses func() []engine.Status
	metrics  http.Handler
	basePath string
}

type RouterOption func(*Router)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) RouterOption { return func(r *Router) { r.metrics = h } }

// NewRouter constructs a Router. statuses is called on every request and
// must be safe for concurrent use.
func NewRouter(statuses func() []engine.Status, basePath string, opts ...RouterOption) *Router {
	r := &Router{statuses: statuses, basePath: sanitizeBase(basePath)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/engines", r.handleList)
	group.GET("/engines/:name", r.handleGet)
	group.GET("/healthz", r.handleHealth)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleList(c *gin.Context) {
	sts := r.statuses()
	if sts == nil {
		sts = []engine.Status{}
	}
	writeJSON(c, http.StatusOK, sts)
}

func (r *Router) handleGet(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid engine name: allowed [A-Za-z0-9._-] and no '..'"})
		return
	}
	for _, st := range r.statuses() {
		if st.Name == name {
			writeJSON(c, http.StatusOK, st)
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "engine not found: " + name})
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
