package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wattsync/wattsync/internal/appstate"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/recorder"
)

// Router provides embeddable HTTP handlers for the recorder.
// Endpoints:
//   GET  {basePath}/status       engine snapshot plus subscription state
//   POST {basePath}/backfill     run one manual backfill
//   POST {basePath}/reseed       re-run discovery and the historical load
//   GET  {basePath}/synclog      query: limit=N (default 20)
//   GET  {basePath}/healthz      liveness probe
//   GET  {basePath}/metrics      Prometheus exposition
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	ctrl     *recorder.Controller
	app      appstate.Store
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/backfill.
func NewRouter(ctrl *recorder.Controller, app appstate.Store, basePath string) *Router {
	return &Router{ctrl: ctrl, app: app, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/backfill", r.handleBackfill)
	group.POST("/reseed", r.handleReseed)
	group.GET("/synclog", r.handleSyncLog)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, ctrl *recorder.Controller, app appstate.Store) (*http.Server, error) {
	r := NewRouter(ctrl, app, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// StatusResp combines the engine snapshot with the persisted
// subscription record.
type StatusResp struct {
	recorder.Snapshot
	Subscription appstate.SubscriptionState `json:"subscription"`
}

func (r *Router) handleStatus(c *gin.Context) {
	snap := r.ctrl.Snapshot()
	sub, err := r.app.SubscriptionState(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, StatusResp{Snapshot: snap, Subscription: sub})
}

func (r *Router) handleBackfill(c *gin.Context) {
	r.runControl(c, r.ctrl.TriggerBackfill)
}

func (r *Router) handleReseed(c *gin.Context) {
	r.runControl(c, r.ctrl.Reseed)
}

func (r *Router) runControl(c *gin.Context, op func(context.Context) error) {
	err := op(c.Request.Context())
	switch {
	case errors.Is(err, recorder.ErrNotRunning):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	case err != nil:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

func (r *Router) handleSyncLog(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := r.app.RecentSyncs(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []appstate.SyncLogEntry{}
	}
	writeJSON(c, http.StatusOK, entries)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
