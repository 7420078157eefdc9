package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optionscore/internal/api/handlers"
	"optionscore/internal/api/middleware"
	"optionscore/internal/service"
	"optionscore/internal/websocket"
)

// Dependencies carries everything the handlers need. Nil services leave
// their routes unregistered, which keeps tests and the paper binary light.
type Dependencies struct {
	StatsService        *service.StatsService
	SettingsService     *service.SettingsService
	NotificationService *service.NotificationService
	HaltService         *service.HaltService
	EngineView          handlers.EngineView
	EngineControl       handlers.EngineControl
	Hub                 *websocket.Hub
}

// SetupRoutes builds the full route table of the status/control surface.
//
// /api/v1/
//
//	├── /engine/status       GET  - engine state snapshot
//	├── /engine/pause        POST - suspend new entries
//	├── /engine/resume       POST - resume entries
//	├── /positions           GET  - open position snapshots
//	├── /trades              GET  - recent closed trades
//	├── /trades/day          GET  - one day's trades record
//	├── /stats               GET  - aggregate summary
//	├── /notifications       GET / DELETE
//	├── /halts               GET / POST, DELETE /{underlying}
//	└── /settings            GET / PATCH
//
// /ws/stream - WebSocket push of engine state
// /metrics   - Prometheus metrics
// /debug/    - pprof + runtime, behind basic auth
//
// Middleware order: Recovery, Logging, CORS for everything; DebugAuth on
// the debug subtree.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api/v1").Subrouter()

	if deps != nil && deps.EngineView != nil {
		engineHandler := handlers.NewEngineHandler(deps.EngineView, deps.EngineControl)
		api.HandleFunc("/engine/status", engineHandler.GetStatus).Methods("GET")
		api.HandleFunc("/engine/pause", engineHandler.Pause).Methods("POST")
		api.HandleFunc("/engine/resume", engineHandler.Resume).Methods("POST")
		api.HandleFunc("/positions", engineHandler.GetPositions).Methods("GET")
	}

	if deps != nil && deps.StatsService != nil {
		statsHandler := handlers.NewStatsHandler(deps.StatsService)
		api.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")
		api.HandleFunc("/trades", statsHandler.GetTrades).Methods("GET")
		api.HandleFunc("/trades/day", statsHandler.GetTradesForDay).Methods("GET")
	}

	if deps != nil && deps.NotificationService != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	if deps != nil && deps.HaltService != nil {
		haltHandler := handlers.NewHaltHandler(deps.HaltService)
		api.HandleFunc("/halts", haltHandler.GetHalts).Methods("GET")
		api.HandleFunc("/halts", haltHandler.CreateHalt).Methods("POST")
		api.HandleFunc("/halts/{underlying}", haltHandler.DeleteHalt).Methods("DELETE")
	}

	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Debug endpoints, basic-auth protected.
	debug := router.PathPrefix("/debug").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/pprof/", pprof.Index)
	debug.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	debug.HandleFunc("/pprof/profile", pprof.Profile)
	debug.HandleFunc("/pprof/symbol", pprof.Symbol)
	debug.HandleFunc("/pprof/trace", pprof.Trace)
	debug.HandleFunc("/runtime", func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		respondRuntime(w, m)
	}).Methods("GET")

	return router
}
