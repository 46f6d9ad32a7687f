package http

import (
	"net/http"
)

type RouterConfig struct {
	Projects   *ProjectHandler
	Sessions   *SessionHandler
	Live       *LiveHandler
	Breakouts  *BreakoutHandler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter registers every configured handler group. Groups left nil are
// not routed.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Projects != nil {
		mux.HandleFunc("POST /projects", cfg.Projects.Create)
		mux.HandleFunc("GET /projects/{id}", cfg.Projects.Get)
		mux.HandleFunc("PUT /projects/{id}", cfg.Projects.Update)
	}

	if cfg.Sessions != nil {
		mux.HandleFunc("GET /projects/{id}/sessions", cfg.Sessions.List)
		mux.HandleFunc("POST /projects/{id}/sessions", cfg.Sessions.Create)
		mux.HandleFunc("POST /projects/{id}/series", cfg.Sessions.CreateSeries)
		mux.HandleFunc("GET /sessions/{id}", cfg.Sessions.Get)
		mux.HandleFunc("PUT /sessions/{id}", cfg.Sessions.Update)
		mux.HandleFunc("DELETE /sessions/{id}", cfg.Sessions.Delete)
		mux.HandleFunc("POST /sessions/{id}/duplicate", cfg.Sessions.Duplicate)
	}

	if cfg.Live != nil {
		mux.HandleFunc("GET /sessions/{id}/live", cfg.Live.Get)
		mux.HandleFunc("GET /sessions/{id}/live/activity", cfg.Live.Activity)
		mux.HandleFunc("POST /sessions/{id}/live/start", cfg.Live.Start)
		mux.HandleFunc("POST /sessions/{id}/live/end", cfg.Live.End)
		mux.HandleFunc("POST /sessions/{id}/live/enqueue", cfg.Live.Enqueue)
		mux.HandleFunc("POST /sessions/{id}/live/admit", cfg.Live.Admit)
		mux.HandleFunc("POST /sessions/{id}/live/admit-all", cfg.Live.AdmitAll)
		mux.HandleFunc("POST /sessions/{id}/live/reject", cfg.Live.Reject)
		mux.HandleFunc("POST /sessions/{id}/live/leave", cfg.Live.Leave)
		mux.HandleFunc("POST /sessions/{id}/live/token", cfg.Live.Token)
	}

	if cfg.Breakouts != nil {
		mux.HandleFunc("GET /sessions/{id}/breakouts", cfg.Breakouts.List)
		mux.HandleFunc("POST /sessions/{id}/breakouts", cfg.Breakouts.Create)
		mux.HandleFunc("POST /sessions/{id}/breakouts/move", cfg.Breakouts.Move)
		mux.HandleFunc("POST /sessions/{id}/breakouts/{index}/close", cfg.Breakouts.Close)
		mux.HandleFunc("POST /sessions/{id}/breakouts/{index}/extend", cfg.Breakouts.Extend)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
