package http

import (
	"log/slog"
	"net/http"
)

type RouterConfig struct {
	Auth        *AuthHandler
	Students    *StudentHandler
	Rooms       *RoomHandler
	Allocations *AllocationHandler
	// Sessions guards every route except POST /sessions. Nil leaves the
	// routes open, which tests use to inject principals directly.
	Sessions   SessionValidator
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	guard := func(next http.HandlerFunc) http.Handler { return next }
	if cfg.Sessions != nil {
		requireSession := RequireSession(cfg.Sessions, cfg.Logger)
		guard = func(next http.HandlerFunc) http.Handler { return requireSession(next) }
	}

	if cfg.Auth != nil {
		mux.HandleFunc("POST /sessions", cfg.Auth.CreateSession)
		mux.Handle("DELETE /sessions/current", guard(cfg.Auth.DeleteCurrentSession))
		mux.Handle("DELETE /sessions/{token}", guard(func(w http.ResponseWriter, r *http.Request) {
			cfg.Auth.DeleteSession(w, r, r.PathValue("token"))
		}))
		mux.Handle("GET /me", guard(cfg.Auth.Me))
	}

	if cfg.Students != nil {
		mux.Handle("GET /students", guard(cfg.Students.List))
		mux.Handle("POST /students", guard(cfg.Students.Register))
		mux.Handle("GET /students/{id}", guard(cfg.Students.Get))
	}

	if cfg.Rooms != nil {
		mux.Handle("GET /rooms", guard(cfg.Rooms.List))
		mux.Handle("POST /rooms", guard(cfg.Rooms.Create))
		mux.Handle("DELETE /rooms/{block}/{number}", guard(cfg.Rooms.Delete))
		mux.Handle("GET /rooms/{block}/{number}/layout", guard(cfg.Rooms.Layout))
		mux.Handle("GET /rooms/{block}/{number}/beds", guard(cfg.Rooms.Beds))
		mux.Handle("PUT /rooms/{block}/{number}/capacity", guard(cfg.Rooms.ResizeCapacity))
	}

	if cfg.Allocations != nil {
		a := cfg.Allocations
		mux.Handle("GET /allocations/requests", guard(a.ListPending))
		mux.Handle("POST /allocations/requests", guard(a.Apply))
		mux.Handle("PUT /allocations/requests/{id}", guard(a.Edit))
		mux.Handle("DELETE /allocations/requests/{id}", guard(a.Cancel))
		mux.Handle("POST /allocations/requests/{id}/decision", guard(a.Decide))
		mux.Handle("POST /allocations/requests/{id}/allocate", guard(a.Allocate))
		mux.Handle("POST /allocations/room-change", guard(a.RequestRoomChange))
		mux.Handle("POST /allocations/direct", guard(a.AllocateDirect))
		mux.Handle("GET /allocations/status", guard(a.Status))
		mux.Handle("DELETE /allocations/students/{id}", guard(a.Deallocate))
		mux.Handle("POST /allocations/bulk-deallocate", guard(a.BulkDeallocate))
		mux.Handle("POST /allocations/reconcile", guard(a.Reconcile))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
