package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"
)

type Config struct {
	Addr    string // e.g. ":8080"
	Version string
	API     *API
	DB      *sql.DB
}

type Server struct {
	httpServer *http.Server
}

// New wires the route table. Mutating verbs are encoded in the patterns,
// so a wrong method answers 405 from the mux itself.
func New(cfg Config) *Server {
	api := cfg.API
	mux := http.NewServeMux()

	// Upload protocol
	mux.HandleFunc("POST /upload/prepare", api.PrepareHandler)
	mux.HandleFunc("POST /upload/confirm", api.ConfirmHandler)

	// Clipboard drops (no prefix)
	mux.HandleFunc("POST /save/", api.SaveHandler)
	mux.HandleFunc("GET /check/", api.CheckKeyHandler)
	mux.HandleFunc("GET /{key}/{$}", api.ViewHandler(NSClipboard))
	mux.HandleFunc("POST /{key}/rename/", api.RenameHandler(NSClipboard))
	mux.HandleFunc("DELETE /{key}/delete/", api.DeleteHandler(NSClipboard))
	mux.HandleFunc("POST /{key}/renew/", api.RenewHandler(NSClipboard))
	mux.HandleFunc("POST /{key}/copy/", api.CopyHandler(NSClipboard))
	mux.HandleFunc("POST /{key}/set-password/", api.SetPasswordHandler(NSClipboard))

	// File drops (f/ prefix)
	mux.HandleFunc("GET /f/{key}/{$}", api.ViewHandler(NSFile))
	mux.HandleFunc("GET /f/{key}/download/", api.DownloadHandler)
	mux.HandleFunc("POST /f/{key}/rename/", api.RenameHandler(NSFile))
	mux.HandleFunc("DELETE /f/{key}/delete/", api.DeleteHandler(NSFile))
	mux.HandleFunc("POST /f/{key}/renew/", api.RenewHandler(NSFile))
	mux.HandleFunc("POST /f/{key}/copy/", api.CopyHandler(NSFile))
	mux.HandleFunc("POST /f/{key}/set-password/", api.SetPasswordHandler(NSFile))

	// Accounts
	signupLimiter := newRateLimiter(3, time.Hour)
	mux.Handle("POST /auth/register", signupLimiter.middleware(http.HandlerFunc(api.RegisterHandler)))
	mux.HandleFunc("POST /auth/login", api.LoginHandler)
	mux.HandleFunc("POST /auth/claim", api.ClaimHandler)
	mux.HandleFunc("POST /auth/plan", api.PlanHandler)
	mux.HandleFunc("GET /quota", api.QuotaHandler)

	// Bookmarks
	mux.HandleFunc("POST /bookmarks/", api.AddBookmarkHandler)
	mux.HandleFunc("GET /bookmarks/", api.ListBookmarksHandler)
	mux.HandleFunc("DELETE /bookmarks/{ns}/{key}/", api.RemoveBookmarkHandler)

	// Operational endpoints
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := "ok"
		code := http.StatusOK
		if cfg.DB != nil {
			if err := cfg.DB.PingContext(ctx); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, map[string]any{
			"status":  status,
			"version": cfg.Version,
		})
	})
	mux.Handle("GET /metrics", metricsHandler())

	globalLimiter := newRateLimiter(300, time.Minute)

	// Wrap middleware: requestID -> logging -> headers -> ratelimit -> mux
	var handler http.Handler = mux
	handler = globalLimiter.middleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{httpServer: s}
}

// Handler exposes the composed handler, middleware included. Tests serve
// it directly instead of binding a port.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
