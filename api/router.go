package api

import (
	"net/http"
	"os"

	"greenthumb/services"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Router struct {
	router   *mux.Router
	handlers *DashboardHandlers
}

func NewRouter(sessions *services.SessionService, displayLimit int, logger *zap.Logger) *Router {
	r := &Router{
		router: mux.NewRouter(),
		handlers: &DashboardHandlers{
			sessions:     sessions,
			displayLimit: displayLimit,
			logger:       logger,
		},
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	api := r.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", r.handlers.HealthCheck).Methods(http.MethodGet)

	api.HandleFunc("/analyze", r.handlers.Analyze).Methods(http.MethodPost)
	api.HandleFunc("/diagnoses", r.handlers.ListDiagnoses).Methods(http.MethodGet)
	api.HandleFunc("/alerts/cooldown", r.handlers.GetCooldown).Methods(http.MethodGet)

	history := api.PathPrefix("/history").Subrouter()
	history.HandleFunc("", r.handlers.ListHistory).Methods(http.MethodGet)
	history.HandleFunc("/export", r.handlers.ExportHistory).Methods(http.MethodGet)
}

// Handler wraps the routes with access logging, panic recovery and CORS for the UI
func (r *Router) Handler() http.Handler {
	var h http.Handler = r.router
	h = handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	return handlers.CombinedLoggingHandler(os.Stdout, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
