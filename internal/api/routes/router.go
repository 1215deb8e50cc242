package routes

import (
	"net/http"

	"github.com/zatekoja/telehealth-meet/internal/api/handlers"
	"github.com/zatekoja/telehealth-meet/internal/api/middleware"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
)

// StaticDirs locates the browser assets served next to the API
type StaticDirs struct {
	Root       string
	FHIRClient string
	JQuery     string
}

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	meetingHandler  *handlers.MeetingHandler
	authHandler     *handlers.AuthHandler
	settingsHandler *handlers.SettingsHandler

	static         StaticDirs
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	meetingHandler *handlers.MeetingHandler,
	authHandler *handlers.AuthHandler,
	settingsHandler *handlers.SettingsHandler,
	static StaticDirs,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		meetingHandler:  meetingHandler,
		authHandler:     authHandler,
		settingsHandler: settingsHandler,
		static:          static,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Meeting endpoints
	r.mux.HandleFunc("GET /hangouts/{encounterId}", r.meetingHandler.GetMeeting)
	r.mux.HandleFunc("POST /hangouts", r.meetingHandler.CreateMeeting)

	// Session endpoints
	r.mux.HandleFunc("GET /authenticate", r.authHandler.Authenticate)
	r.mux.HandleFunc("GET /logout", r.authHandler.Logout)

	// Client settings
	r.mux.HandleFunc("GET /settings", r.settingsHandler.GetSettings)

	// Static assets
	if r.static.FHIRClient != "" {
		r.mux.Handle("GET /fhirclient/", staticHandler("/fhirclient/", r.static.FHIRClient))
	}
	if r.static.JQuery != "" {
		r.mux.Handle("GET /jquery/", staticHandler("/jquery/", r.static.JQuery))
	}
	if r.static.Root != "" {
		r.mux.Handle("GET /", staticHandler("", r.static.Root))
	}

	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics, r.mux)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

func staticHandler(prefix, dir string) http.Handler {
	var h http.Handler = http.FileServer(http.Dir(dir))
	if prefix != "" {
		h = http.StripPrefix(prefix, h)
	}
	return middleware.Compression(h)
}
