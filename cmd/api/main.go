package main

import (
	"log"
	"net/http"
	"time"

	"gosurv/internal"
	"gosurv/internal/api"
	"gosurv/internal/config"
	"gosurv/internal/container"
	"gosurv/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// Headless JSON API server: the same API the dashboard mounts, without pages.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.Logging.Level))

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           newRouter(appContainer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("starting API server on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func newRouter(c *container.Container) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if c.Config.Metrics.Enabled {
		r.Handle(c.Config.Metrics.Path, observability.Handler())
	}
	r.Mount(api.MountPath, c.API)
	return r
}
