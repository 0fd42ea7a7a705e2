package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/container"
	"gosurv/ui"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.Logging.Level))
	internal.DefaultLogger = logger

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	server, err := ui.NewServer(ui.Deps{
		Config:   appConfig,
		Workflow: appContainer.Workflow,
		Profiler: appContainer.Profiler,
		Charts:   appContainer.Charts,
		Coercer:  appContainer.Coercer,
		API:      appContainer.API,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	// pprof registers on the default mux, served on its own port
	if appConfig.Profiling.Enabled {
		go func() {
			logger.Info("profiling server starting on :%s", appConfig.Profiling.Port)
			srv := &http.Server{Addr: ":" + appConfig.Profiling.Port, ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("pprof server failed: %v", err)
			}
		}()
	}

	logger.Info("starting gosurv on port %s", appConfig.Server.Port)
	log.Fatal(server.Start(":" + appConfig.Server.Port))
}
