package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/clipper-ai/clipperd/pkg/api"
	"github.com/clipper-ai/clipperd/pkg/config"
	"github.com/clipper-ai/clipperd/pkg/download"
	"github.com/clipper-ai/clipperd/pkg/logging"
	"github.com/clipper-ai/clipperd/pkg/metrics"
	"github.com/clipper-ai/clipperd/pkg/pipeline"
	"github.com/clipper-ai/clipperd/pkg/queue"
	"github.com/clipper-ai/clipperd/pkg/shutdown"
	"github.com/clipper-ai/clipperd/pkg/store"
	"github.com/clipper-ai/clipperd/pkg/upload"
)

func main() {
	cfgPath := flag.String("config", "", "config file path (default: ./clipperd.yaml if present)")
	port := flag.String("port", "", "listen port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := logging.NewLogger("clipperd", logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	log.Println("Starting clipperd job server")
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Database: %s", cfg.DBPath)
	log.Printf("Upload dir: %s", cfg.UploadDir)
	log.Printf("Output dir: %s", cfg.OutputDir)

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	st, err := store.New(store.Config{Type: "sqlite", Path: cfg.DBPath})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	chain := download.NewChain(cfg.Providers)
	chain.Timeout = cfg.DownloadTimeout
	if yt, ok := chain.Primary.(*download.YtDlp); ok && cfg.Python != "" {
		yt.Python = cfg.Python
	}

	processor := pipeline.New(chain, cfg.ScriptDir, cfg.UploadDir, cfg.OutputDir)
	processor.Python = cfg.Python

	scheduler := queue.New(st, processor)
	scheduler.Recover()

	saver := upload.NewSaver(cfg.UploadDir)
	handler := api.NewHandler(scheduler, saver, st, cfg.OutputDir)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.NewExporter(st))
	}

	// Wrap the router rather than router.Use: mux middleware only runs on a
	// route match, which would skip CORS for preflight OPTIONS requests
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.AccessLog(logger)(api.CORS(router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // clip downloads can be large
		IdleTimeout:  60 * time.Second,
	}

	mgr := shutdown.New(2 * time.Minute)
	mgr.Register(shutdown.CloseResource(st, "store"))
	mgr.Register(shutdown.WaitForIdle(scheduler.Idle, time.Second))
	mgr.Register(shutdown.StopHTTPServer(srv, "api"))

	go func() {
		logger.Info("clipperd listening", map[string]interface{}{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	mgr.Wait()
	mgr.Shutdown()
}
