package main

import (
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtsp-hls-supervisor/internal/ffmpeg"
	"rtsp-hls-supervisor/internal/layout"
	"rtsp-hls-supervisor/internal/platform/config"
	"rtsp-hls-supervisor/internal/platform/cors"
	"rtsp-hls-supervisor/internal/platform/logger"
	"rtsp-hls-supervisor/internal/platform/metrics"
	"rtsp-hls-supervisor/internal/supervisor"

	"github.com/go-chi/chi/v5"
)

// Media types http.FileServer does not know by extension.
var mediaTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
}

func main() {
	_ = config.Load()

	for ext, typ := range mediaTypes {
		_ = mime.AddExtensionType(ext, typ)
	}

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	hlsDir := config.GetEnv("HLS_DIR", "./hls")
	urlPrefix := config.GetEnv("HLS_URL_PREFIX", "/hls")
	shutdownTimeout := config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	log := logger.New(logLevel, logFormat)

	build := ffmpeg.DefaultOptions()
	build.Canvas = layout.Canvas{
		Width:  config.GetEnvInt("CANVAS_WIDTH", layout.DefaultCanvas.Width),
		Height: config.GetEnvInt("CANVAS_HEIGHT", layout.DefaultCanvas.Height),
	}
	build.SegmentSeconds = config.GetEnvInt("HLS_SEGMENT_SECONDS", build.SegmentSeconds)
	build.PlaylistSize = config.GetEnvInt("HLS_PLAYLIST_SIZE", build.PlaylistSize)
	build.Preset = config.GetEnv("FFMPEG_PRESET", build.Preset)
	build.Audio = config.GetEnvBool("AUDIO_ENABLED", build.Audio)

	logDir := config.GetEnv("TRANSCODER_LOG_DIR", "")
	runner := ffmpeg.NewRunner(
		config.GetEnv("FFMPEG_BIN", "ffmpeg"),
		config.GetEnvDuration("KILL_TIMEOUT", ffmpeg.DefaultKillTimeout),
		ffmpeg.LogOptions{
			Enabled:    logDir != "",
			Directory:  logDir,
			MaxSize:    config.GetEnvInt("TRANSCODER_LOG_MAX_SIZE_MB", 50),
			MaxBackups: config.GetEnvInt("TRANSCODER_LOG_MAX_BACKUPS", 3),
			MaxAge:     config.GetEnvInt("TRANSCODER_LOG_MAX_AGE_DAYS", 7),
			Compress:   config.GetEnvBool("TRANSCODER_LOG_COMPRESS", true),
		},
		log,
	)

	if err := os.MkdirAll(hlsDir, 0o755); err != nil {
		log.Error("create hls dir", "dir", hlsDir, "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	sup := supervisor.New(supervisor.Config{
		OutputDir: hlsDir,
		URLPrefix: urlPrefix,
		Build:     build,
		RetryBase: config.GetEnvDuration("RETRY_BASE", supervisor.DefaultRetryBase),
		RetryMax:  config.GetEnvDuration("RETRY_MAX", supervisor.DefaultRetryMax),
	}, runner, log, met)
	h := supervisor.NewHandler(sup, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetWorkersRunning(sup.Count()) }).ServeHTTP(w, r)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Route("/rtsp", func(r chi.Router) {
		r.Post("/start", h.StartBatch)
		r.Post("/start-combined", h.StartCombined)
		r.Post("/resume", h.Resume)
		r.Post("/resume-combined", h.ResumeCombined)
		r.Post("/stop", h.Stop)
		r.Post("/stop-all", h.StopAll)
		r.Get("/streams", h.Streams)
	})
	r.Route(urlPrefix, func(r chi.Router) {
		r.Use(cors.Media())
		files := http.StripPrefix(urlPrefix, http.FileServer(http.Dir(hlsDir)))
		r.Handle("/*", files)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"hls_dir", hlsDir,
		"url_prefix", urlPrefix,
		"log_level", logLevel,
		"transcoder_logs", logDir != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping streams and draining connections")

	// HTTP first so no request can start a stream behind StopAll.
	if err := shutdown(log, shutdownTimeout,
		shutdownStep{name: "http", stop: srv},
		shutdownStep{name: "supervisor", stop: sup},
	); err != nil {
		os.Exit(1)
	}

	log.Info("server stopped")
}
