package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	intelliscript "github.com/kushiiitd05/IntelliScript"
	"github.com/kushiiitd05/IntelliScript/internal/api"
	"github.com/kushiiitd05/IntelliScript/internal/audio"
	"github.com/kushiiitd05/IntelliScript/internal/config"
	"github.com/kushiiitd05/IntelliScript/internal/database"
	"github.com/kushiiitd05/IntelliScript/internal/diarize"
	"github.com/kushiiitd05/IntelliScript/internal/ingest"
	"github.com/kushiiitd05/IntelliScript/internal/metrics"
	"github.com/kushiiitd05/IntelliScript/internal/mqttclient"
	"github.com/kushiiitd05/IntelliScript/internal/progress"
	"github.com/kushiiitd05/IntelliScript/internal/sessions"
	"github.com/kushiiitd05/IntelliScript/internal/storage"
	"github.com/kushiiitd05/IntelliScript/internal/summarize"
	"github.com/kushiiitd05/IntelliScript/internal/transcribe"
	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

var version = "dev"

// CLI flags override environment variables.
type CLI struct {
	Version     kong.VersionFlag `short:"v" help:"Show version and exit."`
	EnvFile     string           `name:"env-file" type:"path" help:"Path to .env file (default .env)."`
	Listen      string           `help:"HTTP listen address, e.g. :8080."`
	LogLevel    string           `name:"log-level" help:"Log level (trace, debug, info, warn, error)."`
	DatabaseURL string           `name:"database-url" help:"PostgreSQL connection URL."`
	MQTTURL     string           `name:"mqtt-url" help:"MQTT broker URL for status events."`
	DataDir     string           `name:"data-dir" type:"path" help:"Directory for uploads and audio."`
	WatchDir    string           `name:"watch-dir" type:"path" help:"Drop folder to ingest media from."`
}

func main() {
	startTime := time.Now()

	var cli CLI
	kong.Parse(&cli,
		kong.Name("intelliscript"),
		kong.Description("Speaker-aware transcription, summaries and Q&A for audio and video."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	// Config
	cfg, err := config.Load(config.Overrides{
		EnvFile:       cli.EnvFile,
		HTTPAddr:      cli.Listen,
		LogLevel:      cli.LogLevel,
		DatabaseURL:   cli.DatabaseURL,
		MQTTBrokerURL: cli.MQTTURL,
		DataDir:       cli.DataDir,
		WatchDir:      cli.WatchDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("intelliscript starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	audioDir := filepath.Join(cfg.DataDir, "audio")
	spoolDir := filepath.Join(cfg.DataDir, "uploads")
	for _, dir := range []string{audioDir, spoolDir, cfg.ProgressDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create data directory")
		}
	}

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns:    cfg.DatabaseMaxConns,
		MinConns:    cfg.DatabaseMinConns,
		PingTimeout: cfg.DatabasePingTimeout,
	}, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, intelliscript.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	if n, err := db.FailStaleSessions(ctx, startTime); err != nil {
		log.Warn().Err(err).Msg("failed to reset interrupted sessions")
	} else if n > 0 {
		log.Warn().Int64("sessions", n).Msg("marked sessions interrupted by restart as failed")
	}

	deps := api.Deps{
		DB:          db,
		Sessions:    db,
		OpenAPISpec: intelliscript.OpenAPISpec,
	}

	// Redis (optional): progress and result cache, with file fallback for progress
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = progress.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, progress falls back to files and results are not cached")
			rdb = nil
		} else {
			defer rdb.Close()
			deps.Redis = api.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
			log.Info().Msg("redis connected")
		}
	}
	tracker := progress.NewTracker(rdb, cfg.ProgressDir, log.With().Str("component", "progress").Logger())
	cache := progress.NewCache(rdb, log.With().Str("component", "cache").Logger())
	deps.Progress = tracker
	deps.Cache = cache

	// Audio storage
	storeLog := log.With().Str("component", "storage").Logger()
	store, services, err := storage.New(cfg.S3, audioDir, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio storage")
	}
	for _, svc := range services {
		svc.Start()
		defer svc.Stop()
	}
	log.Info().Str("type", store.Type()).Msg("audio storage ready")
	deps.Audio = store

	// MQTT (optional)
	var publisher transcribe.StatusPublisher
	if cfg.MQTTBrokerURL != "" {
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable, status events disabled")
		} else {
			defer mqtt.Close()
			publisher = mqtt
			deps.MQTT = mqtt
		}
	}

	// Audio pipeline
	ffmpegLog := log.With().Str("component", "ffmpeg").Logger()
	runner := audio.NewFFmpeg(cfg.FFmpegPath, cfg.FFmpegTimeout, ffmpegLog)
	pipeCfg := audio.DefaultPipelineConfig()
	pipeCfg.Enhanced = cfg.AudioEnhanced
	pipeCfg.Denoise = cfg.NoiseReduction
	pipeCfg.Target = audio.LoudnessTarget{I: cfg.LoudnessTargetI, LRA: cfg.LoudnessTargetLRA, TP: cfg.LoudnessTargetTP}
	pipeCfg.WorkDir = cfg.WorkDir
	pipeline := audio.NewPipeline(runner, pipeCfg, log.With().Str("component", "audio").Logger())

	// Speech to text
	var stt transcribe.Provider
	switch cfg.STTProvider {
	case "deepinfra":
		stt = transcribe.NewDeepInfraClient(cfg.DeepInfraURL, cfg.DeepInfraAPIKey, cfg.DeepInfraModel, cfg.WhisperTimeout)
	default:
		stt = transcribe.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperAPIKey, cfg.WhisperTimeout)
	}
	deps.STTModel = stt.Model()
	log.Info().Str("provider", stt.Name()).Str("model", stt.Model()).Msg("speech to text configured")

	// Diarization (optional)
	var diarizer diarize.Provider
	if cfg.PyannoteURL != "" {
		p := diarize.NewPyannoteClient(cfg.PyannoteURL, cfg.PyannoteTimeout)
		if !p.IsAvailable(ctx) {
			log.Warn().Str("url", cfg.PyannoteURL).Msg("diarization service not reachable yet, speakers will be unknown until it is")
		}
		diarizer = p
	}

	// Summaries and Q&A (optional)
	var summarizer transcribe.Summarizer
	if cfg.SummariesEnabled() {
		chat := summarize.NewOpenAIChat(cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
		summarizer = summarize.NewSummarizer(chat, log.With().Str("component", "summarize").Logger())
		deps.Answerer = summarize.NewAnswerer(chat)
		log.Info().Str("model", chat.Model()).Msg("summaries and q&a enabled")
	}

	// Worker pool
	pool := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		Cleaner:    pipeline,
		STT:        stt,
		Diarizer:   diarizer,
		Summarizer: summarizer,
		Results:    db,
		Cache:      cache,
		Progress:   tracker,
		Publisher:  publisher,
		Store:      store,
		Transcribe: transcribe.TranscribeOpts{Language: cfg.WhisperLanguage, Prompt: cfg.WhisperPrompt},
		Chunking:   transcript.Options{GapThreshold: cfg.ChunkGapThreshold},
		WorkDir:    cfg.WorkDir,
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout,
		Log:        log.With().Str("component", "transcribe").Logger(),
	})
	pool.Start()
	defer pool.Stop()
	deps.Queue = pool

	prometheus.MustRegister(metrics.NewCollector(db.Pool, pool))

	svc := sessions.NewService(db, store, pool, tracker, spoolDir, log.With().Str("component", "sessions").Logger())
	deps.Submitter = svc

	// Drop folder (optional)
	if cfg.WatchDir != "" {
		watcher := ingest.NewFileWatcher(svc, cfg.WatchDir, true, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("watch_dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
		defer watcher.Stop()
		deps.Watcher = watcher
	}

	if cfg.SessionRetention > 0 {
		go runRetention(ctx, db, store, cfg.SessionRetention, log.With().Str("component", "retention").Logger())
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, deps, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("intelliscript stopping")
}

// runRetention deletes expired sessions and their stored audio every hour.
func runRetention(ctx context.Context, db *database.DB, store storage.AudioStore, retention time.Duration, log zerolog.Logger) {
	purge := func() {
		ids, err := db.PurgeSessionsOlderThan(ctx, retention)
		if err != nil {
			log.Error().Err(err).Msg("session purge failed")
			return
		}
		for _, id := range ids {
			if err := store.RemoveSession(ctx, id); err != nil {
				log.Warn().Err(err).Str("session_id", id).Msg("failed to remove session audio")
			}
		}
		if len(ids) > 0 {
			log.Info().Int("sessions", len(ids)).Dur("retention", retention).Msg("expired sessions purged")
		}
	}

	purge()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
