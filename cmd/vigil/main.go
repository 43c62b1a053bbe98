// Command vigil is the on-device decision core of the voice assistant: it
// listens for the wake word, records the utterance, streams it to the chat
// backend, and drives the device display.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/vigil/internal/app"
	"github.com/MrWong99/vigil/internal/backend"
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/internal/observe"
	wakeprovider "github.com/MrWong99/vigil/pkg/provider/wake"
	"github.com/MrWong99/vigil/pkg/provider/wake/energy"
)

// sessionBootstrapTimeout bounds the initial /chat/create call.
const sessionBootstrapTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env first, so ${VIGIL_FINGERPRINT} style references in the config
	// resolve. A missing .env file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "vigil: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vigil: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		}
		return 1
	}

	// The level var lets the config watcher change verbosity at runtime.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Device.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("vigil starting",
		"config", *configPath,
		"device", cfg.Device.Name,
		"log_level", cfg.Device.LogLevel,
		"wake_engine", cfg.Audio.WakeEngine,
		"backend", cfg.Backend.BaseURL,
	)

	config.RegisterWakeEngine("energy", func() (wakeprovider.Engine, error) {
		return energy.New(), nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "vigil",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	if cfg.Backend.SessionID == "" {
		id, err := bootstrapSession(ctx, cfg)
		if err != nil {
			slog.Error("failed to create backend session", "err", err)
			return 1
		}
		cfg.Backend.SessionID = id
		slog.Info("backend session created", "session_id", id)
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(level, application, old, new)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("vigil ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// bootstrapSession asks the backend for a fresh conversation session. Runs
// before the app starts, with its own throwaway client.
func bootstrapSession(ctx context.Context, cfg *config.Config) (string, error) {
	client, err := backend.NewClient(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Fingerprint:    cfg.Backend.Fingerprint,
		Transport:      string(cfg.Backend.Transport),
		MaxAttempts:    cfg.Backend.MaxAttempts,
		RequestTimeout: cfg.Backend.RequestTimeout(),
	}, nil, func(event.Event) {})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, sessionBootstrapTimeout)
	defer cancel()
	return client.CreateSession(ctx)
}

// applyConfigChange reacts to a config file edit: verbosity and detection
// thresholds apply live, anything structural is deferred to the next start.
func applyConfigChange(level *slog.LevelVar, application *app.App, old, new *config.Config) {
	diff := config.Compare(old, new)
	if diff.Empty() {
		return
	}
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.DetectionChanged {
		application.ApplyDetection(new.Detection)
		slog.Info("detection thresholds changed",
			"wake_threshold", new.Detection.WakeWordThreshold,
			"vad_threshold", new.Detection.VADThreshold,
		)
	}
	if diff.RequiresRestart {
		slog.Warn("structural config change detected, restart to apply")
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
