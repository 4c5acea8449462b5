// Package app assembles the artifact pipeline from settings: logging and
// telemetry, the record store with its viewer cache, the artifact tree,
// metrics and the processing manager.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/buildinfo"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/observability"
	"github.com/tphakala/birdnet-artifacts/internal/processing"
)

// sentryFlushTimeout bounds how long shutdown waits for queued error events.
const sentryFlushTimeout = 2 * time.Second

// GetLogger returns the app package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// App holds the wired components shared by the CLI commands.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Store    *datastore.CachedStore
	Files    *artifactfs.FS
	Metrics  *observability.Metrics
	Manager  *processing.Manager

	log logger.Logger
}

// Open creates the directory layout, opens the store and builds the
// processing manager. The renderer is constructed eagerly, so an unusable
// spectrogram backend fails here rather than on the first item.
func Open(settings *conf.Settings, build *buildinfo.Context) (*App, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}

	a := &App{Settings: settings, Build: build, log: GetLogger()}
	a.logSystemDetails()

	if err := artifactfs.EnsureSourceLayout(settings.Paths.SourceAudio); err != nil {
		return nil, err
	}

	files, err := artifactfs.New(settings.Paths.Artifacts)
	if err != nil {
		return nil, err
	}
	if err := files.EnsureLayout(); err != nil {
		_ = files.Close()
		return nil, err
	}
	a.Files = files

	metrics, err := observability.NewMetrics()
	if err != nil {
		a.closeFiles()
		return nil, fmt.Errorf("error initializing metrics: %w", err)
	}
	a.Metrics = metrics

	inner, err := datastore.New(settings)
	if err != nil {
		a.closeFiles()
		return nil, err
	}
	if err := inner.Open(); err != nil {
		a.closeFiles()
		return nil, err
	}
	a.Store = datastore.NewCachedStore(inner, settings.Cache.TTL)
	a.Store.SetMetrics(metrics.Datastore)

	manager, err := processing.NewManager(settings, a.Store, files, processing.WithMetrics(metrics))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Manager = manager

	a.log.Info("pipeline ready",
		logger.String("version", build.GetVersion()),
		logger.String("database", settings.Database.Type),
		logger.String("artifacts", files.BaseDir()),
		logger.Bool("spectrograms", manager.SpectrogramsEnabled()),
		logger.Int("workers", max(settings.Processing.Workers, 1)))

	return a, nil
}

// logSystemDetails records the host platform once per run.
func (a *App) logSystemDetails() {
	info, err := host.Info()
	if err != nil {
		a.log.Debug("host info unavailable", logger.Error(err))
		return
	}
	a.log.Info("system details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("arch", info.KernelArch))
}

func (a *App) closeFiles() {
	if a.Files == nil {
		return
	}
	if err := a.Files.Close(); err != nil {
		a.log.Warn("failed to close artifact root", logger.Error(err))
	}
}

// Close releases the store and the artifact root.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		} else {
			a.log.Debug("database closed")
		}
	}
	a.closeFiles()
	return errors.Join(errs...)
}

// InitLogging installs the central logger configured by settings and,
// when enabled, Sentry error telemetry. The returned function flushes and
// closes both.
func InitLogging(settings *conf.Settings, build *buildinfo.Context) (func(), error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	sentry := settings.Telemetry.Sentry
	if sentry.Enabled {
		if err := errors.InitSentry(sentry.DSN, build.Release()); err != nil {
			central.Module("app").Warn("error telemetry disabled", logger.Error(err))
		}
	}

	return func() {
		errors.FlushSentry(sentryFlushTimeout)
		if err := central.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log files: %v\n", err)
		}
	}, nil
}

// RotateLogsOnHangup reopens the log files whenever the process receives
// SIGHUP, until ctx is done. The returned function waits for the watcher
// to stop.
func RotateLogsOnHangup(ctx context.Context) (wait func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log := GetLogger()
				if err := logger.Global().ReopenLogFile(); err != nil {
					log.Warn("log rotation failed", logger.Error(err))
					continue
				}
				log.Info("log files reopened")
			}
		}
	}()

	return func() { <-done }
}
