package popgen

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/popgen/internal/common"
	commonconfig "github.com/G-Research/popgen/internal/common/config"
	"github.com/G-Research/popgen/internal/common/health"
	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/common/logging"
	"github.com/G-Research/popgen/internal/common/task"
	"github.com/G-Research/popgen/internal/common/util"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/configuration"
	"github.com/G-Research/popgen/internal/popgen/manager"
	"github.com/G-Research/popgen/internal/popgen/metrics"
	"github.com/G-Research/popgen/internal/popgen/registry"
	"github.com/G-Research/popgen/internal/popgen/request"
	"github.com/G-Research/popgen/internal/popgen/server"
	"github.com/G-Research/popgen/internal/popgen/stream"
	"github.com/G-Research/popgen/internal/popgen/sweeper"
	"github.com/G-Research/popgen/internal/popgen/synthetic"
)

const (
	defaultShutdownTimeout   = 30 * time.Second
	defaultSubscriberBuffer  = 256
	defaultTombstoneTtl      = time.Hour
	defaultFinishedRetention = 24 * time.Hour
	defaultIdleTimeout       = time.Hour
)

type App struct {
	// Generator produces the records of every request. Defaults to the synthetic generator.
	Generator request.Generator
	Clock     util.Clock
}

func New() *App {
	return &App{}
}

// RectifyConfig replaces invalid optional settings with defaults, logging a warning for each.
// Returns a non-nil error if mis-configuration is unrecoverable.
func RectifyConfig(config *configuration.PopgenConfiguration) error {
	logger := log.WithField("popgen", "RectifyConfig")
	rectify := func(name string, invalid bool, configured interface{}, def interface{}, apply func()) {
		if !invalid {
			return
		}
		logger.WithFields(log.Fields{
			"default":    def,
			"configured": configured,
		}).Warnf("config.%s invalid, using default instead", name)
		apply()
	}

	r := &config.Requests
	rectify("Requests.BufferCapacity", r.BufferCapacity <= 0, r.BufferCapacity, request.DefaultBufferCapacity,
		func() { r.BufferCapacity = request.DefaultBufferCapacity })
	rectify("Requests.LogFlushBatch", r.LogFlushBatch <= 0, r.LogFlushBatch, artifact.DefaultFlushBatch,
		func() { r.LogFlushBatch = artifact.DefaultFlushBatch })
	rectify("Requests.PausePollInterval", r.PausePollInterval <= 0, r.PausePollInterval, request.DefaultPausePollInterval,
		func() { r.PausePollInterval = request.DefaultPausePollInterval })
	rectify("Requests.DefaultPopulation", r.DefaultPopulation <= 0, r.DefaultPopulation, request.DefaultPopulation,
		func() { r.DefaultPopulation = request.DefaultPopulation })
	rectify("Requests.MaxPopulation", r.MaxPopulation < 0, r.MaxPopulation, 0,
		func() { r.MaxPopulation = 0 })
	rectify("Requests.TombstoneTtl", r.TombstoneTtl <= 0, r.TombstoneTtl, defaultTombstoneTtl,
		func() { r.TombstoneTtl = defaultTombstoneTtl })
	rectify("Requests.FinishedRetention", r.FinishedRetention <= 0, r.FinishedRetention, defaultFinishedRetention,
		func() { r.FinishedRetention = defaultFinishedRetention })
	rectify("Requests.IdleTimeout", r.IdleTimeout <= 0, r.IdleTimeout, defaultIdleTimeout,
		func() { r.IdleTimeout = defaultIdleTimeout })
	rectify("Stream.SubscriberBuffer", config.Stream.SubscriberBuffer <= 0, config.Stream.SubscriberBuffer, defaultSubscriberBuffer,
		func() { config.Stream.SubscriberBuffer = defaultSubscriberBuffer })
	rectify("ShutdownTimeout", config.ShutdownTimeout <= 0, config.ShutdownTimeout, defaultShutdownTimeout,
		func() { config.ShutdownTimeout = defaultShutdownTimeout })
	if config.Artifacts.Index.Type == "" {
		config.Artifacts.Index.Type = configuration.IndexTypeMemory
	}

	if r.MaxPopulation > 0 && r.DefaultPopulation > r.MaxPopulation {
		return errors.Errorf("requests.defaultPopulation %d exceeds requests.maxPopulation %d", r.DefaultPopulation, r.MaxPopulation)
	}
	if config.Artifacts.Index.Type == configuration.IndexTypeSQLite && config.Artifacts.Index.DatabasePath == "" {
		return errors.New("artifacts.index.databasePath is required for the sqlite index")
	}
	return nil
}

// services are the long-lived components of a running service.
type services struct {
	manager  *manager.Manager
	sweeper  *sweeper.Sweeper
	metrics  *prometheus.Registry
	handler  http.Handler
	shutdown []func()
}

func (s *services) close() {
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		s.shutdown[i]()
	}
}

func (a *App) build(ctx *logctx.Context, config *configuration.PopgenConfiguration) (*services, error) {
	s := &services{metrics: prometheus.NewRegistry()}
	s.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := artifact.NewStore(config.Artifacts.Directory, config.Artifacts.WorkDirectory)
	if err != nil {
		return nil, err
	}

	var index artifact.Index
	switch config.Artifacts.Index.Type {
	case configuration.IndexTypeSQLite:
		sqliteIndex, closeIndex, err := artifact.NewSQLiteIndex(config.Artifacts.Index.DatabasePath)
		if err != nil {
			return nil, err
		}
		s.shutdown = append(s.shutdown, closeIndex)
		index = sqliteIndex
	default:
		index = artifact.NewInMemoryIndex()
	}
	if err := index.Setup(ctx); err != nil {
		s.close()
		return nil, err
	}

	generator := a.Generator
	if generator == nil {
		generator = &synthetic.Generator{Clock: a.Clock, RecordDelay: config.Generator.RecordDelay}
	}

	m := metrics.New(s.metrics)
	s.manager = manager.New(
		ctx,
		registry.New(config.Requests.TombstoneTtl),
		generator,
		store,
		index,
		stream.NewHub(config.Stream.SubscriberBuffer),
		m,
		a.Clock,
		manager.Options{
			BufferCapacity:    config.Requests.BufferCapacity,
			FlushBatch:        config.Requests.LogFlushBatch,
			PausePollInterval: config.Requests.PausePollInterval,
			DeleteOnRetrieval: config.Artifacts.DeleteOnRetrieval,
			FinishedRetention: config.Requests.FinishedRetention,
			IdleTimeout:       config.Requests.IdleTimeout,
			Policy: request.Policy{
				DefaultPopulation: config.Requests.DefaultPopulation,
				MaxPopulation:     config.Requests.MaxPopulation,
				AllowedProperties: config.AllowedProperties,
			},
		},
	)
	s.sweeper = sweeper.New(store, index, s.manager, config.Artifacts.MaxAge, a.Clock, m)

	mux := http.NewServeMux()
	server.New(s.manager).Register(mux)
	health.SetupHttpMux(mux, health.NewMultiChecker().
		Add("index", health.CheckerFunc(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return index.HealthCheck(checkCtx)
		})).
		Add("store", health.CheckerFunc(store.HealthCheck)))
	s.handler = mux
	return s, nil
}

// StartUp runs the service until ctx is cancelled, then stops accepting calls and waits up to
// ShutdownTimeout for running collections to clean up.
func (a *App) StartUp(ctx context.Context, config *configuration.PopgenConfiguration) error {
	if err := RectifyConfig(config); err != nil {
		return err
	}
	if err := commonconfig.Validate(config); err != nil {
		commonconfig.LogValidationErrors(err)
		return errors.WithStack(err)
	}

	appCtx := logctx.WithLogField(logctx.New(ctx, log.NewEntry(log.StandardLogger())), "service", "popgen")
	s, err := a.build(appCtx, config)
	if err != nil {
		return err
	}
	defer s.close()

	taskManager := task.NewBackgroundTaskManager("popgen_", s.metrics)
	taskManager.Register(s.sweeper.Run, config.Artifacts.SweepInterval, "artifact_sweep")

	shutdownMetrics := common.ServeMetricsFor(config.MetricsPort, s.metrics)
	shutdownHttp := common.ServeHttp(config.HttpPort, s.handler)
	appCtx.Log.Infof("popgen listening on %d, metrics on %d", config.HttpPort, config.MetricsPort)

	g, groupCtx := logctx.ErrGroup(appCtx)
	g.Go(func() error {
		<-groupCtx.Done()
		appCtx.Log.Info("Shutting down")
		shutdownHttp()
		if taskManager.StopAll(config.ShutdownTimeout) {
			appCtx.Log.Warn("Background tasks did not stop in time")
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		defer shutdownMetrics()
		if err := s.manager.Shutdown(shutdownCtx); err != nil {
			logging.WithStacktrace(appCtx.Log, err).Warn("Requests did not stop cleanly")
			return err
		}
		return nil
	})
	return g.Wait()
}
