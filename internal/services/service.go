// Package services wires the alerting components together and runs them.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"facility-alerting/internal/alerts"
	"facility-alerting/internal/api"
	"facility-alerting/internal/cache"
	"facility-alerting/internal/config"
	"facility-alerting/internal/db"
	"facility-alerting/internal/detection"
	"facility-alerting/internal/escalation"
	"facility-alerting/internal/jobs"
	"facility-alerting/internal/jobs/processors"
	"facility-alerting/internal/kafka"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/metrics"
	"facility-alerting/internal/models"
	"facility-alerting/internal/notification"
	"facility-alerting/internal/providers"
	"facility-alerting/internal/realtime"
	"facility-alerting/internal/threshold"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepTimeout    = 2 * time.Minute
)

// Service owns every long-running component of the process.
type Service struct {
	cfg    config.Config
	logger *logging.Logger

	Alerts     *alerts.Service
	Detector   *detection.Detector
	Jobs       *jobs.Queue
	Dispatcher *notification.Dispatcher
	Hub        *realtime.Hub
	Router     http.Handler

	events   *realtime.KafkaPublisher
	consumer *kafka.Consumer
	cron     *cron.Cron
	closers  []func() error
}

// New connects to Postgres and Redis (when configured) and builds the
// components.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Service, error) {
	dbConn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	var c cache.Cache = cache.NewMemory()
	var closers []func() error
	if cfg.Redis.Addr != "" {
		r, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "facility-alerting:")
		if err != nil {
			dbConn.Close()
			return nil, err
		}
		c = r
		closers = append(closers, r.Close)
	} else {
		logger.Warnf("REDIS_ADDR not set, using in-process job cache")
	}
	closers = append(closers, func() error { dbConn.Close(); return nil })

	svc, err := Build(cfg, logger, dbConn, c)
	if err != nil {
		for _, fn := range closers {
			_ = fn()
		}
		return nil, err
	}
	svc.closers = append(svc.closers, closers...)
	return svc, nil
}

// Build wires the components over an existing data access layer and cache.
// Nothing is started.
func Build(cfg config.Config, logger *logging.Logger, da db.DataAccess, c cache.Cache) (*Service, error) {
	s := &Service{cfg: cfg, logger: logger}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.Hub = realtime.NewHub(logger)
	publisher := realtime.Fanout{s.Hub}
	if cfg.Kafka.Broker != "" && cfg.Kafka.EventsTopic != "" {
		s.events = realtime.NewKafkaPublisher(cfg.Kafka.Broker, cfg.Kafka.EventsTopic, logger)
		publisher = append(publisher, s.events)
		s.closers = append(s.closers, s.events.Close)
	}

	rules, err := escalation.LoadRules(cfg.Alerts.RulesFile)
	if err != nil {
		return nil, err
	}

	alertStore := alerts.NewStore(da)
	s.Alerts = alerts.NewService(alerts.Options{
		Repository:  alertStore,
		Publisher:   publisher,
		Rules:       rules,
		DedupWindow: cfg.Alerts.DedupWindow,
		Logger:      logger.WithField("component", "alerts"),
	})

	notifyStore := notification.NewStore(da)
	s.Dispatcher = notification.New(notification.Options{
		Directory: notifyStore,
		Log:       notifyStore,
		Providers: map[string]providers.Provider{
			models.ChannelEmail:    providers.NewEmail(cfg, logger),
			models.ChannelSMS:      providers.NewSMS(cfg, logger),
			models.ChannelTelegram: providers.NewTelegram(cfg, logger),
		},
		Publisher:   publisher,
		OnDelivered: s.Alerts.MarkNotificationSent,
		QueueSize:   cfg.Notification.QueueSize,
		MaxWorkers:  cfg.Notification.MaxWorkers,
		Logger:      logger.WithField("component", "notification"),
	})
	s.Alerts.SetNotifier(s.Dispatcher)

	limits := threshold.DefaultLimits()
	if cfg.Limits.NominalVoltage > 0 {
		limits.NominalVoltage = cfg.Limits.NominalVoltage
	}
	if cfg.Limits.NominalFrequency > 0 {
		limits.NominalFrequency = cfg.Limits.NominalFrequency
	}
	s.Detector = detection.New(alerts.NewThresholdStore(da), s.Alerts, limits, logger.WithField("component", "detection"))

	s.Jobs, err = jobs.New(jobs.NewStore(da, logger), logger.WithField("component", "jobs"), jobs.Options{
		PollInterval:   cfg.Jobs.PollInterval,
		MaxConcurrency: cfg.Jobs.MaxConcurrency,
		CacheTTL:       cfg.Jobs.CacheTTL,
		Cache:          c,
		Publisher:      publisher,
	})
	if err != nil {
		return nil, err
	}
	processors.Register(s.Jobs, processors.Deps{
		DB:          da,
		Alerts:      s.Alerts,
		Ingester:    s.Detector,
		Escalations: s.Alerts,
		Logger:      logger,
	})

	if cfg.Kafka.Broker != "" && cfg.Kafka.ReadingsTopic != "" {
		s.consumer, err = kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.ReadingsTopic,
			GroupID: cfg.Kafka.GroupID,
		}, s.Detector, logger.WithField("component", "kafka"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, s.consumer.Close)
	}

	s.cron = cron.New()
	if err := s.schedule(); err != nil {
		return nil, err
	}

	handler := api.NewHandler(api.Deps{
		Alerts:        s.Alerts,
		Jobs:          s.Jobs,
		Ingester:      s.Detector,
		Subscriptions: s.Hub,
		Logger:        logger,
	})
	s.Router = api.NewRouter(cfg.API.BasePath, handler, logger)
	return s, nil
}

// schedule registers the escalation sweep and, when configured, the
// periodic monitoring job.
func (s *Service) schedule() error {
	_, err := s.cron.AddFunc(s.cfg.Alerts.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Alerts.ProcessEscalations(ctx); err != nil {
			s.logger.Errorf("Escalation sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid escalation sweep schedule %q: %w", s.cfg.Alerts.SweepSchedule, err)
	}

	if s.cfg.Alerts.MonitoringSchedule == "" {
		return nil
	}
	_, err = s.cron.AddFunc(s.cfg.Alerts.MonitoringSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		params := models.JobParams{"process_escalations": false}
		if _, err := s.Jobs.CreateJob(ctx, models.JobTypeAlertMonitoring, nil, nil, params); err != nil {
			s.logger.Errorf("Failed to queue monitoring job: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid monitoring schedule %q: %w", s.cfg.Alerts.MonitoringSchedule, err)
	}
	return nil
}

// ScheduledTasks is the number of registered cron entries.
func (s *Service) ScheduledTasks() int {
	return len(s.cron.Entries())
}

// Run starts every component and the HTTP server, and blocks until ctx is
// cancelled or a component fails. Components are stopped in reverse order.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.Dispatcher.Start()
	s.Jobs.Start(ctx)
	s.cron.Start()

	var wg sync.WaitGroup
	if s.consumer != nil {
		s.consumer.Start(ctx, &wg)
	}

	server := &http.Server{
		Addr:              s.cfg.API.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Infof("Starting API server on %s", s.cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Infof("Shutting down")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("API server shutdown: %v", err)
		}
		<-s.cron.Stop().Done()
		if err := s.Jobs.Stop(shutdownCtx); err != nil {
			s.logger.Warnf("Job queue stopped before in-flight jobs finished: %v", err)
		}
		cancel()
		wg.Wait()
		s.Alerts.Close()
		s.Dispatcher.Stop()
		s.Hub.Close()
		return nil
	})

	err := g.Wait()
	s.Close()
	return err
}

// Close releases connections. Run calls it on exit.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warnf("Close failed: %v", err)
		}
	}
	s.closers = nil
}
