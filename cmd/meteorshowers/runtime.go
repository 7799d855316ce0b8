package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/engine"
	"github.com/signalsfoundry/meteor-showers/internal/config"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/internal/notify"
	"github.com/signalsfoundry/meteor-showers/internal/observability"
	"github.com/signalsfoundry/meteor-showers/stream"
	"github.com/signalsfoundry/meteor-showers/timectrl"
	"github.com/signalsfoundry/meteor-showers/update"
)

// runtime is the assembled engine and the collaborators the commands need
// direct access to.
type runtime struct {
	cfg     config.Config
	engine  *engine.Engine
	store   *catalog.Store
	updater *update.Coordinator
}

// buildRuntime installs the catalog on disk, loads the persisted settings and
// assembles the engine. collector may be nil.
func buildRuntime(ctx context.Context, cfg config.Config, log logging.Logger, collector *observability.Collector, start time.Time) (*runtime, error) {
	storeOpts := []catalog.StoreOption{catalog.WithLogger(log)}
	if collector != nil {
		storeOpts = append(storeOpts, catalog.WithMetricsRecorder(collector))
	}
	store := catalog.NewStore(storeOpts...)
	if err := store.Install(cfg.CatalogFile); err != nil {
		return nil, fmt.Errorf("installing catalog: %w", err)
	}
	log.Info(ctx, "catalog installed",
		logging.String("path", cfg.CatalogFile),
		logging.String("version", store.Version()),
		logging.Int("showers", len(store.Showers())),
	)

	settings, err := update.LoadSettings(cfg.SettingsFile)
	if err != nil {
		// Settings errors never stop the engine.
		log.Warn(ctx, "invalid update settings; using defaults", logging.String("path", cfg.SettingsFile), logging.Err(err))
	}

	queue := notify.NewQueue(append([]notify.Option{
		notify.WithTimeout(cfg.Notify.MessageTimeout),
		notify.WithLogger(log),
	}, sinkOptions(ctx, cfg.Notify, log)...)...)

	updateOpts := []update.Option{
		update.WithFetcher(update.NewHTTPFetcher(cfg.FetchTimeout)),
		update.WithNotifier(queue),
		update.WithLogger(log),
	}
	if collector != nil {
		updateOpts = append(updateOpts, update.WithMetricsRecorder(collector))
	}
	updater := update.NewCoordinator(store, update.Config{
		CatalogPath:   cfg.CatalogFile,
		SettingsPath:  cfg.SettingsFile,
		CheckInterval: cfg.CheckInterval,
		Settings:      settings,
	}, updateOpts...)

	streamOpts := []stream.Option{stream.WithLogger(log)}
	if cfg.Seed != 0 {
		streamOpts = append(streamOpts, stream.WithSeed(cfg.Seed))
	}
	if collector != nil {
		streamOpts = append(streamOpts, stream.WithMetricsRecorder(collector))
	}
	streams := stream.NewManager(store, start, streamOpts...)

	clock := timectrl.NewTimeController(start, cfg.Tick)
	clock.SetRate(cfg.TimeRate)

	var watcher *catalog.Watcher
	if cfg.WatchCatalog {
		watcher, err = catalog.NewWatcher(cfg.CatalogFile, store, log)
		if err != nil {
			log.Warn(ctx, "catalog watcher unavailable", logging.Err(err))
			watcher = nil
		}
	}

	e := engine.New(engine.Components{
		Store:    store,
		Updater:  updater,
		Streams:  streams,
		Clock:    clock,
		Messages: queue,
		Watcher:  watcher,
		Logger:   log,
	})
	return &runtime{cfg: cfg, engine: e, store: store, updater: updater}, nil
}

// sinkOptions connects the configured external notification sinks. A sink
// that cannot be reached at startup is skipped.
func sinkOptions(ctx context.Context, cfg config.NotifyConfig, log logging.Logger) []notify.Option {
	var opts []notify.Option
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, notify.WithSink(notify.NewRedisSink(client, cfg.RedisChannel)))
		log.Info(ctx, "forwarding update messages to redis", logging.String("addr", cfg.RedisAddr), logging.String("channel", cfg.RedisChannel))
	}
	if len(cfg.KafkaBrokers) > 0 {
		opts = append(opts, notify.WithSink(notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)))
		log.Info(ctx, "forwarding update messages to kafka", logging.String("topic", cfg.KafkaTopic))
	}
	if cfg.AMQPURL != "" {
		sink, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			log.Warn(ctx, "amqp sink unavailable", logging.Err(err))
		} else {
			opts = append(opts, notify.WithSink(sink))
			log.Info(ctx, "forwarding update messages to amqp", logging.String("queue", cfg.AMQPQueue))
		}
	}
	return opts
}
