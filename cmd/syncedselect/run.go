package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/synced-select/internal/api"
	"github.com/nerrad567/synced-select/internal/entity"
	"github.com/nerrad567/synced-select/internal/entry"
	"github.com/nerrad567/synced-select/internal/homeassistant"
	"github.com/nerrad567/synced-select/internal/infrastructure/config"
	"github.com/nerrad567/synced-select/internal/infrastructure/database"
	"github.com/nerrad567/synced-select/internal/infrastructure/influxdb"
	"github.com/nerrad567/synced-select/internal/infrastructure/logging"
	"github.com/nerrad567/synced-select/internal/infrastructure/mqtt"
	"github.com/nerrad567/synced-select/migrations"
)

// run is the actual application logic, separated from main for testability.
// It blocks until ctx is cancelled or a background component fails.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Synced Select",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	publisher := entity.NewPublisher(mqttClient, entity.Options{
		Topics:         mqttClient.Topics(),
		QoS:            mqttClient.QoS(),
		Version:        version,
		CommandTimeout: cfg.GetDispatchTimeout(),
	})
	publisher.SetLogger(log.Component("entity"))

	// Connect to InfluxDB (optional)
	recorder, closeInflux, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	defer closeInflux()

	// Home Assistant
	haClient, err := homeassistant.New(cfg)
	if err != nil {
		return fmt.Errorf("creating Home Assistant client: %w", err)
	}
	haClient.SetLogger(log.Component("homeassistant"))
	defer haClient.Close()

	if err := haClient.Connect(ctx); err != nil {
		if errors.Is(err, homeassistant.ErrAuthFailed) {
			return fmt.Errorf("connecting to Home Assistant: %w", err)
		}
		log.Warn("Home Assistant unavailable, will keep retrying", "error", err)
	} else {
		log.Info("Home Assistant connected", "url", cfg.HomeAssistant.URL)
	}

	sources := homeassistant.NewSources(haClient)
	managerDeps := entry.Deps{
		Repo:            entry.NewSQLiteRepository(db.DB),
		States:          sources,
		Tracker:         sources,
		Dispatcher:      sources,
		Candidates:      sources,
		Entities:        publisher,
		ResetDelay:      cfg.GetResetDelay(),
		DispatchTimeout: cfg.GetDispatchTimeout(),
		Logger:          log.Component("entry"),
	}
	if recorder != nil {
		managerDeps.Recorder = recorder
	}
	manager := entry.NewManager(managerDeps)
	defer manager.Close()

	seeded, err := manager.Seed(ctx, cfg.Entries)
	if err != nil {
		return fmt.Errorf("seeding entries: %w", err)
	}
	loaded, err := manager.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}
	log.Info("entries loaded", "seeded", seeded, "loaded", loaded)

	if err := publisher.Start(manager, manager); err != nil {
		return fmt.Errorf("subscribing to entity commands: %w", err)
	}
	defer publisher.Stop()
	// State is not retained, so a broker reconnect republishes everything.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing entities")
		manager.Republish()
	})

	// API server
	apiDeps := api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log.Component("api"),
		Entries:       manager,
		HomeAssistant: haClient,
		MQTT:          mqttClient,
		Version:       version,
	}
	if recorder != nil {
		apiDeps.InfluxDB = recorder
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// A fatal Home Assistant error cancels gctx and stops the API server too.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := haClient.Run(gctx); err != nil {
			return fmt.Errorf("home assistant: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return apiServer.Close()
	})
	err = g.Wait()

	// Deferred Close() calls run in reverse order:
	// entity subscriptions, manager, Home Assistant, InfluxDB, MQTT, database.
	if err != nil {
		log.Error("stopped with error", "error", err)
	} else {
		log.Info("shutdown signal received, cleaning up")
	}
	return err
}

// connectInflux connects the optional telemetry recorder. The returned
// recorder is nil when InfluxDB is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, func(), error) {
	client, err := influxdb.Connect(cfg)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
		return nil, func() {}, nil
	case err != nil:
		return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)

	return client, func() {
		log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}, nil
}
