// devicelink keeps one device's MQTT link to a broker up.
//
// It connects over mutual TLS, subscribes to the configured command topics
// on every (re)connect, announces itself with a retained status message,
// journals link events to SQLite, and optionally exports telemetry to
// InfluxDB and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/gray-logic-devicelink/migrations"

	"github.com/nerrad567/gray-logic-devicelink/internal/api"
	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-devicelink/internal/journal"
	"github.com/nerrad567/gray-logic-devicelink/internal/mqttclient"
	"github.com/nerrad567/gray-logic-devicelink/internal/observability"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// Payloads of the retained status announcement.
	announceOnline  = "online"
	announceOffline = "offline"

	// offlineAnnounceTimeout bounds the wait for the broker to acknowledge
	// the offline announcement during shutdown.
	offlineAnnounceTimeout = 2 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // sequential startup of independent components
	log := logging.Default()
	log.Info("starting devicelink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"device_id", cfg.Device.ID,
		"level", cfg.Logging.Level,
	)

	// Link journal
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	events := journal.NewSQLiteRepository(db.DB)
	recorder := journal.NewRecorder(events, log, journal.DefaultBufferSize)
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	var recorderWG sync.WaitGroup
	recorderWG.Add(1)
	go func() {
		defer recorderWG.Done()
		recorder.Run(recorderCtx)
	}()
	defer func() {
		stopRecorder()
		recorderWG.Wait()
		if n := recorder.Dropped(); n > 0 {
			log.Warn("link journal dropped events", "count", n)
		}
	}()

	metrics := observability.NewMetrics()

	opts := []mqttclient.Option{
		mqttclient.WithLogger(log.With("component", "mqttclient")),
		mqttclient.WithTLSFiles(mqtt.TLSFiles{
			CAFile:   cfg.TLS.CAFile,
			CertDir:  cfg.TLS.CertDir,
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
		}),
		mqttclient.WithObserver(recorder),
		mqttclient.WithObserver(metrics),
	}

	// Telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		opts = append(opts, mqttclient.WithObserver(influxdb.NewTelemetry(influxClient, cfg.Device.ID)))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT link
	engine := mqtt.NewPahoEngine(log)
	link, err := mqttclient.New(engine, cfg.Device.ID, cfg.Device.Username, cfg.Device.Password, opts...)
	if err != nil {
		return fmt.Errorf("creating MQTT link: %w", err)
	}
	defer func() {
		log.Info("closing MQTT link")
		link.Close() //nolint:errcheck // always nil
	}()

	// Status server (optional)
	if cfg.HTTP.Enabled {
		srv, srvErr := api.New(api.Deps{
			Config:  cfg.HTTP,
			Logger:  log,
			Link:    link,
			Events:  events,
			Metrics: metrics.Handler(),
			DB:      db,
			Version: version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	topics := mqtt.DeviceTopics{DeviceID: cfg.Device.ID}
	announceTopic := cfg.Announce.Topic
	if announceTopic == "" {
		announceTopic = topics.Status()
	}

	link.SetOnStatus(onStatus(link, cfg, topics, announceTopic, log))

	if err := link.Connect(cfg.Broker.Host, cfg.BrokerPort()); err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	log.Info("MQTT connection requested", "broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port))

	<-ctx.Done()
	log.Info("shutdown signal received")

	if cfg.Announce.Enabled && link.Status().Connected() {
		publishOffline(link, announceTopic, log)
	}

	return nil
}

// onStatus returns the link status callback. On every connection it
// (re)subscribes the command topics and publishes the online announcement.
func onStatus(link *mqttclient.Client, cfg *config.Config, topics mqtt.DeviceTopics, announceTopic string, log *logging.Logger) func(mqttclient.Status) {
	subscriptions := cfg.Subscriptions
	if len(subscriptions) == 0 {
		subscriptions = []string{topics.Command()}
	}

	handler := func(topic, payload string) {
		log.Info("message received", "topic", topic, "payload", payload)
	}

	return func(st mqttclient.Status) {
		if !st.Connected() {
			return
		}

		for _, topic := range subscriptions {
			if err := link.Subscribe(topic, handler); err != nil {
				log.Error("subscribe failed", "topic", topic, "error", err)
			}
		}

		if cfg.Announce.Enabled {
			if err := link.Send(announceTopic, announceOnline); err != nil {
				log.Warn("online announcement failed", "topic", announceTopic, "error", err)
			}
		}
	}
}

// publishOffline publishes the retained offline status and waits briefly
// for the broker to acknowledge it.
func publishOffline(link *mqttclient.Client, topic string, log *logging.Logger) {
	d, err := link.SendTracked(topic, announceOffline)
	if err != nil {
		log.Warn("offline announcement failed", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), offlineAnnounceTimeout)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		log.Warn("offline announcement not acknowledged", "topic", topic, "error", err)
	}
}

// getConfigPath returns DEVICELINK_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("DEVICELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
