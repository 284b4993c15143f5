// PumaGuard presence core.
//
// This is the entry point for the device presence and heartbeat service.
// It tracks the trail cameras and smart plugs on the PumaGuard network:
//   - DHCP lease events announce devices as they join and leave
//   - Periodic ICMP/TCP probes confirm they are still reachable
//   - Stale devices are evicted after a per-kind retention window
//
// Changes are streamed to the UI over SSE and WebSocket, and optionally
// mirrored to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/api"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/dhcp"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/heartbeat"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/identity"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/config"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/influxdb"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/logging"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/mqtt"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/metrics"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/plug"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/presence"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/retention"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/statefile"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/stream"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting PumaGuard presence core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
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

	// Metrics first so every component can record into them.
	m := metrics.New()

	// Settings and device state from the state file
	store := settings.NewStore(settings.Defaults(cfg.Heartbeat))
	state := statefile.New(cfg.State.Path)
	state.SetLogger(log.Component("statefile"))
	state.SetSettings(store)

	loaded, err := state.Load()
	if err != nil {
		return fmt.Errorf("loading state file: %w", err)
	}
	if loadErr := store.Load(loaded.Settings(store.All())); loadErr != nil {
		log.Warn("ignoring invalid persisted settings", "error", loadErr)
	}

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))
	registry.Load(loaded.Devices, loaded.History)
	registry.SetPersister(state)
	m.WatchDevices(registry.GetStats)

	// Settings changes are written with the next snapshot.
	store.OnChange(func(device.Kind, settings.Kind) {
		registry.Persist(context.Background())
	})

	// Change stream
	bus := stream.NewBroadcaster(cfg.WebSocket.SendBuffer)
	bus.SetLogger(log.Component("stream"))
	bus.SetRecorder(m)
	registry.SetPublisher(bus)

	// DHCP ingestion
	resolver := identity.NewResolver(registry, identity.Patterns{
		device.KindCamera: cfg.Identity.CameraPatterns,
		device.KindPlug:   cfg.Identity.PlugPatterns,
	})
	ingester := dhcp.NewIngester(registry, resolver)
	ingester.SetLogger(log.Component("dhcp"))
	ingester.SetRecorder(m)

	// Plug control and the operator facade
	plugClient := plug.NewClient(time.Duration(cfg.Plug.Timeout) * time.Second)
	service := presence.NewService(registry, plugClient)
	service.SetLogger(log.Component("presence"))
	service.SetRecorder(m)

	checks := map[string]api.HealthChecker{}
	var wg sync.WaitGroup
	defer wg.Wait()

	// Background workers stop when runCtx is cancelled, before the
	// infrastructure clients they write to are closed.
	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	observers := heartbeat.Observers{m}

	// MQTT (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks["mqtt"] = mqttClient

		mirror := presence.NewMQTTMirror(bus, mqttClient, mqttClient.Topics())
		mirror.SetLogger(log.Component("mqtt-mirror"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			mirror.Run(runCtx)
		}()

		source := dhcp.NewSource(ingester, mqttClient, mqttClient.Topics().DHCPEvent())
		if startErr := source.Start(runCtx); startErr != nil {
			return fmt.Errorf("starting DHCP MQTT source: %w", startErr)
		}
		defer func() {
			if stopErr := source.Stop(); stopErr != nil {
				log.Warn("error stopping DHCP MQTT source", "error", stopErr)
			}
		}()
		log.Info("DHCP events subscribed", "topic", mqttClient.Topics().DHCPEvent())
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		checks["influxdb"] = influxClient

		mirror := presence.NewInfluxMirror(bus, influxClient)
		observers = append(observers, mirror)
		wg.Add(1)
		go func() {
			defer wg.Done()
			mirror.Run(runCtx)
		}()
	}

	// Heartbeat probers, one per kind
	checker := heartbeat.NewMethodChecker()
	policy := retention.NewPolicy(registry)
	policy.SetLogger(log.Component("retention"))
	policy.SetRecorder(m)

	for _, kind := range device.Kinds() {
		p := heartbeat.NewProber(kind, registry, store, checker, policy)
		p.SetLogger(log.Component("heartbeat"))
		p.SetObserver(observers)
		p.SetConcurrency(cfg.Heartbeat.Concurrency)
		service.AddChecker(p)

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(runCtx)
		}()
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Registry:    registry,
		Service:     service,
		Ingester:    ingester,
		Settings:    store,
		Broadcaster: bus,
		Prometheus:  m.Handler(),
		Checks:      checks,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", registry.Count(),
		"state_file", state.Path(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	stopWorkers()
	bus.Close()
	wg.Wait()

	// Final snapshot so the last probe results survive a restart.
	registry.Persist(context.Background())

	log.Info("PumaGuard presence core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PUMAGUARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PUMAGUARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
