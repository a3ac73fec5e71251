// Command defusald serves the defusal engine over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/DefusalEngine/internal/api"
	"github.com/AaronLay10/DefusalEngine/internal/config"
	"github.com/AaronLay10/DefusalEngine/internal/engine"
	"github.com/AaronLay10/DefusalEngine/internal/events"
	"github.com/AaronLay10/DefusalEngine/internal/modules"
	"github.com/AaronLay10/DefusalEngine/internal/mqtt"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage"
	"github.com/AaronLay10/DefusalEngine/internal/storage/memory"
	"github.com/AaronLay10/DefusalEngine/internal/storage/postgres"
	"github.com/AaronLay10/DefusalEngine/internal/version"
)

const (
	healthInterval  = 2 * time.Second
	monitorInterval = 5 * time.Second
	alertInterval   = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("defusald: %v", err)
	}
}

// loadConfig reads DEFUSAL_CONFIG (default engine.yaml). A missing default
// file means built-in defaults.
func loadConfig() (*config.EngineConfig, error) {
	path := os.Getenv("DEFUSAL_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "engine.yaml"
	}
	cfg, err := config.LoadEngineConfig(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		log.Printf("no %s found, using defaults", path)
		return config.Defaults(), nil
	}
	return cfg, err
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	auth, err := api.AuthFromEnv()
	if err != nil {
		return err
	}
	if !auth.Enabled() {
		log.Printf("WARNING: API authentication disabled (DEFUSAL_ADMIN_USER/PASS not set)")
	}

	bus := events.NewBus(cfg.Events.Buffer)
	readiness := api.NewReadiness()

	// Storage: Postgres when enabled, memory otherwise or when it is down at startup.
	var store storage.Store
	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		dsn, err := cfg.Postgres.DSN()
		if err != nil {
			return err
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err = postgres.New(connectCtx, dsn)
		cancel()
		if err != nil {
			log.Printf("postgres unavailable, falling back to memory store: %v", err)
			pg = nil
		}
	}
	if pg != nil {
		defer pg.Close()
		store = pg
		bus.SetSink(pg)
		readiness.SetPostgres(true, false)
		log.Printf("postgres connected (%s:%d/%s)", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database)
	} else {
		store = memory.New()
	}

	opts := modules.DefaultOptions()
	opts.Morse = cfg.MorseConfig()
	registry, err := modules.NewRegistry(solver.NewCodec(), opts)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng := engine.New(registry, store, bus, engine.NewMetrics(promReg))
	if err := eng.SyncMetrics(ctx); err != nil {
		return err
	}

	server := api.NewServer(eng, auth, readiness, promReg)
	if pg != nil {
		server.SetHistory(pg)
	}

	// MQTT: the onConnect hook resubscribes, since the session is clean.
	monitor := mqtt.NewMonitor(bus, cfg.MQTT.HeartbeatTimeout, 2)
	var transport *mqtt.Transport
	brokerURL := mqtt.BrokerURL(cfg.MQTT.URL)
	client := mqtt.NewClient(brokerURL, cfg.MQTT.ClientID, func() {
		transport.ClearSubscriptions()
		if err := transport.Subscribe(); err != nil {
			log.Printf("mqtt: subscribe failed: %v", err)
			return
		}
		log.Printf("mqtt: connected to %s", brokerURL)
	})
	transport = mqtt.NewTransport(client, eng, bus, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}, monitor)

	bus.Emit(events.LevelInfo, events.SystemStartup, "defusald starting", map[string]interface{}{
		"version":  version.Version,
		"pid":      os.Getpid(),
		"postgres": pg != nil,
		"broker":   brokerURL,
	})

	g, ctx := errgroup.WithContext(ctx)

	reactorDone := engine.NewReactor(eng).Start(ctx)
	readiness.SetEngineReady(true)

	g.Go(func() error {
		if err := client.Connect(); err != nil {
			// Paho keeps retrying in the background.
			log.Printf("mqtt: initial connect to %s failed: %v", brokerURL, err)
		}
		monitor.Start(monitorInterval)
		<-ctx.Done()
		monitor.Stop()
		client.Disconnect()
		return nil
	})

	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.HTTPPort(), api.TLSFromEnv())
	})

	g.Go(func() error {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				readiness.SetMQTT(client.IsConnected(), true)
				if pg != nil {
					pingCtx, cancel := context.WithTimeout(ctx, healthInterval)
					readiness.SetPostgres(pg.Ping(pingCtx) == nil, false)
					cancel()
				}
			}
		}
	})

	alertCfg := api.AlertConfigFromEnv()
	alertCfg.IgnorePostgres = pg == nil
	alerter := api.NewAlerter(alertCfg)
	g.Go(func() error {
		return alerter.Run(ctx, alertInterval, readiness)
	})

	err = g.Wait()
	<-reactorDone

	bus.Emit(events.LevelInfo, events.SystemShutdown, "defusald stopping", nil)
	bus.CloseAllSubscribers()
	log.Printf("defusald stopped")
	return err
}
