package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "paneldash/internal/adapter/actor"
	"paneldash/internal/config"
	"paneldash/internal/core/actor"
	"paneldash/internal/core/domain"
	"paneldash/internal/core/events"
	"paneldash/internal/core/service"
	"paneldash/internal/crashlog"
	"paneldash/internal/entity"
	"paneldash/internal/ha"
	"paneldash/internal/mem"
	"paneldash/internal/serial"
	"paneldash/internal/server"
	"paneldash/internal/ui"
	"paneldash/internal/util/actorutil"
	"paneldash/internal/watchdog"
	"paneldash/internal/wifi"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const externalPoolLimit = 512 * 1024

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	startedAt := time.Now()

	// crash history
	crashStore, err := crashlog.Open(cfg.CrashLog.Path, cfg.CrashLog.MaxEntries)
	if err != nil {
		logger.Fatal("crashlog open failed", zap.Error(err))
	}
	if err := crashlog.InspectBoot(context.Background(), crashStore, logger); err != nil {
		logger.Fatal("crashlog boot inspection failed", zap.Error(err))
	}

	// watchdog over the sync plane
	wd := watchdog.New(logger, func(task string) {
		logger.Error("watchdog starvation, exiting", zap.String("task", task))
		_ = crashStore.Record(context.Background(), crashlog.Entry{
			Uptime: time.Since(startedAt),
			Reason: fmt.Sprintf("watchdog starvation: %s", task),
		})
		_ = crashStore.Close()
		os.Exit(2)
	})
	// one subscription per long-lived worker so a busy component cannot
	// mask another's starvation
	httpTask := wd.Register("http_client", 60*time.Second)
	parseTask := wd.Register("parse_worker", 60*time.Second)
	syncTask := wd.Register("sync", 90*time.Second)
	wd.Start(5 * time.Second)
	defer wd.Stop()

	// memory tiers
	external := mem.NewExternal(externalPoolLimit)

	// display plane
	gate := ui.NewGate()
	registry := ui.NewRegistry()
	dashboard := ui.NewDashboard(gate, registry, cfg.HomeAssistant.Entities, logger)
	uiWorker := ui.NewWorker(gate, ui.NopDisplay{})

	eventStream := &eventstream.EventStream{}
	subscriber := ui.NewSubscriber(dashboard, eventStream, logger)

	// sync plane
	parseWorker := entity.NewWorker(external, parseTask.Keepalive(), logger)
	parseWorker.Start()
	defer parseWorker.Stop()

	cache := entity.NewCache(cfg.HomeAssistant.Entities.SwitchIDs())

	status := service.NewStatusTracker(logger)
	status.RegisterCallback(func(ready, syncing bool, text string) {
		eventStream.Publish(events.CoordinatorStatusToUpdateEvent(ready, syncing, text))
	})

	// wifi lifecycle
	wifiDriver := wifi.NewProbeDriver(cfg.HomeAssistant.Host, cfg.HomeAssistant.Port, cfg.Wifi.SSID)
	wifiManager := wifi.NewManager(cfg.Wifi, wifiDriver, logger)

	haClient, haClientErr := ha.NewClient(cfg.HomeAssistant, logger,
		ha.WithAllocator(external),
		ha.WithKeepalive(httpTask.Keepalive()),
		ha.WithLinkCheck(wifiManager.Associated),
		ha.WithRetryNotify(status.MarkSyncing))
	if haClientErr != nil {
		logger.Error("smart home client init failed, running dashboard only", zap.Error(haClientErr))
	}

	// serial telemetry
	ingestor := serial.NewIngestor(cfg.Serial, logger)
	ingestor.RegisterDataCallback(func(rec serial.Record) {
		eventStream.Publish(events.TelemetryToUpdateEvent(rec))
	})
	ingestor.RegisterConnectionCallback(func(connected bool) {
		eventStream.Publish(events.SerialLinkToUpdateEvent(connected))
		if !connected {
			eventStream.Publish(events.TelemetryResetToEvent())
		}
	})

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	// without a configured smart home the coordinator never spawns, but the
	// telemetry and display planes still run
	var pid *pactor.PID
	if haClientErr == nil {
		restProv := func() *adactor.RestActor {
			return adactor.NewRestActor(haClient, logger)
		}
		coordProv := func(restActor *pactor.PID, es *eventstream.EventStream) pactor.Actor {
			return actor.NewCoordinatorActor(cfg, restActor, es, cache, parseWorker, status, external, syncTask.Keepalive(), logger)
		}

		props := pactor.PropsFromProducer(func() pactor.Actor {
			return actor.NewMasterActor(*cfg, eventStream, restProv, coordProv, logger)
		})
		pid, err = ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
		if err != nil {
			logger.Fatal("master spawn failed", zap.Error(err))
		}

		// touch intents flow from the display into the actor plane
		registry.RegisterSmartHomeCallbacks(ui.SmartHomeCallbacks{
			Switch: func(entityID string, on bool) {
				ctx.Send(pid, domain.SwitchCommandRequest{EntityID: entityID, On: on})
			},
			Scene: func() {
				ctx.Send(pid, domain.SceneTriggerRequest{})
			},
		})
	}

	wifiManager.RegisterConnectedOnce(func() {
		logger.Info("wifi link established", zap.String("ip", wifiManager.Status().IP))
	})

	// wifi edges drive the coordinator
	wifiManager.RegisterStatusCallback(func(connected bool, text string) {
		eventStream.Publish(events.WifiLinkToUpdateEvent(connected, text))
		if pid == nil {
			return
		}
		if connected {
			ctx.Send(pid, domain.WifiUp{})
		} else {
			ctx.Send(pid, domain.WifiDown{})
		}
	})

	subscriber.Start()
	defer subscriber.Stop()
	uiWorker.Start()
	defer uiWorker.Stop()
	ingestor.Start()
	defer ingestor.Stop()

	go func() {
		if err := wifiManager.Connect(); err != nil {
			logger.Warn("initial wifi connect failed", zap.Error(err))
		}
	}()
	defer wifiManager.Stop()

	// 1Hz uptime ticker
	sched := quartz.NewStdScheduler()
	sched.Start(context.Background())
	uptimeJob := job.NewFunctionJob(func(context.Context) (bool, error) {
		eventStream.Publish(events.UptimeToUpdateEvent(ui.FormatUptime(uint64(time.Since(startedAt).Seconds()))))
		return true, nil
	})
	err = sched.ScheduleJob(quartz.NewJobDetail(uptimeJob, quartz.NewJobKey("uptime")),
		quartz.NewSimpleTrigger(1*time.Second))
	if err != nil {
		logger.Fatal("uptime job schedule failed", zap.Error(err))
	}
	defer sched.Stop()

	apiServer := server.NewServer(*cfg, ctx, pid, dashboard, status, wifiManager, parseWorker, crashStore)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, done)

	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if pid != nil {
		ctx.Stop(pid)
	}
	as.Shutdown()

	if err := crashStore.MarkClean(context.Background()); err != nil {
		logger.Warn("clean-shutdown mark failed", zap.Error(err))
	}
	_ = crashStore.Close()
}

func initConfig() (*config.Config, error) {

	// alias PORT => PANELDASH_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PANELDASH_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("paneldash")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix entity ids
	for name, id := range map[string]*string{
		"homeassistant.entities.switch_a": &cfg.HomeAssistant.Entities.SwitchA,
		"homeassistant.entities.switch_b": &cfg.HomeAssistant.Entities.SwitchB,
		"homeassistant.entities.switch_c": &cfg.HomeAssistant.Entities.SwitchC,
		"homeassistant.entities.scene":    &cfg.HomeAssistant.Entities.Scene,
	} {
		if *id == "" {
			continue
		}
		fixed, err := config.CheckEntityID(*id)
		if err != nil {
			return nil, fmt.Errorf("invalid config param %s: %w", name, err)
		}
		*id = fixed
	}

	// check bounds
	if cfg.HomeAssistant.PollIntervalMillis < 1000 {
		return nil, errors.New("config param homeassistant.poll_interval_millis should be >= 1000")
	}
	if cfg.Serial.BaudRate <= 0 {
		return nil, errors.New("config param serial.baud_rate should be > 0")
	}
	if cfg.HomeAssistant.MaxResponseSize <= 0 {
		return nil, errors.New("config param homeassistant.max_response_size should be > 0")
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("serial.device", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", 115200)
	viper.SetDefault("serial.frame_interval_millis", 1000)
	viper.SetDefault("serial.max_frame_size", 4096)
	viper.SetDefault("homeassistant.port", 8123)
	viper.SetDefault("homeassistant.request_timeout_millis", 8000)
	viper.SetDefault("homeassistant.max_response_size", 131072)
	viper.SetDefault("homeassistant.retry_count", 3)
	viper.SetDefault("homeassistant.poll_interval_millis", 30000)
	viper.SetDefault("crash_log.path", "paneldash_crash.db")
	viper.SetDefault("crash_log.max_entries", 5)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.HomeAssistant.Token = "*redacted*"
	cfg.Wifi.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
