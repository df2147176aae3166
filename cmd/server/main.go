package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yegors/co-rwsl/internal/adsb"
	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/api"
	"github.com/yegors/co-rwsl/internal/config"
	"github.com/yegors/co-rwsl/internal/monitor"
	"github.com/yegors/co-rwsl/internal/recorder"
	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/internal/simulation"
	"github.com/yegors/co-rwsl/internal/storage/sqlite"
	"github.com/yegors/co-rwsl/internal/wake"
	"github.com/yegors/co-rwsl/internal/websocket"
	"github.com/yegors/co-rwsl/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Co-RWSL server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Airport layout
	airportCfg, err := airport.Load(cfg.Airport.Path)
	if err != nil {
		log.Error("Failed to load airport", logger.Error(err), logger.String("path", cfg.Airport.Path))
		os.Exit(1)
	}
	geom, err := airport.NewGeometry(airportCfg, log)
	if err != nil {
		log.Error("Failed to build airport geometry", logger.Error(err))
		os.Exit(1)
	}

	var engineOpts []rwsl.Option
	if cfg.Airport.WakeCatalogPath != "" {
		catalog, err := wake.LoadCSV(cfg.Airport.WakeCatalogPath)
		if err != nil {
			log.Error("Failed to load wake catalog", logger.Error(err), logger.String("path", cfg.Airport.WakeCatalogPath))
			os.Exit(1)
		}
		log.Info("Loaded wake catalog", logger.Int("types", catalog.Len()))
		engineOpts = append(engineOpts, rwsl.WithWakeCatalog(catalog))
	}

	engine := rwsl.NewEngine(geom, rwsl.Config{
		CycleBudget:    cfg.Engine.CycleBudget(),
		GridCellSize:   cfg.Engine.GridCellSize,
		HistoryWindow:  cfg.Engine.HistoryWindow(),
		HistorySamples: cfg.Engine.HistorySamples,
	}, log, engineOpts...)

	monitorOpts := []monitor.Option{}

	// Event history
	var history *sqlite.EventStorage
	if cfg.Storage.Enabled {
		now := time.Now()
		removed, err := sqlite.PruneDaily(cfg.Storage.SQLiteBasePath, cfg.Storage.RetentionDays, now, log)
		if err != nil {
			log.Warn("Failed to prune old databases", logger.Error(err))
		} else if len(removed) > 0 {
			log.Info("Pruned old databases", logger.Strings("paths", removed))
		}

		dbPath := sqlite.DailyPath(cfg.Storage.SQLiteBasePath, now)
		log.Info("Using daily database", logger.String("path", dbPath))

		db, err := sqlite.Open(dbPath)
		if err != nil {
			log.Error("Failed to open database", logger.Error(err), logger.String("path", dbPath))
			os.Exit(1)
		}
		history, err = sqlite.NewEventStorage(db, log)
		if err != nil {
			log.Error("Failed to create event storage", logger.Error(err))
			os.Exit(1)
		}
		defer history.Close()
		monitorOpts = append(monitorOpts, monitor.WithEventStore(history))
	} else {
		log.Info("Event history disabled")
	}

	// Black-box recorder
	if cfg.Recorder.Enabled {
		rec, err := recorder.New(cfg.Recorder.Dir, cfg.Recorder.Level, log)
		if err != nil {
			log.Error("Failed to create recorder", logger.Error(err))
			os.Exit(1)
		}
		defer rec.Close()
		monitorOpts = append(monitorOpts, monitor.WithRecorder(rec))
		log.Info("Recording cycles", logger.String("dir", cfg.Recorder.Dir))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsServer := websocket.NewServer(cfg.WebSocket.SendBuffer, log)
	go wsServer.Run(ctx)

	simulationService := simulation.NewService(log)
	simulationService.SetFieldElevation(airportCfg.ElevationFt)

	adsbClient := adsb.NewClient(
		cfg.ADSB.SourceType,
		cfg.ADSB.SourceURL(),
		cfg.ADSB.FilePath,
		cfg.ADSB.Timeout(),
		log,
	)

	alertSeverity, _ := rwsl.ParseSeverity(cfg.Engine.AlertSeverity)
	monitorOpts = append(monitorOpts,
		monitor.WithWebSocket(wsServer),
		monitor.WithSimulator(simulationService),
	)
	monitorService := monitor.NewService(engine, adsbClient, monitor.Config{
		Interval:       cfg.ADSB.FetchInterval(),
		MaxPositionAge: cfg.ADSB.MaxPositionAge(),
		FieldElevation: airportCfg.ElevationFt,
		AlertSeverity:  alertSeverity,
		HealthEvery:    cfg.Storage.HealthEvery,
		FlushEvery:     cfg.Recorder.FlushEvery,
	}, log, monitorOpts...)

	wsServer.SetMessageHandler(monitor.NewWebSocketHandler(monitorService, log))

	if err := monitorService.Start(ctx); err != nil {
		log.Error("Failed to start RWSL monitor", logger.Error(err))
		os.Exit(1)
	}

	router := api.NewRouter(monitorService, history, simulationService, wsServer, cfg, log)
	handler := router.Routes()

	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop the loop first so the recorder and history see the last cycle
	monitorService.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	log.Info("Server fully stopped")
}
