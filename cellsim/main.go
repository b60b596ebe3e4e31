package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/bus"
	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/config"
	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/logging"
	"github.com/itohio/cellbms/pkg/metrics"
	"github.com/itohio/cellbms/pkg/node"
	"github.com/itohio/cellbms/pkg/protocol"
	"github.com/itohio/cellbms/pkg/settings"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag  = flag.String("config", "cellsim.yaml", "Configuration file path")
		versionFlag = flag.String("protocol", "", "Protocol version override (v4 or legacy)")
		voltageFlag = flag.Float64("voltage", -1, "Initial cell voltage in mV (overrides config)")
		metricsFlag = flag.Bool("metrics", false, "Serve Prometheus metrics")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *versionFlag != "" {
		cfg.Protocol.Version = *versionFlag
	}
	if *voltageFlag >= 0 {
		cfg.Sim.CellVoltage = *voltageFlag
	}
	if *metricsFlag {
		cfg.Metrics.Enabled = true
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("cell module stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	version, err := protocol.ParseVersion(cfg.Protocol.Version)
	if err != nil {
		return err
	}

	medium, closeMedium, err := openMedium(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeMedium()
	store := settings.New(medium, cfg.Storage.Offset, cell.ConfigSize)

	sim := hal.NewSim(&cfg.Sim)
	link := bus.NewSerial(cfg.Serial.Port, cfg.Serial.Baud, bus.DefaultBufferSize, logger.Named("bus"))
	if err := link.Connect(); err != nil {
		return err
	}
	defer link.Close()
	sim.OnFlush(func() {
		if err := link.Flush(); err != nil {
			logger.Warn("flush failed", zap.Error(err))
		}
	})

	core := cell.New(sim, store,
		cell.WithLogger(logger.Named("cell")),
		cell.WithFrameWait(cell.FrameWait(version.FrameSize(), cfg.Serial.Baud)),
	)

	procOpts := []protocol.Option{protocol.WithLogger(logger.Named("protocol"))}
	var cellMetrics *metrics.CellMetrics
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		cellMetrics = metrics.NewCellMetrics(reg)
		procOpts = append(procOpts, protocol.WithObserver(cellMetrics.ObserveFrame))
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer shutdown(srv)
	}

	proc, err := protocol.NewProcessor(version, core, sim, link, procOpts...)
	if err != nil {
		return err
	}

	n := node.New(sim, core, proc, link, &cfg.Control,
		node.WithLogger(logger.Named("node")),
		node.WithSimulator(sim),
	)
	if cellMetrics != nil {
		n.OnCycle(cellMetrics.Observe)
	}

	logger.Info("simulating cell module",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.Baud),
		zap.Stringer("protocol", version),
	)
	return n.Run(ctx)
}

// openMedium returns the emulated EEPROM: a file when configured, memory
// otherwise.
func openMedium(cfg config.StorageConfig) (settings.EEPROM, func(), error) {
	if cfg.File == "" {
		return settings.NewMemory(cfg.Size), func() {}, nil
	}
	f, err := settings.OpenFile(cfg.File, cfg.Size)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Info("serving metrics", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
