package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/growatt2mqtt/internal/adapter/actor"
	"github.com/berfenger/growatt2mqtt/internal/config"
	"github.com/berfenger/growatt2mqtt/internal/core/actor"
	"github.com/berfenger/growatt2mqtt/internal/core/domain"
	"github.com/berfenger/growatt2mqtt/internal/core/service"
	"github.com/berfenger/growatt2mqtt/internal/metrics"
	"github.com/berfenger/growatt2mqtt/internal/mqtt"
	"github.com/berfenger/growatt2mqtt/internal/server"
	"github.com/berfenger/growatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/growatt2mqtt/pkg/growatt_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("growatt2mqtt starting", zap.String("version", versioninfo.Short()))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	m := metrics.New()
	translator := service.NewGrowattRegisterTranslator()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusActorProvider(cfg, m, logger), mqttActorProvider(cfg, m, logger),
			translator, m, logger)
	}, pactor.WithSupervisor(actor.MasterSupervisor(logger)))
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not start actor system", zap.Error(err))
		os.Exit(1)
	}

	server := server.NewServer(*cfg, ctx, pid, m, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, logger, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done

	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("actor system did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
	logger.Info("graceful shutdown complete")
}

func modbusActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) actor.ModbusActorProvider {

	inv := growatt_modbus.CreateGrowattModbusClient(growatt_modbus.ClientConfig{
		Host:    cfg.InverterModbusTcp.Host,
		Port:    cfg.InverterModbusTcp.Port,
		UnitId:  uint8(cfg.InverterModbusTcp.UnitId),
		Timeout: cfg.InverterModbusTcp.Timeout(),
	}, logger, m.ModbusInstrument())

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(inv, cfg.InverterModbusTcp.Timeout(), logger)
	}
}

func mqttActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, mqtt.NewSessionProvider(cfg), es, m, logger)
	}
}
