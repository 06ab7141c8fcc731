// Command relay forwards the sensing board's serial telemetry to the monitor
// host as UDP datagrams.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/logging"
	"github.com/itohio/govitals/pkg/relay"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial port override (e.g., /dev/ttyUSB0)")
		targetFlag = flag.String("target", "", "Target host:port override")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *targetFlag != "" {
		cfg.Relay.Target = *targetFlag
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "relay")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Relay stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	port, err := serial.Open(cfg.Serial.Port, &serial.Mode{BaudRate: cfg.Serial.BaudRate})
	if err != nil {
		return err
	}
	defer port.Close()

	// Bounded reads keep cancellation responsive; an empty read is not an error.
	if err := port.SetReadTimeout(cfg.Serial.ReadTimeout); err != nil {
		return err
	}
	logger.Info("Opened serial port",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.BaudRate),
	)

	fwd := relay.New(port, cfg.Relay.Target,
		relay.WithChunkSize(cfg.Relay.ChunkSize),
		relay.WithBackoff(cfg.Relay.Backoff),
		relay.WithLogger(logger),
	)
	err = fwd.Run(ctx)

	st := fwd.Stats()
	logger.Info("Relay finished",
		zap.Uint64("chunks", st.Chunks),
		zap.Uint64("bytes", st.Bytes),
		zap.Uint64("send_errors", st.SendErrors),
		zap.Uint64("read_errors", st.ReadErrors),
	)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
