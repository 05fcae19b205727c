package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/telemetry-uplink/cmd/uplink/app"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var configPath, connect string
	var stdinStop bool
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&connect, "connect", "", "Vehicle connection target, e.g. udp:127.0.0.1:14550 (default: simulator)")
	flag.BoolVar(&stdinStop, "stdin-stop", false, "Stop when Enter is pressed")
	flag.Parse()

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	if connect != "" {
		config.Vehicle.Connect = connect
	}

	logger, logFile := app.NewLogger(&config.Settings, os.Stdout)
	defer logFile.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if stdinStop {
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			logger.Info("stop requested from stdin")
			cancel()
		}()
	}

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		_ = logFile.Close()
		os.Exit(1)
	}
}
