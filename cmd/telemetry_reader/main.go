// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Host side decoder for the producer's serial frames.
package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/app"
	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/logger"
)

func main() {
	configPath := flag.String("config", "gait_config.txt", "path to the KEY=VALUE configuration file")
	port := flag.String("port", "", "serial port (default COMM_PORT)")
	baud := flag.Int("baud", 0, "baud rate (default COMM_BAUD)")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()
	zl, err := logger.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	if *port == "" {
		*port = cfg.CommPort
	}
	if *baud == 0 {
		*baud = cfg.CommBaud
	}
	if *port == "" {
		zl.Fatal("[main] no serial port: pass -port or set COMM_PORT")
	}

	if err := app.RunTelemetryReader(zl, *port, *baud); err != nil {
		zl.Fatal("[main] fatal", zap.Error(err))
	}
}
