// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.NewLogger(config.Get().LogFile)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("[main] starting gait console (MQTT subscriber)")
	if err := app.RunConsoleMQTT(zl); err != nil {
		zl.Fatal("[main] fatal", zap.Error(err))
	}
}
