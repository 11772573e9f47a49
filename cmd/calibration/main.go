// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Guided accelerometer and gyro calibration. Requires a running
// gait_producer; the producer collects the samples and saves the result to
// CALIBRATION_FILE.
package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/app"
	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/logger"
)

func main() {
	configPath := flag.String("config", "gait_config.txt", "path to the KEY=VALUE configuration file")
	wait := flag.Duration("wait", 10*time.Second, "how long to wait for the producer's result")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.NewLogger(config.Get().LogFile)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("[main] starting guided calibration")
	if err := app.RunCalibrationCLI(zl, *wait); err != nil {
		if errors.Is(err, app.ErrInterrupted) {
			zl.Warn("[main] producer is still collecting; send #c0 or rerun to finish")
		}
		zl.Fatal("[main] calibration failed", zap.Error(err))
	}
}
