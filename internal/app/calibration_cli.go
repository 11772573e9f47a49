// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/calibration"
	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/control"
	"github.com/relabs-tech/gait_computer/internal/telemetry"
)

// ErrInterrupted is returned when the terminal closes before every pose was
// confirmed. The producer keeps collecting until it receives #c0.
var ErrInterrupted = errors.New("calibration interrupted before all poses were captured")

// GuideCalibration starts calibration mode, prompts for every pose in
// CalibrationSteps on out and waits for Enter on in before moving on. After
// the last pose it stops calibration and waits up to wait for the producer's
// verdict.
func GuideCalibration(ctx context.Context, in io.Reader, out io.Writer, cmd Commander, results <-chan CalibrationMessage, wait time.Duration) (*calibration.Constants, error) {
	send := func(on bool) error {
		text, err := telemetry.FormatCommand(control.Command{Kind: control.CmdCalibrate, On: on})
		if err != nil {
			return err
		}
		return cmd.SendCommand(text)
	}

	if err := send(true); err != nil {
		return nil, fmt.Errorf("failed to start calibration: %w", err)
	}

	scanner := bufio.NewScanner(in)
	for i, st := range CalibrationSteps {
		fmt.Fprintf(out, "[%d/%d] %s, then press Enter\n", i+1, len(CalibrationSteps), st.Prompt)
		if !scanner.Scan() {
			return nil, ErrInterrupted
		}
	}

	// anything received so far belongs to an earlier run
	drain(results)
	if err := send(false); err != nil {
		return nil, fmt.Errorf("failed to stop calibration: %w", err)
	}
	fmt.Fprintln(out, "computing calibration...")

	timeout := time.NewTimer(wait)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, fmt.Errorf("no calibration result after %s", wait)
		case m := <-results:
			switch m.State {
			case CalStateFinished:
				if m.Constants == nil {
					return nil, errors.New("calibration finished without constants")
				}
				return m.Constants, nil
			case CalStateAborted:
				return nil, fmt.Errorf("calibration aborted: %s", m.Error)
			}
		}
	}
}

// RunCalibrationCLI guides a calibration from the terminal through a running
// gait producer.
func RunCalibrationCLI(log *zap.Logger, resultTimeout time.Duration) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole+"-calibration", log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	results := make(chan CalibrationMessage, 16)
	token := client.Subscribe(cfg.TopicCalibration, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m CalibrationMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Warn("[calibration] bad calibration message", zap.Error(err))
			return
		}
		select {
		case results <- m:
		default:
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", cfg.TopicCalibration, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := mqttCommander{client: client, topic: cfg.TopicCommand}
	consts, err := GuideCalibration(ctx, os.Stdin, os.Stdout, cmd, results, resultTimeout)
	if err != nil {
		return err
	}
	fmt.Printf("accel offset: %7.2f %7.2f %7.2f\n", consts.AccelOffset[0], consts.AccelOffset[1], consts.AccelOffset[2])
	fmt.Printf("accel gain:   %7.4f %7.4f %7.4f\n", consts.AccelGain[0], consts.AccelGain[1], consts.AccelGain[2])
	fmt.Printf("gyro offset:  %7.2f %7.2f %7.2f (%d still samples)\n", consts.GyroOffset[0], consts.GyroOffset[1], consts.GyroOffset[2], consts.GyroSamples)
	log.Info("[calibration] saved by producer", zap.String("file", cfg.CalibrationFile))
	return nil
}

func drain(ch <-chan CalibrationMessage) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
