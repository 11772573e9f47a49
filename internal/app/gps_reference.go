// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/gps"
)

// StreamFixes reads NMEA lines from r and publishes every completed fix on
// topic. It returns when r is exhausted or fails.
func StreamFixes(r io.Reader, pub Publisher, topic string, log *zap.Logger) error {
	var tracker gps.Tracker
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			fix, ready, perr := tracker.Update(line)
			switch {
			case perr != nil:
				// noisy GPS or partial sentences
				log.Debug("[gps] NMEA parse error", zap.Error(perr), zap.String("line", line))
			case ready:
				if err := pub.Publish(topic, fix); err != nil {
					log.Warn("[gps] publish error", zap.Error(err))
				} else {
					log.Debug("[gps] published fix", zap.Float64("speed", fix.SpeedMS), zap.String("validity", fix.Validity))
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("GPS read error: %w", err)
		}
	}
}

// RunGPSReference publishes the receiver's ground speed on TOPIC_GPS_SPEED.
func RunGPSReference(log *zap.Logger) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDGPS, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Info("[gps] serial port opened", zap.String("port", serialOpts.PortName), zap.Uint("baud", serialOpts.BaudRate))

	return StreamFixes(port, mqttPublisher{client: client}, cfg.TopicGPSSpeed, log)
}
