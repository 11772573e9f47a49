// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/config"
)

// ConsoleLine renders the message that just arrived on topic. Pose and gait
// arrive every tick, so only phase transitions of the gait topic are printed.
func ConsoleLine(cfg *config.Config, topic string, s Snapshot) (string, bool) {
	switch topic {
	case cfg.TopicPose:
		return "", false
	case cfg.TopicGait:
		g := s.Gait
		if !g.HeelStrike && !g.ToeOff && !g.MissedStride {
			return "", false
		}
		event := "TOE-OFF"
		switch {
		case g.HeelStrike:
			event = "HEEL-STRIKE"
		case g.MissedStride:
			event = "MISSED"
		}
		return fmt.Sprintf("[GAIT]  %-11s phase=%-7s pitch=%6.1f  v=(%5.2f %5.2f %5.2f) m/s",
			event, g.Phase, s.Pose.Pitch, g.Velocity.X, g.Velocity.Y, g.Velocity.Z), true
	case cfg.TopicStride:
		st, ok := s.LastStride()
		if !ok {
			return "", false
		}
		line := fmt.Sprintf("[STRD]  #%-4d %5.2fs stance=%3d swing=%3d  speed=%5.2f m/s  cadence=%5.1f/min",
			st.Index, st.Duration, st.StanceTicks, st.SwingTicks, st.Speed, st.Cadence)
		if s.HaveGPS && s.GPS.Valid() {
			line += fmt.Sprintf("  gps=%5.2f m/s", s.GPS.SpeedMS)
		}
		return line, true
	case cfg.TopicStatus:
		st := s.Status
		return fmt.Sprintf("[STAT]  ticks=%d skipped=%d mode=%s aligned=%t calibrating=%t led=%t",
			st.State.Ticks, st.State.Skipped, st.State.OutputMode, st.Aligned, st.State.Calibrate, st.State.LedState), true
	case cfg.TopicCalibration:
		c := s.Calibration
		switch c.State {
		case CalStateFinished:
			if c.Constants == nil {
				break
			}
			k := c.Constants
			return fmt.Sprintf("[CAL ]  finished n=%d accel off=(%.1f %.1f %.1f) gain=(%.4f %.4f %.4f) gyro off=(%.1f %.1f %.1f)",
				c.Samples,
				k.AccelOffset[0], k.AccelOffset[1], k.AccelOffset[2],
				k.AccelGain[0], k.AccelGain[1], k.AccelGain[2],
				k.GyroOffset[0], k.GyroOffset[1], k.GyroOffset[2]), true
		case CalStateAborted:
			return fmt.Sprintf("[CAL ]  aborted: %s", c.Error), true
		}
		return fmt.Sprintf("[CAL ]  %s n=%d", c.State, c.Samples), true
	case cfg.TopicGPSSpeed:
		f := s.GPS
		return fmt.Sprintf("[GPS ]  time=%s speed=%.2f m/s course=%.1f° validity=%s",
			f.Time, f.SpeedMS, f.CourseDeg, f.Validity), true
	}
	return "", false
}

// RunConsoleMQTT prints gait events, strides and status until interrupted.
func RunConsoleMQTT(log *zap.Logger) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	live := NewLive(cfg, log)
	live.OnUpdate(func(topic string, _ []byte) {
		if line, ok := ConsoleLine(cfg, topic, live.Snapshot()); ok {
			fmt.Println(line)
		}
	})
	if err := live.Subscribe(client); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("[console] shutting down")
	return nil
}
