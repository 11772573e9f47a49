// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gait_computer/internal/config"
)

const (
	screenW    = 128
	screenH    = 64
	lineHeight = 13
)

// ScreenLines returns the text for one of the display contents:
// gait, pose, stride or status.
func ScreenLines(content string, s Snapshot) ([]string, error) {
	switch content {
	case "gait":
		if !s.HaveGait {
			return waiting("Gait"), nil
		}
		g := s.Gait
		lines := []string{
			fmt.Sprintf("%-7s n=%d", g.Phase, g.Strides),
			fmt.Sprintf("P:%6.1f", s.Pose.Pitch),
			fmt.Sprintf("V:%5.2f m/s", g.Velocity.Norm()),
		}
		if st, ok := s.LastStride(); ok {
			lines = append(lines, fmt.Sprintf("%4.2fm/s %3.0f/m", st.Speed, st.Cadence))
		}
		return lines, nil

	case "pose":
		if !s.HavePose {
			return waiting("Orientation"), nil
		}
		return []string{
			fmt.Sprintf("R: %6.1f", s.Pose.Roll),
			fmt.Sprintf("P: %6.1f", s.Pose.Pitch),
			fmt.Sprintf("Y: %6.1f", s.Pose.Yaw),
		}, nil

	case "stride":
		st, ok := s.LastStride()
		if !ok {
			return waiting("Stride"), nil
		}
		lines := []string{
			fmt.Sprintf("#%d %4.2fs", st.Index, st.Duration),
			fmt.Sprintf("%4.2f m/s", st.Speed),
			fmt.Sprintf("%5.1f /min", st.Cadence),
		}
		if s.HaveGPS && s.GPS.Valid() {
			lines = append(lines, fmt.Sprintf("GPS %4.2f m/s", s.GPS.SpeedMS))
		}
		return lines, nil

	case "status":
		if !s.HaveStatus {
			return waiting("Status"), nil
		}
		st := s.Status
		lines := []string{
			fmt.Sprintf("T:%d", st.State.Ticks),
			fmt.Sprintf("skip:%d", st.State.Skipped),
			fmt.Sprintf("out:%s", st.State.OutputMode),
		}
		if st.State.Calibrate {
			lines = append(lines, "CALIBRATING")
		} else if !st.Aligned {
			lines = append(lines, "not aligned")
		}
		return lines, nil
	}
	return nil, fmt.Errorf("unknown display content type: %s", content)
}

func waiting(title string) []string {
	return []string{"", title, "Waiting..."}
}

// RenderLines draws up to four lines of 7x13 text.
func RenderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, screenW, screenH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if (i+1)*lineHeight > screenH {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay shows DISPLAY_CONTENT on an SSD1306 until interrupted.
func RunDisplay(log *zap.Logger) error {
	cfg := config.Get()
	if _, err := ScreenLines(cfg.DisplayContent, Snapshot{}); err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Info("[display] initialized", zap.String("content", cfg.DisplayContent))

	if err := dev.Draw(dev.Bounds(), RenderLines([]string{"", "  Gait Computer", "  starting"}), image.Point{}); err != nil {
		log.Warn("[display] error showing splash", zap.Error(err))
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDDisplay, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	live := NewLive(cfg, log)
	if err := live.Subscribe(client); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Info("[display] starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lines, err := ScreenLines(cfg.DisplayContent, live.Snapshot())
			if err != nil {
				return err
			}
			if err := dev.Draw(dev.Bounds(), RenderLines(lines), image.Point{}); err != nil {
				log.Warn("[display] error updating display", zap.Error(err))
			}
		}
	}
}
