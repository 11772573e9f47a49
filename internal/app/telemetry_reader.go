// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/telemetry"
)

// DescribePacket renders a decoded frame for the terminal.
func DescribePacket(p telemetry.Packet) string {
	v, err := p.Decode()
	if err != nil {
		return fmt.Sprintf("[%-11s] undecodable: %v", p.Type, err)
	}
	switch f := v.(type) {
	case *telemetry.AnglesFrame:
		return fmt.Sprintf("[%-11s] yaw=%7.2f pitch=%7.2f roll=%7.2f", p.Type, f.Yaw, f.Pitch, f.Roll)
	case *telemetry.SensorsFrame:
		return fmt.Sprintf("[%-11s] a=(%7.1f %7.1f %7.1f) g=(%6.3f %6.3f %6.3f)", p.Type,
			f.Accel[0], f.Accel[1], f.Accel[2], f.Gyro[0], f.Gyro[1], f.Gyro[2])
	case *telemetry.GaitFrame:
		return fmt.Sprintf("[%-11s] phase=%d flags=%03b strides=%d v=(%5.2f %5.2f %5.2f)", p.Type,
			f.Phase, f.Flags, f.Strides, f.Velocity[0], f.Velocity[1], f.Velocity[2])
	case *telemetry.StrideFrame:
		return fmt.Sprintf("[%-11s] #%d %.2fs speed=%.2f cadence=%.1f", p.Type, f.Index, f.Duration, f.Speed, f.Cadence)
	case *telemetry.CalibrationFrame:
		return fmt.Sprintf("[%-11s] state=%d n=%d accel off=(%.1f %.1f %.1f)", p.Type,
			f.State, f.Samples, f.AccelOffset[0], f.AccelOffset[1], f.AccelOffset[2])
	case *telemetry.StatusFrame:
		return fmt.Sprintf("[%-11s] ts=%d dt=%.4f mode=%d flags=%02b", p.Type, f.Timestamp, f.GDt, f.Mode, f.Flags)
	case *telemetry.FaultFrame:
		return fmt.Sprintf("[%-11s] flags=%04b skipped=%d %s", p.Type, f.Flags, f.Skipped, f.Message)
	}
	return fmt.Sprintf("[%-11s] % x", p.Type, p.Payload)
}

// RunTelemetryReader decodes frames from a host side serial port and prints
// them until interrupted.
func RunTelemetryReader(log *zap.Logger, portName string, baud int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	packets := make(chan telemetry.Packet, 64)
	reader, port, err := telemetry.OpenSerialReader(portName, baud, packets, log)
	if err != nil {
		return err
	}
	log.Info("[reader] reading frames", zap.String("port", portName), zap.Int("baud", baud))

	errCh := make(chan error, 1)
	go func() { errCh <- reader.Run(ctx) }()

	// closing the port unblocks a pending read
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	for p := range packets {
		fmt.Println(DescribePacket(p))
	}
	err = <-errCh
	log.Info("[reader] stopped", zap.Uint64("resyncs", reader.Resyncs()))
	if ctx.Err() != nil {
		return nil
	}
	return err
}
