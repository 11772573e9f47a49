// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// Writer sends frames to the host.
type Writer struct {
	w    io.Writer
	log  *zap.Logger
	sent uint64
}

func NewWriter(w io.Writer, log *zap.Logger) *Writer {
	return &Writer{w: w, log: log}
}

// OpenSerial opens the COMM port. The returned port is also the source of
// host commands (see ReadCommands).
func OpenSerial(portName string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	return port, nil
}

// Write encodes and sends each packet, stopping at the first failure.
func (w *Writer) Write(pkts ...Packet) error {
	for _, p := range pkts {
		b, err := p.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := w.w.Write(b); err != nil {
			w.log.Warn("[telemetry] write failed", zap.Stringer("type", p.Type), zap.Error(err))
			return err
		}
		w.sent++
	}
	return nil
}

// Sent counts frames written.
func (w *Writer) Sent() uint64 {
	return w.sent
}
