// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Reader decodes frames from a byte stream. On a bad frame it drops one byte
// and tries again at the next offset.
type Reader struct {
	src     *bufio.Reader
	out     chan<- Packet
	log     *zap.Logger
	name    string
	resyncs uint64
}

func NewReader(r io.Reader, name string, out chan<- Packet, log *zap.Logger) *Reader {
	return &Reader{
		src:  bufio.NewReaderSize(r, 4*MaxFrame),
		out:  out,
		log:  log,
		name: name,
	}
}

// OpenSerialReader opens a host side port for reading frames.
func OpenSerialReader(portName string, baud int, out chan<- Packet, log *zap.Logger) (*Reader, io.Closer, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, nil, err
	}
	return NewReader(port, portName, out, log), port, nil
}

// Resyncs counts bytes dropped while hunting for a frame boundary.
func (r *Reader) Resyncs() uint64 {
	return r.resyncs
}

// ReadPacket returns the next frame. A FrameError or checksum error means one
// byte was consumed; the caller may simply call again.
func (r *Reader) ReadPacket() (Packet, error) {
	head, err := r.src.Peek(lengthField)
	if err != nil {
		return Packet{}, err
	}
	n, err := FrameLength(head)
	if err != nil {
		r.skip()
		return Packet{}, err
	}
	frame, err := r.src.Peek(n)
	if err != nil {
		return Packet{}, err
	}
	p, err := Unmarshal(frame)
	if err != nil {
		r.skip()
		return Packet{}, err
	}
	if _, err := r.src.Discard(n); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func (r *Reader) skip() {
	r.src.Discard(1)
	r.resyncs++
}

// Run forwards frames to the output channel until ctx is done or the stream
// ends. The channel is closed on return.
func (r *Reader) Run(ctx context.Context) error {
	defer close(r.out)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("[telemetry] exiting read loop", zap.String("port", r.name))
			return nil
		default:
		}

		p, err := r.ReadPacket()
		if err != nil {
			var fe *FrameError
			switch {
			case errors.As(err, &fe):
				r.log.Debug("[telemetry] resyncing", zap.String("port", r.name), zap.String("reason", fe.Reason), zap.Binary("bytes", fe.Bytes))
				continue
			case errors.Is(err, ErrChecksum):
				r.log.Warn("[telemetry] dropping frame", zap.String("port", r.name), zap.Error(err))
				continue
			case errors.Is(err, io.ErrNoProgress):
				continue
			case errors.Is(err, io.EOF):
				return nil
			}
			return err
		}

		select {
		case r.out <- p:
		case <-ctx.Done():
			return nil
		}
	}
}
