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
	"strings"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/control"
)

var ErrUnknownCommand = errors.New("telemetry: unknown command")

// ParseCommand decodes one host command:
//
//	#o0 #o1 #o2 #o3  output mode angles / sensors / gait / all
//	#c1 #c0          calibration on / off
//	#r               re-align
//	#s               status frame
//	#b               baud lock
func ParseCommand(s string) (control.Command, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 3 && strings.HasPrefix(s, "#o"):
		mode := control.OutputMode(s[2] - '0')
		if mode < control.OutputAngles || mode > control.OutputAll {
			break
		}
		return control.Command{Kind: control.CmdOutputMode, Mode: mode}, nil
	case s == "#c1":
		return control.Command{Kind: control.CmdCalibrate, On: true}, nil
	case s == "#c0":
		return control.Command{Kind: control.CmdCalibrate, On: false}, nil
	case s == "#r":
		return control.Command{Kind: control.CmdRealign}, nil
	case s == "#s":
		return control.Command{Kind: control.CmdStatus}, nil
	case s == "#b":
		return control.Command{Kind: control.CmdBaudLock}, nil
	}
	return control.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// FormatCommand is the inverse of ParseCommand.
func FormatCommand(c control.Command) (string, error) {
	switch c.Kind {
	case control.CmdOutputMode:
		if c.Mode < control.OutputAngles || c.Mode > control.OutputAll {
			return "", fmt.Errorf("%w: output mode %v", ErrUnknownCommand, c.Mode)
		}
		return fmt.Sprintf("#o%d", int(c.Mode)), nil
	case control.CmdCalibrate:
		if c.On {
			return "#c1", nil
		}
		return "#c0", nil
	case control.CmdRealign:
		return "#r", nil
	case control.CmdStatus:
		return "#s", nil
	case control.CmdBaudLock:
		return "#b", nil
	}
	return "", fmt.Errorf("%w: %v", ErrUnknownCommand, c.Kind)
}

// ReadCommands scans newline separated commands from r and forwards the valid
// ones until ctx is done or r fails.
func ReadCommands(ctx context.Context, r io.Reader, out chan<- control.Command, log *zap.Logger) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			log.Warn("[telemetry] ignoring command", zap.Error(err))
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}
