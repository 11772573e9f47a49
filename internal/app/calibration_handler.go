// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/control"
	"github.com/relabs-tech/gait_computer/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// CalibrationStep is one pose the user is asked to hold. The producer
// collects min/max continuously while calibrating; the steps make sure every
// accelerometer axis sees +1 g and -1 g, and the still holds give the gyro
// offset.
type CalibrationStep struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

var CalibrationSteps = []CalibrationStep{
	{"still", "Lay the sensor flat and keep it still for 3 seconds"},
	{"accel-z-down", "Turn it upside down and hold it still"},
	{"accel-x-up", "Stand it on its edge, X axis pointing up, and hold it still"},
	{"accel-x-down", "X axis pointing down, hold it still"},
	{"accel-y-up", "Y axis pointing up, hold it still"},
	{"accel-y-down", "Y axis pointing down, hold it still"},
}

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // start, next, finish
}

type WSResponse struct {
	Type     string      `json:"type"` // phase, step, progress, complete, error
	Phase    string      `json:"phase,omitempty"`
	Step     string      `json:"step,omitempty"`
	Index    int         `json:"index,omitempty"`
	Progress float64     `json:"progress,omitempty"`
	Results  interface{} `json:"results,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// CalibrationSession guides one user through the poses and relays the
// producer's calibration messages.
type CalibrationSession struct {
	cfg  *config.Config
	cmd  Commander
	log  *zap.Logger
	conn *websocket.Conn

	mu      sync.Mutex // serializes writes to conn
	running bool
	step    int
}

func (s *CalibrationSession) handle(msg WSMessage) error {
	switch msg.Action {
	case "start":
		if s.running {
			return fmt.Errorf("calibration already running")
		}
		if err := s.send(control.Command{Kind: control.CmdCalibrate, On: true}); err != nil {
			return err
		}
		s.running = true
		s.step = 0
		s.log.Info("[calibration] session started")
		s.sendStep()

	case "next":
		if !s.running {
			return fmt.Errorf("calibration not started")
		}
		if s.step < len(CalibrationSteps) {
			s.step++
		}
		if s.step == len(CalibrationSteps) {
			s.write(WSResponse{Type: "phase", Phase: "ready", Message: "all poses captured, send finish"})
			return nil
		}
		s.sendStep()

	case "finish":
		if !s.running {
			return fmt.Errorf("calibration not started")
		}
		if err := s.send(control.Command{Kind: control.CmdCalibrate, On: false}); err != nil {
			return err
		}
		s.running = false
		s.write(WSResponse{Type: "phase", Phase: "finalizing"})

	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	return nil
}

// relay turns calibration topic events into responses until done closes.
func (s *CalibrationSession) relay(events <-chan LiveEvent, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if ev.Topic != s.cfg.TopicCalibration {
				continue
			}
			var m CalibrationMessage
			if err := json.Unmarshal(ev.Data, &m); err != nil {
				s.log.Warn("[calibration] bad calibration message", zap.Error(err))
				continue
			}
			switch m.State {
			case CalStateCollecting:
				s.write(WSResponse{Type: "progress", Progress: float64(m.Samples), Message: "samples"})
			case CalStateFinished:
				s.write(WSResponse{Type: "complete", Results: m.Constants})
			case CalStateAborted:
				s.write(WSResponse{Type: "error", Message: m.Error})
			}
		}
	}
}

func (s *CalibrationSession) send(cmd control.Command) error {
	text, err := telemetry.FormatCommand(cmd)
	if err != nil {
		return err
	}
	return s.cmd.SendCommand(text)
}

func (s *CalibrationSession) sendStep() {
	st := CalibrationSteps[s.step]
	s.write(WSResponse{Type: "step", Phase: "accel", Step: st.ID, Index: s.step, Message: st.Prompt})
}

func (s *CalibrationSession) write(r WSResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(r); err != nil {
		s.log.Warn("[calibration] websocket write error", zap.Error(err))
	}
}

// handleCalibrationWS runs a calibration session. Closing the socket does not
// leave calibration mode; the producer keeps collecting until "finish".
func (w *webServer) handleCalibrationWS(rw http.ResponseWriter, r *http.Request) {
	events := w.hub.subscribe()
	defer w.hub.unsubscribe(events)

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn("[calibration] websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	s := &CalibrationSession{cfg: w.cfg, cmd: w.cmd, log: w.log, conn: conn}
	done := make(chan struct{})
	defer close(done)
	go s.relay(events, done)

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if s.running {
				w.log.Warn("[calibration] session closed while calibrating", zap.Error(err))
			}
			return
		}
		if err := s.handle(msg); err != nil {
			s.write(WSResponse{Type: "error", Message: err.Error()})
		}
	}
}
