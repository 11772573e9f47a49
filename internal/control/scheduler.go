// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control owns the per-sample pipeline: calibration scaling, filter
// bank, calibration statistics, attitude, gait. It keeps the timing and mode
// bookkeeping and is driven by a single goroutine; commands from other
// goroutines must be handed over and applied between ticks.
package control

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/attitude"
	"github.com/relabs-tech/gait_computer/internal/calibration"
	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/dsp"
	"github.com/relabs-tech/gait_computer/internal/gait"
	"github.com/relabs-tech/gait_computer/internal/imu"
	"github.com/relabs-tech/gait_computer/internal/orientation"
)

// Scheduler runs one tick per sample.
type Scheduler struct {
	cfg *config.Config
	log *zap.Logger

	state     ControlState
	started   bool
	skipped   int
	statusReq bool

	nominalDt float64
	maxDt     float64
	blinkSpan int64

	consts calibration.Constants
	ref    calibration.Reference
	calEst *calibration.Estimator

	bank *dsp.Bank
	att  *attitude.Estimator
	gait *gait.Estimator
}

// NewScheduler builds every stage from the configuration. consts are the
// calibration constants in effect at startup.
func NewScheduler(cfg *config.Config, consts calibration.Constants, log *zap.Logger) (*Scheduler, error) {
	bankCfg, err := BankConfigFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	bank, err := dsp.NewBank(bankCfg)
	if err != nil {
		return nil, fmt.Errorf("filter bank: %w", err)
	}
	attParams, err := attitude.ParamsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("attitude: %w", err)
	}
	mode, err := ParseOutputMode(cfg.OutputMode)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:       cfg,
		log:       log,
		nominalDt: cfg.NominalDt(),
		maxDt:     cfg.MaxDtFactor / cfg.TimeSR,
		blinkSpan: int64(float64(cfg.BlinkRateMS) / 1000 * cfg.TimeResolution),
		consts:    consts,
		ref:       calibration.ReferenceFromConfig(cfg),
		bank:      bank,
		att:       attitude.NewEstimator(attParams),
		gait:      gait.NewEstimator(gait.ParamsFromConfig(cfg)),
	}
	s.state.OutputMode = mode

	log.Info("[control] scheduler ready",
		zap.Float64("rate", cfg.TimeSR),
		zap.Int("taps", int(bankCfg.Taps)),
		zap.Stringer("accelFilter", bankCfg.Accel),
		zap.Stringer("gyroFilter", bankCfg.Gyro),
		zap.Stringer("yawMode", attParams.YawMode),
		zap.Stringer("outputMode", mode),
	)
	return s, nil
}

// BankConfigFromConfig resolves the filter keys.
func BankConfigFromConfig(cfg *config.Config) (dsp.BankConfig, error) {
	accel, err := dsp.ParseKind(cfg.AccelFilter)
	if err != nil {
		return dsp.BankConfig{}, fmt.Errorf("ACCEL_FILTER: %w", err)
	}
	gyro, err := dsp.ParseKind(cfg.GyroFilter)
	if err != nil {
		return dsp.BankConfig{}, fmt.Errorf("GYRO_FILTER: %w", err)
	}
	return dsp.BankConfig{Taps: dsp.TapCount(cfg.FilterTaps), Accel: accel, Gyro: gyro}, nil
}

// State returns a copy of the bookkeeping.
func (s *Scheduler) State() ControlState {
	return s.state
}

// Constants returns the calibration constants in effect.
func (s *Scheduler) Constants() calibration.Constants {
	return s.consts
}

// Attitude exposes the DCM estimator for diagnostics.
func (s *Scheduler) Attitude() attitude.State {
	return s.att.State()
}

// Tick processes one sample taken at ts.
func (s *Scheduler) Tick(ts int64, raw imu.IMURaw) TickResult {
	var faults Faults
	faults.SkippedBefore = s.skipped
	s.skipped = 0

	dt, clamped := s.advance(ts)
	faults.DtClamped = clamped

	scaled := s.consts.Apply(raw)
	filtered := s.bank.Filter(scaled)

	if s.state.Calibrate {
		s.calEst.Add(raw)
	}

	angles, err := s.att.Update(attitude.V3(filtered.Gyro), attitude.V3(filtered.Accel), dt)
	if err != nil {
		faults.Attitude = err.Error()
		s.log.Warn("[control] attitude fault", zap.Error(err), zap.Uint64("tick", s.state.Ticks))
	}

	leg := gait.LegAcceleration(attitude.V3(filtered.Accel), s.att.DCM(), s.cfg.Gravity)
	g := s.gait.Update(angles.Pitch, leg, dt)
	if g.MissedStride {
		faults.MissedStride = true
		s.log.Info("[control] missed stride", zap.Uint64("tick", s.state.Ticks))
	}

	s.blink(ts)
	s.state.Ticks++

	r := TickResult{
		Timestamp:   ts,
		GDt:         dt,
		Raw:         raw,
		Sample:      filtered,
		Angles:      angles,
		Pose:        orientation.PoseFromRadians(angles.Roll, angles.Pitch, angles.Yaw),
		LegAccel:    leg,
		Gait:        g,
		Faults:      faults,
		Mode:        s.state.OutputMode,
		Calibrating: s.state.Calibrate,
		Status:      s.statusReq,
		Led:         s.state.LedState,
	}
	if s.calEst != nil {
		r.CalSamples = s.calEst.N()
	}
	s.statusReq = false
	return r
}

// advance computes G_Dt. The first tick and non-increasing timestamps use
// the nominal period; gaps are clamped to MAX_DT_FACTOR periods.
func (s *Scheduler) advance(ts int64) (dt float64, clamped bool) {
	s.state.TimestampOld = s.state.Timestamp
	s.state.Timestamp = ts

	switch {
	case !s.started:
		s.started = true
		dt = s.nominalDt
	default:
		dt = float64(ts-s.state.TimestampOld) / s.cfg.TimeResolution
		if dt <= 0 {
			s.log.Debug("[control] non-increasing timestamp", zap.Int64("ts", ts), zap.Int64("old", s.state.TimestampOld))
			dt = s.nominalDt
		} else if dt > s.maxDt {
			dt = s.maxDt
			clamped = true
		}
	}
	s.state.GDt = dt
	return dt, clamped
}

func (s *Scheduler) blink(ts int64) {
	if ts-s.state.LastBlink >= s.blinkSpan {
		s.state.LedState = !s.state.LedState
		s.state.LastBlink = ts
	}
}

// SkipTick records a tick lost to a sensor read failure. The timestamp is not
// advanced, so the next G_Dt spans the gap.
func (s *Scheduler) SkipTick(err error) {
	s.skipped++
	s.state.Skipped++
	s.log.Warn("[control] skipping tick", zap.Error(err), zap.Uint64("skipped", s.state.Skipped))
}

// SetCalibrate enters or leaves calibration mode. Leaving returns the new
// constants; on error the previous constants stay in effect.
func (s *Scheduler) SetCalibrate(on bool) (*calibration.Constants, error) {
	if on == s.state.Calibrate {
		return nil, nil
	}
	if on {
		s.calEst = calibration.NewEstimator(s.ref)
		s.state.Calibrate = true
		s.log.Info("[control] calibration started")
		return nil, nil
	}

	est := s.calEst
	s.calEst = nil
	s.state.Calibrate = false

	c, err := est.Finalize(s.ref, s.consts)
	if err != nil {
		s.log.Warn("[control] calibration aborted, keeping previous constants", zap.Error(err), zap.Int("samples", est.N()))
		return nil, err
	}
	s.consts = c
	s.bank.Reset()
	s.att.Reset()
	s.log.Info("[control] calibration finished", zap.Int("samples", c.Samples))
	return &c, nil
}

// SetOutputMode changes the telemetry selector.
func (s *Scheduler) SetOutputMode(m OutputMode) {
	s.state.OutputMode = m
}

// Apply executes a host command. A finished calibration returns its constants.
func (s *Scheduler) Apply(cmd Command) (*calibration.Constants, error) {
	s.log.Debug("[control] command", zap.Stringer("kind", cmd.Kind))
	switch cmd.Kind {
	case CmdOutputMode:
		s.SetOutputMode(cmd.Mode)
	case CmdCalibrate:
		return s.SetCalibrate(cmd.On)
	case CmdRealign:
		s.bank.Reset()
		s.att.Reset()
		s.gait.Reset()
	case CmdStatus:
		s.statusReq = true
	case CmdBaudLock:
		s.state.BaudLock = true
	default:
		return nil, fmt.Errorf("unknown command %v", cmd.Kind)
	}
	return nil, nil
}
