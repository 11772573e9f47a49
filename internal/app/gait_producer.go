// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
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
	"github.com/relabs-tech/gait_computer/internal/imu"
	"github.com/relabs-tech/gait_computer/internal/sensors"
	"github.com/relabs-tech/gait_computer/internal/telemetry"
)

// Publisher sends one JSON payload.
type Publisher interface {
	Publish(topic string, v any) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", topic, err)
	}
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

func connectMQTT(cfg *config.Config, clientID string, log *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	log.Info("[mqtt] connected", zap.String("broker", cfg.MQTTBroker), zap.String("clientID", clientID))
	return client, nil
}

const commandQueue = 16

// GaitProducer drives the scheduler from a sample source and fans the
// results out to MQTT and, when a COMM port is configured, to the host.
type GaitProducer struct {
	cfg   *config.Config
	log   *zap.Logger
	sched *control.Scheduler
	pub   Publisher
	tx    *telemetry.Writer
	cmds  chan control.Command

	lastLed bool
}

// NewGaitProducer wires a scheduler. tx may be nil.
func NewGaitProducer(cfg *config.Config, consts calibration.Constants, pub Publisher, tx *telemetry.Writer, log *zap.Logger) (*GaitProducer, error) {
	sched, err := control.NewScheduler(cfg, consts, log)
	if err != nil {
		return nil, err
	}
	return &GaitProducer{
		cfg:   cfg,
		log:   log,
		sched: sched,
		pub:   pub,
		tx:    tx,
		cmds:  make(chan control.Command, commandQueue),
	}, nil
}

// Scheduler exposes the pipeline for inspection.
func (p *GaitProducer) Scheduler() *control.Scheduler {
	return p.sched
}

// Commands is where other goroutines hand over host commands.
func (p *GaitProducer) Commands() chan<- control.Command {
	return p.cmds
}

// Submit queues a command without blocking. It reports false when the queue
// is full.
func (p *GaitProducer) Submit(cmd control.Command) bool {
	select {
	case p.cmds <- cmd:
		return true
	default:
		p.log.Warn("[producer] command queue full", zap.Stringer("kind", cmd.Kind))
		return false
	}
}

// Step applies queued commands, then runs one tick. A read error skips the
// tick.
func (p *GaitProducer) Step(ts int64, raw imu.IMURaw, readErr error) (control.TickResult, bool) {
	p.applyPending()
	if readErr != nil {
		p.sched.SkipTick(readErr)
		return control.TickResult{}, false
	}
	r := p.sched.Tick(ts, raw)
	p.emit(r)
	return r, true
}

// Run ticks at TIME_SR until ctx is done.
func (p *GaitProducer) Run(ctx context.Context, src sensors.IMURawReader) error {
	period := time.Duration(float64(time.Second) / p.cfg.TimeSR)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	p.log.Info("[producer] starting tick loop", zap.Duration("period", period))
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			st := p.sched.State()
			p.log.Info("[producer] stopping", zap.Uint64("ticks", st.Ticks), zap.Uint64("skipped", st.Skipped))
			return nil
		case t := <-ticker.C:
			raw, err := src.ReadRaw()
			ts := int64(t.Sub(start).Seconds() * p.cfg.TimeResolution)
			p.Step(ts, raw, err)
		}
	}
}

func (p *GaitProducer) applyPending() {
	for {
		select {
		case cmd := <-p.cmds:
			p.apply(cmd)
		default:
			return
		}
	}
}

func (p *GaitProducer) apply(cmd control.Command) {
	consts, err := p.sched.Apply(cmd)
	if cmd.Kind != control.CmdCalibrate {
		if err != nil {
			p.log.Warn("[producer] command failed", zap.Stringer("kind", cmd.Kind), zap.Error(err))
		}
		return
	}

	switch {
	case cmd.On:
		p.publish(p.cfg.TopicCalibration, CalibrationMessage{State: CalStateCollecting})
		return
	case err != nil:
		p.publish(p.cfg.TopicCalibration, CalibrationMessage{State: CalStateAborted, Error: err.Error()})
	case consts != nil:
		if p.cfg.CalibrationFile != "" {
			if err := consts.Save(p.cfg.CalibrationFile); err != nil {
				p.log.Error("[producer] failed to save calibration", zap.String("file", p.cfg.CalibrationFile), zap.Error(err))
			} else {
				p.log.Info("[producer] calibration saved", zap.String("file", p.cfg.CalibrationFile))
			}
		}
		p.publish(p.cfg.TopicCalibration, CalibrationMessage{State: CalStateFinished, Samples: consts.Samples, Constants: consts})
	default:
		return
	}

	if p.tx != nil {
		pkt, perr := telemetry.CalibrationResult(consts, err)
		if perr == nil {
			perr = p.tx.Write(pkt)
		}
		if perr != nil {
			p.log.Warn("[producer] calibration frame not sent", zap.Error(perr))
		}
	}
}

func (p *GaitProducer) emit(r control.TickResult) {
	p.publish(p.cfg.TopicPose, r.Pose)
	p.publish(p.cfg.TopicSample, SampleMessage{Timestamp: r.Timestamp, Raw: r.Raw, Sample: r.Sample, LegAccel: r.LegAccel})
	p.publish(p.cfg.TopicGait, GaitMessage{Timestamp: r.Timestamp, Result: r.Gait})

	if r.Gait.Stride != nil {
		s := r.Gait.Stride
		p.log.Info("[producer] stride",
			zap.Int("index", s.Index),
			zap.Float64("duration", s.Duration),
			zap.Float64("speed", s.Speed),
			zap.Float64("cadence", s.Cadence),
		)
		p.publish(p.cfg.TopicStride, StrideMessage{Timestamp: r.Timestamp, StrideSummary: *s})
	}

	if r.Calibrating && r.CalSamples%max(1, int(p.cfg.TimeSR)) == 0 {
		p.publish(p.cfg.TopicCalibration, CalibrationMessage{State: CalStateCollecting, Samples: r.CalSamples})
	}

	// heartbeat: one status message per LED toggle, plus on request
	if r.Status || r.Led != p.lastLed || r.Faults.Any() {
		p.publish(p.cfg.TopicStatus, p.status(r))
	}
	p.lastLed = r.Led

	if p.tx == nil {
		return
	}
	frames, err := telemetry.BuildFrames(r.Mode, r)
	if err == nil {
		err = p.tx.Write(frames...)
	}
	if err != nil {
		p.log.Warn("[producer] telemetry write failed", zap.Error(err))
	}
}

func (p *GaitProducer) status(r control.TickResult) StatusMessage {
	m := StatusMessage{
		Time:    time.Now().Format(time.RFC3339),
		State:   p.sched.State(),
		Aligned: p.sched.Attitude().Aligned,
		Faults:  r.Faults,
	}
	if p.tx != nil {
		m.TelemetrySent = p.tx.Sent()
	}
	return m
}

func (p *GaitProducer) publish(topic string, v any) {
	if err := p.pub.Publish(topic, v); err != nil {
		p.log.Warn("[producer] MQTT publish error", zap.String("topic", topic), zap.Error(err))
	}
}

// RunGaitProducer reads the configured sensor at TIME_SR and publishes the
// pipeline output until interrupted.
func RunGaitProducer(log *zap.Logger) error {
	cfg := config.Get()
	log.Info("[producer] starting gait producer", zap.String("source", cfg.SensorSource), zap.Float64("rate", cfg.TimeSR))

	consts, err := calibration.LoadFile(cfg.CalibrationFile)
	if err != nil {
		log.Warn("[producer] no stored calibration, using configured ranges", zap.Error(err))
		consts = calibration.DefaultConstants(cfg)
	}

	src, closeSrc, err := sensors.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open sensor source: %w", err)
	}
	defer closeSrc()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDProducer, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tx *telemetry.Writer
	var port io.Reader
	if cfg.CommPort != "" {
		rw, err := telemetry.OpenSerial(cfg.CommPort, cfg.CommBaud)
		if err != nil {
			return err
		}
		defer rw.Close()
		tx = telemetry.NewWriter(rw, log)
		port = rw
		log.Info("[producer] host telemetry enabled", zap.String("port", cfg.CommPort), zap.Int("baud", cfg.CommBaud))
	}

	prod, err := NewGaitProducer(cfg, consts, mqttPublisher{client: client}, tx, log)
	if err != nil {
		return err
	}

	if port != nil {
		go func() {
			if err := telemetry.ReadCommands(ctx, port, prod.Commands(), log); err != nil {
				log.Warn("[producer] host command reader stopped", zap.Error(err))
			}
		}()
	}

	token := client.Subscribe(cfg.TopicCommand, 0, func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := telemetry.ParseCommand(string(msg.Payload()))
		if err != nil {
			log.Warn("[producer] ignoring MQTT command", zap.Error(err))
			return
		}
		prod.Submit(cmd)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Info("[producer] listening for commands", zap.String("topic", cfg.TopicCommand))

	return prod.Run(ctx, src)
}
