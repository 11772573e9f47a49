// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/gps"
	"github.com/relabs-tech/gait_computer/internal/orientation"
)

const strideHistory = 32

// Snapshot is a copy of the latest values seen on the bus.
type Snapshot struct {
	Pose        orientation.Pose   `json:"pose"`
	HavePose    bool               `json:"have_pose"`
	Gait        GaitMessage        `json:"gait"`
	HaveGait    bool               `json:"have_gait"`
	Strides     []StrideMessage    `json:"strides"` // oldest first
	Status      StatusMessage      `json:"status"`
	HaveStatus  bool               `json:"have_status"`
	Calibration CalibrationMessage `json:"calibration"`
	HaveCal     bool               `json:"have_calibration"`
	GPS         gps.Fix            `json:"gps"`
	HaveGPS     bool               `json:"have_gps"`
}

// LastStride returns the most recent stride, if any.
func (s Snapshot) LastStride() (StrideMessage, bool) {
	if len(s.Strides) == 0 {
		return StrideMessage{}, false
	}
	return s.Strides[len(s.Strides)-1], true
}

// Live caches the producer's topics for the consumers (console, web,
// display). Listeners run on the MQTT goroutine after the cache is updated.
type Live struct {
	cfg *config.Config
	log *zap.Logger

	mu        sync.RWMutex
	snap      Snapshot
	listeners []func(topic string, payload []byte)
}

func NewLive(cfg *config.Config, log *zap.Logger) *Live {
	return &Live{cfg: cfg, log: log}
}

// OnUpdate registers fn for every accepted message.
func (l *Live) OnUpdate(fn func(topic string, payload []byte)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Snapshot copies the cache.
func (l *Live) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.snap
	s.Strides = append([]StrideMessage(nil), l.snap.Strides...)
	return s
}

// Topics lists what Handle understands.
func (l *Live) Topics() []string {
	return []string{
		l.cfg.TopicPose,
		l.cfg.TopicGait,
		l.cfg.TopicStride,
		l.cfg.TopicStatus,
		l.cfg.TopicCalibration,
		l.cfg.TopicGPSSpeed,
	}
}

// Subscribe attaches Handle to the given topics, or to all of Topics.
func (l *Live) Subscribe(client mqtt.Client, topics ...string) error {
	if len(topics) == 0 {
		topics = l.Topics()
	}
	for _, topic := range topics {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := l.Handle(msg.Topic(), msg.Payload()); err != nil {
				l.log.Warn("[live] dropping message", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		l.log.Info("[live] subscribed", zap.String("topic", topic))
	}
	return nil
}

// Handle decodes one message into the cache.
func (l *Live) Handle(topic string, payload []byte) error {
	l.mu.Lock()
	var err error
	switch topic {
	case l.cfg.TopicPose:
		var p orientation.Pose
		if err = json.Unmarshal(payload, &p); err == nil {
			l.snap.Pose, l.snap.HavePose = p, true
		}
	case l.cfg.TopicGait:
		var g GaitMessage
		if err = json.Unmarshal(payload, &g); err == nil {
			l.snap.Gait, l.snap.HaveGait = g, true
		}
	case l.cfg.TopicStride:
		var s StrideMessage
		if err = json.Unmarshal(payload, &s); err == nil {
			l.snap.Strides = append(l.snap.Strides, s)
			if n := len(l.snap.Strides); n > strideHistory {
				l.snap.Strides = append([]StrideMessage(nil), l.snap.Strides[n-strideHistory:]...)
			}
		}
	case l.cfg.TopicStatus:
		var s StatusMessage
		if err = json.Unmarshal(payload, &s); err == nil {
			l.snap.Status, l.snap.HaveStatus = s, true
		}
	case l.cfg.TopicCalibration:
		var c CalibrationMessage
		if err = json.Unmarshal(payload, &c); err == nil {
			l.snap.Calibration, l.snap.HaveCal = c, true
		}
	case l.cfg.TopicGPSSpeed:
		var f gps.Fix
		if err = json.Unmarshal(payload, &f); err == nil {
			l.snap.GPS, l.snap.HaveGPS = f, true
		}
	default:
		err = fmt.Errorf("unexpected topic %q", topic)
	}
	listeners := l.listeners
	l.mu.Unlock()

	if err != nil {
		return err
	}
	for _, fn := range listeners {
		fn(topic, payload)
	}
	return nil
}
