// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/telemetry"
)

// Commander forwards a host command string to the producer.
type Commander interface {
	SendCommand(cmd string) error
}

type mqttCommander struct {
	client mqtt.Client
	topic  string
}

func (c mqttCommander) SendCommand(cmd string) error {
	token := c.client.Publish(c.topic, 1, false, cmd)
	token.Wait()
	return token.Error()
}

// LiveEvent is one bus message relayed to websocket clients.
type LiveEvent struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

const liveBuffer = 64

type hub struct {
	mu   sync.Mutex
	subs map[chan LiveEvent]struct{}
}

func newHub() *hub {
	return &hub{subs: map[chan LiveEvent]struct{}{}}
}

func (h *hub) subscribe() chan LiveEvent {
	ch := make(chan LiveEvent, liveBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan LiveEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// broadcast drops the event for subscribers that are behind.
func (h *hub) broadcast(ev LiveEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

type webServer struct {
	cfg  *config.Config
	live *Live
	cmd  Commander
	log  *zap.Logger
	hub  *hub
}

// NewWebHandler serves the REST API and the websockets:
//
//	GET  /api/pose /api/gait /api/strides /api/status /api/snapshot
//	POST /api/command      body is a host command such as "#c1"
//	GET  /ws/live          every bus message as a LiveEvent
//	GET  /ws/calibration   guided calibration session
func NewWebHandler(cfg *config.Config, live *Live, cmd Commander, log *zap.Logger) http.Handler {
	w := &webServer{cfg: cfg, live: live, cmd: cmd, log: log, hub: newHub()}
	live.OnUpdate(func(topic string, payload []byte) {
		data := make([]byte, len(payload))
		copy(data, payload)
		w.hub.broadcast(LiveEvent{Topic: topic, Data: data})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pose", w.serve(func(s Snapshot) (any, bool) { return s.Pose, s.HavePose }))
	mux.HandleFunc("GET /api/gait", w.serve(func(s Snapshot) (any, bool) { return s.Gait, s.HaveGait }))
	mux.HandleFunc("GET /api/strides", w.serve(func(s Snapshot) (any, bool) { return s.Strides, len(s.Strides) > 0 }))
	mux.HandleFunc("GET /api/status", w.serve(func(s Snapshot) (any, bool) { return s.Status, s.HaveStatus }))
	mux.HandleFunc("GET /api/snapshot", w.serve(func(s Snapshot) (any, bool) { return s, true }))
	mux.HandleFunc("POST /api/command", w.handleCommand)
	mux.HandleFunc("GET /ws/live", w.handleLiveWS)
	mux.HandleFunc("GET /ws/calibration", w.handleCalibrationWS)
	return mux
}

func (w *webServer) serve(pick func(Snapshot) (any, bool)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		v, ok := pick(w.live.Snapshot())
		if !ok {
			http.Error(rw, "no data yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(v); err != nil {
			w.log.Warn("[web] json encode error", zap.String("path", r.URL.Path), zap.Error(err))
		}
	}
}

func (w *webServer) handleCommand(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := telemetry.ParseCommand(string(body))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	text, err := telemetry.FormatCommand(cmd)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if err := w.cmd.SendCommand(text); err != nil {
		w.log.Warn("[web] command not forwarded", zap.String("command", text), zap.Error(err))
		http.Error(rw, err.Error(), http.StatusBadGateway)
		return
	}
	w.log.Info("[web] command forwarded", zap.String("command", text))
	rw.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(rw, text)
}

func (w *webServer) handleLiveWS(rw http.ResponseWriter, r *http.Request) {
	var only map[string]bool
	if t := r.URL.Query().Get("topics"); t != "" {
		only = map[string]bool{}
		for _, topic := range strings.Split(t, ",") {
			only[topic] = true
		}
	}

	events := w.hub.subscribe()
	defer w.hub.unsubscribe(events)

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn("[web] websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	// reader goroutine only notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev := <-events:
			if only != nil && !only[ev.Topic] {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					w.log.Debug("[web] live stream closed", zap.Error(err))
				}
				return
			}
		}
	}
}

// RunWeb serves the API on WEB_SERVER_PORT.
func RunWeb(log *zap.Logger) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDWeb, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	live := NewLive(cfg, log)
	handler := NewWebHandler(cfg, live, mqttCommander{client: client, topic: cfg.TopicCommand}, log)
	if err := live.Subscribe(client); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Info("[web] listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}
