// Package mqttpub publishes run status over MQTT so a headless install
// can be watched without opening the web dashboard. Publishing is
// optional and best effort; broker trouble never affects a run.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/meterblink/meterblink/internal/config"
	"github.com/meterblink/meterblink/internal/log"
	"github.com/meterblink/meterblink/pkg/attempt"
)

const (
	connectTimeout    = 5 * time.Second
	publishTimeout    = 2 * time.Second
	disconnectQuiesce = 250 // ms
)

// Publisher wraps a paho client and implements attempt.Notifier.
type Publisher struct {
	client pahomqtt.Client
	qos    byte
}

// statusPayload is the retained status document.
type statusPayload struct {
	Running     bool   `json:"running"`
	CurrentCode string `json:"current_pin"`
	RunID       string `json:"run_id,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// runEvent is published on run start and finish.
type runEvent struct {
	Event      string `json:"event"` // "started" or "finished"
	RunID      string `json:"run_id"`
	FirstCode  string `json:"first_code"`
	LastCode   string `json:"last_code"`
	LastSent   string `json:"last_sent,omitempty"`
	CodesSent  int    `json:"codes_sent"`
	StopReason string `json:"stop_reason,omitempty"`
	Images     int    `json:"images"`
	Timestamp  string `json:"timestamp"`
}

// Connect establishes the broker connection and publishes an initial
// idle status.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://" + cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	// Last will marks the service offline if the process dies.
	offline, _ := json.Marshal(statusPayload{Running: false, CurrentCode: "", Timestamp: ""})
	opts.SetWill(TopicStatus, string(offline), byte(cfg.QoS), true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	p := &Publisher{client: client, qos: byte(cfg.QoS)}
	p.publishStatus(statusPayload{Running: false, Timestamp: now()})
	return p, nil
}

// Close publishes a final idle status and disconnects.
func (p *Publisher) Close() {
	if p.client == nil {
		return
	}
	p.publishStatus(statusPayload{Running: false, Timestamp: now()})
	p.client.Disconnect(disconnectQuiesce)
}

// RunStarted implements attempt.Notifier.
func (p *Publisher) RunStarted(r attempt.Run) {
	p.publishEvent(runEvent{
		Event:     "started",
		RunID:     r.ID,
		FirstCode: r.FirstCode,
		LastCode:  r.LastCode,
		Timestamp: now(),
	})
	p.publishStatus(statusPayload{Running: true, RunID: r.ID, Timestamp: now()})
}

// CodeSent implements attempt.Notifier.
func (p *Publisher) CodeSent(runID, code string) {
	p.publishStatus(statusPayload{Running: true, CurrentCode: code, RunID: runID, Timestamp: now()})
}

// RunFinished implements attempt.Notifier.
func (p *Publisher) RunFinished(r attempt.Run) {
	p.publishEvent(runEvent{
		Event:      "finished",
		RunID:      r.ID,
		FirstCode:  r.FirstCode,
		LastCode:   r.LastCode,
		LastSent:   r.LastSent,
		CodesSent:  r.CodesSent,
		StopReason: r.StopReason,
		Images:     r.Images,
		Timestamp:  now(),
	})
	p.publishStatus(statusPayload{Running: false, Timestamp: now()})
}

func (p *Publisher) publishStatus(s statusPayload) {
	p.publish(TopicStatus, s, true)
}

func (p *Publisher) publishEvent(e runEvent) {
	p.publish(TopicRunEvents, e, false)
}

func (p *Publisher) publish(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("encoding mqtt payload", "topic", topic, "error", err)
		return
	}
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn("mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
