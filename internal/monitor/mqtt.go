package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/junsooki/Zoetrope/internal/rotation"
)

// MQTTOptions configure the broker feed.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Prefix   string // topics are <Prefix>/telemetry and <Prefix>/state
	Interval time.Duration
}

// publisher is the part of mqtt.Client the feed uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends telemetry to a broker at a fixed rate, and the link
// state as a retained message whenever it changes.
type MQTTPublisher struct {
	opts   MQTTOptions
	board  *Board
	states <-chan rotation.ConnectionState

	client  publisher
	lastSeq uint64
}

func NewMQTTPublisher(opts MQTTOptions, board *Board, states <-chan rotation.ConnectionState) *MQTTPublisher {
	if opts.Prefix == "" {
		opts.Prefix = "zoetrope"
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	return &MQTTPublisher{opts: opts, board: board, states: states}
}

// Connect dials the broker. Paho reconnects on its own after a drop.
func (p *MQTTPublisher) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.opts.Broker).
		SetClientID(p.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5*time.Second).
		SetWill(p.opts.Prefix+"/state", rotation.Disconnected.String(), 1, true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	switch {
	case !token.WaitTimeout(10 * time.Second):
		log.Printf("monitor: mqtt broker %s not reachable yet, retrying in background", p.opts.Broker)
	case token.Error() != nil:
		return fmt.Errorf("mqtt connect %s: %w", p.opts.Broker, token.Error())
	default:
		log.Printf("monitor: mqtt connected to %s", p.opts.Broker)
	}
	p.client = client
	return nil
}

// Run publishes until ctx is done. Connect must have succeeded.
func (p *MQTTPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if c, ok := p.client.(mqtt.Client); ok {
				c.Disconnect(250)
			}
			return ctx.Err()
		case st := <-p.states:
			p.publishState(st)
			p.publishTelemetry(true)
		case <-ticker.C:
			p.publishTelemetry(false)
		}
	}
}

func (p *MQTTPublisher) publishState(st rotation.ConnectionState) {
	p.client.Publish(p.opts.Prefix+"/state", 1, true, st.String())
}

// publishTelemetry sends the newest record if it is new, or always when force
// is set.
func (p *MQTTPublisher) publishTelemetry(force bool) {
	t, seq := p.board.Latest()
	if seq == 0 || (seq == p.lastSeq && !force) {
		return
	}
	p.lastSeq = seq
	data, err := json.Marshal(t)
	if err != nil {
		log.Printf("monitor: telemetry marshal error: %v", err)
		return
	}
	p.client.Publish(p.opts.Prefix+"/telemetry", 0, false, data)
}
