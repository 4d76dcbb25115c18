package messaging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"remanflow/config"
)

// MQTTBackend maps logical topics onto MQTT topics by replacing dots with
// slashes. Subscriptions are restored after a reconnect.
type MQTTBackend struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]Handler
}

func NewMQTTBackend(cfg config.MQTTConfig) *MQTTBackend {
	return &MQTTBackend{cfg: cfg, subs: make(map[string]Handler)}
}

func mqttTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

func logicalTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (m *MQTTBackend) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", m.cfg.Broker, m.cfg.Port)).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("mqtt: connected to %s:%d", m.cfg.Broker, m.cfg.Port)
		m.resubscribe(c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})

	m.client = mqtt.NewClient(opts)
	tok := m.client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect to %s:%d: timed out", m.cfg.Broker, m.cfg.Port)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (m *MQTTBackend) resubscribe(c mqtt.Client) {
	m.mu.Lock()
	subs := make(map[string]Handler, len(m.subs))
	for t, h := range m.subs {
		subs[t] = h
	}
	m.mu.Unlock()
	for topic, h := range subs {
		tok := c.Subscribe(mqttTopic(topic), m.cfg.QoS, wrapMQTT(h))
		if tok.Wait() && tok.Error() != nil {
			log.Printf("mqtt: resubscribe %s: %v", topic, tok.Error())
		}
	}
}

func wrapMQTT(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(logicalTopic(msg.Topic()), msg.Payload())
	}
}

func (m *MQTTBackend) IsConnected() bool {
	return m.client != nil && m.client.IsConnectionOpen()
}

func (m *MQTTBackend) Publish(topic string, payload []byte) error {
	if m.client == nil {
		return errNotConnected
	}
	tok := m.client.Publish(mqttTopic(topic), m.cfg.QoS, false, payload)
	tok.Wait()
	return tok.Error()
}

func (m *MQTTBackend) Subscribe(topic string, h Handler) error {
	if m.client == nil {
		return errNotConnected
	}
	m.mu.Lock()
	m.subs[topic] = h
	m.mu.Unlock()
	tok := m.client.Subscribe(mqttTopic(topic), m.cfg.QoS, wrapMQTT(h))
	tok.Wait()
	return tok.Error()
}

func (m *MQTTBackend) Unsubscribe(topic string) error {
	m.mu.Lock()
	delete(m.subs, topic)
	m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	tok := m.client.Unsubscribe(mqttTopic(topic))
	tok.Wait()
	return tok.Error()
}

func (m *MQTTBackend) Close() {
	if m.client != nil {
		m.client.Disconnect(250)
	}
}
