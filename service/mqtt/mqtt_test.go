package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kirsrus/adms-gateway/model"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Завершённая операция
type token struct {
	err error
}

func (t token) Wait() bool                     { return true }
func (t token) WaitTimeout(time.Duration) bool { return true }
func (t token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t token) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// Брокер в памяти. Неиспользуемые методы paho.Client не реализованы
type client struct {
	paho.Client

	mu           sync.Mutex
	connected    bool
	disconnected bool
	messages     []published
}

func (c *client) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return token{}
}

func (c *client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *client) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return token{}
}

func (c *client) Messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published{}, c.messages...)
}

func TestNewMqtt(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConfigMqtt
		wantErr bool
	}{
		{name: "без конфигурации", config: nil, wantErr: true},
		{name: "без брокера", config: &ConfigMqtt{}, wantErr: true},
		{name: "кривой QoS", config: &ConfigMqtt{Broker: "tcp://127.0.0.1:1883", Qos: 3}, wantErr: true},
		{name: "корректный", config: &ConfigMqtt{Broker: "tcp://127.0.0.1:1883", Qos: 1}, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMqtt(context.Background(), tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMqtt() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMqtt_Topic(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		event  string
		want   string
	}{
		{name: "по умолчанию", prefix: "", event: model.EventAttendance, want: "adms/attendance"},
		{name: "свой префикс", prefix: "factory/gate", event: model.EventDeviceStatus, want: "factory/gate/device_status"},
		{name: "лишние слэши", prefix: "/gate/", event: model.EventOperation, want: "gate/operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMqtt(context.Background(), &ConfigMqtt{Client: &client{}, TopicPrefix: tt.prefix})
			require.NoError(t, err)
			if got := m.Topic(tt.event); got != tt.want {
				t.Errorf("Topic() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMqtt_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	broker := &client{}
	m, err := NewMqtt(ctx, &ConfigMqtt{Client: broker, Qos: 1})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Run() }()

	m.Notify(model.EventAttendance, map[string]string{"subject_id": "1001"})
	require.Eventually(t, func() bool {
		return len(broker.Messages()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	msg := broker.Messages()[0]
	assert.Equal(t, "adms/attendance", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	var n struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.payload, &n))
	assert.Equal(t, model.EventAttendance, n.Event)
	assert.Equal(t, "1001", n.Data["subject_id"])

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.True(t, broker.connected)
	assert.True(t, broker.disconnected)
}

func TestMqtt_Overflow(t *testing.T) {
	m, err := NewMqtt(context.Background(), &ConfigMqtt{Client: &client{}, QueueSize: 1})
	require.NoError(t, err)
	m.Notify(model.EventAttendance, 1)
	m.Notify(model.EventAttendance, 2)
	assert.Len(t, m.queue, 1)
}
