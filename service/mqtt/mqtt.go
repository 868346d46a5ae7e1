package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	clientID       = "adms-gateway"
	topicPrefix    = "adms"
	queueSize      = 256
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second
	retryInterval  = 5 * time.Second
	// Время на отправку последних сообщений при отключении (мс)
	quiesce = 250
)

// ConfigMqtt конфигурация Mqtt
type ConfigMqtt struct {
	Log *logrus.Logger
	// Адрес брокера (tcp://host:1883)
	Broker      string `conform:"trim"`
	ClientID    string `conform:"trim"`
	Username    string
	Password    string
	TopicPrefix string `conform:"trim"`
	Qos         byte
	QueueSize   int
	// Клиент брокера (для тестов). Если не задан, создаётся по Broker
	Client paho.Client
}

// Сообщение в очереди публикации
type message struct {
	topic   string
	payload []byte
}

// Mqtt публикация событий шлюза в MQTT брокер в топики <prefix>/<event>.
// Notify не блокирует вызывающего. Инициируется через NewMqtt
type Mqtt struct {
	ctx    context.Context
	log    *logrus.Entry
	client paho.Client
	queue  chan message

	prefix string
	qos    byte
	now    func() time.Time
}

// NewMqtt конструктор Mqtt. Подключение к брокеру выполняется в Run
func NewMqtt(ctx context.Context, config *ConfigMqtt) (*Mqtt, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.Client == nil && strings.TrimSpace(config.Broker) == "" {
		return nil, errors.NotValidf("не указан адрес брокера")
	}
	if config.Qos > 2 {
		return nil, errors.NotValidf("QoS %d", config.Qos)
	}

	m := &Mqtt{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "mqtt",
			"scope":  "service",
			"broker": config.Broker,
		}),
		prefix: topicPrefix,
		qos:    config.Qos,
		now:    time.Now,
	}
	if v := strings.Trim(strings.TrimSpace(config.TopicPrefix), "/"); v != "" {
		m.prefix = v
	}
	size := queueSize
	if config.QueueSize > 0 {
		size = config.QueueSize
	}
	m.queue = make(chan message, size)

	m.client = config.Client
	if m.client == nil {
		m.client = paho.NewClient(m.options(config))
	}

	return m, nil
}

// Параметры подключения к брокеру
func (m *Mqtt) options(config *ConfigMqtt) *paho.ClientOptions {
	id := clientID
	if config.ClientID != "" {
		id = config.ClientID
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(strings.TrimSpace(config.Broker))
	opts.SetClientID(id)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.SetWill(m.Topic("gateway/status"), `{"status":"offline"}`, m.qos, true)

	opts.OnConnect = func(client paho.Client) {
		m.log.Info("подключение к брокеру установлено")
		client.Publish(m.Topic("gateway/status"), m.qos, true, `{"status":"online"}`)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		m.log.Warnf("потеряно подключение к брокеру: %v", err)
	}
	return opts
}

// Topic топик события
func (m *Mqtt) Topic(event string) string {
	return m.prefix + "/" + event
}

// Notify ставит событие в очередь публикации. Если очередь переполнена, событие теряется
func (m *Mqtt) Notify(event string, payload interface{}) {
	data, err := json.Marshal(model.Notification{
		Event:     event,
		Timestamp: m.now().UTC(),
		Data:      payload,
	})
	if err != nil {
		m.log.Errorf("не удалось упаковать событие %s: %v", event, err)
		return
	}
	select {
	case m.queue <- message{topic: m.Topic(event), payload: data}:
	default:
		m.log.Warnf("очередь публикации переполнена, событие %s потеряно", event)
	}
}

// Run подключается к брокеру и публикует события из очереди. Возвращается после остановки контекста
func (m *Mqtt) Run() error {
	token := m.client.Connect()
	select {
	case <-m.ctx.Done():
		m.client.Disconnect(quiesce)
		return nil
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return errors.Annotate(err, "ошибка подключения к брокеру")
	}
	defer m.client.Disconnect(quiesce)

	for {
		select {
		case <-m.ctx.Done():
			m.log.Info("публикация остановлена")
			return nil
		case msg := <-m.queue:
			m.publish(msg)
		}
	}
}

func (m *Mqtt) publish(msg message) {
	token := m.client.Publish(msg.topic, m.qos, false, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		m.log.Warnf("таймаут публикации в %s", msg.topic)
		return
	}
	if err := token.Error(); err != nil {
		m.log.Warnf("ошибка публикации в %s: %v", msg.topic, err)
	}
}
