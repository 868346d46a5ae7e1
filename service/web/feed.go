package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/sirupsen/logrus"
)

const (
	// Очередь сообщений одного подписчика
	feedClientQueue = 64
	feedPingPeriod  = 30 * time.Second
	feedWriteWait   = 10 * time.Second
	feedPongWait    = 2 * feedPingPeriod
)

// ConfigFeed конфигурация Feed
type ConfigFeed struct {
	Log *logrus.Logger
}

// Подписчик ленты
type feedClient struct {
	send   chan []byte
	events map[string]bool
}

// Feed лента событий шлюза по WebSocket для административного интерфейса.
// Медленный подписчик теряет сообщения, остальных не задерживает. Инициируется через NewFeed
type Feed struct {
	ctx      context.Context
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	now     func() time.Time
}

// NewFeed конструктор Feed
func NewFeed(ctx context.Context, config *ConfigFeed) (*Feed, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	return &Feed{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "feed",
			"scope":  "service",
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*feedClient]struct{}),
		now:     time.Now,
	}, nil
}

// Notify рассылает событие подписчикам ленты
func (m *Feed) Notify(event string, payload interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.clients) == 0 {
		return
	}
	data, err := json.Marshal(model.Notification{
		Event:     event,
		Timestamp: m.now().UTC(),
		Data:      payload,
	})
	if err != nil {
		m.log.Errorf("не удалось упаковать событие %s: %v", event, err)
		return
	}
	for client := range m.clients {
		if len(client.events) != 0 && !client.events[event] {
			continue
		}
		select {
		case client.send <- data:
		default:
			m.log.Debugf("подписчик не успевает, событие %s пропущено", event)
		}
	}
}

// Clients количество подписчиков
func (m *Feed) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Handler подключение к ленте. Параметр events ограничивает типы событий: ?events=attendance,device_status
func (m *Feed) Handler(c echo.Context) error {
	client := &feedClient{
		send:   make(chan []byte, feedClientQueue),
		events: make(map[string]bool),
	}
	for _, v := range strings.Split(c.QueryParam("events"), ",") {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		if !model.IsEvent(v) {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "неизвестный тип события: " + v})
		}
		client.events[v] = true
	}

	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		m.log.Warnf("ошибка подключения к ленте с %s: %v", c.RealIP(), err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	m.mu.Lock()
	m.clients[client] = struct{}{}
	m.mu.Unlock()
	m.log.Debugf("подписчик ленты %s подключён", c.RealIP())
	defer func() {
		m.mu.Lock()
		delete(m.clients, client)
		m.mu.Unlock()
		m.log.Debugf("подписчик ленты %s отключён", c.RealIP())
	}()

	// Чтение нужно только для обработки pong и закрытия соединения
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(feedWriteWait))
			return nil
		case <-closed:
			return nil
		case data := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
