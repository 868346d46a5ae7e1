package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/pkg/tool"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	timeout    = 5 * time.Second
	maxRetries = 3
	backoff    = time.Second
	workers    = 4
	queueSize  = 256
	userAgent  = "ADMS-Gateway/1.0"
	cacheTTL   = 30 * time.Second

	// Сколько байт ответа получателя сохранять в журнал
	responseLimit = 1024
)

// ConfigWebhook конфигурация Webhook
type ConfigWebhook struct {
	Log *logrus.Logger
	// Таймаут одного запроса
	Timeout time.Duration
	// Максимальное количество попыток доставки одного события
	MaxRetries int
	// Базовая задержка повтора, удваивается с каждой попыткой
	Backoff   time.Duration
	Workers   int
	QueueSize int
	UserAgent string
	// Время кэширования списка подписок. Отрицательное значение отключает кэш
	CacheTTL time.Duration
	// HTTP клиент (для тестов)
	Client *http.Client
}

// Событие в очереди на рассылку
type job struct {
	event        string
	notification model.Notification
}

// Доставка события одному получателю
type delivery struct {
	hook    model.Webhook
	logID   uint
	id      string
	event   string
	body    []byte
	attempt int
}

// Webhook рассылка событий шлюза подписчикам по HTTP. Notify не блокирует вызывающего,
// события ставятся в ограниченную очередь и разбираются пулом отправителей в Run.
// Инициируется через NewWebhook
type Webhook struct {
	ctx     context.Context
	log     *logrus.Entry
	dbStore store.DbStore
	client  *http.Client

	outbox chan job
	cache  *cache.Cache
	// Отложенные повторы, ожидаемые при завершении работы
	retries sync.WaitGroup

	maxRetries int
	backoff    time.Duration
	workers    int
	userAgent  string
	cacheTTL   time.Duration
	now        func() time.Time
}

// NewWebhook конструктор Webhook
func NewWebhook(ctx context.Context, dbStore store.DbStore, config *ConfigWebhook) (*Webhook, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if dbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}

	webhook := &Webhook{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "webhook",
			"scope":  "service",
		}),
		dbStore:    dbStore,
		maxRetries: maxRetries,
		backoff:    backoff,
		workers:    workers,
		userAgent:  userAgent,
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
	if config.MaxRetries > 0 {
		webhook.maxRetries = config.MaxRetries
	}
	if config.Backoff != 0 {
		webhook.backoff = config.Backoff
	}
	if config.Workers > 0 {
		webhook.workers = config.Workers
	}
	if config.UserAgent != "" {
		webhook.userAgent = config.UserAgent
	}
	if config.CacheTTL != 0 {
		webhook.cacheTTL = config.CacheTTL
	}
	size := queueSize
	if config.QueueSize > 0 {
		size = config.QueueSize
	}
	webhook.outbox = make(chan job, size)

	webhook.client = config.Client
	if webhook.client == nil {
		webhook.client = &http.Client{Timeout: timeout}
		if config.Timeout != 0 {
			webhook.client.Timeout = config.Timeout
		}
	}
	if webhook.cacheTTL > 0 {
		webhook.cache = cache.New(webhook.cacheTTL, 2*webhook.cacheTTL)
	}

	return webhook, nil
}

// Notify ставит событие в очередь рассылки. Если очередь переполнена, событие теряется с предупреждением в лог
func (m *Webhook) Notify(event string, payload interface{}) {
	j := job{
		event: event,
		notification: model.Notification{
			Event:     event,
			Timestamp: m.now().UTC(),
			Data:      payload,
		},
	}
	select {
	case m.outbox <- j:
	default:
		m.log.Warnf("очередь рассылки переполнена, событие %s потеряно", event)
	}
}

// Run запускает отправителей. Возвращается после остановки контекста
func (m *Webhook) Run() error {
	m.log.Infof("старт рассылки, отправителей: %d", m.workers)
	g := new(errgroup.Group)
	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-m.ctx.Done():
					return nil
				case j := <-m.outbox:
					m.dispatch(j)
				}
			}
		})
	}
	err := g.Wait()
	m.retries.Wait()
	m.log.Info("рассылка остановлена")
	return errors.Trace(err)
}

// Invalidate сбрасывает кэш подписок после изменения webhook
func (m *Webhook) Invalidate() {
	if m.cache != nil {
		m.cache.Flush()
	}
}

// Рассылка события всем подписчикам
func (m *Webhook) dispatch(j job) {
	hooks, err := m.subscribers(j.event)
	if err != nil {
		m.log.Errorf("не удалось получить подписчиков события %s: %v", j.event, err)
		return
	}
	if len(hooks) == 0 {
		return
	}
	body, err := json.Marshal(j.notification)
	if err != nil {
		m.log.Errorf("не удалось упаковать событие %s: %v", j.event, err)
		return
	}

	for _, hook := range hooks {
		d := &delivery{
			hook:  hook,
			id:    uuid.New().String(),
			event: j.event,
			body:  body,
		}
		entry, err := m.dbStore.InsertWebhookLog(model.WebhookLog{
			WebhookID:  hook.ID,
			DeliveryID: d.id,
			URL:        hook.URL,
			Event:      j.event,
			Payload:    j.notification.Data,
			Status:     model.DeliveryPending,
		})
		if err != nil {
			m.log.Errorf("не удалось записать журнал доставки %s: %v", hook.URL, err)
		} else {
			d.logID = entry.ID
		}
		m.deliver(d)
	}
}

// Подписчики события с кэшированием
func (m *Webhook) subscribers(event string) ([]model.Webhook, error) {
	if m.cache != nil {
		if v, ok := m.cache.Get(event); ok {
			return v.([]model.Webhook), nil
		}
	}
	hooks, err := m.dbStore.ActiveWebhooks(event)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if m.cache != nil {
		m.cache.SetDefault(event, hooks)
	}
	return hooks, nil
}

// Одна попытка доставки. При неудаче повтор откладывается на Backoff
func (m *Webhook) deliver(d *delivery) {
	d.attempt++
	code, response, err := m.send(d)
	entry := model.WebhookLog{
		ID:         d.logID,
		StatusCode: code,
		Response:   response,
		Retries:    d.attempt - 1,
	}
	processed := m.now()
	entry.ProcessedAt = &processed

	retry := false
	switch {
	case err == nil:
		entry.Status = model.DeliverySuccess
		m.log.Debugf("событие %s доставлено на %s (%d)", d.event, d.hook.URL, code)
	case d.attempt >= m.maxRetries:
		entry.Status = model.DeliveryFailed
		entry.Retries = d.attempt
		entry.Response = err.Error()
		m.log.Warnf("событие %s не доставлено на %s после %d попыток: %v", d.event, d.hook.URL, d.attempt, err)
	default:
		entry.Status = model.DeliveryPending
		entry.Retries = d.attempt
		entry.Response = err.Error()
		retry = true
	}
	if d.logID != 0 {
		if err := m.dbStore.UpdateWebhookLog(entry); err != nil {
			m.log.Errorf("не удалось обновить журнал доставки #%d: %v", d.logID, err)
		}
	}
	if !retry {
		return
	}

	wait := tool.Backoff(m.backoff, d.attempt)
	m.log.Debugf("повтор доставки %s на %s через %s: %v", d.event, d.hook.URL, wait, err)
	m.retries.Add(1)
	go func() {
		defer m.retries.Done()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-m.ctx.Done():
			// Запись журнала остаётся в статусе pending
			m.log.Debugf("повтор доставки %s на %s отменён остановкой", d.event, d.hook.URL)
		case <-timer.C:
			m.deliver(d)
		}
	}()
}

// Отправка события. Ответ со статусом ниже 500 считается доставкой
func (m *Webhook) send(d *delivery) (int, string, error) {
	req, err := http.NewRequestWithContext(m.ctx, http.MethodPost, d.hook.URL, bytes.NewReader(d.body))
	if err != nil {
		return 0, "", errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", d.hook.Secret)
	req.Header.Set("X-Webhook-Delivery", d.id)
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, "", errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, responseLimit))

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, string(data), errors.Errorf("получатель ответил %s", resp.Status)
	}
	return resp.StatusCode, string(data), nil
}

