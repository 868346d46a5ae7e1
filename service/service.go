package service

import (
	"github.com/kirsrus/adms-gateway/model"
)

// WebSvc серис HTTP: протокол терминалов и административный API
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	// Хэндлеры протокола ADMS (/iclock/...) с корнем в path
	DeviceApi(string)
	// Хэндлеры административного REST API
	AdminApi(string)
	// Хэндлер запросов GraphQL административного API
	GraphQLApi(string)
	// Хэндлер WebSocket ленты событий
	EventFeed(string)
	// Хэндлер проверки работоспособности
	Health(string)
	// Запускает HTTP-сервер. Возвращается после остановки контекста
	Serve() error
}

// NotifySvc получатель событий шлюза (webhook, MQTT, WebSocket лента).
// Notify не блокирует вызывающего: доставка идёт в фоне
//go:generate mockery --dir . --name NotifySvc --output ./mocks
type NotifySvc interface {
	Notify(event string, payload interface{})
}

// WorkerSvc фоновая служба. Run возвращается после остановки контекста
//go:generate mockery --dir . --name WorkerSvc --output ./mocks
type WorkerSvc interface {
	Run() error
}

// StatusSvc реестр оперативного состояния терминалов. В БД не сохраняется
//go:generate mockery --dir . --name StatusSvc --output ./mocks
type StatusSvc interface {
	// Отмечает обращение терминала sn с адреса address операцией operation.
	// Возвращает true, если терминал только что стал доступен (впервые или после отключения)
	Touch(sn, address, operation string) bool
	// Отмечает внутреннюю ошибку при обработке запроса терминала
	Fail(sn string, err error)
	// Состояние терминала
	Get(sn string) (model.DeviceStatus, bool)
	// Состояние всех терминалов, упорядоченное по серийному номеру
	List() []model.DeviceStatus
	// Помечает отключёнными терминалы, молчащие дольше допустимого. Возвращает только что отключившиеся
	Sweep() []model.DeviceStatus
}

// Notifiers рассылка события всем получателям
type Notifiers []NotifySvc

// Notify передаёт событие каждому получателю
func (m Notifiers) Notify(event string, payload interface{}) {
	for _, v := range m {
		if v != nil {
			v.Notify(event, payload)
		}
	}
}
