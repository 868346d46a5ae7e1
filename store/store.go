package store

import (
	"time"

	"github.com/kirsrus/adms-gateway/model"
)

// DbStore репозирторий общения с БД
//go:generate mockery --dir . --name DbStore --output ./mocks
type DbStore interface {
	// Проверяет, что ошибка err обозначает, что записи не найдены
	IsNotFound(err error) bool
	// Проверяет, что ошибка err обозначает нарушение уникальности
	IsDuplicate(err error) bool

	// Получает терминал по серийному номеру. Отсутствие проверяется через IsNotFound
	GetDevice(sn string) (*model.Device, error)
	// Регистрирует обращение терминала: создаёт его при первом обращении (возвращает true),
	// иначе обновляет время последнего обращения и непустые сведения из info
	UpsertDevice(sn string, info model.DeviceInfo, at time.Time) (*model.Device, bool, error)
	// Сохраняет изменения терминала из административного API. Если терминала не было, вернётся true
	SaveDevice(device model.Device) (*model.Device, bool, error)
	// Список терминалов
	ListDevices(filter DeviceFilter) ([]model.Device, error)
	// Выключает терминал (терминалы не удаляются)
	DeactivateDevice(sn string) error

	// Получает персону по идентификатору. Отсутствие проверяется через IsNotFound
	GetSubject(id string) (*model.Subject, error)
	// Добавляет персону в БД. Если персоны нет, она будет добавлена и вернётся true.
	// Если персона уже была, она будет обновлена и вернётся false
	SetSubject(subject model.Subject) (*model.Subject, bool, error)
	// Удаляет персону
	DeleteSubject(id string) error
	// Список персон
	ListSubjects(offset, limit int) ([]model.Subject, error)

	// Ищет отметку той же персоны на том же терминале в пределах ±window от at
	FindDuplicateAttendance(subjectID, deviceSN string, at time.Time, window time.Duration) (*model.Attendance, error)
	// Сохраняет отметку. Нарушение уникальности интервала проверяется через IsDuplicate
	InsertAttendance(record model.Attendance, window time.Duration) (*model.Attendance, error)
	// Отметки по фильтру
	ListAttendance(filter AttendanceFilter) ([]model.Attendance, error)
	// Сводка по отметкам: всего, начиная с since и число разных персон
	AttendanceStats(since time.Time) (*AttendanceStats, error)

	// Сохраняет запись журнала операций терминала
	InsertOperation(op model.Operation) (*model.Operation, error)
	// Журнал операций терминала
	ListOperations(deviceSN string, offset, limit int) ([]model.Operation, error)

	// Ставит команду в конец очереди терминала
	EnqueueCommand(deviceSN string, verb model.CommandVerb, args map[string]string, at time.Time) (*model.Command, error)
	// Атомарно выбирает самую старую невыданную команду терминала и помечает её выданной.
	// Если очередь пуста, возвращается ошибка, проверяемая IsNotFound
	ClaimNextCommand(deviceSN string, at time.Time) (*model.Command, error)
	// Записывает ответ терминала. Повторный вызов перезаписывает результат
	RecordCommandResult(id uint, result string, code *int, at time.Time) (*model.Command, error)
	// Получает команду по идентификатору
	GetCommand(id uint) (*model.Command, error)
	// Команды по фильтру
	ListCommands(filter CommandFilter) ([]model.Command, error)

	// Активные webhook, подписанные на событие event
	ActiveWebhooks(event string) ([]model.Webhook, error)
	// Сохраняет webhook. При ID == 0 создаётся новый
	SaveWebhook(hook model.Webhook) (*model.Webhook, error)
	GetWebhook(id uint) (*model.Webhook, error)
	ListWebhooks() ([]model.Webhook, error)
	DeleteWebhook(id uint) error
	// Журнал доставки
	InsertWebhookLog(entry model.WebhookLog) (*model.WebhookLog, error)
	UpdateWebhookLog(entry model.WebhookLog) error
	WebhookLogs(filter WebhookLogFilter) ([]model.WebhookLog, error)

	// Сохраняет запись журнала административных действий
	InsertAudit(entry model.AuditLog) error
	// Журнал административных действий
	ListAudit(offset, limit int) ([]model.AuditLog, error)

	// Очищает журналы в БД старше days дней. Отметки о проходе не удаляются
	Clean(days int) error

	// Закрывает подключение к БД
	Close() error
}

// DeviceFilter фильтр списка терминалов
type DeviceFilter struct {
	// Показывать выключенные терминалы
	WithInactive bool
	Offset       int
	Limit        int
}

// AttendanceFilter фильтр отметок. Пустые поля не учитываются
type AttendanceFilter struct {
	SubjectID string
	DeviceSN  string
	From      *time.Time
	To        *time.Time
	// Только отметки персон, не заведённых на шлюзе
	UnknownOnly bool
	Offset      int
	Limit       int
}

// AttendanceStats сводка по отметкам
type AttendanceStats struct {
	Total          int64 `json:"total"`
	Since          int64 `json:"since"`
	UniqueSubjects int64 `json:"unique_subjects"`
	UnknownSubject int64 `json:"unknown_subject"`
}

// CommandFilter фильтр команд
type CommandFilter struct {
	DeviceSN string
	// Только ещё не выданные терминалу
	PendingOnly bool
	Offset      int
	Limit       int
}

// WebhookLogFilter фильтр журнала доставки
type WebhookLogFilter struct {
	WebhookID uint
	Status    string
	Offset    int
	Limit     int
}
