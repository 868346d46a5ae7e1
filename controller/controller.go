package controller

import (
	"net/url"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/store"
)

// AdmissionCtl приём отметок о проходе
//go:generate mockery --dir . --name AdmissionCtl --output ./mocks
type AdmissionCtl interface {
	// Решает судьбу отметки: сохранить, признать повтором или отклонить. Ошибка возвращается
	// только при сбое хранилища, отклонённая запись ошибкой не считается
	Admit(record model.Attendance) (model.Outcome, *model.Attendance, error)
}

// QueueCtl очередь команд терминалов
//go:generate mockery --dir . --name QueueCtl --output ./mocks
type QueueCtl interface {
	// Ставит команду в конец очереди терминала
	Enqueue(deviceSN string, verb model.CommandVerb, args map[string]string) (*model.Command, error)
	// Выдаёт самую старую невыданную команду. Если очередь пуста, возвращает nil без ошибки.
	// Выданная команда повторно не выдаётся, даже если терминал не ответил
	ClaimNext(deviceSN string) (*model.Command, error)
	// Записывает ответ терминала. Повторный вызов перезаписывает результат
	ReportResult(id uint, result string, code *int) (*model.Command, error)
	// Команды по фильтру
	List(filter store.CommandFilter) ([]model.Command, error)
}

// AdmsCtl протокол обмена с терминалами. Каждый метод возвращает тело ответа терминалу.
// Внутренние ошибки терминалу не передаются
//go:generate mockery --dir . --name AdmsCtl --output ./mocks
type AdmsCtl interface {
	// Рукопожатие: параметры синхронизации
	Handshake(sn, address string, query url.Values) string
	// Регистрация терминала со сведениями о нём
	Registry(sn, address string, body []byte) string
	// Выгрузка отметок, журнала операций и данных персон. Ответ всегда OK
	DataPush(req model.PushRequest) (*model.PushReport, string)
	// Опрос очереди команд
	CommandPoll(sn, address string) string
	// Отчёт о выполнении команд. Ответ всегда OK
	CommandResult(sn, address string, body []byte) string
	// Проверка связи
	Ping(sn, address string) string
}
