package queue

import (
	"context"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/controller"
	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/adms"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/pkg/validator"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// ConfigQueue конфигурация Queue
type ConfigQueue struct {
	Log *logrus.Logger
	// Источник текущего времени (для тестов)
	Now func() time.Time
}

// Queue очередь команд терминалов поверх БД. Инициируется через NewQueue
type Queue struct {
	ctx     context.Context
	log     *logrus.Entry
	dbStore store.DbStore
	now     func() time.Time
}

// NewQueue конструктор Queue
func NewQueue(ctx context.Context, dbStore store.DbStore, config *ConfigQueue) (controller.QueueCtl, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if dbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}

	queue := Queue{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "queue",
			"scope":  "controller",
		}),
		dbStore: dbStore,
		now:     time.Now,
	}
	if config.Now != nil {
		queue.now = config.Now
	}

	return &queue, nil
}

// Enqueue ставит команду в конец очереди терминала
func (m Queue) Enqueue(deviceSN string, verb model.CommandVerb, args map[string]string) (*model.Command, error) {
	deviceSN = strings.TrimSpace(deviceSN)
	if !validator.IsSerial(deviceSN) {
		return nil, errors.NotValidf("серийный номер терминала %q", deviceSN)
	}
	if args == nil {
		args = map[string]string{}
	}
	if err := adms.ValidateCommand(verb, args); err != nil {
		if errors.IsNotSupported(err) {
			return nil, errors.NewNotValid(err, "команда")
		}
		return nil, err
	}

	cmd, err := m.dbStore.EnqueueCommand(deviceSN, verb, args, m.now())
	if err != nil {
		return nil, errors.Annotatef(err, "постановка команды %s для %s", verb, deviceSN)
	}
	m.log.Infof("команда #%d %s поставлена в очередь терминала %s", cmd.ID, cmd.Verb, cmd.DeviceSN)
	return cmd, nil
}

// ClaimNext выдаёт самую старую невыданную команду. Пустая очередь - nil без ошибки
func (m Queue) ClaimNext(deviceSN string) (*model.Command, error) {
	cmd, err := m.dbStore.ClaimNextCommand(deviceSN, m.now())
	if err != nil {
		if m.dbStore.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "выдача команды терминалу %s", deviceSN)
	}
	m.log.Debugf("терминалу %s выдана команда #%d %s", deviceSN, cmd.ID, cmd.Verb)
	return cmd, nil
}

// ReportResult записывает ответ терминала на команду id
func (m Queue) ReportResult(id uint, result string, code *int) (*model.Command, error) {
	cmd, err := m.dbStore.RecordCommandResult(id, result, code, m.now())
	if err != nil {
		if m.dbStore.IsNotFound(err) {
			return nil, errors.NotFoundf("команда #%d", id)
		}
		return nil, errors.Annotatef(err, "ответ на команду #%d", id)
	}
	if code != nil && *code != 0 {
		m.log.Warnf("терминал %s выполнил команду #%d %s с кодом %d", cmd.DeviceSN, cmd.ID, cmd.Verb, *code)
	} else {
		m.log.Debugf("терминал %s выполнил команду #%d %s", cmd.DeviceSN, cmd.ID, cmd.Verb)
	}
	return cmd, nil
}

// List команды по фильтру
func (m Queue) List(filter store.CommandFilter) ([]model.Command, error) {
	cmds, err := m.dbStore.ListCommands(filter)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return cmds, nil
}
