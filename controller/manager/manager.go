package manager

import (
	"context"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/service"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	archiveDays   = 90
	cleanInterval = 60 * time.Minute
	sweepInterval = 30 * time.Second
)

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log *logrus.Logger

	WebSvc    service.WebSvc
	DbStore   store.DbStore
	StatusSvc service.StatusSvc
	// Получатели событий об отключении терминалов. Может быть nil
	Notify service.NotifySvc
	// Фоновые службы (рассылка webhook, MQTT)
	Workers []service.WorkerSvc

	// Сколько дней хранить журналы в БД
	ArchiveDays int
	// Период очистки журналов
	CleanInterval time.Duration
	// Период проверки молчащих терминалов
	SweepInterval time.Duration
}

// Manager основной менеджер работы со всеми сервисами. Инициируется через NewManager
type Manager struct {
	ctx context.Context
	log *logrus.Entry

	webSvc    service.WebSvc
	dbStore   store.DbStore
	statusSvc service.StatusSvc
	notify    service.NotifySvc
	workers   []service.WorkerSvc

	archiveDays   int
	cleanInterval time.Duration
	sweepInterval time.Duration
}

// NewManager конструктор Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.WebSvc == nil {
		return nil, errors.New("не передан сервис WEB")
	}
	if config.DbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}
	if config.StatusSvc == nil {
		return nil, errors.New("не передан реестр статусов терминалов")
	}

	manager := Manager{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		webSvc:    config.WebSvc,
		dbStore:   config.DbStore,
		statusSvc: config.StatusSvc,
		notify:    config.Notify,
		workers:   config.Workers,

		archiveDays:   archiveDays,
		cleanInterval: cleanInterval,
		sweepInterval: sweepInterval,
	}
	if config.ArchiveDays != 0 {
		manager.archiveDays = config.ArchiveDays
	}
	if config.CleanInterval != 0 {
		manager.cleanInterval = config.CleanInterval
	}
	if config.SweepInterval != 0 {
		manager.sweepInterval = config.SweepInterval
	}

	manager.configToLog()

	return &manager, nil
}

// Вывести значения конфигурациии в лог
func (m Manager) configToLog() {
	m.log.Debugf("archiveDays: %d", m.archiveDays)
	m.log.Debugf("cleanInterval: %s", m.cleanInterval)
	m.log.Debugf("sweepInterval: %s", m.sweepInterval)
	m.log.Debugf("workers: %d", len(m.workers))
}

// Serve запускает все службы. Возвращает первую ошибку любой из них или nil после
// остановки контекста и завершения всех служб
func (m Manager) Serve() error {
	g := new(errgroup.Group)
	failed := make(chan error, 1)
	run := func(name string, fn func() error) {
		g.Go(func() error {
			err := fn()
			if err != nil {
				err = errors.Annotate(err, name)
				select {
				case failed <- err:
				default:
				}
			}
			return err
		})
	}

	run("web", m.webSvc.Serve)
	for _, v := range m.workers {
		run("worker", v.Run)
	}
	// Хоускиппер для очистки базы данных от старых журналов
	run("clean", m.cleanLoop)
	run("sweep", m.sweepLoop)

	select {
	case err := <-failed:
		return errors.Trace(err)
	case <-m.ctx.Done():
	}
	if err := g.Wait(); err != nil {
		return errors.Trace(err)
	}
	m.log.Info("все службы остановлены")
	return nil
}

func (m Manager) cleanLoop() error {
	ticker := time.NewTicker(m.cleanInterval)
	defer ticker.Stop()
	for {
		if err := m.dbStore.Clean(m.archiveDays); err != nil {
			// Очистка не критична, следующая попытка по таймеру
			m.log.Errorf("ошибка очистки журналов: %v", err)
		}
		select {
		case <-m.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Отключение терминалов, молчащих дольше допустимого
func (m Manager) sweepLoop() error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, v := range m.statusSvc.Sweep() {
			m.log.Debugf("рассылка отключения терминала %s", v.SN)
			if m.notify != nil {
				m.notify.Notify(model.EventDeviceStatus, v)
			}
		}
	}
}
