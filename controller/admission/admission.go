package admission

import (
	"context"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/controller"
	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/service"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// DefaultDedupWindow окно дедупликации, если в конфигурации ничего не указано
const DefaultDedupWindow = 60 * time.Second

// ConfigAdmission конфигурация Admission
type ConfigAdmission struct {
	Log *logrus.Logger
	// Окно дедупликации. Отметки одной персоны на одном терминале ближе ±DedupWindow считаются повтором
	DedupWindow *time.Duration
}

// Admission приём отметок о проходе. Инициируется через NewAdmission
type Admission struct {
	ctx     context.Context
	log     *logrus.Entry
	dbStore store.DbStore
	notify  service.NotifySvc

	window time.Duration
}

// NewAdmission конструктор Admission. notify может быть nil
func NewAdmission(ctx context.Context, dbStore store.DbStore, notify service.NotifySvc, config *ConfigAdmission) (controller.AdmissionCtl, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if dbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}

	admission := Admission{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "admission",
			"scope":  "controller",
		}),
		dbStore: dbStore,
		notify:  notify,
		window:  DefaultDedupWindow,
	}
	if config.DedupWindow != nil {
		if *config.DedupWindow < 0 {
			return nil, errors.NotValidf("отрицательное окно дедупликации %s", *config.DedupWindow)
		}
		admission.window = *config.DedupWindow
	}
	admission.log.Debugf("окно дедупликации: %s", admission.window)

	return &admission, nil
}

// Admit решает судьбу отметки
func (m Admission) Admit(record model.Attendance) (model.Outcome, *model.Attendance, error) {
	record.SubjectID = strings.TrimSpace(record.SubjectID)
	record.DeviceSN = strings.TrimSpace(record.DeviceSN)
	if record.SubjectID == "" {
		m.log.Warnf("отклонена отметка без идентификатора персоны с терминала %s: %q", record.DeviceSN, record.Raw)
		return model.OutcomeRejected, nil, nil
	}
	if record.DeviceSN == "" {
		m.log.Warnf("отклонена отметка %s без серийного номера терминала", record.SubjectID)
		return model.OutcomeRejected, nil, nil
	}
	// Терминалы передают время с точностью до секунды
	record.EventAt = record.EventAt.Truncate(time.Second)

	_, err := m.dbStore.GetSubject(record.SubjectID)
	if err != nil {
		if !m.dbStore.IsNotFound(err) {
			return "", nil, errors.Annotatef(err, "поиск персоны %s", record.SubjectID)
		}
		record.UnknownSubject = true
	}

	dup, err := m.dbStore.FindDuplicateAttendance(record.SubjectID, record.DeviceSN, record.EventAt, m.window)
	if err == nil {
		m.log.Debugf("повтор отметки %s на %s в %s (сохранена #%d)", record.SubjectID, record.DeviceSN, record.EventAt, dup.ID)
		return model.OutcomeDuplicate, dup, nil
	}
	if !m.dbStore.IsNotFound(err) {
		return "", nil, errors.Annotatef(err, "поиск повтора отметки %s", record.SubjectID)
	}

	saved, err := m.dbStore.InsertAttendance(record, m.window)
	if err != nil {
		// Параллельный запрос успел сохранить отметку из того же интервала
		if m.dbStore.IsDuplicate(err) {
			m.log.Debugf("повтор отметки %s на %s в %s отсечён индексом", record.SubjectID, record.DeviceSN, record.EventAt)
			return model.OutcomeDuplicate, nil, nil
		}
		return "", nil, errors.Annotatef(err, "сохранение отметки %s", record.SubjectID)
	}

	outcome := model.OutcomeAdmitted
	if saved.UnknownSubject {
		outcome = model.OutcomeUnknownSubject
		m.log.Infof("отметка неизвестной персоны %s с терминала %s", saved.SubjectID, saved.DeviceSN)
	}
	if m.notify != nil {
		m.notify.Notify(model.EventAttendance, *saved)
	}

	return outcome, saved, nil
}
