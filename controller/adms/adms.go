package adms

import (
	"context"
	"net/url"
	"strings"

	"github.com/kirsrus/adms-gateway/controller"
	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/adms"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/service"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Серийный номер в ответе на рукопожатие, если терминал его не прислал
	unknownSN = "UNKNOWN"
	// Сколько символов тела запроса выводить в лог
	excerptLen = 120
)

// Операции терминала для реестра статусов
const (
	opHandshake = "handshake"
	opRegistry  = "registry"
	opDataPush  = "cdata"
	opPoll      = "getrequest"
	opResult    = "devicecmd"
	opPing      = "ping"
)

// ConfigAdms конфигурация Adms
type ConfigAdms struct {
	Log *logrus.Logger
	// Параметры для ответа на рукопожатие
	Options adms.Options
	// Статус прохода при неизвестном коде
	DefaultStatus model.AttendanceStatus
	// Разбор времени в часовом поясе терминалов. По умолчанию - локальное время
	Times *adms.TimeNormalizer
}

// Adms обработка обращений терминалов по протоколу ADMS. Состояние терминала не хранится,
// оно определяется тем, к какому адресу обратился терминал. Инициируется через NewAdms
type Adms struct {
	ctx     context.Context
	log     *logrus.Entry
	dbStore store.DbStore

	admissionCtl controller.AdmissionCtl
	queueCtl     controller.QueueCtl
	statusSvc    service.StatusSvc
	notify       service.NotifySvc

	options       adms.Options
	defaultStatus model.AttendanceStatus
	times         *adms.TimeNormalizer
}

// NewAdms конструктор Adms. notify может быть nil
func NewAdms(ctx context.Context, dbStore store.DbStore, admissionCtl controller.AdmissionCtl, queueCtl controller.QueueCtl,
	statusSvc service.StatusSvc, notify service.NotifySvc, config *ConfigAdms) (controller.AdmsCtl, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if dbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}
	if admissionCtl == nil {
		return nil, errors.New("не передан контроллер приёма отметок")
	}
	if queueCtl == nil {
		return nil, errors.New("не передан контроллер очереди команд")
	}
	if statusSvc == nil {
		return nil, errors.New("не передан реестр статусов терминалов")
	}

	ctl := Adms{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "adms",
			"scope":  "controller",
		}),
		dbStore:       dbStore,
		admissionCtl:  admissionCtl,
		queueCtl:      queueCtl,
		statusSvc:     statusSvc,
		notify:        notify,
		options:       config.Options,
		defaultStatus: config.DefaultStatus,
		times:         config.Times,
	}
	if ctl.defaultStatus == "" {
		ctl.defaultStatus = model.StatusPresent
	}
	if ctl.times == nil {
		ctl.times = adms.NewTimeNormalizer(nil, nil)
	}
	if ctl.options.TransTimes == "" {
		ctl.options.TransTimes = "00:00;23:59"
	}

	return &ctl, nil
}

// Handshake рукопожатие терминала
func (m Adms) Handshake(sn, address string, query url.Values) string {
	if sn == "" {
		m.log.Warnf("рукопожатие без серийного номера с %s", address)
		return adms.HandshakeResponse(unknownSN, m.options)
	}
	// Рукопожатие только отмечает время обращения. Сведения о терминале приходят в registry,
	// а реестр статусов и события обновляются при следующих обращениях
	m.log.Debugf("рукопожатие %s с %s: %s", sn, address, query.Encode())
	if _, created, err := m.dbStore.UpsertDevice(sn, model.DeviceInfo{}, m.times.Now()); err != nil {
		m.fail(sn, err)
	} else if created {
		m.log.Infof("новый терминал %s (%s)", sn, address)
	}
	return adms.HandshakeResponse(sn, m.options)
}

// Registry регистрация терминала со сведениями о нём в теле запроса
func (m Adms) Registry(sn, address string, body []byte) string {
	if sn == "" {
		return adms.ReplySNRequired
	}
	var info model.DeviceInfo
	payload, err := adms.Parse(body, "", nil)
	if err == nil {
		for _, rec := range payload.Records {
			mergeInfo(&info, deviceInfo(rec.Fields))
		}
	}
	m.touch(sn, address, opRegistry, info)
	m.log.Infof("регистрация терминала %s (%s): %s %s", sn, address, info.Model, info.Firmware)
	return adms.ReplyOK
}

// DataPush выгрузка данных терминалом. Терминал удаляет данные у себя только получив OK,
// поэтому ответ всегда OK: ошибки записываются в лог и в реестр статусов
func (m Adms) DataPush(req model.PushRequest) (*model.PushReport, string) {
	report := &model.PushReport{}
	if req.SN == "" {
		return report, adms.ReplySNRequired
	}
	m.touch(req.SN, req.Address, opDataPush, model.DeviceInfo{})

	payload, err := adms.Parse(req.Body, req.ContentType, req.Query)
	if err != nil {
		m.log.Debugf("терминал %s прислал пустые данные (table=%s)", req.SN, req.Table)
		return report, adms.ReplyOK
	}
	report.Kind = adms.ClassifyPayload(req.Table, payload.Records)
	report.Records = len(payload.Records)

	for _, rec := range payload.Records {
		switch kind := adms.Classify(req.Table, rec); kind {
		case adms.KindAttendance:
			m.admit(req.SN, rec, report)
		case adms.KindOperation, adms.KindUserEvent:
			m.operation(req, rec, kind, report)
		default:
			report.Rejected++
			m.log.Debugf("нераспознанная запись от %s (table=%s): %q", req.SN, req.Table, adms.Excerpt([]byte(rec.Raw), excerptLen))
		}
	}

	m.log.WithFields(map[string]interface{}{
		"sn":    req.SN,
		"table": req.Table,
		"shape": payload.Shape,
	}).Debugf("принято записей %d: %+v", report.Records, *report)
	if report.Failed > 0 {
		m.log.Errorf("терминал %s: не сохранено записей %d из %d, терминалу отправлен OK", req.SN, report.Failed, report.Records)
	}
	return report, adms.ReplyOK
}

// CommandPoll выдаёт терминалу очередную команду
func (m Adms) CommandPoll(sn, address string) string {
	if sn == "" {
		return adms.ReplySNRequired
	}
	device := m.touch(sn, address, opPoll, model.DeviceInfo{})
	if device != nil && !device.Active {
		return adms.ReplyOK
	}

	cmd, err := m.queueCtl.ClaimNext(sn)
	if err != nil {
		m.fail(sn, err)
		return adms.ReplyOK
	}
	if cmd == nil {
		return adms.ReplyOK
	}

	line, err := adms.EncodeCommand(*cmd, m.times.Now())
	if err != nil {
		// Команду уже не вернуть в очередь: закрываем её с ошибкой
		m.log.Errorf("команда #%d %s для %s не может быть передана: %v", cmd.ID, cmd.Verb, sn, err)
		code := -1
		if _, err := m.queueCtl.ReportResult(cmd.ID, "ERR: "+err.Error(), &code); err != nil {
			m.fail(sn, err)
		}
		return adms.ReplyOK
	}
	m.log.Infof("терминалу %s передана команда #%d %s", sn, cmd.ID, cmd.Verb)
	return line
}

// CommandResult отчёт терминала о выполнении команд
func (m Adms) CommandResult(sn, address string, body []byte) string {
	m.touch(sn, address, opResult, model.DeviceInfo{})

	results := adms.ParseCommandResults(body)
	if len(results) == 0 {
		m.log.Warnf("терминал %s прислал отчёт без идентификаторов команд: %q", sn, adms.Excerpt(body, excerptLen))
		return adms.ReplyOK
	}
	for _, v := range results {
		cmd, err := m.queueCtl.ReportResult(v.ID, v.Raw, v.ReturnCode)
		if err != nil {
			if errors.IsNotFound(err) {
				m.log.Warnf("терминал %s отчитался о неизвестной команде #%d", sn, v.ID)
				continue
			}
			m.fail(sn, err)
			continue
		}
		if sn != "" && cmd.DeviceSN != sn {
			m.log.Warnf("терминал %s отчитался о команде #%d терминала %s", sn, cmd.ID, cmd.DeviceSN)
		}
		if cmd.Verb == model.CommandAddUser && v.ReturnCode != nil && *v.ReturnCode == 0 {
			m.emit(model.EventUserEnrolled, map[string]interface{}{
				"device_sn":  cmd.DeviceSN,
				"subject_id": cmd.Args["pin"],
				"command_id": cmd.ID,
			})
		}
	}
	return adms.ReplyOK
}

// Ping проверка связи
func (m Adms) Ping(sn, address string) string {
	m.touch(sn, address, opPing, model.DeviceInfo{})
	return adms.ReplyOK
}

// Приём одной отметки о проходе
func (m Adms) admit(sn string, rec adms.Record, report *model.PushReport) {
	at, assumed := m.times.Parse(rec.Fields.Get(adms.FieldTime))
	if assumed {
		report.TimeAssumed++
		m.log.Warnf("время %q в отметке от %s не распознано, принято текущее", rec.Fields.Get(adms.FieldTime), sn)
	}
	record := model.Attendance{
		SubjectID:   rec.Fields.Get(adms.FieldSubject),
		DeviceSN:    sn,
		EventAt:     at,
		Status:      adms.StatusFromCode(rec.Fields.Get(adms.FieldStatus), m.defaultStatus),
		Verify:      adms.VerifyFromCode(rec.Fields.Get(adms.FieldVerify)),
		WorkCode:    rec.Fields.Get(adms.FieldWorkCode),
		TimeAssumed: assumed,
		Raw:         rec.Raw,
		Fields:      rec.Values,
	}
	outcome, _, err := m.admissionCtl.Admit(record)
	if err != nil {
		report.Failed++
		m.fail(sn, err)
		return
	}
	report.Count(outcome)
}

// Сохранение записи журнала операций или данных персоны
func (m Adms) operation(req model.PushRequest, rec adms.Record, kind adms.Kind, report *model.PushReport) {
	table := strings.ToUpper(strings.TrimSpace(req.Table))
	if table == "" {
		table = kind.String()
	}
	saved, err := m.dbStore.InsertOperation(model.Operation{
		DeviceSN: req.SN,
		Table:    table,
		Tag:      rec.Tag,
		Raw:      rec.Raw,
		Fields:   rec.Values,
	})
	if err != nil {
		report.Failed++
		m.fail(req.SN, err)
		return
	}
	report.Operations++

	event := model.EventOperation
	if kind == adms.KindUserEvent {
		event = model.EventUserEnrolled
	}
	m.emit(event, *saved)
}

// Отмечает обращение терминала в БД и в реестре статусов. Возвращает терминал из БД или nil при ошибке
func (m Adms) touch(sn, address, operation string, info model.DeviceInfo) *model.Device {
	if sn == "" {
		return nil
	}
	if info.IPAddress == "" {
		info.IPAddress = address
	}
	device, created, err := m.dbStore.UpsertDevice(sn, info, m.times.Now())
	if err != nil {
		m.fail(sn, err)
	}
	online := m.statusSvc.Touch(sn, address, operation)
	if created {
		m.log.Infof("новый терминал %s (%s)", sn, address)
	}
	if created || online {
		status, _ := m.statusSvc.Get(sn)
		if device != nil && device.Name != "" {
			status.Name = device.Name
		}
		m.emit(model.EventDeviceStatus, status)
	}
	return device
}

// Внутренняя ошибка: в лог и в реестр статусов. Терминалу не передаётся
func (m Adms) fail(sn string, err error) {
	m.log.Errorf("терминал %s: %v", sn, err)
	m.statusSvc.Fail(sn, err)
}

func (m Adms) emit(event string, payload interface{}) {
	if m.notify != nil {
		m.notify.Notify(event, payload)
	}
}

// Сведения о терминале из нормализованных полей
func deviceInfo(fields adms.Fields) model.DeviceInfo {
	return model.DeviceInfo{
		Name:        fields.Get(adms.FieldDeviceName),
		Model:       fields.Get(adms.FieldModel),
		Firmware:    fields.Get(adms.FieldFirmware),
		PushVersion: fields.Get(adms.FieldPushVersion),
		IPAddress:   fields.Get(adms.FieldIPAddress),
	}
}

// Дополняет пустые поля dst из src
func mergeInfo(dst *model.DeviceInfo, src model.DeviceInfo) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if dst.Firmware == "" {
		dst.Firmware = src.Firmware
	}
	if dst.PushVersion == "" {
		dst.PushVersion = src.PushVersion
	}
	if dst.IPAddress == "" {
		dst.IPAddress = src.IPAddress
	}
}
