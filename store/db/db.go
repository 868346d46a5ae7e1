package db

import (
	"context"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/pkg/tool"
	"github.com/kirsrus/adms-gateway/pkg/validator"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	cacheDuration = 10 * time.Minute
	cacheCleared  = time.Hour

	// Сколько раз пытаться выдать команду при одновременных опросах одного терминала
	claimAttempts = 100

	defaultLimit = 100
	maxLimit     = 1000
)

// Db обращение к базе данных. Инициируется через NewDb
type Db struct {
	ctx       context.Context
	log       *logrus.Entry
	db        *gorm.DB
	validator *validator.Validator

	subjectCache *cache.Cache
}

// ConfigDb конфигурацияи класса NewDb
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
}

// NewDb конструктор класса Db
func NewDb(ctx context.Context, config *ConfigDb) (store.DbStore, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.DbFile == "" {
		return nil, errors.New("в конфигурациине указана строка подлкючения")
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(sqlite.Open(config.DbFile+"?_busy_timeout=5000"), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к файлу БД")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, errors.Annotate(err, "ошибка получения подключения к БД")
	}
	// SQLite не допускает параллельной записи
	sqlDB.SetMaxOpenConns(1)

	err = conn.AutoMigrate(Device{}, Subject{}, Attendance{}, Operation{}, Command{}, Webhook{}, WebhookLog{}, AuditLog{})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
		}),
		validator: validator.Get(),
		db:        conn,

		subjectCache: cache.New(cacheDuration, cacheCleared),
	}

	return &db, nil
}

// IsNotFound проверяет, что ошибка err обозначает, что записи не найдены
func (m Db) IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Cause(err) == gorm.ErrRecordNotFound || errors.IsNotFound(err)
}

// IsDuplicate проверяет, что ошибка err обозначает нарушение уникальности
func (m Db) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Cause(err) == gorm.ErrDuplicatedKey || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetDevice получает терминал по серийному номеру
func (m Db) GetDevice(sn string) (*model.Device, error) {
	var device Device
	if err := m.db.Where("sn = ?", sn).Take(&device).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	res := device.ToDevice()
	return &res, nil
}

// UpsertDevice регистрирует обращение терминала. При первом обращении терминал создаётся и возвращается true
func (m Db) UpsertDevice(sn string, info model.DeviceInfo, at time.Time) (*model.Device, bool, error) {
	if sn == "" {
		return nil, false, errors.NotValidf("пустой серийный номер")
	}
	seen := at.UTC()

	var device Device
	err := m.db.Where("sn = ?", sn).Take(&device).Error
	if err != nil && !m.IsNotFound(err) {
		return nil, false, errors.Trace(err)
	}
	if err != nil {
		// Добавляем новый терминал
		device = Device{SN: sn, LastSeen: &seen}
		device.Update(info)
		err := m.db.Create(&device).Error
		if err == nil {
			res := device.ToDevice()
			return &res, true, nil
		}
		if !m.IsDuplicate(err) {
			return nil, false, errors.Annotate(err, "ошибка добавления терминала в БД")
		}
		// Терминал успели добавить параллельным запросом
		if err := m.db.Where("sn = ?", sn).Take(&device).Error; err != nil {
			return nil, false, errors.Trace(err)
		}
	}

	// Обновляем существующий
	device.Update(info)
	device.LastSeen = &seen
	err = m.db.Model(&device).Updates(map[string]interface{}{
		"last_seen":    seen,
		"name":         device.Name,
		"ip_address":   device.IPAddress,
		"model":        device.Model,
		"firmware":     device.Firmware,
		"push_version": device.PushVersion,
	}).Error
	if err != nil {
		return nil, false, errors.Annotate(err, "ошибка обновления терминала")
	}
	res := device.ToDevice()
	return &res, false, nil
}

// SaveDevice сохраняет изменения терминала из административного API. Если терминала не было, вернётся true
func (m Db) SaveDevice(device model.Device) (*model.Device, bool, error) {
	if err := m.validator.ValidateWithConform(&device); err != nil {
		return nil, false, errors.NewNotValid(err, "ошибка валидации")
	}

	var row Device
	err := m.db.Where("sn = ?", device.SN).Take(&row).Error
	if err != nil && !m.IsNotFound(err) {
		return nil, false, errors.Trace(err)
	}
	if err != nil {
		row = Device{
			SN:          device.SN,
			Name:        device.Name,
			IPAddress:   device.IPAddress,
			Model:       device.Model,
			Firmware:    device.Firmware,
			PushVersion: device.PushVersion,
			Deactivated: !device.Active,
		}
		if err := m.db.Create(&row).Error; err != nil {
			return nil, false, errors.Annotate(err, "ошибка добавления терминала в БД")
		}
		res := row.ToDevice()
		return &res, true, nil
	}

	row.Name = device.Name
	row.IPAddress = device.IPAddress
	row.Deactivated = !device.Active
	err = m.db.Model(&row).Updates(map[string]interface{}{
		"name":        row.Name,
		"ip_address":  row.IPAddress,
		"deactivated": row.Deactivated,
	}).Error
	if err != nil {
		return nil, false, errors.Annotate(err, "ошибка обновления терминала")
	}
	res := row.ToDevice()
	return &res, false, nil
}

// ListDevices список терминалов
func (m Db) ListDevices(filter store.DeviceFilter) ([]model.Device, error) {
	rows := make([]Device, 0)
	query := m.db.Order("sn")
	if !filter.WithInactive {
		query = query.Where("deactivated = ?", false)
	}
	if err := paginate(query, filter.Offset, filter.Limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Device, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToDevice())
	}
	return result, nil
}

// DeactivateDevice выключает терминал
func (m Db) DeactivateDevice(sn string) error {
	res := m.db.Model(&Device{}).Where("sn = ?", sn).Update("deactivated", true)
	if res.Error != nil {
		return errors.Trace(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetSubject получает персону по идентификатору. Отсутсвие персоны в БД проверяется через IsNotFound
func (m Db) GetSubject(id string) (*model.Subject, error) {
	if id == "" {
		return nil, errors.New("передан пустой идентификатор персоны")
	}
	if v, ok := m.subjectCache.Get(id); ok {
		subject := v.(model.Subject)
		return &subject, nil
	}

	var subject Subject
	if err := m.db.Where("external_id = ?", id).Take(&subject).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	res := subject.ToSubject()
	m.subjectCache.SetDefault(id, res)
	return &res, nil
}

// SetSubject добавляет персону в БД. Если персоны нет, она будет добавлена и вернётся true.
// Если персона уже была, она будет обновлена и вернётся false
func (m Db) SetSubject(subject model.Subject) (*model.Subject, bool, error) {
	if err := m.validator.ValidateWithConform(&subject); err != nil {
		return nil, false, errors.NewNotValid(err, "ошибка валидации")
	}
	defer m.subjectCache.Delete(subject.ID)

	var isSubject Subject
	err := m.db.Where("external_id = ?", subject.ID).Take(&isSubject).Error
	if err != nil && !m.IsNotFound(err) {
		return nil, false, errors.Trace(err)
	}
	if err != nil {
		// Добавляем новую запись
		var newSubject Subject
		newSubject.FromSubject(subject)
		if err := m.db.Create(&newSubject).Error; err != nil {
			if m.IsDuplicate(err) {
				return nil, false, errors.AlreadyExistsf("персона %s", subject.ID)
			}
			return nil, false, errors.Annotate(err, "ошибка добавления в БД")
		}
		res := newSubject.ToSubject()
		return &res, true, nil
	}

	// Обновляем существующую
	isSubject.FromSubject(subject)
	if err := m.db.Save(&isSubject).Error; err != nil {
		return nil, false, errors.Annotate(err, "ошибка обновления записи")
	}
	res := isSubject.ToSubject()
	return &res, false, nil
}

// DeleteSubject удаляет персону
func (m Db) DeleteSubject(id string) error {
	defer m.subjectCache.Delete(id)
	res := m.db.Where("external_id = ?", id).Delete(&Subject{})
	if res.Error != nil {
		return errors.Trace(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListSubjects список персон
func (m Db) ListSubjects(offset, limit int) ([]model.Subject, error) {
	rows := make([]Subject, 0)
	if err := paginate(m.db.Order("external_id"), offset, limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Subject, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToSubject())
	}
	return result, nil
}

// FindDuplicateAttendance ищет отметку той же персоны на том же терминале в пределах ±window от at.
// Если такой нет, возвращается ошибка, проверяемая IsNotFound
func (m Db) FindDuplicateAttendance(subjectID, deviceSN string, at time.Time, window time.Duration) (*model.Attendance, error) {
	if window < 0 {
		window = -window
	}
	var row Attendance
	err := m.db.
		Where("subject_id = ? AND device_sn = ? AND event_at BETWEEN ? AND ?",
			subjectID, deviceSN, at.Add(-window).UTC(), at.Add(window).UTC()).
		Order("event_at").
		Take(&row).Error
	if err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	res := row.ToAttendance()
	return &res, nil
}

// InsertAttendance сохраняет отметку. Интервал window задаёт уникальный ключ дедупликации
func (m Db) InsertAttendance(record model.Attendance, window time.Duration) (*model.Attendance, error) {
	if err := m.validator.Validate(&record); err != nil {
		return nil, errors.NewNotValid(err, "ошибка валидации")
	}
	var row Attendance
	row.FromAttendance(record, tool.TimeBucket(record.EventAt, window))
	if err := m.db.Create(&row).Error; err != nil {
		return nil, errors.Trace(err)
	}
	res := row.ToAttendance()
	return &res, nil
}

// ListAttendance отметки по фильтру, новые первыми
func (m Db) ListAttendance(filter store.AttendanceFilter) ([]model.Attendance, error) {
	query := m.db.Order("event_at DESC, id DESC")
	if filter.SubjectID != "" {
		query = query.Where("subject_id = ?", filter.SubjectID)
	}
	if filter.DeviceSN != "" {
		query = query.Where("device_sn = ?", filter.DeviceSN)
	}
	if filter.From != nil {
		query = query.Where("event_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("event_at <= ?", filter.To.UTC())
	}
	if filter.UnknownOnly {
		query = query.Where("unknown_subject = ?", true)
	}
	rows := make([]Attendance, 0)
	if err := paginate(query, filter.Offset, filter.Limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Attendance, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToAttendance())
	}
	return result, nil
}

// AttendanceStats сводка по отметкам: всего, начиная с since и число разных персон
func (m Db) AttendanceStats(since time.Time) (*store.AttendanceStats, error) {
	var stats store.AttendanceStats
	if err := m.db.Model(&Attendance{}).Count(&stats.Total).Error; err != nil {
		return nil, errors.Trace(err)
	}
	if err := m.db.Model(&Attendance{}).Where("event_at >= ?", since.UTC()).Count(&stats.Since).Error; err != nil {
		return nil, errors.Trace(err)
	}
	if err := m.db.Model(&Attendance{}).Distinct("subject_id").Count(&stats.UniqueSubjects).Error; err != nil {
		return nil, errors.Trace(err)
	}
	if err := m.db.Model(&Attendance{}).Where("unknown_subject = ?", true).Count(&stats.UnknownSubject).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return &stats, nil
}

// InsertOperation сохраняет запись журнала операций терминала
func (m Db) InsertOperation(op model.Operation) (*model.Operation, error) {
	row := Operation{
		DeviceSN: op.DeviceSN,
		Table:    op.Table,
		Tag:      op.Tag,
		Raw:      op.Raw,
		Fields:   toJSON(op.Fields),
	}
	if err := m.db.Create(&row).Error; err != nil {
		return nil, errors.Trace(err)
	}
	res := row.ToOperation()
	return &res, nil
}

// ListOperations журнал операций терминала, новые первыми. Пустой deviceSN - все терминалы
func (m Db) ListOperations(deviceSN string, offset, limit int) ([]model.Operation, error) {
	query := m.db.Order("id DESC")
	if deviceSN != "" {
		query = query.Where("device_sn = ?", deviceSN)
	}
	rows := make([]Operation, 0)
	if err := paginate(query, offset, limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Operation, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToOperation())
	}
	return result, nil
}

// EnqueueCommand ставит команду в конец очереди терминала
func (m Db) EnqueueCommand(deviceSN string, verb model.CommandVerb, args map[string]string, at time.Time) (*model.Command, error) {
	if args == nil {
		args = make(map[string]string)
	}
	row := Command{
		GormModelUnscoped: GormModelUnscoped{CreatedAt: at.UTC()},
		DeviceSN:          deviceSN,
		Verb:              string(verb),
		Args:              toJSON(args),
	}
	if err := m.db.Create(&row).Error; err != nil {
		return nil, errors.Annotate(err, "ошибка добавления команды в очередь")
	}
	res := row.ToCommand()
	return &res, nil
}

// ClaimNextCommand атомарно выбирает самую старую невыданную команду терминала и помечает её выданной.
// Выдача - условное обновление по claimed = false: из параллельных опросов его выполнит только один
func (m Db) ClaimNextCommand(deviceSN string, at time.Time) (*model.Command, error) {
	claimedAt := at.UTC()
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var row Command
		err := m.db.Where("device_sn = ? AND claimed = ?", deviceSN, false).Order("id").Take(&row).Error
		if err != nil {
			if m.IsNotFound(err) {
				return nil, gorm.ErrRecordNotFound
			}
			return nil, errors.Trace(err)
		}

		res := m.db.Model(&Command{}).
			Where("id = ? AND claimed = ?", row.ID, false).
			Updates(map[string]interface{}{
				"claimed":    true,
				"claimed_at": claimedAt,
			})
		if res.Error != nil {
			return nil, errors.Trace(res.Error)
		}
		if res.RowsAffected == 1 {
			row.Claimed = true
			row.ClaimedAt = &claimedAt
			cmd := row.ToCommand()
			return &cmd, nil
		}
		// Команду выдал параллельный опрос, берём следующую
		m.log.Debugf("команда %d терминала %s уже выдана, повтор", row.ID, deviceSN)
	}
	return nil, errors.Errorf("не удалось выдать команду терминалу %s за %d попыток", deviceSN, claimAttempts)
}

// RecordCommandResult записывает ответ терминала. Повторный вызов перезаписывает результат
func (m Db) RecordCommandResult(id uint, result string, code *int, at time.Time) (*model.Command, error) {
	res := m.db.Model(&Command{}).Where("id = ?", id).Updates(map[string]interface{}{
		"result":      result,
		"return_code": code,
		"reported_at": at.UTC(),
	})
	if res.Error != nil {
		return nil, errors.Trace(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return m.GetCommand(id)
}

// GetCommand получает команду по идентификатору
func (m Db) GetCommand(id uint) (*model.Command, error) {
	var row Command
	if err := m.db.Where("id = ?", id).Take(&row).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	res := row.ToCommand()
	return &res, nil
}

// ListCommands команды по фильтру в порядке очереди
func (m Db) ListCommands(filter store.CommandFilter) ([]model.Command, error) {
	query := m.db.Order("id")
	if filter.DeviceSN != "" {
		query = query.Where("device_sn = ?", filter.DeviceSN)
	}
	if filter.PendingOnly {
		query = query.Where("claimed = ?", false)
	}
	rows := make([]Command, 0)
	if err := paginate(query, filter.Offset, filter.Limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Command, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToCommand())
	}
	return result, nil
}

// ActiveWebhooks активные webhook, подписанные на событие event
func (m Db) ActiveWebhooks(event string) ([]model.Webhook, error) {
	rows := make([]Webhook, 0)
	err := m.db.Where("disabled = ? AND events LIKE ?", false, "%,"+event+",%").Order("id").Find(&rows).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Webhook, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToWebhook())
	}
	return result, nil
}

// SaveWebhook сохраняет webhook. При ID == 0 создаётся новый
func (m Db) SaveWebhook(hook model.Webhook) (*model.Webhook, error) {
	if err := m.validator.ValidateWithConform(&hook); err != nil {
		return nil, errors.NewNotValid(err, "ошибка валидации")
	}

	var row Webhook
	if hook.ID != 0 {
		if err := m.db.Where("id = ?", hook.ID).Take(&row).Error; err != nil {
			if m.IsNotFound(err) {
				return nil, gorm.ErrRecordNotFound
			}
			return nil, errors.Trace(err)
		}
	}
	row.FromWebhook(hook)
	if err := m.db.Save(&row).Error; err != nil {
		return nil, errors.Annotate(err, "ошибка сохранения webhook")
	}
	res := row.ToWebhook()
	return &res, nil
}

// GetWebhook получает webhook по идентификатору
func (m Db) GetWebhook(id uint) (*model.Webhook, error) {
	var row Webhook
	if err := m.db.Where("id = ?", id).Take(&row).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, errors.Trace(err)
	}
	res := row.ToWebhook()
	return &res, nil
}

// ListWebhooks все webhook
func (m Db) ListWebhooks() ([]model.Webhook, error) {
	rows := make([]Webhook, 0)
	if err := m.db.Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.Webhook, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToWebhook())
	}
	return result, nil
}

// DeleteWebhook удаляет webhook. Журнал доставки сохраняется до очистки архива
func (m Db) DeleteWebhook(id uint) error {
	res := m.db.Where("id = ?", id).Delete(&Webhook{})
	if res.Error != nil {
		return errors.Trace(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// InsertWebhookLog добавляет запись журнала доставки
func (m Db) InsertWebhookLog(entry model.WebhookLog) (*model.WebhookLog, error) {
	var row WebhookLog
	row.FromWebhookLog(entry)
	row.ID = 0
	if err := m.db.Create(&row).Error; err != nil {
		return nil, errors.Trace(err)
	}
	res := row.ToWebhookLog()
	return &res, nil
}

// UpdateWebhookLog обновляет результат доставки
func (m Db) UpdateWebhookLog(entry model.WebhookLog) error {
	res := m.db.Model(&WebhookLog{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
		"status":       entry.Status,
		"status_code":  entry.StatusCode,
		"response":     entry.Response,
		"retries":      entry.Retries,
		"processed_at": utcPtr(entry.ProcessedAt),
	})
	if res.Error != nil {
		return errors.Trace(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// WebhookLogs журнал доставки по фильтру, новые первыми
func (m Db) WebhookLogs(filter store.WebhookLogFilter) ([]model.WebhookLog, error) {
	query := m.db.Order("id DESC")
	if filter.WebhookID != 0 {
		query = query.Where("webhook_id = ?", filter.WebhookID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	rows := make([]WebhookLog, 0)
	if err := paginate(query, filter.Offset, filter.Limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.WebhookLog, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToWebhookLog())
	}
	return result, nil
}

// InsertAudit сохраняет запись журнала административных действий
func (m Db) InsertAudit(entry model.AuditLog) error {
	row := AuditLog{
		RequestID:  entry.RequestID,
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Status:     entry.Status,
		Details:    toJSON(entry.Details),
	}
	if err := m.db.Create(&row).Error; err != nil {
		return errors.Trace(err)
	}
	return nil
}

// ListAudit журнал административных действий, новые первыми
func (m Db) ListAudit(offset, limit int) ([]model.AuditLog, error) {
	rows := make([]AuditLog, 0)
	if err := paginate(m.db.Order("id DESC"), offset, limit).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	result := make([]model.AuditLog, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToAuditLog())
	}
	return result, nil
}

// Clean очищает журналы в БД старше days дней. Отметки о проходе и невыполненные команды не удаляются
func (m Db) Clean(days int) error {
	if days <= 0 {
		return nil
	}
	m.log.Info("запуск процесса очистки старых данных архива")

	lastDate := tool.RoundToDate(time.Now()).AddDate(0, 0, -days).UTC()
	var total int64
	for _, v := range []interface{}{&WebhookLog{}, &AuditLog{}, &Operation{}} {
		res := m.db.Where("created_at < ?", lastDate).Delete(v)
		if res.Error != nil {
			m.log.Warn(res.Error)
			return errors.Trace(res.Error)
		}
		total += res.RowsAffected
	}
	res := m.db.Where("created_at < ? AND reported_at IS NOT NULL", lastDate).Delete(&Command{})
	if res.Error != nil {
		m.log.Warn(res.Error)
		return errors.Trace(res.Error)
	}
	total += res.RowsAffected

	if total > 0 {
		m.log.Infof("из архива удалено %d записей старше %s", total, lastDate.Local().Format("2006.01.02"))
	} else {
		m.log.Info("записей в архиве для удаления нет")
	}
	return nil
}

// Close закрывает подключение к БД
func (m Db) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return sqlDB.Close()
}

func paginate(query *gorm.DB, offset, limit int) *gorm.DB {
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return query.Offset(offset).Limit(limit)
}
