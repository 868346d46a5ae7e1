package db

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/model"

	"gorm.io/datatypes"
)

type (
	// GormModelUnscoped модель эквивалент gorm.Model без сохранения удалений
	GormModelUnscoped struct {
		ID        int `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

type (
	// Device терминал
	Device struct {
		GormModelUnscoped
		SN          string `gorm:"uniqueIndex;size:64"`
		Name        string
		IPAddress   string
		Model       string
		Firmware    string
		PushVersion string
		LastSeen    *time.Time
		// Выключенный терминал. Хранится инверсией, чтобы нулевое значение означало включённый
		Deactivated bool
	}
)

// TableName имя таблицы
func (Device) TableName() string {
	return "devices"
}

// ToDevice маппинг данных в структуру model.Device
func (m Device) ToDevice() model.Device {
	return model.Device{
		SN:          m.SN,
		Name:        m.Name,
		IPAddress:   m.IPAddress,
		Model:       m.Model,
		Firmware:    m.Firmware,
		PushVersion: m.PushVersion,
		LastSeen:    localPtr(m.LastSeen),
		Active:      !m.Deactivated,
		CreatedAt:   local(m.CreatedAt),
		UpdatedAt:   local(m.UpdatedAt),
	}
}

// Update переносит в текущую запись непустые сведения о терминале
func (m *Device) Update(info model.DeviceInfo) {
	if info.Name != "" {
		m.Name = info.Name
	}
	if info.Model != "" {
		m.Model = info.Model
	}
	if info.Firmware != "" {
		m.Firmware = info.Firmware
	}
	if info.PushVersion != "" {
		m.PushVersion = info.PushVersion
	}
	if info.IPAddress != "" {
		m.IPAddress = info.IPAddress
	}
}

type (
	// Subject персона. Внешний идентификатор хранится в ExternalID, ID - суррогатный ключ
	Subject struct {
		GormModelUnscoped
		ExternalID     string `gorm:"uniqueIndex;size:24"`
		Name           string
		CardNo         string `gorm:"index"`
		Password       string
		Privilege      int
		Grp            int
		FaceTemplateID string
		Devices        datatypes.JSON
		Meta           datatypes.JSON
	}
)

// TableName имя таблицы
func (Subject) TableName() string {
	return "subjects"
}

// ToSubject маппинг данных в структуру model.Subject
func (m Subject) ToSubject() model.Subject {
	subject := model.Subject{
		ID:             m.ExternalID,
		Name:           m.Name,
		CardNo:         m.CardNo,
		Password:       m.Password,
		Privilege:      m.Privilege,
		Group:          m.Grp,
		FaceTemplateID: m.FaceTemplateID,
		Devices:        make([]string, 0),
		CreatedAt:      local(m.CreatedAt),
		UpdatedAt:      local(m.UpdatedAt),
	}
	fromJSON(m.Devices, &subject.Devices)
	if subject.Devices == nil {
		subject.Devices = make([]string, 0)
	}
	fromJSON(m.Meta, &subject.Meta)
	return subject
}

// FromSubject заполняет текущую структуру из структуры model.Subject (кроме суррогатного ключа)
func (m *Subject) FromSubject(subject model.Subject) {
	m.ExternalID = subject.ID
	m.Name = subject.Name
	m.CardNo = subject.CardNo
	m.Password = subject.Password
	m.Privilege = subject.Privilege
	m.Grp = subject.Group
	m.FaceTemplateID = subject.FaceTemplateID
	m.Devices = toJSON(subject.Devices)
	m.Meta = toJSON(subject.Meta)
}

type (
	// Attendance отметка о проходе. Уникальный индекс по интервалу дедупликации
	// не даёт параллельным повторам одной отметки попасть в БД дважды
	Attendance struct {
		ID             int `gorm:"primaryKey"`
		CreatedAt      time.Time
		SubjectID      string    `gorm:"size:64;index:idx_att_lookup,priority:1;uniqueIndex:uq_att_bucket,priority:1"`
		DeviceSN       string    `gorm:"size:64;index:idx_att_lookup,priority:2;uniqueIndex:uq_att_bucket,priority:2"`
		EventAt        time.Time `gorm:"index:idx_att_lookup,priority:3"`
		Bucket         int64     `gorm:"uniqueIndex:uq_att_bucket,priority:3"`
		Status         string
		Verify         string
		WorkCode       string
		UnknownSubject bool `gorm:"index"`
		TimeAssumed    bool
		Raw            string
		Fields         datatypes.JSON
	}
)

// TableName имя таблицы
func (Attendance) TableName() string {
	return "attendance"
}

// ToAttendance маппинг данных в структуру model.Attendance
func (m Attendance) ToAttendance() model.Attendance {
	record := model.Attendance{
		ID:             uint(m.ID),
		SubjectID:      m.SubjectID,
		DeviceSN:       m.DeviceSN,
		EventAt:        m.EventAt.Local(),
		Status:         model.AttendanceStatus(m.Status),
		Verify:         model.VerifyMethod(m.Verify),
		WorkCode:       m.WorkCode,
		UnknownSubject: m.UnknownSubject,
		TimeAssumed:    m.TimeAssumed,
		Raw:            m.Raw,
		CreatedAt:      local(m.CreatedAt),
	}
	fromJSON(m.Fields, &record.Fields)
	return record
}

// FromAttendance заполняет текущую структуру из структуры model.Attendance
func (m *Attendance) FromAttendance(record model.Attendance, bucket int64) {
	*m = Attendance{
		SubjectID:      record.SubjectID,
		DeviceSN:       record.DeviceSN,
		EventAt:        record.EventAt.UTC(),
		Bucket:         bucket,
		Status:         string(record.Status),
		Verify:         string(record.Verify),
		WorkCode:       record.WorkCode,
		UnknownSubject: record.UnknownSubject,
		TimeAssumed:    record.TimeAssumed,
		Raw:            record.Raw,
		Fields:         toJSON(record.Fields),
	}
}

type (
	// Operation журнал операций терминала
	Operation struct {
		ID        int `gorm:"primaryKey"`
		CreatedAt time.Time `gorm:"index"`
		DeviceSN  string    `gorm:"size:64;index"`
		Table     string    `gorm:"column:tbl"`
		Tag       string
		Raw       string
		Fields    datatypes.JSON
	}
)

// TableName имя таблицы
func (Operation) TableName() string {
	return "operations"
}

// ToOperation маппинг данных в структуру model.Operation
func (m Operation) ToOperation() model.Operation {
	op := model.Operation{
		ID:        uint(m.ID),
		DeviceSN:  m.DeviceSN,
		Table:     m.Table,
		Tag:       m.Tag,
		Raw:       m.Raw,
		CreatedAt: local(m.CreatedAt),
	}
	fromJSON(m.Fields, &op.Fields)
	return op
}

type (
	// Command команда в очереди терминала
	Command struct {
		GormModelUnscoped
		DeviceSN   string `gorm:"size:64;index:idx_cmd_queue,priority:1"`
		Verb       string
		Args       datatypes.JSON
		Claimed    bool `gorm:"index:idx_cmd_queue,priority:2"`
		ClaimedAt  *time.Time
		Result     *string
		ReturnCode *int
		ReportedAt *time.Time
	}
)

// TableName имя таблицы
func (Command) TableName() string {
	return "commands"
}

// ToCommand маппинг данных в структуру model.Command
func (m Command) ToCommand() model.Command {
	cmd := model.Command{
		ID:         uint(m.ID),
		DeviceSN:   m.DeviceSN,
		Verb:       model.CommandVerb(m.Verb),
		Args:       make(map[string]string),
		CreatedAt:  m.CreatedAt.Local(),
		Claimed:    m.Claimed,
		ClaimedAt:  localPtr(m.ClaimedAt),
		Result:     m.Result,
		ReturnCode: m.ReturnCode,
		ReportedAt: localPtr(m.ReportedAt),
	}
	fromJSON(m.Args, &cmd.Args)
	if cmd.Args == nil {
		cmd.Args = make(map[string]string)
	}
	return cmd
}

type (
	// Webhook подписка на события
	Webhook struct {
		GormModelUnscoped
		URL string
		// События в виде ",attendance,operation," для поиска через LIKE
		Events   string
		Secret   string
		Disabled bool
		Metadata datatypes.JSON
	}
)

// TableName имя таблицы
func (Webhook) TableName() string {
	return "webhooks"
}

// ToWebhook маппинг данных в структуру model.Webhook
func (m Webhook) ToWebhook() model.Webhook {
	hook := model.Webhook{
		ID:        uint(m.ID),
		URL:       m.URL,
		Events:    make([]string, 0),
		Secret:    m.Secret,
		Active:    !m.Disabled,
		CreatedAt: local(m.CreatedAt),
		UpdatedAt: local(m.UpdatedAt),
	}
	for _, event := range strings.Split(m.Events, ",") {
		if event != "" {
			hook.Events = append(hook.Events, event)
		}
	}
	fromJSON(m.Metadata, &hook.Metadata)
	return hook
}

// FromWebhook заполняет текущую структуру из структуры model.Webhook (кроме ключа)
func (m *Webhook) FromWebhook(hook model.Webhook) {
	m.URL = hook.URL
	m.Events = "," + strings.Join(hook.Events, ",") + ","
	m.Secret = hook.Secret
	m.Disabled = !hook.Active
	m.Metadata = toJSON(hook.Metadata)
}

type (
	// WebhookLog журнал доставки событий
	WebhookLog struct {
		GormModelUnscoped
		WebhookID   int    `gorm:"index"`
		DeliveryID  string `gorm:"size:36;index"`
		URL         string
		Event       string
		Payload     datatypes.JSON
		Status      string `gorm:"index"`
		StatusCode  int
		Response    string
		Retries     int
		ProcessedAt *time.Time
	}
)

// TableName имя таблицы
func (WebhookLog) TableName() string {
	return "webhook_logs"
}

// ToWebhookLog маппинг данных в структуру model.WebhookLog
func (m WebhookLog) ToWebhookLog() model.WebhookLog {
	entry := model.WebhookLog{
		ID:          uint(m.ID),
		WebhookID:   uint(m.WebhookID),
		DeliveryID:  m.DeliveryID,
		URL:         m.URL,
		Event:       m.Event,
		Status:      m.Status,
		StatusCode:  m.StatusCode,
		Response:    m.Response,
		Retries:     m.Retries,
		CreatedAt:   local(m.CreatedAt),
		ProcessedAt: localPtr(m.ProcessedAt),
	}
	if len(m.Payload) > 0 {
		entry.Payload = json.RawMessage(m.Payload)
	}
	return entry
}

// FromWebhookLog заполняет текущую структуру из структуры model.WebhookLog
func (m *WebhookLog) FromWebhookLog(entry model.WebhookLog) {
	*m = WebhookLog{
		GormModelUnscoped: GormModelUnscoped{ID: int(entry.ID)},
		WebhookID:         int(entry.WebhookID),
		DeliveryID:        entry.DeliveryID,
		URL:               entry.URL,
		Event:             entry.Event,
		Payload:           toJSON(entry.Payload),
		Status:            entry.Status,
		StatusCode:        entry.StatusCode,
		Response:          entry.Response,
		Retries:           entry.Retries,
		ProcessedAt:       utcPtr(entry.ProcessedAt),
	}
}

type (
	// AuditLog журнал административных действий
	AuditLog struct {
		ID         int       `gorm:"primaryKey"`
		CreatedAt  time.Time `gorm:"index"`
		RequestID  string    `gorm:"size:36"`
		Action     string
		Resource   string
		ResourceID string
		IP         string
		UserAgent  string
		Status     int
		Details    datatypes.JSON
	}
)

// TableName имя таблицы
func (AuditLog) TableName() string {
	return "audit_logs"
}

// ToAuditLog маппинг данных в структуру model.AuditLog
func (m AuditLog) ToAuditLog() model.AuditLog {
	entry := model.AuditLog{
		ID:         uint(m.ID),
		RequestID:  m.RequestID,
		Action:     m.Action,
		Resource:   m.Resource,
		ResourceID: m.ResourceID,
		IP:         m.IP,
		UserAgent:  m.UserAgent,
		Status:     m.Status,
		CreatedAt:  local(m.CreatedAt),
	}
	fromJSON(m.Details, &entry.Details)
	return entry
}

func toJSON(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}

func fromJSON(data datatypes.JSON, v interface{}) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

func local(t time.Time) *time.Time {
	t = t.Local()
	return &t
}

func localPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return local(*t)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
