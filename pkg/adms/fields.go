package adms

import (
	"net/url"
	"strings"
)

// Нормализованные имена полей записи
const (
	FieldSubject     = "subject"
	FieldTime        = "time"
	FieldStatus      = "status"
	FieldVerify      = "verify"
	FieldWorkCode    = "workcode"
	FieldSerial      = "serial"
	FieldDeviceName  = "device_name"
	FieldModel       = "device_model"
	FieldFirmware    = "device_firmware"
	FieldPushVersion = "push_version"
	FieldIPAddress   = "device_ip"
)

// FieldRule правило нормализации: первое найденное по порядку Keys имя даёт значение поля Name
type FieldRule struct {
	Name string
	Keys []string
}

// FieldRules порядок поиска значений нормализованных полей. Имена различаются от прошивки к прошивке
var FieldRules = []FieldRule{
	{Name: FieldSubject, Keys: []string{"PIN", "UserID", "pin", "user_id", "CardNo", "EnrollNumber", "empId", "studentId"}},
	{Name: FieldTime, Keys: []string{"Time", "DateTime", "time", "timestamp", "datetime", "CheckTime", "AttTime"}},
	{Name: FieldStatus, Keys: []string{"Status", "status", "State", "AttState", "state"}},
	{Name: FieldVerify, Keys: []string{"Verify", "Verified", "verify", "VerifyMode", "verify_mode", "VerifyType"}},
	{Name: FieldWorkCode, Keys: []string{"WorkCode", "Workcode", "workcode", "work_code"}},
	{Name: FieldSerial, Keys: []string{"SN", "sn", "SerialNumber", "serial"}},
	{Name: FieldDeviceName, Keys: []string{"DeviceName", "device_name"}},
	{Name: FieldModel, Keys: []string{"MachineType", "DeviceType", "model"}},
	{Name: FieldFirmware, Keys: []string{"FirmVer", "FWVersion", "firmware"}},
	{Name: FieldPushVersion, Keys: []string{"PushVersion", "pushver"}},
	{Name: FieldIPAddress, Keys: []string{"IPAddress", "IP", "ip"}},
}

// RuleKeys имена, под которыми терминал может прислать поле name
func RuleKeys(name string) []string {
	for _, rule := range FieldRules {
		if rule.Name == name {
			return rule.Keys
		}
	}
	return nil
}

// Fields нормализованные поля записи
type Fields map[string]string

// Get значение нормализованного поля
func (m Fields) Get(name string) string {
	return m[name]
}

// Has поле присутствует и не пустое
func (m Fields) Has(name string) bool {
	return m[name] != ""
}

// Normalize приводит поля, присланные терминалом, к нормализованным именам.
// Параметры запроса query используются с наименьшим приоритетом
func Normalize(values map[string]string, query url.Values) Fields {
	fields := make(Fields, len(FieldRules))
	for _, rule := range FieldRules {
		if v, ok := lookup(rule.Keys, values, query); ok {
			fields[rule.Name] = v
		}
	}
	return fields
}

func lookup(keys []string, values map[string]string, query url.Values) (string, bool) {
	for _, key := range keys {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v, true
		}
	}
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v, true
		}
	}
	return "", false
}
