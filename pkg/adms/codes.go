package adms

import (
	"strings"

	"github.com/kirsrus/adms-gateway/model"
)

// Коды направления прохода
var statusCodes = map[string]model.AttendanceStatus{
	"0": model.StatusCheckIn,
	"1": model.StatusCheckOut,
}

// Коды способа идентификации
var verifyCodes = map[string]model.VerifyMethod{
	"0":  model.VerifyPassword,
	"1":  model.VerifyFingerprint,
	"4":  model.VerifyCard,
	"15": model.VerifyFace,
}

// StatusFromCode направление прохода по коду терминала. Для неизвестного или пустого кода - def
func StatusFromCode(code string, def model.AttendanceStatus) model.AttendanceStatus {
	if status, ok := statusCodes[strings.TrimSpace(code)]; ok {
		return status
	}
	if def == "" {
		return model.StatusUnknown
	}
	return def
}

// VerifyFromCode способ идентификации по коду терминала
func VerifyFromCode(code string) model.VerifyMethod {
	if verify, ok := verifyCodes[strings.TrimSpace(code)]; ok {
		return verify
	}
	return model.VerifyUnknown
}

// ParseDefaultStatus статус по умолчанию из конфигурации. Допустимы Present и Unknown
func ParseDefaultStatus(s string) model.AttendanceStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(model.StatusUnknown)) {
		return model.StatusUnknown
	}
	return model.StatusPresent
}
