package model

import (
	"time"
)

// AttendanceStatus направление прохода
type AttendanceStatus string

const (
	StatusCheckIn  AttendanceStatus = "Check-In"
	StatusCheckOut AttendanceStatus = "Check-Out"
	StatusPresent  AttendanceStatus = "Present"
	StatusUnknown  AttendanceStatus = "Unknown"
)

// VerifyMethod способ идентификации на терминале
type VerifyMethod string

const (
	VerifyPassword    VerifyMethod = "Password"
	VerifyFingerprint VerifyMethod = "Fingerprint"
	VerifyCard        VerifyMethod = "RFID Card"
	VerifyFace        VerifyMethod = "Face"
	VerifyUnknown     VerifyMethod = "Unknown"
)

// Attendance отметка о проходе. После сохранения не изменяется
type Attendance struct {
	ID        uint             `json:"id"`
	SubjectID string           `json:"subject_id" conform:"trim" validate:"required"`
	DeviceSN  string           `json:"device_sn" conform:"trim" validate:"required"`
	EventAt   time.Time        `json:"event_at"`
	Status    AttendanceStatus `json:"status"`
	Verify    VerifyMethod     `json:"verify"`
	WorkCode  string           `json:"work_code,omitempty"`
	// Персона не заведена на шлюзе, но запись всё равно сохранена
	UnknownSubject bool `json:"unknown_subject"`
	// Время в записи не распознано и заменено временем приёма
	TimeAssumed bool `json:"time_assumed"`
	// Исходный фрагмент от терминала (для аудита)
	Raw       string            `json:"raw"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt *time.Time        `json:"created_at,omitempty"`
}

// Outcome результат приёма отметки
type Outcome string

const (
	OutcomeAdmitted       Outcome = "admitted"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeUnknownSubject Outcome = "unknown_subject"
	OutcomeRejected       Outcome = "rejected"
)

// Persisted запись сохранена в БД
func (m Outcome) Persisted() bool {
	return m == OutcomeAdmitted || m == OutcomeUnknownSubject
}
