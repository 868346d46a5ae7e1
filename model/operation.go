package model

import (
	"time"
)

// Operation запись журнала операций (OPERLOG) или пользовательских данных (USER) с терминала.
// В отметки о проходе не попадает
type Operation struct {
	ID        uint              `json:"id"`
	DeviceSN  string            `json:"device_sn"`
	Table     string            `json:"table"`
	Tag       string            `json:"tag"`
	Raw       string            `json:"raw"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt *time.Time        `json:"created_at,omitempty"`
}

// AuditLog запись журнала административных действий
type AuditLog struct {
	ID         uint                   `json:"id"`
	RequestID  string                 `json:"request_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	IP         string                 `json:"ip"`
	UserAgent  string                 `json:"user_agent"`
	Status     int                    `json:"status"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  *time.Time             `json:"created_at,omitempty"`
}
