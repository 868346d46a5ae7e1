package model

import (
	"time"
)

// Типы событий, рассылаемых во внешние системы
const (
	EventAttendance   = "attendance"
	EventDeviceStatus = "device_status"
	EventUserEnrolled = "user_enrolled"
	EventOperation    = "operation"
)

// Events все поддерживаемые типы событий
var Events = []string{EventAttendance, EventDeviceStatus, EventUserEnrolled, EventOperation}

// IsEvent проверяет, что event - известный тип события
func IsEvent(event string) bool {
	for _, v := range Events {
		if v == event {
			return true
		}
	}
	return false
}

// Webhook подписка внешней системы на события шлюза
type Webhook struct {
	ID       uint              `json:"id"`
	URL      string            `json:"url" conform:"trim" validate:"required,webhookurl"`
	Events   []string          `json:"events" validate:"required,min=1,dive,oneof=attendance device_status user_enrolled operation"`
	Secret   string            `json:"secret,omitempty"`
	Active   bool              `json:"active"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Subscribed подписан ли webhook на событие event
func (m Webhook) Subscribed(event string) bool {
	for _, v := range m.Events {
		if v == event {
			return true
		}
	}
	return false
}

// Статусы доставки webhook
const (
	DeliveryPending = "pending"
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// WebhookLog журнал доставки события одному получателю
type WebhookLog struct {
	ID          uint        `json:"id"`
	WebhookID   uint        `json:"webhook_id"`
	DeliveryID  string      `json:"delivery_id"`
	URL         string      `json:"url"`
	Event       string      `json:"event"`
	Payload     interface{} `json:"payload"`
	Status      string      `json:"status"`
	StatusCode  int         `json:"status_code"`
	Response    string      `json:"response"`
	Retries     int         `json:"retries"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	ProcessedAt *time.Time  `json:"processed_at"`
}

// Notification тело рассылаемого события
type Notification struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
