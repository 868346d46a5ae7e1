package model

import (
	"time"
)

// Device описывает терминал, работающий по протоколу ADMS. Ключ - серийный номер
type Device struct {
	SN          string `json:"sn" conform:"trim" validate:"required,serial"`
	Name        string `json:"name" conform:"trim"`
	IPAddress   string `json:"ip_address" conform:"trim"`
	Model       string `json:"model" conform:"trim"`
	Firmware    string `json:"firmware" conform:"trim"`
	PushVersion string `json:"push_version" conform:"trim"`
	// Время последнего обращения терминала к шлюзу
	LastSeen *time.Time `json:"last_seen"`
	// Неактивный терминал не удаляется, но команды ему не выдаются
	Active    bool       `json:"active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DeviceInfo сведения о терминале из запроса регистрации (/iclock/registry)
type DeviceInfo struct {
	Name        string
	Model       string
	Firmware    string
	PushVersion string
	IPAddress   string
}

// Состояния подключения терминала в реестре статусов
const (
	DeviceConnected    = "Connected"
	DeviceDisconnected = "Disconnected"
)

// DeviceStatus оперативное (не сохраняемое в БД) состояние терминала
type DeviceStatus struct {
	SN         string     `json:"sn"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Connected  bool       `json:"connected"`
	Status     string     `json:"status"`
	LastSeen   *time.Time `json:"last_seen"`
	Operation  string     `json:"last_operation"`
	Configured bool       `json:"configured"`
	// Ошибки хранилища при обработке запросов терминала. Терминалу они не видны
	Failures  uint   `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}
