package model

import (
	"strings"
	"time"
)

// CommandVerb тип административной команды терминалу
type CommandVerb string

const (
	CommandAddUser    CommandVerb = "ADD_USER"
	CommandDeleteUser CommandVerb = "DELETE_USER"
	CommandReboot     CommandVerb = "REBOOT"
	CommandSyncTime   CommandVerb = "SYNC_TIME"
	CommandCustom     CommandVerb = "CUSTOM"
)

var commandVerbs = []CommandVerb{CommandAddUser, CommandDeleteUser, CommandReboot, CommandSyncTime, CommandCustom}

// ParseCommandVerb разбирает имя команды без учёта регистра ("reboot", "add-user", "ADD_USER")
func ParseCommandVerb(s string) (CommandVerb, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for _, v := range commandVerbs {
		if string(v) == name {
			return v, true
		}
	}
	return "", false
}

// Command команда в очереди терминала
type Command struct {
	ID        uint              `json:"id"`
	DeviceSN  string            `json:"device_sn"`
	Verb      CommandVerb       `json:"command"`
	Args      map[string]string `json:"args"`
	CreatedAt time.Time         `json:"created_at"`
	// Команда выдана терминалу. Повторно не выдаётся
	Claimed   bool       `json:"claimed"`
	ClaimedAt *time.Time `json:"claimed_at"`
	// Ответ терминала. nil, пока терминал не отчитался
	Result     *string    `json:"result"`
	ReturnCode *int       `json:"return_code"`
	ReportedAt *time.Time `json:"reported_at"`
}

// Reported терминал прислал результат выполнения
func (m Command) Reported() bool {
	return m.Result != nil
}

// CommandResult ответ терминала на выданную команду
type CommandResult struct {
	ID         uint
	ReturnCode *int
	Cmd        string
	Raw        string
}
