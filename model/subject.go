package model

import (
	"strconv"
	"time"
)

// Subject персона (сотрудник, студент), заведённая на терминалах под своим PIN
type Subject struct {
	ID             string            `json:"id" conform:"trim" validate:"required,max=24"`
	Name           string            `json:"name" conform:"trim"`
	CardNo         string            `json:"card_no" conform:"trim"`
	Password       string            `json:"password,omitempty"`
	Privilege      int               `json:"privilege"`
	Group          int               `json:"group"`
	FaceTemplateID string            `json:"face_template_id" conform:"trim"`
	Devices        []string          `json:"devices"`
	Meta           map[string]string `json:"meta,omitempty"`
	CreatedAt      *time.Time        `json:"created_at,omitempty"`
	UpdatedAt      *time.Time        `json:"updated_at,omitempty"`
}

// CommandArgs аргументы команды ADD_USER для заведения персоны на терминале
func (m Subject) CommandArgs() map[string]string {
	args := map[string]string{
		"pin":  m.ID,
		"name": m.Name,
		"card": m.CardNo,
	}
	if m.Password != "" {
		args["password"] = m.Password
	}
	if m.Privilege != 0 {
		args["privilege"] = strconv.Itoa(m.Privilege)
	}
	if m.Group != 0 {
		args["group"] = strconv.Itoa(m.Group)
	}
	return args
}
