package model

import (
	"net/url"
)

// PushRequest данные, присланные терминалом в /iclock/cdata
type PushRequest struct {
	SN          string
	Table       string
	ContentType string
	Address     string
	Query       url.Values
	Body        []byte
}

// PushReport итог обработки пакета данных от терминала. Терминалу не передаётся, только в лог
type PushReport struct {
	Kind           string `json:"kind"`
	Records        int    `json:"records"`
	Admitted       int    `json:"admitted"`
	Duplicates     int    `json:"duplicates"`
	UnknownSubject int    `json:"unknown_subject"`
	Rejected       int    `json:"rejected"`
	Operations     int    `json:"operations"`
	TimeAssumed    int    `json:"time_assumed"`
	Failed         int    `json:"failed"`
}

// Count учитывает результат приёма одной отметки
func (m *PushReport) Count(outcome Outcome) {
	switch outcome {
	case OutcomeAdmitted:
		m.Admitted++
	case OutcomeDuplicate:
		m.Duplicates++
	case OutcomeUnknownSubject:
		m.UnknownSubject++
	case OutcomeRejected:
		m.Rejected++
	}
}
