package adms

import (
	"strings"
)

// Kind тип записи, определяющий, как её обрабатывать
type Kind int

const (
	KindUnknown Kind = iota
	KindAttendance
	KindOperation
	KindUserEvent
)

func (k Kind) String() string {
	switch k {
	case KindAttendance:
		return "attendance"
	case KindOperation:
		return "operation"
	case KindUserEvent:
		return "user"
	}
	return "unknown"
}

// Таблицы, которые терминал указывает в параметре table
const (
	TableAttLog  = "ATTLOG"
	TableOperLog = "OPERLOG"
	TableUser    = "USER"
)

// Метки записей с данными персон
var userTags = map[string]bool{
	"USER":     true,
	"FP":       true,
	"FACE":     true,
	"BIOPHOTO": true,
	"USERPIC":  true,
	"BIODATA":  true,
}

// Classify определяет тип записи по таблице из запроса и, если таблица не задана
// или неизвестна, по метке и наличию идентификатора персоны
func Classify(table string, rec Record) Kind {
	switch strings.ToUpper(strings.TrimSpace(table)) {
	case TableAttLog:
		return KindAttendance
	case TableUser, "USERINFO":
		return KindUserEvent
	case TableOperLog:
		if userTags[rec.Tag] {
			return KindUserEvent
		}
		return KindOperation
	}

	switch {
	case userTags[rec.Tag]:
		return KindUserEvent
	case rec.Tag != "":
		return KindOperation
	case rec.Fields.Has(FieldSubject):
		return KindAttendance
	}
	return KindUnknown
}

// ClassifyPayload общий тип пакета: тип записей, если он у всех одинаков, иначе "mixed"
func ClassifyPayload(table string, records []Record) string {
	kind := ""
	for _, rec := range records {
		k := Classify(table, rec).String()
		if kind == "" {
			kind = k
		} else if kind != k {
			return "mixed"
		}
	}
	if kind == "" {
		return KindUnknown.String()
	}
	return kind
}
