package adms

import (
	"strconv"
	"strings"
	"time"
)

// Форматы времени терминалов, в порядке приоритета. Однозначные числа допускаются
var primaryLayouts = []string{
	"2006-1-2 15:4:5",
	"2006/1/2 15:4:5",
	"2-1-2006 15:4:5",
	"2/1/2006 15:4:5",
}

// Форматы последней попытки
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-1-2T15:4:5",
	"2006-1-2 15:4",
	"2006/1/2 15:4",
	"2006-1-2",
	"2006/1/2",
	time.RFC1123Z,
	time.RFC1123,
}

// TimeNormalizer приводит время из записей терминала к единому виду.
// Время без зоны считается временем часового пояса терминалов
type TimeNormalizer struct {
	loc *time.Location
	now func() time.Time
}

// NewTimeNormalizer конструктор. Если loc или now не заданы, используются time.Local и time.Now
func NewTimeNormalizer(loc *time.Location, now func() time.Time) *TimeNormalizer {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &TimeNormalizer{loc: loc, now: now}
}

// Location часовой пояс терминалов
func (m *TimeNormalizer) Location() *time.Location {
	return m.loc
}

// Now текущее время в часовом поясе терминалов
func (m *TimeNormalizer) Now() time.Time {
	return m.now().In(m.loc)
}

// Parse разбирает время. Если ни один формат не подошёл, возвращает текущее время и assumed = true
func (m *TimeNormalizer) Parse(text string) (t time.Time, assumed bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return m.Now(), true
	}
	for _, layout := range primaryLayouts {
		if t, err := time.ParseInLocation(layout, text, m.loc); err == nil {
			return t, false
		}
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, text, m.loc); err == nil {
			return t, false
		}
	}
	// Unix-время в секундах или милисекундах
	if n, err := strconv.ParseInt(text, 10, 64); err == nil && n > 0 {
		switch len(text) {
		case 9, 10:
			return time.Unix(n, 0).In(m.loc), false
		case 13:
			return time.UnixMilli(n).In(m.loc), false
		}
	}
	return m.Now(), true
}
