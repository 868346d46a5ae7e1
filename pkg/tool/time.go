package tool

import (
	"strings"
	"time"

	"github.com/juju/errors"
)

// Форматы времени в запросах административного API
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// RoundToDate округляет дату в t до круглого дня
func RoundToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TimeBucket номер интервала длиной window, в который попадает t.
// При window <= 0 интервалом считается одна секунда
func TimeBucket(t time.Time, window time.Duration) int64 {
	sec := int64(window / time.Second)
	unix := t.Unix()
	if sec <= 0 {
		return unix
	}
	// Деление с округлением вниз, чтобы отрицательные метки не сливались с нулевым интервалом
	bucket := unix / sec
	if unix%sec < 0 {
		bucket--
	}
	return bucket
}

// Backoff задержка перед попыткой attempt (начиная с 1) при базовой задержке base: base*2^(attempt-1)
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Ограничиваем рост, чтобы не переполнить Duration
	if attempt > 16 {
		attempt = 16
	}
	return base << uint(attempt-1)
}

// ParseTime время из запроса административного API: RFC3339, "YYYY-MM-DD hh:mm:ss" или дата YYYY-MM-DD.
// Время без зоны считается местным
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NotValidf("время %q", v)
}
