package logger

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusContextHook добавляет в запись лога место вызова (файл:строка)
type LogrusContextHook struct{}

// Levels уровни, для которых срабатывает хук
func (hook LogrusContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire добавляет поле source
func (hook LogrusContextHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["source"]; ok {
		return nil
	}
	pc := make([]uintptr, 16)
	n := runtime.Callers(4, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		// Пропускаем кадры самого logrus
		if !strings.Contains(frame.File, "sirupsen/logrus") {
			entry.Data["source"] = fmt.Sprintf("%s/%s:%d",
				filepath.Base(filepath.Dir(frame.File)), filepath.Base(frame.File), frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}
