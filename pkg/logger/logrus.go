package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateMaxSize    = 30 // MB
	RotateLocalTime  = true
	RotateMaxAge     = 365 // Дней
	RotateMaxBackups = 10  // Колличество файлов
	RotateCompress   = true
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Config конфигурация лога
type Config struct {
	File    string
	Level   logrus.Level
	Console bool
}

// Get быстрый конфиг на консоль
func Get(level logrus.Level) *logrus.Logger {
	return GetWithConfig(Config{
		File:    "",
		Level:   level,
		Console: true,
	})
}

// GetWithConfig лоигрование с конфигурацией
func GetWithConfig(config Config) *logrus.Logger {
	once.Do(func() {
		logger = New(config)
		// Вступительная запись на высоком уровне
		prevLogLevel := logger.Level
		logger.Level = logrus.InfoLevel
		logger.Printf("----------===== начало записи в лог %s =====----------", time.Now().Format("2006.01.02 15:04:05"))
		logger.Level = prevLogLevel
	})
	return logger
}

// New создаёт новый логгер без глобального кэширования
func New(config Config) *logrus.Logger {
	log := logrus.New()
	log.Level = config.Level
	log.Formatter = &logrus.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "2006.01.02 15:04:05",
		FullTimestamp:   true,
	}
	log.Out = Writer(config)
	log.AddHook(LogrusContextHook{})
	return log
}

// Writer куда пишется лог: консоль, если файл не задан, иначе консоль и файл с ротацией
func Writer(config Config) io.Writer {
	if config.Console || config.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    RotateMaxSize, // MB
		MaxAge:     RotateMaxAge,  // Day
		MaxBackups: RotateMaxBackups,
		LocalTime:  RotateLocalTime,
		Compress:   RotateCompress,
	})
}

// Discard логгер, который никуда не пишет. Используется, когда логгер не передан в конфигурации
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}
