package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/configor"
	"github.com/juju/errors"
)

var (
	config Config
	once   sync.Once
)

const FileName = "config.yaml"

// Get единажды читает и возвращает конфигурацию
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath единожды читает и возвращает конфигурацию
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		if _, err := os.Stat(filepath); err != nil {
			log.Fatalf("файл конфигурации недоступен: %s", err)
		}
		cfg, err := Load(filepath)
		if err != nil {
			log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
		}
		config = *cfg
	})
	return &config
}

// Load читает конфигурацию из файла без кэширования
func Load(filepath string) (*Config, error) {
	var cfg Config
	if err := configor.Load(&cfg, filepath); err != nil {
		return nil, errors.Trace(err)
	}
	// Корректировки значений
	cfg.Adms.DefaultStatus = strings.TrimSpace(cfg.Adms.DefaultStatus)
	if cfg.Webhook.Workers < 1 {
		cfg.Webhook.Workers = 1
	}
	if _, err := cfg.Location(); err != nil {
		return nil, errors.Annotatef(err, "некорректный часовой пояс %q", cfg.Adms.TimeZone)
	}
	return &cfg, nil
}

// DbFile полный путь к файлу базы данных
func (m Config) DbFile() string {
	return filepath.Join(m.Db.Path, m.Db.Filename)
}

// LogFile полный путь к файлу лога
func (m Config) LogFile() string {
	return filepath.Join(m.Log.Path, m.Log.Filename)
}

// Location часовой пояс терминалов
func (m Config) Location() (*time.Location, error) {
	switch m.Adms.TimeZone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(m.Adms.TimeZone)
}

// DedupWindow окно дедупликации отметок
func (m Config) DedupWindow() time.Duration {
	return time.Duration(m.Adms.DedupWindow) * time.Second
}

// OfflineAfter время молчания, после которого терминал считается отключённым
func (m Config) OfflineAfter() time.Duration {
	return time.Duration(m.Adms.OfflineAfter) * time.Second
}

// WebhookTimeout таймаут запроса webhook
func (m Config) WebhookTimeout() time.Duration {
	return time.Duration(m.Webhook.Timeout) * time.Millisecond
}

// WebhookBackoff базовая задержка повтора webhook
func (m Config) WebhookBackoff() time.Duration {
	return time.Duration(m.Webhook.Backoff) * time.Millisecond
}
