package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirsrus/adms-gateway/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Управляемые часы
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewStatus(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConfigStatus
		wantErr bool
	}{
		{name: "без конфигурации", config: nil, wantErr: true},
		{name: "пустой", config: &ConfigStatus{}, wantErr: false},
		{name: "корректный", config: &ConfigStatus{Devices: []model.DeviceStatus{{SN: "A1", Name: "Вход"}}}, wantErr: false},
		{name: "без серийного номера", config: &ConfigStatus{Devices: []model.DeviceStatus{{Name: "Вход"}}}, wantErr: true},
		{name: "повтор", config: &ConfigStatus{Devices: []model.DeviceStatus{{SN: "A1"}, {SN: "A1"}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStatus(context.Background(), tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	svc, err := NewStatus(context.Background(), &ConfigStatus{
		Devices:      []model.DeviceStatus{{SN: "A1", Name: "Вход", Address: "10.0.0.1"}},
		OfflineAfter: time.Minute,
		Now:          c.Now,
	})
	require.NoError(t, err)

	seeded, ok := svc.Get("A1")
	require.True(t, ok)
	assert.True(t, seeded.Configured)
	assert.False(t, seeded.Connected)
	assert.Equal(t, model.DeviceDisconnected, seeded.Status)

	// Первое обращение переводит терминал в онлайн
	assert.True(t, svc.Touch("A1", "", "handshake"))
	assert.False(t, svc.Touch("A1", "10.0.0.2", "cdata"))
	got, _ := svc.Get("A1")
	assert.True(t, got.Connected)
	assert.Equal(t, "10.0.0.2", got.Address)
	assert.Equal(t, "cdata", got.Operation)

	// Неизвестный терминал добавляется при обращении
	assert.True(t, svc.Touch("B2", "10.0.0.3", "getrequest"))
	got, ok = svc.Get("B2")
	require.True(t, ok)
	assert.False(t, got.Configured)

	svc.Fail("B2", errors.New("database is locked"))
	got, _ = svc.Get("B2")
	assert.Equal(t, uint(1), got.Failures)
	assert.Equal(t, "database is locked", got.LastError)

	// Молчание не дольше порога
	c.Add(time.Minute)
	assert.Len(t, svc.Sweep(), 0)

	c.Add(time.Second)
	svc.Touch("B2", "", "ping")
	off := svc.Sweep()
	require.Len(t, off, 1)
	assert.Equal(t, "A1", off[0].SN)
	assert.Len(t, svc.Sweep(), 0)

	// Снова на связи
	assert.True(t, svc.Touch("A1", "", "ping"))

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, "A1", list[0].SN)
	assert.Equal(t, "B2", list[1].SN)
}
