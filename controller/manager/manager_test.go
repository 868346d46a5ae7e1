package manager

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/service"
	"github.com/kirsrus/adms-gateway/service/status"
	"github.com/kirsrus/adms-gateway/store"
	dbStoreMod "github.com/kirsrus/adms-gateway/store/db"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Служба, работающая до остановки контекста или возвращающая err
type worker struct {
	ctx     context.Context
	err     error
	started int32
}

func (m *worker) Run() error {
	atomic.AddInt32(&m.started, 1)
	if m.err != nil {
		return m.err
	}
	<-m.ctx.Done()
	return nil
}

type web struct {
	worker
}

func (m *web) DeviceApi(string)  {}
func (m *web) AdminApi(string)   {}
func (m *web) GraphQLApi(string) {}
func (m *web) EventFeed(string)  {}
func (m *web) Health(string)     {}
func (m *web) Serve() error      { return m.Run() }

type notifier struct {
	mu     sync.Mutex
	events []string
	status []model.DeviceStatus
}

func (m *notifier) Notify(event string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if v, ok := payload.(model.DeviceStatus); ok {
		m.status = append(m.status, v)
	}
}

func (m *notifier) snapshot() ([]string, []model.DeviceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...), append([]model.DeviceStatus(nil), m.status...)
}

// Часы, переводимые вручную
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *clock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *clock) Add(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newDb(t *testing.T) store.DbStore {
	t.Helper()
	dbStore, err := dbStoreMod.NewDb(context.Background(), &dbStoreMod.ConfigDb{
		DbFile: filepath.Join(t.TempDir(), "adms.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbStore.Close() })
	return dbStore
}

func TestNewManager(t *testing.T) {
	ctx := context.Background()
	dbStore := newDb(t)
	statusSvc, err := status.NewStatus(ctx, &status.ConfigStatus{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		config  *ConfigManager
		wantErr bool
	}{
		{name: "без конфигурации", config: nil, wantErr: true},
		{name: "без WEB", config: &ConfigManager{DbStore: dbStore, StatusSvc: statusSvc}, wantErr: true},
		{name: "без БД", config: &ConfigManager{WebSvc: &web{}, StatusSvc: statusSvc}, wantErr: true},
		{name: "без реестра", config: &ConfigManager{WebSvc: &web{}, DbStore: dbStore}, wantErr: true},
		{name: "по умолчанию", config: &ConfigManager{WebSvc: &web{}, DbStore: dbStore, StatusSvc: statusSvc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewManager(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil {
				assert.Equal(t, archiveDays, got.archiveDays)
				assert.Equal(t, cleanInterval, got.cleanInterval)
				assert.Equal(t, sweepInterval, got.sweepInterval)
			}
		})
	}
}

func TestManager_Serve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusSvc, err := status.NewStatus(ctx, &status.ConfigStatus{})
	require.NoError(t, err)
	webSvc := &web{worker{ctx: ctx}}
	workers := []service.WorkerSvc{&worker{ctx: ctx}, &worker{ctx: ctx}}

	manager, err := NewManager(ctx, &ConfigManager{
		WebSvc:    webSvc,
		DbStore:   newDb(t),
		StatusSvc: statusSvc,
		Workers:   workers,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- manager.Serve() }()

	require.Eventually(t, func() bool {
		if atomic.LoadInt32(&webSvc.started) != 1 {
			return false
		}
		for _, v := range workers {
			if atomic.LoadInt32(&v.(*worker).started) != 1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve не завершился после остановки контекста")
	}
}

func TestManager_ServeError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusSvc, err := status.NewStatus(ctx, &status.ConfigStatus{})
	require.NoError(t, err)
	manager, err := NewManager(ctx, &ConfigManager{
		WebSvc:    &web{worker{ctx: ctx, err: errors.New("порт занят")}},
		DbStore:   newDb(t),
		StatusSvc: statusSvc,
		Workers:   []service.WorkerSvc{&worker{ctx: ctx}},
	})
	require.NoError(t, err)

	err = manager.Serve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "порт занят")
}

func TestManager_Sweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &clock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	statusSvc, err := status.NewStatus(ctx, &status.ConfigStatus{
		OfflineAfter: time.Minute,
		Now:          c.Now,
	})
	require.NoError(t, err)
	statusSvc.Touch("D1", "10.0.0.5", "ping")
	statusSvc.Touch("D2", "10.0.0.6", "ping")

	n := &notifier{}
	manager, err := NewManager(ctx, &ConfigManager{
		WebSvc:        &web{worker{ctx: ctx}},
		DbStore:       newDb(t),
		StatusSvc:     statusSvc,
		Notify:        n,
		SweepInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- manager.Serve() }()

	c.Add(30 * time.Second)
	statusSvc.Touch("D2", "10.0.0.6", "getrequest")
	c.Add(45 * time.Second)

	require.Eventually(t, func() bool {
		events, _ := n.snapshot()
		return len(events) == 1
	}, 5*time.Second, 10*time.Millisecond)

	events, statuses := n.snapshot()
	assert.Equal(t, []string{model.EventDeviceStatus}, events)
	require.Len(t, statuses, 1)
	assert.Equal(t, "D1", statuses[0].SN)
	assert.False(t, statuses[0].Connected)
	assert.Equal(t, model.DeviceDisconnected, statuses[0].Status)

	got, ok := statusSvc.Get("D2")
	require.True(t, ok)
	assert.True(t, got.Connected)

	cancel()
	assert.NoError(t, <-done)
}
