package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Через сколько времени молчания терминал считается отключённым
	offlineAfter = 5 * time.Minute
)

// ConfigStatus конфигурация Status
type ConfigStatus struct {
	Log *logrus.Logger
	// Терминалы из конфигурации программы. Попадают в реестр отключёнными
	Devices      []model.DeviceStatus
	OfflineAfter time.Duration
	// Источник текущего времени (для тестов)
	Now func() time.Time
}

// Status реестр оперативного состояния терминалов. Живёт только в памяти процесса.
// Инициализируется через NewStatus
type Status struct {
	ctx context.Context
	log *logrus.Entry

	mu      sync.RWMutex
	devices map[string]*model.DeviceStatus

	offlineAfter time.Duration
	now          func() time.Time
}

// NewStatus конструктор Status
func NewStatus(ctx context.Context, config *ConfigStatus) (service.StatusSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}

	status := Status{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "status",
			"scope":  "service",
		}),
		devices:      make(map[string]*model.DeviceStatus),
		offlineAfter: offlineAfter,
		now:          time.Now,
	}
	if config.OfflineAfter != 0 {
		status.offlineAfter = config.OfflineAfter
	}
	if config.Now != nil {
		status.now = config.Now
	}

	for _, v := range config.Devices {
		if v.SN == "" {
			return nil, errors.NotValidf("терминал %q без серийного номера", v.Name)
		}
		if _, ok := status.devices[v.SN]; ok {
			return nil, errors.AlreadyExistsf("терминал %s", v.SN)
		}
		device := v
		device.Configured = true
		device.Connected = false
		device.Status = model.DeviceDisconnected
		status.devices[v.SN] = &device
	}
	status.log.Debugf("в реестр из конфигурации добавлено терминалов: %d", len(config.Devices))

	return &status, nil
}

// Touch отмечает обращение терминала. Возвращает true, если терминал только что стал доступен
func (m *Status) Touch(sn, address, operation string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[sn]
	if !ok {
		device = &model.DeviceStatus{SN: sn}
		m.devices[sn] = device
	}
	online := !device.Connected
	device.Connected = true
	device.Status = model.DeviceConnected
	device.LastSeen = &now
	device.Operation = operation
	if address != "" {
		device.Address = address
	}
	if online {
		m.log.Infof("терминал %s (%s) на связи", sn, device.Address)
	}
	return online
}

// Fail отмечает внутреннюю ошибку при обработке запроса терминала
func (m *Status) Fail(sn string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	device, ok := m.devices[sn]
	if !ok {
		device = &model.DeviceStatus{SN: sn, Status: model.DeviceDisconnected}
		m.devices[sn] = device
	}
	device.Failures++
	device.LastError = err.Error()
}

// Get состояние терминала
func (m *Status) Get(sn string) (model.DeviceStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devices[sn]
	if !ok {
		return model.DeviceStatus{}, false
	}
	return copyStatus(device), true
}

// List состояние всех терминалов
func (m *Status) List() []model.DeviceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]model.DeviceStatus, 0, len(m.devices))
	for _, v := range m.devices {
		result = append(result, copyStatus(v))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SN < result[j].SN
	})
	return result
}

// Sweep помечает отключёнными терминалы, молчащие дольше offlineAfter
func (m *Status) Sweep() []model.DeviceStatus {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]model.DeviceStatus, 0)
	for _, v := range m.devices {
		if !v.Connected || v.LastSeen == nil {
			continue
		}
		if now.Sub(*v.LastSeen) <= m.offlineAfter {
			continue
		}
		v.Connected = false
		v.Status = model.DeviceDisconnected
		m.log.Warnf("терминал %s (%s) не выходил на связь с %s", v.SN, v.Address, v.LastSeen.Format("2006.01.02 15:04:05"))
		result = append(result, copyStatus(v))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SN < result[j].SN
	})
	return result
}

// OfflineAfter время молчания, после которого терминал считается отключённым
func (m *Status) OfflineAfter() time.Duration {
	return m.offlineAfter
}

func copyStatus(device *model.DeviceStatus) model.DeviceStatus {
	res := *device
	if device.LastSeen != nil {
		t := *device.LastSeen
		res.LastSeen = &t
	}
	return res
}
