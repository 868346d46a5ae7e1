package adms

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirsrus/adms-gateway/controller/admission"
	"github.com/kirsrus/adms-gateway/controller/queue"
	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/adms"
	"github.com/kirsrus/adms-gateway/service/status"
	"github.com/kirsrus/adms-gateway/store"
	dbStoreMod "github.com/kirsrus/adms-gateway/store/db"

	"github.com/k0kubun/pp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Запоминает разосланные события
type notifier struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (n *notifier) Notify(event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.data = append(n.data, payload)
}

func (n *notifier) Count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, v := range n.events {
		if v == event {
			count++
		}
	}
	return count
}

type fixture struct {
	ctl     *Adms
	dbStore store.DbStore
	notify  *notifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dbStore, err := dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
		DbFile: filepath.Join(t.TempDir(), "adms.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbStore.Close() })

	notify := &notifier{}
	admissionCtl, err := admission.NewAdmission(ctx, dbStore, notify, &admission.ConfigAdmission{})
	require.NoError(t, err)
	queueCtl, err := queue.NewQueue(ctx, dbStore, &queue.ConfigQueue{})
	require.NoError(t, err)
	statusSvc, err := status.NewStatus(ctx, &status.ConfigStatus{})
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ctl, err := NewAdms(ctx, dbStore, admissionCtl, queueCtl, statusSvc, notify, &ConfigAdms{
		Options: adms.Options{Delay: 10, TransTimes: "00:00;23:59", TransInterval: 1, Realtime: 1},
		Times:   adms.NewTimeNormalizer(time.UTC, func() time.Time { return now }),
	})
	require.NoError(t, err)

	return fixture{ctl: ctl.(*Adms), dbStore: dbStore, notify: notify}
}

func TestNewAdms(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		dbStore store.DbStore
		config  *ConfigAdms
		wantErr bool
	}{
		{name: "без конфигурации", dbStore: f.dbStore, config: nil, wantErr: true},
		{name: "без БД", dbStore: nil, config: &ConfigAdms{}, wantErr: true},
		{name: "корректный", dbStore: f.dbStore, config: &ConfigAdms{}, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdms(context.Background(), tt.dbStore, f.ctl.admissionCtl, f.ctl.queueCtl, f.ctl.statusSvc, nil, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAdms() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdms_Handshake(t *testing.T) {
	f := newFixture(t)

	got := f.ctl.Handshake("ABC123", "10.0.0.5", url.Values{"SN": {"ABC123"}, "pushver": {"2.4.1"}})
	lines := strings.Split(got, "\r\n")
	assert.Equal(t, []string{
		"GET OPTION FROM: ABC123",
		"ATTLOGStamp=0",
		"OPERLOGStamp=0",
		"Delay=10",
		"TransTimes=00:00;23:59",
		"TransInterval=1",
		"Realtime=1",
		"Encrypt=0",
		"OK",
	}, lines)

	// Рукопожатие только отмечает время обращения
	device, err := f.dbStore.GetDevice("ABC123")
	require.NoError(t, err)
	require.NotNil(t, device.LastSeen)
	assert.Empty(t, device.PushVersion)
	assert.Empty(t, device.IPAddress)
	assert.True(t, device.Active)
	assert.Equal(t, 0, f.notify.Count(model.EventDeviceStatus))
	_, ok := f.ctl.statusSvc.Get("ABC123")
	assert.False(t, ok)

	f.ctl.Handshake("ABC123", "10.0.0.5", nil)
	assert.Equal(t, 0, f.notify.Count(model.EventDeviceStatus))

	// Следующее обращение выводит терминал на связь
	assert.Equal(t, "OK", f.ctl.Ping("ABC123", "10.0.0.5"))
	assert.Equal(t, 1, f.notify.Count(model.EventDeviceStatus))

	// Без серийного номера терминал в БД не заводится
	got = f.ctl.Handshake("", "10.0.0.6", nil)
	assert.True(t, strings.HasPrefix(got, "GET OPTION FROM: UNKNOWN\r\n"))
	devices, err := f.dbStore.ListDevices(store.DeviceFilter{})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestAdms_Registry(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, adms.ReplySNRequired, f.ctl.Registry("", "10.0.0.5", nil))

	got := f.ctl.Registry("ABC123", "10.0.0.5", []byte("DeviceName=Проходная,MachineType=SpeedFace-V5L,FirmVer=ZAM180,PushVersion=2.4.1,IPAddress=192.168.1.20"))
	assert.Equal(t, "OK", got)

	device, err := f.dbStore.GetDevice("ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Проходная", device.Name)
	assert.Equal(t, "SpeedFace-V5L", device.Model)
	assert.Equal(t, "ZAM180", device.Firmware)
	assert.Equal(t, "192.168.1.20", device.IPAddress)
}

func TestAdms_DataPush(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		req   model.PushRequest
		reply string
		want  model.PushReport
	}{
		{
			name:  "без серийного номера",
			req:   model.PushRequest{Table: "ATTLOG", Body: []byte("1001,2025-01-01 08:00:00,0,1")},
			reply: adms.ReplySNRequired,
			want:  model.PushReport{},
		},
		{
			name:  "пустое тело",
			req:   model.PushRequest{SN: "D1", Table: "ATTLOG"},
			reply: "OK",
			want:  model.PushReport{},
		},
		{
			name:  "неизвестная персона",
			req:   model.PushRequest{SN: "D1", Body: []byte("1001,2025-01-01 08:00:00,0,1")},
			reply: "OK",
			want:  model.PushReport{Kind: "attendance", Records: 1, UnknownSubject: 1},
		},
		{
			name:  "повтор через 30 секунд",
			req:   model.PushRequest{SN: "D1", Table: "ATTLOG", Body: []byte("1001\t2025-01-01 08:00:30\t1\t15")},
			reply: "OK",
			want:  model.PushReport{Kind: "attendance", Records: 1, Duplicates: 1},
		},
		{
			name:  "пакет key=value",
			req:   model.PushRequest{SN: "D1", Table: "ATTLOG", Body: []byte("PIN=7\tTime=2025-01-01 09:00:00\tStatus=1\tVerify=15\nPIN=8\tTime=2025-01-01 09:01:00\tStatus=0\tVerify=4")},
			reply: "OK",
			want:  model.PushReport{Kind: "attendance", Records: 2, UnknownSubject: 2},
		},
		{
			name:  "нераспознанное время",
			req:   model.PushRequest{SN: "D1", Body: []byte("PIN=9,Time=вчера,Status=0")},
			reply: "OK",
			want:  model.PushReport{Kind: "attendance", Records: 1, UnknownSubject: 1, TimeAssumed: 1},
		},
		{
			name:  "журнал операций",
			req:   model.PushRequest{SN: "D1", Table: "OPERLOG", Body: []byte("OPLOG 4\t0\t2025-01-01 08:00:00\t0\t0\t0\t0")},
			reply: "OK",
			want:  model.PushReport{Kind: "operation", Records: 1, Operations: 1},
		},
		{
			name:  "данные персоны",
			req:   model.PushRequest{SN: "D1", Table: "OPERLOG", Body: []byte("USER PIN=42\tName=Иванов\tPri=0\tPasswd=\tCard=\tGrp=1")},
			reply: "OK",
			want:  model.PushReport{Kind: "user", Records: 1, Operations: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, reply := f.ctl.DataPush(tt.req)
			assert.Equal(t, tt.reply, reply)
			if !assert.Equal(t, tt.want, *report) {
				pp.Println(report)
			}
		})
	}

	list, err := f.dbStore.ListAttendance(store.AttendanceFilter{SubjectID: "1001"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusCheckIn, list[0].Status)
	assert.Equal(t, model.VerifyFingerprint, list[0].Verify)
	assert.True(t, list[0].UnknownSubject)
	assert.Equal(t, "D1", list[0].DeviceSN)
	assert.True(t, list[0].EventAt.Equal(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)))

	list, err = f.dbStore.ListAttendance(store.AttendanceFilter{SubjectID: "7"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusCheckOut, list[0].Status)
	assert.Equal(t, model.VerifyFace, list[0].Verify)

	list, err = f.dbStore.ListAttendance(store.AttendanceFilter{SubjectID: "9"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].TimeAssumed)

	ops, err := f.dbStore.ListOperations("D1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	assert.Equal(t, 4, f.notify.Count(model.EventAttendance))
	assert.Equal(t, 1, f.notify.Count(model.EventOperation))
	assert.Equal(t, 1, f.notify.Count(model.EventUserEnrolled))
}

func TestAdms_CommandPoll(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, adms.ReplySNRequired, f.ctl.CommandPoll("", "10.0.0.5"))
	assert.Equal(t, "OK", f.ctl.CommandPoll("D2", "10.0.0.5"))

	cmd, err := f.ctl.queueCtl.Enqueue("D2", model.CommandReboot, nil)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("C:%d:REBOOT", cmd.ID), f.ctl.CommandPoll("D2", "10.0.0.5"))
	// Выданная команда повторно не выдаётся
	assert.Equal(t, "OK", f.ctl.CommandPoll("D2", "10.0.0.5"))

	// Выключенному терминалу команды не выдаются
	_, err = f.ctl.queueCtl.Enqueue("D2", model.CommandSyncTime, nil)
	require.NoError(t, err)
	require.NoError(t, f.dbStore.DeactivateDevice("D2"))
	assert.Equal(t, "OK", f.ctl.CommandPoll("D2", "10.0.0.5"))
	pending, err := f.ctl.queueCtl.List(store.CommandFilter{DeviceSN: "D2", PendingOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAdms_CommandResult(t *testing.T) {
	f := newFixture(t)

	cmd, err := f.ctl.queueCtl.Enqueue("D2", model.CommandAddUser, map[string]string{"pin": "42", "name": "Иванов"})
	require.NoError(t, err)
	line := f.ctl.CommandPoll("D2", "10.0.0.5")
	assert.Equal(t, fmt.Sprintf("C:%d:DATA USER PIN=42\tName=Иванов\tPri=0\tPasswd=\tCard=\tGrp=1\tTZ=0000000000000000", cmd.ID), line)

	body := []byte(fmt.Sprintf("ID=%d&Return=0&CMD=DATA\nID=9999&Return=0&CMD=REBOOT\nмусор", cmd.ID))
	assert.Equal(t, "OK", f.ctl.CommandResult("D2", "10.0.0.5", body))
	// Повторный отчёт
	assert.Equal(t, "OK", f.ctl.CommandResult("D2", "10.0.0.5", body))

	got, err := f.dbStore.GetCommand(cmd.ID)
	require.NoError(t, err)
	require.True(t, got.Reported())
	assert.Equal(t, 0, *got.ReturnCode)
	assert.Equal(t, 2, f.notify.Count(model.EventUserEnrolled))

	assert.Equal(t, "OK", f.ctl.CommandResult("D2", "10.0.0.5", []byte("")))
}

func TestAdms_Ping(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "OK", f.ctl.Ping("D3", "10.0.0.7"))

	st, ok := f.ctl.statusSvc.Get("D3")
	require.True(t, ok)
	assert.True(t, st.Connected)
	assert.Equal(t, "ping", st.Operation)
}
