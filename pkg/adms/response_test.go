package adms

import (
	"strings"
	"testing"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeResponse(t *testing.T) {
	got := HandshakeResponse("ABC123", Options{Delay: 10, TransTimes: "00:00;23:59", TransInterval: 1, Realtime: 1})
	want := "GET OPTION FROM: ABC123\r\n" +
		"ATTLOGStamp=0\r\n" +
		"OPERLOGStamp=0\r\n" +
		"Delay=10\r\n" +
		"TransTimes=00:00;23:59\r\n" +
		"TransInterval=1\r\n" +
		"Realtime=1\r\n" +
		"Encrypt=0\r\n" +
		"OK"
	assert.Equal(t, want, got)
	assert.True(t, strings.HasPrefix(got, "GET OPTION FROM: ABC123"))
	assert.True(t, strings.HasSuffix(got, "OK"))
}

func TestEncodeCommand(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		cmd     model.Command
		want    string
		wantErr bool
	}{
		{
			name: "ADD_USER",
			cmd:  model.Command{ID: 7, Verb: model.CommandAddUser, Args: map[string]string{"pin": "1001", "name": "Ivan\tIvanov"}},
			want: "C:7:DATA USER PIN=1001\tName=Ivan Ivanov\tPri=0\tPasswd=\tCard=\tGrp=1\tTZ=0000000000000000",
		},
		{
			name: "ADD_USER с правами и картой",
			cmd:  model.Command{ID: 8, Verb: model.CommandAddUser, Args: map[string]string{"pin": "5", "privilege": "14", "card": "123", "group": "2", "password": "77"}},
			want: "C:8:DATA USER PIN=5\tName=\tPri=14\tPasswd=77\tCard=123\tGrp=2\tTZ=0000000000000000",
		},
		{
			name:    "ADD_USER без pin",
			cmd:     model.Command{ID: 9, Verb: model.CommandAddUser, Args: map[string]string{"name": "x"}},
			wantErr: true,
		},
		{
			name: "DELETE_USER",
			cmd:  model.Command{ID: 10, Verb: model.CommandDeleteUser, Args: map[string]string{"pin": "1001"}},
			want: "C:10:DATA DELETE USERINFO PIN=1001",
		},
		{
			name: "REBOOT",
			cmd:  model.Command{ID: 11, Verb: model.CommandReboot},
			want: "C:11:REBOOT",
		},
		{
			name: "SYNC_TIME текущим временем",
			cmd:  model.Command{ID: 12, Verb: model.CommandSyncTime},
			want: "C:12:SET OPTIONS DateTime=803548800",
		},
		{
			name: "SYNC_TIME заданным временем",
			cmd:  model.Command{ID: 13, Verb: model.CommandSyncTime, Args: map[string]string{"time": "2000-01-01 00:00:10"}},
			want: "C:13:SET OPTIONS DateTime=10",
		},
		{
			name: "CUSTOM",
			cmd:  model.Command{ID: 14, Verb: model.CommandCustom, Args: map[string]string{"command": "CHECK"}},
			want: "C:14:CHECK",
		},
		{
			name:    "CUSTOM пустая",
			cmd:     model.Command{ID: 15, Verb: model.CommandCustom},
			wantErr: true,
		},
		{
			name:    "неизвестная",
			cmd:     model.Command{ID: 16, Verb: "FORMAT"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.cmd, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeCommand() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeTime(t *testing.T) {
	assert.Equal(t, int64(0), EncodeTime(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
	// 2025-01-01 08:00:00: ((25*12*31)+0+0)*86400 + 8*3600
	assert.Equal(t, int64(9300*86400+28800), EncodeTime(time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)))
}

func TestParseCommandResults(t *testing.T) {
	body := "ID=1&Return=0&CMD=REBOOT\r\nID=2&Return=-1002&CMD=DATA\n\nID=abc&Return=0\nReturn=0\nID=3\tReturn=5"
	got := ParseCommandResults([]byte(body))
	require.Len(t, got, 3)

	assert.Equal(t, uint(1), got[0].ID)
	require.NotNil(t, got[0].ReturnCode)
	assert.Equal(t, 0, *got[0].ReturnCode)
	assert.Equal(t, "REBOOT", got[0].Cmd)

	assert.Equal(t, uint(2), got[1].ID)
	assert.Equal(t, -1002, *got[1].ReturnCode)

	assert.Equal(t, uint(3), got[2].ID)
	assert.Equal(t, 5, *got[2].ReturnCode)
}
