package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeBucket(t *testing.T) {
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	type args struct {
		t      time.Time
		window time.Duration
	}
	tests := []struct {
		name string
		args args
		want int64
	}{
		{name: "без окна", args: args{t: base, window: 0}, want: base.Unix()},
		{name: "минутное окно", args: args{t: base.Add(59 * time.Second), window: time.Minute}, want: base.Unix() / 60},
		{name: "следующая минута", args: args{t: base.Add(60 * time.Second), window: time.Minute}, want: base.Unix()/60 + 1},
		{name: "до эпохи", args: args{t: time.Unix(-1, 0), window: time.Minute}, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeBucket(tt.args.t, tt.args.window))
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(time.Second, 0))
	assert.Equal(t, time.Second, Backoff(time.Second, 1))
	assert.Equal(t, 2*time.Second, Backoff(time.Second, 2))
	assert.Equal(t, 4*time.Second, Backoff(time.Second, 3))
}

func TestRoundToDate(t *testing.T) {
	got := RoundToDate(time.Date(2025, 3, 4, 15, 16, 17, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		v       string
		want    time.Time
		wantErr bool
	}{
		{name: "RFC3339", v: "2025-01-01T08:00:00Z", want: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)},
		{name: "дата и время", v: "2025-01-01 08:00:00", want: time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)},
		{name: "дата", v: " 2025-01-01 ", want: time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)},
		{name: "мусор", v: "вчера", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.v)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTime() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				assert.True(t, tt.want.Equal(got), "получено %v", got)
			}
		})
	}
}
