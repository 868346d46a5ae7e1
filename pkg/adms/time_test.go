package adms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeNormalizerParse(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)
	tn := NewTimeNormalizer(loc, func() time.Time { return now })
	want := time.Date(2025, 1, 2, 8, 5, 9, 0, loc)

	tests := []struct {
		name    string
		text    string
		want    time.Time
		assumed bool
	}{
		{name: "год-месяц-день", text: "2025-01-02 08:05:09", want: want},
		{name: "год/месяц/день", text: "2025/01/02 08:05:09", want: want},
		{name: "день-месяц-год", text: "02-01-2025 08:05:09", want: want},
		{name: "день/месяц/год", text: "02/01/2025 08:05:09", want: want},
		{name: "без ведущих нулей", text: "2025-1-2 8:5:9", want: want},
		{name: "ISO с T", text: "2025-01-02T08:05:09", want: want},
		{name: "RFC3339 с зоной", text: "2025-01-02T05:05:09Z", want: want},
		{name: "только дата", text: "2025-01-02", want: time.Date(2025, 1, 2, 0, 0, 0, 0, loc)},
		{name: "unix", text: "1735794309", want: want},
		{name: "пробелы", text: "  2025-01-02 08:05:09 ", want: want},
		{name: "мусор", text: "вчера утром", want: now, assumed: true},
		{name: "пусто", text: "", want: now, assumed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, assumed := tn.Parse(tt.text)
			assert.True(t, tt.want.Equal(got), "Parse(%q) = %s, want %s", tt.text, got, tt.want)
			assert.Equal(t, tt.assumed, assumed)
		})
	}
}

func TestNewTimeNormalizerDefaults(t *testing.T) {
	tn := NewTimeNormalizer(nil, nil)
	assert.Equal(t, time.Local, tn.Location())
	got, assumed := tn.Parse("not a time")
	assert.True(t, assumed)
	assert.False(t, got.IsZero())
}
