package adms

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	type args struct {
		raw         string
		contentType string
		query       url.Values
	}
	tests := []struct {
		name    string
		args    args
		shape   Shape
		records []Fields
		wantErr bool
	}{
		{
			name:    "пустое тело",
			args:    args{raw: "  \r\n "},
			wantErr: true,
		},
		{
			name:  "позиционная строка через запятую",
			args:  args{raw: "1001,2025-01-01 08:00:00,0,1"},
			shape: ShapePositional,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00", FieldStatus: "0", FieldVerify: "1"},
			},
		},
		{
			name:  "пакет позиционных строк через табуляцию",
			args:  args{raw: "1001\t2025-01-01 08:00:00\t0\t15\t0\t0\n1002\t2025-01-01 08:01:00\n\n"},
			shape: ShapePositional,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00", FieldStatus: "0", FieldVerify: "15", FieldWorkCode: "0"},
				{FieldSubject: "1002", FieldTime: "2025-01-01 08:01:00"},
			},
		},
		{
			name:  "мусорная строка отбрасывается",
			args:  args{raw: "garbage\n1001,2025-01-01 08:00:00"},
			shape: ShapePositional,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00"},
			},
		},
		{
			name:  "key=value со смешанными разделителями",
			args:  args{raw: "PIN=1001,Time=2025-01-01 08:00:00~Status=1\tVerify=4\r\nWorkCode=7"},
			shape: ShapeKeyValue,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00", FieldStatus: "1", FieldVerify: "4", FieldWorkCode: "7"},
			},
		},
		{
			name:  "значение с дополнительным знаком равенства",
			args:  args{raw: "UserID=42,Time=2025-01-01 08:00:00,note=a=b,=lost,junk"},
			shape: ShapeKeyValue,
			records: []Fields{
				{FieldSubject: "42", FieldTime: "2025-01-01 08:00:00"},
			},
		},
		{
			name:  "несколько записей key=value построчно",
			args:  args{raw: "USER PIN=1\tName=Иванов\nUSER PIN=2\tName=Петров"},
			shape: ShapeKeyValue,
			records: []Fields{
				{FieldSubject: "1"},
				{FieldSubject: "2"},
			},
		},
		{
			name:  "форма",
			args:  args{raw: "user_id=77&timestamp=2025-01-01+08:00:00&state=0", contentType: "application/x-www-form-urlencoded"},
			shape: ShapeForm,
			records: []Fields{
				{FieldSubject: "77", FieldTime: "2025-01-01 08:00:00", FieldStatus: "0"},
			},
		},
		{
			name:  "форма с неверным Content-Type",
			args:  args{raw: "PIN=1001&Time=2025-01-01 08:00:00&Status=0&Verify=15", contentType: "text/plain"},
			shape: ShapeForm,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00", FieldStatus: "0", FieldVerify: "15"},
			},
		},
		{
			name:  "форма без Content-Type",
			args:  args{raw: "user_id=77&timestamp=2025-01-01 08:00:00"},
			shape: ShapeForm,
			records: []Fields{
				{FieldSubject: "77", FieldTime: "2025-01-01 08:00:00"},
			},
		},
		{
			name:  "амперсанд в значении key=value",
			args:  args{raw: "PIN=1001,Name=A&B"},
			shape: ShapeKeyValue,
			records: []Fields{
				{FieldSubject: "1001"},
			},
		},
		{
			name:  "key=value и позиционная строка",
			args:  args{raw: "PIN=1001\tTime=2025-01-01 08:00:00\n1002\t2025-01-01 08:01:00\t0\t1"},
			shape: ShapeKeyValue,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00"},
				{FieldSubject: "1002", FieldTime: "2025-01-01 08:01:00", FieldStatus: "0", FieldVerify: "1"},
			},
		},
		{
			name:  "JSON объект",
			args:  args{raw: `{"EnrollNumber": 5, "DateTime": "2025-01-01 08:00:00", "VerifyMode": 15}`, contentType: "text/plain"},
			shape: ShapeJSON,
			records: []Fields{
				{FieldSubject: "5", FieldTime: "2025-01-01 08:00:00", FieldVerify: "15"},
			},
		},
		{
			name:  "JSON массив",
			args:  args{raw: `[{"pin":"1"},{"CardNo":"0099"},"junk"]`},
			shape: ShapeJSON,
			records: []Fields{
				{FieldSubject: "1"},
				{FieldSubject: "0099"},
			},
		},
		{
			name:  "JSON пакет в data",
			args:  args{raw: `{"data":[{"PIN":"1001","Time":"2025-01-01 08:00:00","Verify":15},{"PIN":"1002","Time":"2025-01-01 08:01:00"}]}`, contentType: "application/json"},
			shape: ShapeJSON,
			records: []Fields{
				{FieldSubject: "1001", FieldTime: "2025-01-01 08:00:00", FieldVerify: "15"},
				{FieldSubject: "1002", FieldTime: "2025-01-01 08:01:00"},
			},
		},
		{
			name:  "JSON пакет в records",
			args:  args{raw: `{"count":1,"records":[{"user_id":"7"}]}`},
			shape: ShapeJSON,
			records: []Fields{
				{FieldSubject: "7"},
			},
		},
		{
			name:  "серийный номер из запроса",
			args:  args{raw: "PIN=1", query: url.Values{"SN": {"ABC123"}, "PIN": {"9"}}},
			shape: ShapeKeyValue,
			records: []Fields{
				{FieldSubject: "1", FieldSerial: "ABC123"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.args.raw), tt.args.contentType, tt.args.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyBody)
				return
			}
			assert.Equal(t, tt.shape, got.Shape)
			require.Len(t, got.Records, len(tt.records))
			for i, want := range tt.records {
				assert.Equal(t, want, got.Records[i].Fields, "запись %d", i)
			}
		})
	}
}

func TestParseKeepsTag(t *testing.T) {
	got, err := Parse([]byte("OPLOG 4\t0\t2025-01-01 08:00:00\t0\t0\t0\t0"), "", nil)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	rec := got.Records[0]
	assert.Equal(t, "OPLOG", rec.Tag)
	assert.Equal(t, "4", rec.Values["OpType"])
	assert.Equal(t, "2025-01-01 08:00:00", rec.Fields.Get(FieldTime))
	assert.False(t, rec.Fields.Has(FieldSubject))
}

func TestParseKeyValueEveryFragment(t *testing.T) {
	delimiters := []string{",", "~", "\t", "\r", "\n", "\r\n"}
	for _, d := range delimiters {
		raw := "a=1" + d + "b=2" + d + "c=x=y"
		values := parseKeyValue(raw)
		assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "x=y"}, values, "разделитель %q", d)
	}
}

func TestNormalizePriority(t *testing.T) {
	fields := Normalize(map[string]string{"CardNo": "card", "UserID": "user", "pin": "low"}, nil)
	assert.Equal(t, "user", fields.Get(FieldSubject))

	fields = Normalize(map[string]string{"PIN": "  "}, url.Values{"pin": {"q"}})
	assert.Equal(t, "q", fields.Get(FieldSubject))
}
