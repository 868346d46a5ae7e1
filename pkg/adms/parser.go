package adms

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/juju/errors"
)

// ErrEmptyBody тело запроса отсутствует. Единственная ошибка разбора
var ErrEmptyBody = errors.New("пустое тело запроса")

// Shape форма, в которой терминал прислал данные
type Shape string

const (
	ShapeKeyValue   Shape = "key-value"
	ShapePositional Shape = "positional"
	ShapeForm       Shape = "form"
	ShapeJSON       Shape = "json"
)

// Разделители фрагментов key=value
const keyValueDelimiters = ",~\t\r\n"

// Метки в начале строки, которыми терминал помечает тип записи
var recordTags = []string{"USER", "OPLOG", "FP", "FACE", "BIOPHOTO", "USERPIC", "ATTPHOTO", "BIODATA"}

// Имена колонок позиционной записи отметки
var attendanceColumns = []string{"PIN", "Time", "Status", "Verify", "WorkCode", "Reserved1", "Reserved2"}

// Имена колонок позиционной записи журнала операций
var operationColumns = []string{"OpType", "Admin", "Time", "Object1", "Object2", "Object3", "Object4"}

// Record одна запись из тела запроса
type Record struct {
	// Метка типа записи (USER, OPLOG, ...), если была
	Tag string
	// Исходный фрагмент тела
	Raw string
	// Поля так, как их прислал терминал
	Values map[string]string
	// Нормализованные поля
	Fields Fields
}

// Payload разобранное тело запроса
type Payload struct {
	Shape   Shape
	Records []Record
}

// Parse разбирает тело запроса терминала. Форма данных определяется по содержимому,
// contentType учитывается только как подсказка. Неразборчивые фрагменты отбрасываются,
// ошибка возвращается только при отсутствии тела
func Parse(raw []byte, contentType string, query url.Values) (*Payload, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return nil, ErrEmptyBody
	}

	payload := &Payload{}
	switch {
	case isJSON(raw, body):
		if records, ok := parseJSON(body); ok {
			payload.Shape, payload.Records = ShapeJSON, records
			break
		}
		payload.Shape, payload.Records = parseText(body)
	case isForm(body, contentType):
		if values, err := url.ParseQuery(body); err == nil {
			payload.Shape = ShapeForm
			payload.Records = []Record{newRecord("", body, flatten(values))}
			break
		}
		payload.Shape, payload.Records = parseText(body)
	default:
		payload.Shape, payload.Records = parseText(body)
	}

	for i := range payload.Records {
		payload.Records[i].Fields = Normalize(payload.Records[i].Values, query)
	}
	return payload, nil
}

func isJSON(raw []byte, body string) bool {
	if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
		return true
	}
	return mimetype.Detect(raw).Is("application/json")
}

func isForm(body, contentType string) bool {
	if !strings.Contains(body, "&") {
		return false
	}
	if strings.Contains(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		return !strings.ContainsAny(body, "\t\r\n")
	}
	// Терминалы путают Content-Type, поэтому форма узнаётся и по содержимому
	if strings.ContainsAny(body, keyValueDelimiters) {
		return false
	}
	values, err := url.ParseQuery(body)
	return err == nil && len(values) > 1
}

// parseText разбирает текстовое тело: key=value или позиционные строки
func parseText(body string) (Shape, []Record) {
	lines := splitLines(body)
	if !strings.Contains(body, "=") {
		records := make([]Record, 0, len(lines))
		for _, line := range lines {
			if rec, ok := parsePositional(line); ok {
				records = append(records, rec)
			}
		}
		return ShapePositional, records
	}

	// Несколько строк с идентификатором персоны или примешанные позиционные строки -
	// это пакет записей, по одной на строку
	withSubject := 0
	positional := false
	for _, line := range lines {
		if !strings.Contains(line, "=") {
			if _, ok := parsePositional(line); ok {
				positional = true
			}
			continue
		}
		if hasSubject(parseKeyValue(stripTagged(line))) {
			withSubject++
		}
	}
	if withSubject < 2 && !positional {
		tag, rest := stripTag(body)
		values := parseKeyValue(rest)
		if len(values) == 0 {
			return ShapeKeyValue, nil
		}
		return ShapeKeyValue, []Record{newRecord(tag, body, values)}
	}

	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		if !strings.Contains(line, "=") {
			if rec, ok := parsePositional(line); ok {
				records = append(records, rec)
			}
			continue
		}
		tag, rest := stripTag(line)
		if values := parseKeyValue(rest); len(values) > 0 {
			records = append(records, newRecord(tag, line, values))
		}
	}
	return ShapeKeyValue, records
}

// parseKeyValue делит текст по разделителям и первому "=" в каждом фрагменте
func parseKeyValue(text string) map[string]string {
	values := make(map[string]string)
	fragments := strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(keyValueDelimiters, r)
	})
	for _, fragment := range fragments {
		i := strings.Index(fragment, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(fragment[:i])
		if key == "" {
			continue
		}
		// Первое вхождение ключа побеждает
		if _, ok := values[key]; ok {
			continue
		}
		values[key] = strings.TrimSpace(fragment[i+1:])
	}
	return values
}

// parsePositional разбирает строку вида "1001\t2025-01-01 08:00:00\t0\t1"
func parsePositional(line string) (Record, bool) {
	tag, rest := stripTag(line)
	sep := ","
	if strings.Contains(rest, "\t") {
		sep = "\t"
	}
	columns := strings.Split(rest, sep)
	if len(columns) < 2 {
		return Record{}, false
	}
	names := attendanceColumns
	if tag == "OPLOG" {
		names = operationColumns
	}
	values := make(map[string]string, len(columns))
	for i, column := range columns {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}
		if i < len(names) {
			values[names[i]] = column
		} else {
			values["Column"+strconv.Itoa(i+1)] = column
		}
	}
	if len(values) == 0 {
		return Record{}, false
	}
	return newRecord(tag, line, values), true
}

// parseJSON разбирает объект, массив объектов или объект с массивом в data/records
func parseJSON(body string) ([]Record, bool) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, false
	}
	switch v := data.(type) {
	case map[string]interface{}:
		// Пакет записей, завёрнутый в объект
		for _, key := range []string{"data", "records"} {
			if items, ok := v[key].([]interface{}); ok {
				return jsonRecords(items), true
			}
		}
		return []Record{newRecord("", body, jsonValues(v))}, true
	case []interface{}:
		return jsonRecords(v), true
	}
	return nil, false
}

// jsonRecords записи из массива. Элементы, не являющиеся объектами, отбрасываются
func jsonRecords(items []interface{}) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		raw, _ := json.Marshal(obj)
		records = append(records, newRecord("", string(raw), jsonValues(obj)))
	}
	return records
}

// jsonValues плоские значения объекта. Вложенные объекты и массивы отбрасываются
func jsonValues(obj map[string]interface{}) map[string]string {
	values := make(map[string]string, len(obj))
	for key, value := range obj {
		switch v := value.(type) {
		case string:
			values[key] = v
		case json.Number:
			values[key] = v.String()
		case bool:
			values[key] = strconv.FormatBool(v)
		}
	}
	return values
}

func flatten(values url.Values) map[string]string {
	result := make(map[string]string, len(values))
	for key := range values {
		result[key] = values.Get(key)
	}
	return result
}

func newRecord(tag, raw string, values map[string]string) Record {
	return Record{Tag: tag, Raw: raw, Values: values}
}

// stripTag отделяет метку записи ("USER PIN=1" -> "USER", "PIN=1")
func stripTag(text string) (string, string) {
	for _, tag := range recordTags {
		if len(text) > len(tag) && strings.HasPrefix(text, tag) {
			if c := text[len(tag)]; c == ' ' || c == '\t' {
				return tag, strings.TrimSpace(text[len(tag)+1:])
			}
		}
	}
	return "", text
}

func stripTagged(text string) string {
	_, rest := stripTag(text)
	return rest
}

func hasSubject(values map[string]string) bool {
	_, ok := lookup(RuleKeys(FieldSubject), values, nil)
	return ok
}

func splitLines(body string) []string {
	raw := strings.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == '\r' })
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Excerpt обрезает длинное тело для записи в лог
func Excerpt(raw []byte, max int) string {
	if len(raw) <= max {
		return string(raw)
	}
	return string(bytes.TrimSpace(raw[:max])) + "..."
}
