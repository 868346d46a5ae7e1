package adms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/kirsrus/adms-gateway/model"
)

// Ответы терминалу
const (
	ReplyOK          = "OK"
	ReplySNRequired  = "ERR: Device SN required"
	ReplyBodyTooLong = "ERR: Request body too large"
)

const crlf = "\r\n"

// Options параметры синхронизации, сообщаемые терминалу при рукопожатии
type Options struct {
	Delay         uint
	TransTimes    string
	TransInterval uint
	Realtime      uint
	Encrypt       uint
}

// HandshakeResponse ответ на рукопожатие. Порядок и имена строк важны для терминала
func HandshakeResponse(sn string, opt Options) string {
	transTimes := opt.TransTimes
	if transTimes == "" {
		transTimes = "00:00;23:59"
	}
	lines := []string{
		"GET OPTION FROM: " + sn,
		"ATTLOGStamp=0",
		"OPERLOGStamp=0",
		fmt.Sprintf("Delay=%d", opt.Delay),
		"TransTimes=" + transTimes,
		fmt.Sprintf("TransInterval=%d", opt.TransInterval),
		fmt.Sprintf("Realtime=%d", opt.Realtime),
		fmt.Sprintf("Encrypt=%d", opt.Encrypt),
		ReplyOK,
	}
	return strings.Join(lines, crlf)
}

// ValidateCommand проверяет, что команду можно будет передать терминалу
func ValidateCommand(verb model.CommandVerb, args map[string]string) error {
	switch verb {
	case model.CommandAddUser, model.CommandDeleteUser:
		if strings.TrimSpace(args["pin"]) == "" {
			return errors.NotValidf("команда %s без pin", verb)
		}
	case model.CommandSyncTime:
		if v := strings.TrimSpace(args["time"]); v != "" {
			if _, err := parseCommandTime(v); err != nil {
				return errors.NotValidf("время %q команды %s", v, verb)
			}
		}
	case model.CommandCustom:
		if strings.TrimSpace(args["command"]) == "" {
			return errors.NotValidf("команда %s без текста", verb)
		}
		if strings.ContainsAny(args["command"], "\r\n") {
			return errors.NotValidf("многострочная команда %s", verb)
		}
	case model.CommandReboot:
	default:
		return errors.NotSupportedf("команда %q", verb)
	}
	return nil
}

// EncodeCommand строка команды для ответа на опрос терминала: C:<id>:<тело>.
// now - текущее время терминала для SYNC_TIME без явного времени
func EncodeCommand(cmd model.Command, now time.Time) (string, error) {
	if err := ValidateCommand(cmd.Verb, cmd.Args); err != nil {
		return "", errors.Trace(err)
	}
	args := cmd.Args
	var body string
	switch cmd.Verb {
	case model.CommandAddUser:
		body = "DATA USER " + strings.Join([]string{
			"PIN=" + clean(args["pin"]),
			"Name=" + clean(args["name"]),
			"Pri=" + withDefault(args["privilege"], "0"),
			"Passwd=" + clean(args["password"]),
			"Card=" + clean(args["card"]),
			"Grp=" + withDefault(args["group"], "1"),
			"TZ=0000000000000000",
		}, "\t")
	case model.CommandDeleteUser:
		body = "DATA DELETE USERINFO PIN=" + clean(args["pin"])
	case model.CommandReboot:
		body = "REBOOT"
	case model.CommandSyncTime:
		at := now
		if v := strings.TrimSpace(args["time"]); v != "" {
			at, _ = parseCommandTime(v)
		}
		body = "SET OPTIONS DateTime=" + strconv.FormatInt(EncodeTime(at), 10)
	case model.CommandCustom:
		body = strings.TrimSpace(args["command"])
	}
	return fmt.Sprintf("C:%d:%s", cmd.ID, body), nil
}

// EncodeTime кодирует время так, как его ожидает терминал в опции DateTime
func EncodeTime(t time.Time) int64 {
	days := int64((t.Year()-2000)*12*31 + (int(t.Month())-1)*31 + t.Day() - 1)
	return days*86400 + int64((t.Hour()*60+t.Minute())*60+t.Second())
}

func parseCommandTime(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// ParseCommandResults разбирает отчёт терминала о выполнении команд: "ID=1&Return=0&CMD=REBOOT" построчно.
// Строки без корректного ID пропускаются
func ParseCommandResults(body []byte) []model.CommandResult {
	var results []model.CommandResult
	for _, line := range splitLines(string(body)) {
		// Часть прошивок присылает несколько пар через табуляцию
		values, _ := url.ParseQuery(strings.ReplaceAll(line, "\t", "&"))
		id, err := strconv.ParseUint(strings.TrimSpace(values.Get("ID")), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		result := model.CommandResult{
			ID:  uint(id),
			Cmd: values.Get("CMD"),
			Raw: line,
		}
		if code, err := strconv.Atoi(strings.TrimSpace(values.Get("Return"))); err == nil {
			result.ReturnCode = &code
		}
		results = append(results, result)
	}
	return results
}

// В значениях команды недопустимы разделители протокола
func clean(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, strings.TrimSpace(v))
}

func withDefault(v, def string) string {
	if v = clean(v); v == "" {
		return def
	}
	return v
}
