package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/adms"

	"github.com/labstack/echo"
)

// DeviceApi хэндлеры протокола ADMS с корнем в path (обычно /iclock)
func (m *Web) DeviceApi(path string) {
	path = strings.TrimRight(path, "/")

	for _, v := range []string{"/cdata", "/cdata.aspx"} {
		m.e.GET(path+v, m.handshake)
		m.e.POST(path+v, m.dataPush)
	}
	m.e.GET("/protocol-handshake", m.handshake)
	m.e.POST(path+"/registry", m.registry)
	m.e.POST(path+"/registry.aspx", m.registry)
	m.e.GET(path+"/ping", m.ping)
	m.e.GET(path+"/ping.aspx", m.ping)
	m.e.GET(path+"/getrequest", m.commandPoll)
	m.e.GET(path+"/getrequest.aspx", m.commandPoll)
	m.e.POST(path+"/devicecmd", m.commandResult)
	m.e.POST(path+"/devicecmd.aspx", m.commandResult)
}

func (m *Web) handshake(c echo.Context) error {
	return m.reply(c, m.admsCtl.Handshake(serial(c), c.RealIP(), c.QueryParams()))
}

func (m *Web) registry(c echo.Context) error {
	sn := serial(c)
	if sn == "" {
		return m.reply(c, adms.ReplySNRequired)
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return m.reply(c, m.admsCtl.Registry(sn, c.RealIP(), body))
}

func (m *Web) dataPush(c echo.Context) error {
	sn := serial(c)
	if sn == "" {
		return m.reply(c, adms.ReplySNRequired)
	}
	// При превышении BodyLimit чтение вернёт ошибку 413
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	report, reply := m.admsCtl.DataPush(model.PushRequest{
		SN:          sn,
		Table:       c.QueryParam("table"),
		ContentType: c.Request().Header.Get(echo.HeaderContentType),
		Address:     c.RealIP(),
		Query:       c.QueryParams(),
		Body:        body,
	})
	if report != nil && report.Records > 0 {
		m.log.Debugf("%s table=%s: %+v", sn, c.QueryParam("table"), *report)
	}
	return m.reply(c, reply)
}

func (m *Web) commandPoll(c echo.Context) error {
	sn := serial(c)
	if sn == "" {
		return m.reply(c, adms.ReplySNRequired)
	}
	return m.reply(c, m.admsCtl.CommandPoll(sn, c.RealIP()))
}

func (m *Web) commandResult(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return m.reply(c, m.admsCtl.CommandResult(serial(c), c.RealIP(), body))
}

func (m *Web) ping(c echo.Context) error {
	return m.reply(c, m.admsCtl.Ping(serial(c), c.RealIP()))
}

// Ответ терминалу текстом. Только отсутствие серийного номера отдаётся с ошибкой
func (m *Web) reply(c echo.Context, body string) error {
	if body == adms.ReplySNRequired {
		return c.String(http.StatusBadRequest, body)
	}
	return c.String(http.StatusOK, body)
}

// Серийный номер терминала из запроса
func serial(c echo.Context) string {
	for _, v := range []string{c.QueryParam("SN"), c.QueryParam("sn"), c.Request().Header.Get("SN")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
