package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/tool"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/labstack/echo"
)

// Запрос на постановку команды
type commandRequest struct {
	Command string            `json:"command"`
	Args    map[string]string `json:"args"`
}

// AdminApi хэндлеры административного REST API с корнем в path (обычно /api)
func (m *Web) AdminApi(path string) {
	g := m.e.Group(strings.TrimRight(path, "/"), m.audit)

	g.GET("/devices", m.listDevices)
	g.POST("/devices", m.createDevice)
	g.GET("/devices/:sn", m.getDevice)
	g.PUT("/devices/:sn", m.updateDevice)
	g.DELETE("/devices/:sn", m.deactivateDevice)
	g.GET("/devices/:sn/commands", m.listDeviceCommands)
	g.POST("/devices/:sn/commands", m.enqueueCommand)

	g.GET("/status", m.listStatus)
	g.GET("/status/:sn", m.getStatus)

	g.GET("/users", m.listUsers)
	g.POST("/users", m.createUser)
	g.GET("/users/:id", m.getUser)
	g.PUT("/users/:id", m.updateUser)
	g.DELETE("/users/:id", m.deleteUser)

	g.GET("/attendance", m.listAttendance)
	g.GET("/attendance/stats", m.attendanceStats)
	g.GET("/operations", m.listOperations)
	g.GET("/commands", m.listCommands)

	g.GET("/webhooks", m.listWebhooks)
	g.POST("/webhooks", m.createWebhook)
	g.GET("/webhooks/:id", m.getWebhook)
	g.PUT("/webhooks/:id", m.updateWebhook)
	g.DELETE("/webhooks/:id", m.deleteWebhook)
	g.GET("/webhooks/:id/logs", m.webhookLogs)
	g.GET("/webhook-logs", m.webhookLogs)

	g.GET("/audit", m.listAudit)
}

// region Терминалы

func (m *Web) listDevices(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return m.fail(c, err)
	}
	devices, err := m.dbStore.ListDevices(store.DeviceFilter{
		WithInactive: boolParam(c, "inactive"),
		Offset:       offset,
		Limit:        limit,
	})
	if err != nil {
		return m.fail(c, err)
	}
	if q := strings.ToLower(strings.TrimSpace(c.QueryParam("q"))); q != "" {
		found := make([]model.Device, 0)
		for _, v := range devices {
			if strings.Contains(strings.ToLower(v.SN), q) || strings.Contains(strings.ToLower(v.Name), q) {
				found = append(found, v)
			}
		}
		devices = found
	}
	return c.JSON(http.StatusOK, devices)
}

func (m *Web) getDevice(c echo.Context) error {
	device, err := m.dbStore.GetDevice(c.Param("sn"))
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, device)
}

func (m *Web) createDevice(c echo.Context) error {
	var device model.Device
	if err := c.Bind(&device); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	if _, err := m.dbStore.GetDevice(strings.TrimSpace(device.SN)); err == nil {
		return m.fail(c, errors.AlreadyExistsf("терминал %s", device.SN))
	}
	device.Active = true
	saved, _, err := m.dbStore.SaveDevice(device)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (m *Web) updateDevice(c echo.Context) error {
	device, err := m.dbStore.GetDevice(c.Param("sn"))
	if err != nil {
		return m.fail(c, err)
	}
	// Поля, не переданные в запросе, остаются прежними
	if err := c.Bind(device); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	device.SN = c.Param("sn")
	saved, _, err := m.dbStore.SaveDevice(*device)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (m *Web) deactivateDevice(c echo.Context) error {
	if err := m.dbStore.DeactivateDevice(c.Param("sn")); err != nil {
		return m.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (m *Web) enqueueCommand(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	verb, ok := model.ParseCommandVerb(req.Command)
	if !ok {
		return m.fail(c, errors.NotValidf("команда %q", req.Command))
	}
	cmd, err := m.queueCtl.Enqueue(c.Param("sn"), verb, req.Args)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusCreated, cmd)
}

func (m *Web) listDeviceCommands(c echo.Context) error {
	return m.commands(c, c.Param("sn"))
}

func (m *Web) listCommands(c echo.Context) error {
	return m.commands(c, c.QueryParam("device_sn"))
}

func (m *Web) commands(c echo.Context, sn string) error {
	offset, limit, err := paging(c)
	if err != nil {
		return m.fail(c, err)
	}
	cmds, err := m.queueCtl.List(store.CommandFilter{
		DeviceSN:    sn,
		PendingOnly: boolParam(c, "pending"),
		Offset:      offset,
		Limit:       limit,
	})
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, cmds)
}

func (m *Web) listStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, m.statusSvc.List())
}

func (m *Web) getStatus(c echo.Context) error {
	status, ok := m.statusSvc.Get(c.Param("sn"))
	if !ok {
		return m.fail(c, errors.NotFoundf("терминал %s", c.Param("sn")))
	}
	return c.JSON(http.StatusOK, status)
}

// endregion
// region Персоны

func (m *Web) listUsers(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return m.fail(c, err)
	}
	subjects, err := m.dbStore.ListSubjects(offset, limit)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, subjects)
}

func (m *Web) getUser(c echo.Context) error {
	subject, err := m.dbStore.GetSubject(c.Param("id"))
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, subject)
}

func (m *Web) createUser(c echo.Context) error {
	var subject model.Subject
	if err := c.Bind(&subject); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	if _, err := m.dbStore.GetSubject(strings.TrimSpace(subject.ID)); err == nil {
		return m.fail(c, errors.AlreadyExistsf("персона %s", subject.ID))
	}
	return m.saveUser(c, subject, http.StatusCreated)
}

func (m *Web) updateUser(c echo.Context) error {
	subject, err := m.dbStore.GetSubject(c.Param("id"))
	if err != nil {
		return m.fail(c, err)
	}
	if err := c.Bind(subject); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	subject.ID = c.Param("id")
	return m.saveUser(c, *subject, http.StatusOK)
}

// Сохраняет персону и ставит на каждый её терминал команду ADD_USER
func (m *Web) saveUser(c echo.Context, subject model.Subject, code int) error {
	saved, _, err := m.dbStore.SetSubject(subject)
	if err != nil {
		return m.fail(c, err)
	}
	cmds := m.provision(saved.Devices, model.CommandAddUser, saved.CommandArgs())
	if m.notify != nil {
		m.notify.Notify(model.EventUserEnrolled, map[string]interface{}{
			"subject":  saved,
			"commands": cmds,
		})
	}
	return c.JSON(code, map[string]interface{}{
		"user":     saved,
		"commands": cmds,
	})
}

func (m *Web) deleteUser(c echo.Context) error {
	subject, err := m.dbStore.GetSubject(c.Param("id"))
	if err != nil {
		return m.fail(c, err)
	}
	if err := m.dbStore.DeleteSubject(subject.ID); err != nil {
		return m.fail(c, err)
	}
	cmds := m.provision(subject.Devices, model.CommandDeleteUser, map[string]string{"pin": subject.ID})
	return c.JSON(http.StatusOK, map[string]interface{}{
		"commands": cmds,
	})
}

// Ставит команду на каждый терминал. Ошибка по одному терминалу не мешает остальным
func (m *Web) provision(devices []string, verb model.CommandVerb, args map[string]string) []model.Command {
	cmds := make([]model.Command, 0, len(devices))
	for _, sn := range devices {
		cmd, err := m.queueCtl.Enqueue(sn, verb, args)
		if err != nil {
			m.log.Warnf("не удалось поставить %s для %s: %v", verb, sn, err)
			continue
		}
		cmds = append(cmds, *cmd)
	}
	return cmds
}

// endregion
// region Отметки и журналы

func (m *Web) listAttendance(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return m.fail(c, err)
	}
	from, err := timeParam(c, "from")
	if err != nil {
		return m.fail(c, err)
	}
	to, err := timeParam(c, "to")
	if err != nil {
		return m.fail(c, err)
	}
	records, err := m.dbStore.ListAttendance(store.AttendanceFilter{
		SubjectID:   c.QueryParam("subject_id"),
		DeviceSN:    c.QueryParam("device_sn"),
		From:        from,
		To:          to,
		UnknownOnly: boolParam(c, "unknown"),
		Offset:      offset,
		Limit:       limit,
	})
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (m *Web) attendanceStats(c echo.Context) error {
	since, err := timeParam(c, "since")
	if err != nil {
		return m.fail(c, err)
	}
	if since == nil {
		today := tool.RoundToDate(time.Now())
		since = &today
	}
	stats, err := m.dbStore.AttendanceStats(*since)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (m *Web) listOperations(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return m.fail(c, err)
	}
	ops, err := m.dbStore.ListOperations(c.QueryParam("device_sn"), offset, limit)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, ops)
}

func (m *Web) listAudit(c echo.Context) error {
	offset, limit, err := paging(c)
	if err != nil {
		return m.fail(c, err)
	}
	entries, err := m.dbStore.ListAudit(offset, limit)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// endregion
// region Webhook

func (m *Web) listWebhooks(c echo.Context) error {
	hooks, err := m.dbStore.ListWebhooks()
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, hooks)
}

func (m *Web) getWebhook(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return m.fail(c, err)
	}
	hook, err := m.dbStore.GetWebhook(id)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, hook)
}

func (m *Web) createWebhook(c echo.Context) error {
	hook := model.Webhook{Active: true}
	if err := c.Bind(&hook); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	hook.ID = 0
	saved, err := m.dbStore.SaveWebhook(hook)
	if err != nil {
		return m.fail(c, err)
	}
	m.invalidate()
	return c.JSON(http.StatusCreated, saved)
}

func (m *Web) updateWebhook(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return m.fail(c, err)
	}
	hook, err := m.dbStore.GetWebhook(id)
	if err != nil {
		return m.fail(c, err)
	}
	if err := c.Bind(hook); err != nil {
		return m.fail(c, errors.NewNotValid(err, "тело запроса"))
	}
	hook.ID = id
	saved, err := m.dbStore.SaveWebhook(*hook)
	if err != nil {
		return m.fail(c, err)
	}
	m.invalidate()
	return c.JSON(http.StatusOK, saved)
}

func (m *Web) deleteWebhook(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return m.fail(c, err)
	}
	if err := m.dbStore.DeleteWebhook(id); err != nil {
		return m.fail(c, err)
	}
	m.invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (m *Web) webhookLogs(c echo.Context) error {
	filter := store.WebhookLogFilter{Status: c.QueryParam("status")}
	if c.Param("id") != "" {
		id, err := idParam(c)
		if err != nil {
			return m.fail(c, err)
		}
		filter.WebhookID = id
	}
	var err error
	if filter.Offset, filter.Limit, err = paging(c); err != nil {
		return m.fail(c, err)
	}
	logs, err := m.dbStore.WebhookLogs(filter)
	if err != nil {
		return m.fail(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

func (m *Web) invalidate() {
	if m.subs != nil {
		m.subs.Invalidate()
	}
}

// endregion
