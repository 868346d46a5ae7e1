package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirsrus/adms-gateway/controller"
	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/adms"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/pkg/tool"
	"github.com/kirsrus/adms-gateway/pkg/validator"
	"github.com/kirsrus/adms-gateway/service"
	"github.com/kirsrus/adms-gateway/service/web/graph"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"
)

const (
	webPort         = 8090
	bodyLimit       = "1M"
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	// Предельная сложность запроса GraphQL
	complexityLimit = 200

	// Корень протокола терминалов. Ошибки под ним отдаются текстом
	deviceRoot = "/iclock"
)

// Subscriptions кэш подписок, сбрасываемый при изменении webhook
type Subscriptions interface {
	Invalidate()
}

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	Port uint
	// Максимальный размер тела запроса в формате echo (512K, 1M)
	BodyLimit    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Источники, которым разрешён административный API. Пусто - все
	AllowOrigins []string

	// Лента событий по WebSocket. Может быть nil
	Feed *Feed
	// Кэш подписок webhook. Может быть nil
	Subscriptions Subscriptions
}

// Web служба WEB-сервисов: протокол терминалов и административный API. Инициализируется через NewWeb
type Web struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator
	e         *echo.Echo

	dbStore   store.DbStore
	admsCtl   controller.AdmsCtl
	queueCtl  controller.QueueCtl
	statusSvc service.StatusSvc
	notify    service.NotifySvc
	feed      *Feed
	subs      Subscriptions

	graphqlHandler *handler.Server

	port         uint
	readTimeout  time.Duration
	writeTimeout time.Duration
	started      time.Time
}

// NewWeb конструктор структуры Web. notify может быть nil
func NewWeb(ctx context.Context, dbStore store.DbStore, admsCtl controller.AdmsCtl, queueCtl controller.QueueCtl,
	statusSvc service.StatusSvc, notify service.NotifySvc, config *ConfigWeb) (*Web, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if dbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}
	if admsCtl == nil {
		return nil, errors.New("не передан контроллер протокола ADMS")
	}
	if queueCtl == nil {
		return nil, errors.New("не передан контроллер очереди команд")
	}
	if statusSvc == nil {
		return nil, errors.New("не передан реестр статусов терминалов")
	}

	web := Web{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "web",
			"scope":  "service",
		}),
		validator: validator.Get(),
		e:         echo.New(),

		dbStore:   dbStore,
		admsCtl:   admsCtl,
		queueCtl:  queueCtl,
		statusSvc: statusSvc,
		notify:    notify,
		feed:      config.Feed,
		subs:      config.Subscriptions,

		port:         webPort,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		started:      time.Now(),
	}
	if config.Port != 0 {
		web.port = config.Port
	}
	if config.ReadTimeout != 0 {
		web.readTimeout = config.ReadTimeout
	}
	if config.WriteTimeout != 0 {
		web.writeTimeout = config.WriteTimeout
	}
	limit := bodyLimit
	if config.BodyLimit != "" {
		limit = config.BodyLimit
	}
	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	resolver, err := graph.NewResolver(ctx, dbStore, statusSvc, &graph.ConfigResolver{
		Log: config.Log,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	web.graphqlHandler = handler.New(graph.NewExecutableSchema(resolver))
	web.graphqlHandler.AddTransport(transport.GET{})
	web.graphqlHandler.AddTransport(transport.POST{})
	web.graphqlHandler.Use(extension.FixedComplexityLimit(complexityLimit))

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.HTTPErrorHandler = web.errorHandler
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.BodyLimit(limit))
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/api")
		},
		AllowOrigins: origins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	return &web, nil
}

// ServeHTTP обработка запроса (для тестов и встраивания)
func (m *Web) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.e.ServeHTTP(w, r)
}

// Serve запускает HTTP-сервер и останавливает его по завершению контекста
func (m *Web) Serve() error {
	m.e.Server.ReadTimeout = m.readTimeout
	m.e.Server.WriteTimeout = m.writeTimeout

	done := make(chan error, 1)
	go func() {
		m.log.Infof("старт HTTP-сервера на порту :%d", m.port)
		done <- m.e.Start(fmt.Sprintf(":%d", m.port))
	}()

	select {
	case err := <-done:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Annotate(err, "сервер неожиданно завершил работу")
	case <-m.ctx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.e.Shutdown(ctx); err != nil {
			m.log.Warnf("ошибка остановки HTTP-сервера: %v", err)
		}
		m.log.Info("HTTP-сервер остановлен")
		return nil
	}
}

// Health проверка работоспособности
func (m *Web) Health(path string) {
	m.e.GET(path, func(c echo.Context) error {
		status := http.StatusOK
		db := "ok"
		if _, err := m.dbStore.ListDevices(store.DeviceFilter{Limit: 1}); err != nil {
			m.log.Errorf("проверка БД: %v", err)
			status = http.StatusServiceUnavailable
			db = err.Error()
		}
		connected := 0
		for _, v := range m.statusSvc.List() {
			if v.Connected {
				connected++
			}
		}
		return c.JSON(status, map[string]interface{}{
			"status":            http.StatusText(status),
			"db":                db,
			"uptime":            time.Since(m.started).Round(time.Second).String(),
			"devices_connected": connected,
			"time":              time.Now().UTC(),
		})
	})
}

// GraphQLApi запросы административного API на GraphQL (только чтение)
func (m *Web) GraphQLApi(path string) {
	serve := func(c echo.Context) error {
		m.graphqlHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	}
	m.e.GET(path, serve)
	m.e.POST(path, serve)
}

// EventFeed лента событий по WebSocket
func (m *Web) EventFeed(path string) {
	m.e.GET(path, func(c echo.Context) error {
		if m.feed == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "лента событий отключена"})
		}
		return m.feed.Handler(c)
	})
}

// Ответ на ошибку. Терминалам - текстом, административному API - JSON
func (m *Web) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		message = fmt.Sprint(he.Message)
	} else {
		m.log.Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	if c.Response().Committed {
		return
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, deviceRoot) || path == "/protocol-handshake" {
		if code == http.StatusRequestEntityTooLarge {
			message = adms.ReplyBodyTooLong
		}
		_ = c.String(code, message)
		return
	}
	_ = c.JSON(code, map[string]string{"message": message})
}

// Ответ административного API на ошибку контроллера или БД
func (m *Web) fail(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.IsNotValid(err), errors.IsNotSupported(err):
		code = http.StatusBadRequest
	case errors.IsNotFound(err), m.dbStore.IsNotFound(err):
		code = http.StatusNotFound
	case errors.IsAlreadyExists(err), m.dbStore.IsDuplicate(err):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		m.log.Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, errors.ErrorStack(err))
		return c.JSON(code, map[string]string{"message": "внутренняя ошибка сервера"})
	}
	return c.JSON(code, map[string]string{"message": err.Error()})
}

// Запись мутирующих запросов административного API в журнал. Запись в БД не задерживает ответ
func (m *Web) audit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions {
			return next(c)
		}
		requestID := uuid.New().String()
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		entry := model.AuditLog{
			RequestID:  requestID,
			Action:     req.Method + " " + c.Path(),
			Resource:   resource(c.Path()),
			ResourceID: firstNonEmpty(c.Param("sn"), c.Param("id")),
			IP:         c.RealIP(),
			UserAgent:  req.UserAgent(),
			Status:     c.Response().Status,
			Details: map[string]interface{}{
				"path": req.URL.Path,
			},
		}
		if req.URL.RawQuery != "" {
			entry.Details["query"] = req.URL.RawQuery
		}
		go func() {
			if err := m.dbStore.InsertAudit(entry); err != nil {
				m.log.Errorf("не удалось записать журнал аудита %s: %v", requestID, err)
			}
		}()
		return nil
	}
}

// Ресурс по маршруту: "/api/devices/:sn/commands" -> "devices"
func resource(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Параметры постраничного вывода
func paging(c echo.Context) (int, int, error) {
	offset, err := intParam(c, "offset")
	if err != nil {
		return 0, 0, err
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.NotValidf("параметр %s=%q", name, v)
	}
	return n, nil
}

func boolParam(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

// Время из параметра запроса: RFC3339 или дата YYYY-MM-DD
func timeParam(c echo.Context, name string) (*time.Time, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	t, err := tool.ParseTime(v)
	if err != nil {
		return nil, errors.NotValidf("параметр %s=%q", name, v)
	}
	return &t, nil
}

func idParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.NotValidf("идентификатор %q", c.Param("id"))
	}
	return uint(id), nil
}
