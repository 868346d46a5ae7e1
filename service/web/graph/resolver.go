package graph

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/pkg/tool"
	"github.com/kirsrus/adms-gateway/service"
	"github.com/kirsrus/adms-gateway/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Resolver резолвер запросов GraphQL. Инициируется NewResolver
type Resolver struct {
	ctx context.Context
	log *logrus.Entry

	dbStore   store.DbStore
	statusSvc service.StatusSvc
}

// ConfigResolver конфигурация структуры Resolver
type ConfigResolver struct {
	Log *logrus.Logger
}

// NewResolver конструктор Resolver
func NewResolver(ctx context.Context, dbStore store.DbStore, statusSvc service.StatusSvc, config *ConfigResolver) (*Resolver, error) {
	if config == nil {
		return nil, errors.New("конфигурация не передана")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if dbStore == nil {
		return nil, errors.New("не передана база данных")
	}
	if statusSvc == nil {
		return nil, errors.New("не передан реестр статусов терминалов")
	}

	return &Resolver{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "graphql",
			"scope":  "service",
		}),
		dbStore:   dbStore,
		statusSvc: statusSvc,
	}, nil
}

// Query значение поля запроса name с аргументами args. Отсутствующая запись - nil без ошибки
func (r *Resolver) Query(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	_ = ctx
	switch name {
	case "devices":
		return r.devices(args)
	case "device":
		device, err := r.dbStore.GetDevice(argString(args, "sn"))
		return r.found(device, err)
	case "statuses":
		return r.statusSvc.List(), nil
	case "status":
		status, ok := r.statusSvc.Get(argString(args, "sn"))
		if !ok {
			return nil, nil
		}
		return status, nil
	case "users":
		offset, limit, err := paging(args)
		if err != nil {
			return nil, err
		}
		return r.dbStore.ListSubjects(offset, limit)
	case "user":
		subject, err := r.dbStore.GetSubject(argString(args, "id"))
		return r.found(subject, err)
	case "attendance":
		return r.attendance(args)
	case "attendance_stats":
		since, err := argTime(args, "since")
		if err != nil {
			return nil, err
		}
		if since == nil {
			today := tool.RoundToDate(time.Now())
			since = &today
		}
		return r.dbStore.AttendanceStats(*since)
	case "commands":
		offset, limit, err := paging(args)
		if err != nil {
			return nil, err
		}
		return r.dbStore.ListCommands(store.CommandFilter{
			DeviceSN:    argString(args, "device_sn"),
			PendingOnly: argBool(args, "pending"),
			Offset:      offset,
			Limit:       limit,
		})
	}
	return nil, errors.NotSupportedf("поле %s", name)
}

func (r *Resolver) devices(args map[string]interface{}) (interface{}, error) {
	offset, limit, err := paging(args)
	if err != nil {
		return nil, err
	}
	return r.dbStore.ListDevices(store.DeviceFilter{
		WithInactive: argBool(args, "inactive"),
		Offset:       offset,
		Limit:        limit,
	})
}

func (r *Resolver) attendance(args map[string]interface{}) (interface{}, error) {
	offset, limit, err := paging(args)
	if err != nil {
		return nil, err
	}
	from, err := argTime(args, "from")
	if err != nil {
		return nil, err
	}
	to, err := argTime(args, "to")
	if err != nil {
		return nil, err
	}
	return r.dbStore.ListAttendance(store.AttendanceFilter{
		SubjectID:   argString(args, "subject_id"),
		DeviceSN:    argString(args, "device_sn"),
		From:        from,
		To:          to,
		UnknownOnly: argBool(args, "unknown"),
		Offset:      offset,
		Limit:       limit,
	})
}

// Запись или nil, если её нет
func (r *Resolver) found(value interface{}, err error) (interface{}, error) {
	if err != nil {
		if r.dbStore.IsNotFound(err) || errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// region Аргументы

func argString(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func argBool(args map[string]interface{}, name string) bool {
	v, _ := args[name].(bool)
	return v
}

// Целые приходят int64 из литерала и json.Number из переменных
func argInt(args map[string]interface{}, name string) (int, error) {
	var n int64
	var err error
	switch v := args[name].(type) {
	case nil:
		return 0, nil
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		n = int64(v)
	case json.Number:
		n, err = v.Int64()
	case string:
		n, err = strconv.ParseInt(v, 10, 64)
	default:
		err = errors.Errorf("тип %T", v)
	}
	if err != nil || n < 0 {
		return 0, errors.NotValidf("аргумент %s=%v", name, args[name])
	}
	return int(n), nil
}

func argTime(args map[string]interface{}, name string) (*time.Time, error) {
	v := argString(args, name)
	if v == "" {
		return nil, nil
	}
	t, err := tool.ParseTime(v)
	if err != nil {
		return nil, errors.NotValidf("аргумент %s=%q", name, v)
	}
	return &t, nil
}

func paging(args map[string]interface{}) (int, int, error) {
	offset, err := argInt(args, "offset")
	if err != nil {
		return 0, 0, err
	}
	limit, err := argInt(args, "limit")
	if err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

// endregion
