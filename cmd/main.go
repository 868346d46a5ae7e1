package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	admissionCtlMod "github.com/kirsrus/adms-gateway/controller/admission"
	admsCtlMod "github.com/kirsrus/adms-gateway/controller/adms"
	"github.com/kirsrus/adms-gateway/controller/manager"
	queueCtlMod "github.com/kirsrus/adms-gateway/controller/queue"
	"github.com/kirsrus/adms-gateway/model"
	"github.com/kirsrus/adms-gateway/pkg/adms"
	"github.com/kirsrus/adms-gateway/pkg/config"
	"github.com/kirsrus/adms-gateway/pkg/logger"
	"github.com/kirsrus/adms-gateway/service"
	mqttSvcMod "github.com/kirsrus/adms-gateway/service/mqtt"
	statusSvcMod "github.com/kirsrus/adms-gateway/service/status"
	webSvcMod "github.com/kirsrus/adms-gateway/service/web"
	webhookSvcMod "github.com/kirsrus/adms-gateway/service/webhook"
	dbStoreMod "github.com/kirsrus/adms-gateway/store/db"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

var (
	cfg *config.Config
	log *logrus.Logger
)

func init() {
	cfg = config.Get()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	log = logger.GetWithConfig(logger.Config{
		File:    cfg.LogFile(),
		Level:   level,
		Console: cfg.Log.Console,
	})
}

func main() {
	err := run()
	if err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		fmt.Printf("Для подробностей смотри лог: %s\n", cfg.LogFile())
		log.Fatal(errors.ErrorStack(err))
	}
}

func run() error {
	// Отлавливаем сигнал завершения работы программы
	chanInterrupt := make(chan os.Signal, 1)
	signal.Notify(chanInterrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// region Настройка БД

	dbStore, err := dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
		Log:    log,
		DbFile: cfg.DbFile(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := dbStore.Close(); err != nil {
			log.Warnf("ошибка закрытия БД: %v", err)
		}
	}()

	// endregion
	// region Реестр статусов терминалов

	devices := make([]model.DeviceStatus, 0, len(cfg.Devices))
	for _, v := range cfg.Devices {
		devices = append(devices, model.DeviceStatus{
			SN:      v.SN,
			Name:    v.Name,
			Address: v.Address,
		})
	}
	statusSvc, err := statusSvcMod.NewStatus(ctx, &statusSvcMod.ConfigStatus{
		Log:          log,
		Devices:      devices,
		OfflineAfter: cfg.OfflineAfter(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Рассылка событий

	workers := make([]service.WorkerSvc, 0)
	notifiers := make(service.Notifiers, 0)

	webhookSvc, err := webhookSvcMod.NewWebhook(ctx, dbStore, &webhookSvcMod.ConfigWebhook{
		Log:        log,
		Timeout:    cfg.WebhookTimeout(),
		MaxRetries: cfg.Webhook.MaxRetries,
		Backoff:    cfg.WebhookBackoff(),
		Workers:    cfg.Webhook.Workers,
		QueueSize:  cfg.Webhook.QueueSize,
		UserAgent:  cfg.Webhook.UserAgent,
		CacheTTL:   time.Duration(cfg.Webhook.CacheTTL) * time.Second,
	})
	if err != nil {
		return errors.Trace(err)
	}
	workers = append(workers, webhookSvc)
	notifiers = append(notifiers, webhookSvc)

	if cfg.Mqtt.Broker != "" {
		mqttSvc, err := mqttSvcMod.NewMqtt(ctx, &mqttSvcMod.ConfigMqtt{
			Log:         log,
			Broker:      cfg.Mqtt.Broker,
			ClientID:    cfg.Mqtt.ClientID,
			Username:    cfg.Mqtt.Username,
			Password:    cfg.Mqtt.Password,
			TopicPrefix: cfg.Mqtt.TopicPrefix,
			Qos:         byte(cfg.Mqtt.Qos),
		})
		if err != nil {
			return errors.Trace(err)
		}
		workers = append(workers, mqttSvc)
		notifiers = append(notifiers, mqttSvc)
	}

	feed, err := webSvcMod.NewFeed(ctx, &webSvcMod.ConfigFeed{Log: log})
	if err != nil {
		return errors.Trace(err)
	}
	notifiers = append(notifiers, feed)

	// endregion
	// region Контроллеры протокола

	dedupWindow := cfg.DedupWindow()
	admissionCtl, err := admissionCtlMod.NewAdmission(ctx, dbStore, notifiers, &admissionCtlMod.ConfigAdmission{
		Log:         log,
		DedupWindow: &dedupWindow,
	})
	if err != nil {
		return errors.Trace(err)
	}

	queueCtl, err := queueCtlMod.NewQueue(ctx, dbStore, &queueCtlMod.ConfigQueue{Log: log})
	if err != nil {
		return errors.Trace(err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return errors.Trace(err)
	}
	admsCtl, err := admsCtlMod.NewAdms(ctx, dbStore, admissionCtl, queueCtl, statusSvc, notifiers, &admsCtlMod.ConfigAdms{
		Log: log,
		Options: adms.Options{
			Delay:         cfg.Adms.Delay,
			TransTimes:    cfg.Adms.TransTimes,
			TransInterval: cfg.Adms.TransInterval,
			Realtime:      cfg.Adms.Realtime,
			Encrypt:       cfg.Adms.Encrypt,
		},
		DefaultStatus: adms.ParseDefaultStatus(cfg.Adms.DefaultStatus),
		Times:         adms.NewTimeNormalizer(loc, nil),
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Сервис WEB

	webSvc, err := webSvcMod.NewWeb(ctx, dbStore, admsCtl, queueCtl, statusSvc, notifiers, &webSvcMod.ConfigWeb{
		Log:           log,
		Port:          cfg.Http.Port,
		BodyLimit:     cfg.Http.BodyLimit,
		ReadTimeout:   time.Duration(cfg.Http.ReadTimeout) * time.Second,
		WriteTimeout:  time.Duration(cfg.Http.WriteTimeout) * time.Second,
		AllowOrigins:  cfg.Http.AllowOrigins,
		Feed:          feed,
		Subscriptions: webhookSvc,
	})
	if err != nil {
		return errors.Trace(err)
	}

	webSvc.DeviceApi("/iclock")
	webSvc.AdminApi("/api")
	webSvc.GraphQLApi("/api/graphql")
	webSvc.EventFeed("/api/events")
	webSvc.Health("/health")

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(ctx, &manager.ConfigManager{
		Log:           log,
		WebSvc:        webSvc,
		DbStore:       dbStore,
		StatusSvc:     statusSvc,
		Notify:        notifiers,
		Workers:       workers,
		ArchiveDays:   cfg.Db.ArchiveDays,
		CleanInterval: time.Minute * time.Duration(cfg.Db.CleanArchiveInterval),
	})
	if err != nil {
		return errors.Trace(err)
	}

	go func() {
		done <- managerCtl.Serve()
	}()

	// endregion

	// Процесс завершения работы
	select {
	case err := <-done:
		return errors.Trace(err)
	case <-chanInterrupt:
		log.Info("получен сигнал на завершение работы программы")
		cancel()
		select {
		case err := <-done:
			return errors.Trace(err)
		case <-time.After(10 * time.Second):
			log.Warn("службы не остановились за отведённое время")
			return nil
		}
	}
}
