package config

type (

	// Config конфигурация программы
	Config struct {

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файал логирования
			Filename string `required:"true" default:"adms.log"`

			// Уровень логирования
			Level string `required:"true" default:"warning"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Описываем подключение к базе данных
		Db struct {

			// Тип базы данных (пока только sqlite)
			Type string `default:"sqlite"`

			// Путь к расположению базы данных
			Path string

			// Имя файла базы данных
			Filename string `required:"true" default:"adms.sqlite"`

			// Сколько дней хранить журналы доставки webhook, аудита и операций.
			// Отметки о проходе не удаляются никогда
			ArchiveDays int `default:"90"`

			// Период очистки журналов в минутах
			CleanArchiveInterval int `default:"60"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Порт WEB-сервера
			Port uint `required:"true" default:"8090"`

			// Максимальный размер тела запроса (формат echo: 512K, 1M)
			BodyLimit string `default:"1M"`

			// Таймаут чтения запроса (в секундах)
			ReadTimeout uint `default:"30"`

			// Таймаут записи ответа (в секундах)
			WriteTimeout uint `default:"30"`

			// Разрешённые источники для CORS административного API
			AllowOrigins []string
		}

		// Параметры протокола ADMS
		Adms struct {

			// Интервал опроса сервера терминалом (в секундах), Delay в ответе на рукопожатие
			Delay uint `default:"10"`

			// Окно выгрузки данных терминалом
			TransTimes string `default:"00:00;23:59"`

			// Интервал выгрузки (в минутах)
			TransInterval uint `default:"1"`

			// Выгружать отметки сразу после прохода
			Realtime uint `default:"1"`

			// Шифрование (терминалы SenseFace работают без него)
			Encrypt uint `default:"0"`

			// Окно дедупликации отметок (в секундах). 0 - только точное совпадение времени
			DedupWindow uint `default:"60"`

			// Статус прохода при неизвестном коде (Present или Unknown)
			DefaultStatus string `default:"Present"`

			// Через сколько секунд молчания терминал считается отключённым
			OfflineAfter uint `default:"300"`

			// Часовой пояс терминалов (Local, UTC, Europe/Moscow)
			TimeZone string `default:"Local"`
		}

		// Терминалы, известные заранее. Используются для начального заполнения реестра статусов
		Devices []struct {

			// Серийный номер терминала
			SN string `required:"true"`

			// Имя терминала
			Name string

			// IP:Port адрес терминала
			Address string
		}

		// Рассылка событий во внешние системы
		Webhook struct {

			// Таймаут запроса (в милисекундах)
			Timeout uint `default:"5000"`

			// Максимальное количество попыток доставки
			MaxRetries int `default:"3"`

			// Базовая задержка повтора (в милисекундах), удваивается с каждой попыткой
			Backoff uint `default:"1000"`

			// Количество параллельных отправителей
			Workers int `default:"4"`

			// Размер очереди событий
			QueueSize int `default:"256"`

			// Заголовок User-Agent
			UserAgent string `default:"ADMS-Gateway/1.0"`

			// Время кэширования списка подписок (в секундах)
			CacheTTL uint `default:"30"`
		}

		// Публикация событий в MQTT брокер. Если Broker пустой - отключено
		Mqtt struct {

			// Адрес брокера, например tcp://127.0.0.1:1883
			Broker string

			// Идентификатор клиента
			ClientID string `default:"adms-gateway"`

			Username string
			Password string

			// Префикс топиков: <prefix>/<event>
			TopicPrefix string `default:"adms"`

			// QoS публикации
			Qos uint `default:"1"`
		}
	}
)
