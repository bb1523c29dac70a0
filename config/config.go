package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию бота
type Config struct {
	// Токен Telegram бота (обязательный)
	TelegramToken string
	// ID администраторов (ADMIN_IDS, через запятую)
	AdminIDs []int64
	// Путь к файлу базы данных SQLite
	DatabasePath string
	// Корневая папка для скачанных файлов
	DownloadDir string
	// Максимальная длительность видео в секундах
	MaxVideoDuration int
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Таймаут HTTP-запросов в секундах
	HTTPTimeout int
	// Количество воркеров очереди загрузок
	QueueWorkers int
	// Часовой пояс для статистики ("сегодня" в отчётах)
	Location *time.Location
	// Интервал запуска фоновой очистки
	CleanupInterval time.Duration
	// Порог занятости диска в процентах, выше которого запускается очистка
	DiskUsageThreshold float64
	// Целевая занятость диска в процентах после очистки
	DiskUsageTarget float64
	// Адрес HTTP-сервера метрик (пустая строка — метрики выключены)
	MetricsAddr string
}

// Load загружает конфигурацию из файла .env и переменных окружения.
// Отсутствие файла не считается ошибкой, достаточно переменных окружения.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(filename); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки %s: %w", filename, err)
	}

	cfg := &Config{}

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN не задан")
	}

	cfg.AdminIDs = parseAdminIDs(os.Getenv("ADMIN_IDS"))

	cfg.DatabasePath = getEnvDefault("DATABASE_PATH", "./bot.db")
	cfg.DownloadDir = getEnvDefault("DOWNLOAD_DIR", "./downloads")

	var err error

	// Максимум 1 час, защита от очень длинных видео
	cfg.MaxVideoDuration, err = getEnvInt("MAX_VIDEO_DURATION", 3600)
	if err != nil {
		return nil, fmt.Errorf("MAX_VIDEO_DURATION: %w", err)
	}

	// 50 MB по умолчанию (лимит Bot API на отправку файлов)
	cfg.MaxFileSize, err = getEnvInt64("MAX_FILE_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.HTTPTimeout, err = getEnvInt("HTTP_TIMEOUT", 30)
	if err != nil {
		return nil, fmt.Errorf("HTTP_TIMEOUT: %w", err)
	}

	cfg.QueueWorkers, err = getEnvInt("QUEUE_WORKERS", 3)
	if err != nil {
		return nil, fmt.Errorf("QUEUE_WORKERS: %w", err)
	}
	if cfg.QueueWorkers < 1 {
		return nil, fmt.Errorf("QUEUE_WORKERS: нужен хотя бы один воркер")
	}

	tz := getEnvDefault("TIMEZONE", "Europe/Moscow")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: неизвестный часовой пояс %q", tz)
	}

	cleanupMinutes, err := getEnvInt("CLEANUP_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, fmt.Errorf("CLEANUP_INTERVAL_MINUTES: %w", err)
	}
	if cleanupMinutes < 1 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL_MINUTES: значение должно быть положительным")
	}
	cfg.CleanupInterval = time.Duration(cleanupMinutes) * time.Minute

	cfg.DiskUsageThreshold, err = getEnvFloat("DISK_USAGE_THRESHOLD", 85)
	if err != nil {
		return nil, fmt.Errorf("DISK_USAGE_THRESHOLD: %w", err)
	}
	cfg.DiskUsageTarget, err = getEnvFloat("DISK_USAGE_TARGET", 70)
	if err != nil {
		return nil, fmt.Errorf("DISK_USAGE_TARGET: %w", err)
	}
	if cfg.DiskUsageTarget >= cfg.DiskUsageThreshold {
		return nil, fmt.Errorf("DISK_USAGE_TARGET (%.0f%%) должен быть меньше DISK_USAGE_THRESHOLD (%.0f%%)",
			cfg.DiskUsageTarget, cfg.DiskUsageThreshold)
	}

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

// IsAdmin проверяет, входит ли пользователь в список администраторов
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// parseAdminIDs разбирает список ID администраторов из строки "1,2,3".
// Некорректные элементы молча пропускаются.
func parseAdminIDs(value string) []int64 {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("недопустимое значение %q", v)
	}
	return n, nil
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("недопустимое значение %q", v)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("недопустимое значение %q", v)
	}
	return f, nil
}
